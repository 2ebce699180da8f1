package composition

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nvandessel/nudge/internal/models"
)

// Layer is a named architectural layer. Namespaces map to the layer through
// Patterns: a trailing "*" matches any namespace with that prefix, anything
// else matches the namespace itself and everything nested under it.
type Layer struct {
	Name         string              `json:"name"`
	Level        int                 `json:"level"`
	ConstraintID models.ConstraintID `json:"constraint_id"`
	Patterns     []string            `json:"patterns"`
}

// LayerViolation is a dependency the policy forbids.
type LayerViolation struct {
	Dependency  CodeDependency `json:"dependency"`
	SourceLayer string         `json:"source_layer"`
	TargetLayer string         `json:"target_layer"`
}

func (v LayerViolation) String() string {
	return fmt.Sprintf("%s (%s) -> %s (%s)", v.Dependency.Source, v.SourceLayer, v.Dependency.Target, v.TargetLayer)
}

// LayeredState tracks completed layers and the violations seen last.
type LayeredState struct {
	Completed  []string         `json:"completed,omitempty"`
	Current    string           `json:"current,omitempty"`
	Violations []LayerViolation `json:"violations,omitempty"`
}

// LayeredConfig configures a Layered strategy.
type LayeredConfig struct {
	Layers []Layer

	// Allowed maps a layer to the layers it may depend on. A layer may
	// always depend on itself; everything not listed is forbidden.
	Allowed map[string][]string

	// Remediation is the constraint activated while violations exist.
	Remediation models.ConstraintID
}

// Layered enforces a dependency policy between layers and otherwise walks the
// layers from the lowest level up.
type Layered struct {
	layers      []Layer
	allowed     map[string]map[string]bool
	remediation models.ConstraintID
}

// NewLayered validates cfg.
func NewLayered(cfg LayeredConfig) (*Layered, error) {
	if len(cfg.Layers) == 0 {
		return nil, fmt.Errorf("layered composition needs at least one layer")
	}
	if cfg.Remediation == "" {
		return nil, fmt.Errorf("layered composition needs a remediation constraint")
	}
	names := make(map[string]bool, len(cfg.Layers))
	for _, l := range cfg.Layers {
		if l.Name == "" {
			return nil, fmt.Errorf("layer needs a name")
		}
		if names[l.Name] {
			return nil, fmt.Errorf("duplicate layer %q", l.Name)
		}
		if l.ConstraintID == "" {
			return nil, fmt.Errorf("layer %q needs a constraint", l.Name)
		}
		if len(l.Patterns) == 0 {
			return nil, fmt.Errorf("layer %q needs at least one namespace pattern", l.Name)
		}
		names[l.Name] = true
	}

	allowed := make(map[string]map[string]bool, len(cfg.Allowed))
	for from, targets := range cfg.Allowed {
		if !names[from] {
			return nil, fmt.Errorf("dependency policy refers to unknown layer %q", from)
		}
		set := make(map[string]bool, len(targets))
		for _, to := range targets {
			if !names[to] {
				return nil, fmt.Errorf("dependency policy refers to unknown layer %q", to)
			}
			set[to] = true
		}
		allowed[from] = set
	}

	layers := append([]Layer(nil), cfg.Layers...)
	sort.SliceStable(layers, func(i, j int) bool {
		return layers[i].Level < layers[j].Level
	})
	return &Layered{layers: layers, allowed: allowed, remediation: cfg.Remediation}, nil
}

// Kind implements Strategy.
func (l *Layered) Kind() models.CompositionType { return models.CompositionLayered }

// Members implements Strategy: every layer constraint, then the remediation.
func (l *Layered) Members() []models.ConstraintID {
	out := make([]models.ConstraintID, 0, len(l.layers)+1)
	for _, layer := range l.layers {
		out = append(out, layer.ConstraintID)
	}
	if !containsID(out, l.remediation) {
		out = append(out, l.remediation)
	}
	return out
}

// Initial implements Strategy.
func (l *Layered) Initial() LayeredState {
	return LayeredState{Current: l.layers[0].Name}
}

// Next implements Strategy. Violations in ctx take precedence over progression.
func (l *Layered) Next(state LayeredState, ctx Context) (models.ConstraintActivation, bool) {
	if len(l.Violations(ctx.Dependencies)) > 0 {
		return ctx.activate(l.remediation, models.ReasonViolationRemediation), true
	}
	for _, layer := range l.layers {
		if !containsString(state.Completed, layer.Name) {
			return ctx.activate(layer.ConstraintID, models.ReasonCompositionStep), true
		}
	}
	return models.ConstraintActivation{}, false
}

// Advance implements Strategy. It records the violations present in ctx and
// marks the layer owning completed as done.
func (l *Layered) Advance(state LayeredState, completed models.ConstraintActivation, ctx Context) LayeredState {
	next := LayeredState{
		Completed:  append([]string(nil), state.Completed...),
		Violations: l.Violations(ctx.Dependencies),
	}
	for _, layer := range l.layers {
		if layer.ConstraintID == completed.ConstraintID && !containsString(next.Completed, layer.Name) {
			next.Completed = append(next.Completed, layer.Name)
		}
	}
	for _, layer := range l.layers {
		if !containsString(next.Completed, layer.Name) {
			next.Current = layer.Name
			break
		}
	}
	return next
}

// Violations returns the dependencies the policy forbids, in input order.
// Namespaces that map to no layer are ignored.
func (l *Layered) Violations(deps []CodeDependency) []LayerViolation {
	var out []LayerViolation
	for _, d := range deps {
		from, ok := l.LayerOf(d.Source)
		if !ok {
			continue
		}
		to, ok := l.LayerOf(d.Target)
		if !ok || from == to {
			continue
		}
		if l.allowed[from][to] {
			continue
		}
		out = append(out, LayerViolation{Dependency: d, SourceLayer: from, TargetLayer: to})
	}
	return out
}

// LayerOf maps a namespace to a layer name using the longest matching pattern.
func (l *Layered) LayerOf(namespace string) (string, bool) {
	best, bestLen := "", -1
	for _, layer := range l.layers {
		for _, p := range layer.Patterns {
			if matchNamespace(p, namespace) && len(p) > bestLen {
				best, bestLen = layer.Name, len(p)
			}
		}
	}
	return best, bestLen >= 0
}

func matchNamespace(pattern, namespace string) bool {
	if pattern == "" || namespace == "" {
		return false
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(namespace, prefix)
	}
	if namespace == pattern {
		return true
	}
	return strings.HasPrefix(namespace, pattern+".") || strings.HasPrefix(namespace, pattern+"/")
}
