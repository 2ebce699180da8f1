// Package library loads constraint definitions and composition workflows
// from YAML and serves them as immutable snapshots.
package library

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/nudge/internal/composition"
	"github.com/nvandessel/nudge/internal/models"
)

// ErrConstraintNotFound is returned by lookups of unknown ids.
var ErrConstraintNotFound = errors.New("constraint not found")

//go:embed default.yaml
var defaultLibraryYAML []byte

// Library is an immutable set of constraints and the workflows that
// sequence composite constraints.
type Library struct {
	source      string
	constraints []models.Constraint
	byID        map[models.ConstraintID]models.Constraint
	workflows   []composition.Workflow
}

// Default returns the built-in library.
func Default() *Library {
	lib, err := parse(defaultLibraryYAML, "built-in")
	if err != nil {
		panic(fmt.Sprintf("built-in constraint library is invalid: %v", err))
	}
	return lib
}

// Load reads and parses a library file.
func Load(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading constraint library: %w", err)
	}
	return parse(data, path)
}

// Parse parses a library document.
func Parse(data []byte) (*Library, error) {
	return parse(data, "")
}

func parse(data []byte, source string) (*Library, error) {
	var doc FileYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing constraint library: %w", err)
	}
	if err := libraryValidate.Struct(doc); err != nil {
		return nil, fmt.Errorf("invalid constraint library: %w", describeValidation(err))
	}

	lib := &Library{
		source: source,
		byID:   make(map[models.ConstraintID]models.Constraint),
	}

	for _, c := range doc.Constraints {
		def, err := definition(c.ID, c.Title, c.Priority, c.Phases, c.TriggerYAML, c.Reminders)
		if err != nil {
			return nil, err
		}
		atomic, err := models.NewAtomicConstraint(def)
		if err != nil {
			return nil, err
		}
		if err := lib.add(atomic); err != nil {
			return nil, err
		}
	}

	for _, c := range doc.Compositions {
		wf, err := lib.buildWorkflow(c)
		if err != nil {
			return nil, fmt.Errorf("composition %s: %w", c.ID, err)
		}
		def, err := definition(c.ID, c.Title, c.Priority, c.Phases, c.TriggerYAML, c.Reminders)
		if err != nil {
			return nil, err
		}
		composite, err := models.NewCompositeConstraint(def, models.CompositionType(c.Type), wf.Members())
		if err != nil {
			return nil, err
		}
		if err := lib.add(composite); err != nil {
			return nil, err
		}
		lib.workflows = append(lib.workflows, wf)
	}

	return lib, nil
}

func definition(id, title string, priority float64, phases []string, trig TriggerYAML, reminders []string) (models.Definition, error) {
	cid, err := models.NewConstraintID(id)
	if err != nil {
		return models.Definition{}, err
	}
	p, err := models.NewPriority(priority)
	if err != nil {
		return models.Definition{}, fmt.Errorf("constraint %s: %w", id, err)
	}
	def := models.Definition{
		ID:        cid,
		Title:     title,
		Priority:  p,
		Phases:    phases,
		Reminders: reminders,
	}
	if !trig.empty() || len(trig.AntiPatterns) > 0 {
		cfg, err := models.NewTriggerConfiguration(models.TriggerConfiguration{
			Keywords:            trig.Keywords,
			FilePatterns:        trig.FilePatterns,
			ContextPatterns:     trig.ContextPatterns,
			AntiPatterns:        trig.AntiPatterns,
			ConfidenceThreshold: trig.ConfidenceThreshold,
		})
		if err != nil {
			return models.Definition{}, fmt.Errorf("constraint %s: %w", id, err)
		}
		def.Trigger = &cfg
	}
	return def, nil
}

func (l *Library) add(c models.Constraint) error {
	id := c.Def().ID
	if _, dup := l.byID[id]; dup {
		return fmt.Errorf("%w: duplicate constraint id %s", models.ErrInvalidConstraint, id)
	}
	l.byID[id] = c
	l.constraints = append(l.constraints, c)
	return nil
}

// ref resolves a reference to an already declared constraint.
func (l *Library) ref(id string) (models.ConstraintID, error) {
	cid := models.ConstraintID(id)
	if _, ok := l.byID[cid]; !ok {
		return "", fmt.Errorf("%w: %s", ErrConstraintNotFound, id)
	}
	return cid, nil
}

func (l *Library) buildWorkflow(c CompositeYAML) (composition.Workflow, error) {
	id := models.ConstraintID(c.ID)

	switch models.CompositionType(c.Type) {
	case models.CompositionSequential:
		stages := make([]composition.SequentialStage, 0, len(c.Stages))
		for _, st := range c.Stages {
			cid, err := l.ref(st.Constraint)
			if err != nil {
				return nil, err
			}
			name := st.Name
			if name == "" {
				name = st.Constraint
			}
			stages = append(stages, composition.SequentialStage{Name: name, ConstraintID: cid})
		}
		rules := make([]composition.SequentialRule, 0, len(c.Rules))
		for _, r := range c.Rules {
			rules = append(rules, composition.SequentialRule{
				WorkflowState:   r.WorkflowState,
				EvaluationState: r.Evaluation,
				Successful:      r.Successful,
				Stage:           r.Stage,
			})
		}
		s, err := composition.NewSequential(stages, rules)
		if err != nil {
			return nil, err
		}
		return composition.Bind[composition.SequentialState](id, s), nil

	case models.CompositionHierarchical:
		members := make([]composition.HierarchicalConstraintInfo, 0, len(c.Members))
		for _, m := range c.Members {
			cid, err := l.ref(m.Constraint)
			if err != nil {
				return nil, err
			}
			members = append(members, composition.HierarchicalConstraintInfo{
				ConstraintID: cid,
				Level:        m.Level,
				Priority:     l.byID[cid].Def().Priority,
			})
		}
		h, err := composition.NewHierarchical(members)
		if err != nil {
			return nil, err
		}
		return composition.Bind[composition.HierarchicalState](id, h), nil

	case models.CompositionLayered:
		layers := make([]composition.Layer, 0, len(c.Layers))
		for _, ly := range c.Layers {
			cid, err := l.ref(ly.Constraint)
			if err != nil {
				return nil, err
			}
			layers = append(layers, composition.Layer{
				Name:         ly.Name,
				Level:        ly.Level,
				ConstraintID: cid,
				Patterns:     ly.Patterns,
			})
		}
		remediation, err := l.ref(c.Remediation)
		if err != nil {
			return nil, err
		}
		ld, err := composition.NewLayered(composition.LayeredConfig{
			Layers:      layers,
			Allowed:     c.Allowed,
			Remediation: remediation,
		})
		if err != nil {
			return nil, err
		}
		return composition.Bind[composition.LayeredState](id, ld), nil

	case models.CompositionProgressive:
		stages := make([]composition.ProgressiveStage, 0, len(c.Stages))
		for _, st := range c.Stages {
			cid, err := l.ref(st.Constraint)
			if err != nil {
				return nil, err
			}
			stages = append(stages, composition.ProgressiveStage{
				Name:         st.Name,
				ConstraintID: cid,
				Barrier:      st.Barrier,
				Guidance:     st.Guidance,
			})
		}
		p, err := composition.NewProgressive(stages, c.AllowSkipAhead)
		if err != nil {
			return nil, err
		}
		return composition.Bind[composition.ProgressiveState](id, p), nil
	}

	return nil, fmt.Errorf("unknown composition type %q", c.Type)
}

// Source names where the library was loaded from.
func (l *Library) Source() string {
	return l.source
}

// Len returns the number of constraints, composites included.
func (l *Library) Len() int {
	return len(l.constraints)
}

// Snapshot returns the constraints in declaration order.
func (l *Library) Snapshot() []models.Constraint {
	return append([]models.Constraint(nil), l.constraints...)
}

// Constraints implements activation.Resolver.
func (l *Library) Constraints(ctx context.Context) ([]models.Constraint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.Snapshot(), nil
}

// Lookup returns the constraint with id.
func (l *Library) Lookup(id models.ConstraintID) (models.Constraint, error) {
	c, ok := l.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConstraintNotFound, id)
	}
	return c, nil
}

// Reminders returns the reminder texts of id, or nil when unknown.
func (l *Library) Reminders(id models.ConstraintID) []string {
	c, ok := l.byID[id]
	if !ok {
		return nil
	}
	return c.Def().Reminders
}

// Workflows returns the composition workflows in declaration order.
func (l *Library) Workflows() []composition.Workflow {
	return append([]composition.Workflow(nil), l.workflows...)
}

// Workflow returns the workflow declared by composite id.
func (l *Library) Workflow(id models.ConstraintID) (composition.Workflow, error) {
	for _, wf := range l.workflows {
		if wf.ID() == id {
			return wf, nil
		}
	}
	return nil, fmt.Errorf("%w: no composition %s", ErrConstraintNotFound, id)
}

// describeValidation flattens validator errors into one readable error.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "FileYAML.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s fails %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s fails %s", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
