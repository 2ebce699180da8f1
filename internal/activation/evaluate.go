package activation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nvandessel/nudge/internal/constants"
	"github.com/nvandessel/nudge/internal/models"
)

// Resolver supplies the constraint snapshot for one evaluation.
type Resolver interface {
	Constraints(ctx context.Context) ([]models.Constraint, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context) ([]models.Constraint, error)

// Constraints implements Resolver.
func (f ResolverFunc) Constraints(ctx context.Context) ([]models.Constraint, error) {
	return f(ctx)
}

// EngineConfig configures the trigger matching engine.
type EngineConfig struct {
	// MaxActiveConstraints caps the result length. Zero uses the default.
	MaxActiveConstraints int
}

// Engine evaluates trigger configurations against a context.
type Engine struct {
	resolver  Resolver
	scorer    models.KeywordScorer
	maxActive int
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates an engine. A nil logger uses slog.Default().
func NewEngine(resolver Resolver, scorer models.KeywordScorer, cfg EngineConfig, logger *slog.Logger) *Engine {
	if cfg.MaxActiveConstraints <= 0 {
		cfg.MaxActiveConstraints = constants.DefaultMaxActiveConstraints
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		resolver:  resolver,
		scorer:    scorer,
		maxActive: cfg.MaxActiveConstraints,
		logger:    logger,
		now:       time.Now,
	}
}

// MaxActiveConstraints returns the configured cap.
func (e *Engine) MaxActiveConstraints() int {
	return e.maxActive
}

// EvaluateConstraints returns the activations whose relevance reaches their
// constraint's threshold, sorted by confidence (stable on ties) and capped to
// MaxActiveConstraints. Any failure to obtain or score the snapshot as a
// whole yields an empty result.
func (e *Engine) EvaluateConstraints(ctx context.Context, tc models.TriggerContext) []models.ConstraintActivation {
	ranked := e.RankConstraints(ctx, tc)
	if len(ranked) > e.maxActive {
		ranked = ranked[:e.maxActive]
	}
	return ranked
}

// RankConstraints is EvaluateConstraints without the cap, for callers that
// adjust confidences before truncating.
func (e *Engine) RankConstraints(ctx context.Context, tc models.TriggerContext) (result []models.ConstraintActivation) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("constraint evaluation aborted", "session", tc.SessionID, "panic", fmt.Sprint(r))
			result = []models.ConstraintActivation{}
		}
	}()

	constraints, err := e.snapshot(ctx)
	if err != nil {
		e.logger.Warn("constraint resolver failed", "session", tc.SessionID, "error", err)
		return []models.ConstraintActivation{}
	}
	return e.rank(constraints, tc, nil)
}

// GetRelevantConstraints ranks every constraint whose relevance reaches
// minConfidence, ignoring per-constraint thresholds and the result cap.
func (e *Engine) GetRelevantConstraints(ctx context.Context, tc models.TriggerContext, minConfidence float64) (result []models.ConstraintActivation) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("constraint evaluation aborted", "session", tc.SessionID, "panic", fmt.Sprint(r))
			result = []models.ConstraintActivation{}
		}
	}()

	constraints, err := e.snapshot(ctx)
	if err != nil {
		e.logger.Warn("constraint resolver failed", "session", tc.SessionID, "error", err)
		return []models.ConstraintActivation{}
	}
	return e.rank(constraints, tc, &minConfidence)
}

// Explain returns the relevance breakdown for every constraint with a trigger,
// in declaration order. Vetoed and below-threshold constraints are included.
func (e *Engine) Explain(ctx context.Context, tc models.TriggerContext) ([]Explanation, error) {
	constraints, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Explanation, 0, len(constraints))
	for _, c := range constraints {
		def := c.Def()
		if def.Trigger == nil {
			continue
		}
		rel := tc.Relevance(*def.Trigger, e.scorer)
		out = append(out, Explanation{
			ConstraintID: def.ID,
			Relevance:    rel,
			Threshold:    def.Trigger.Threshold(),
			Active:       !rel.Vetoed && rel.Score > 0 && rel.Score >= def.Trigger.Threshold(),
		})
	}
	return out, nil
}

// Explanation shows why a constraint did or did not activate.
type Explanation struct {
	ConstraintID models.ConstraintID `json:"constraint_id"`
	Relevance    models.Relevance    `json:"relevance"`
	Threshold    float64             `json:"threshold"`
	Active       bool                `json:"active"`
}

func (e *Engine) snapshot(ctx context.Context) ([]models.Constraint, error) {
	if e.resolver == nil {
		return nil, fmt.Errorf("no constraint resolver configured")
	}
	constraints, err := e.resolver.Constraints(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving constraints: %w", err)
	}
	return constraints, nil
}

// rank scores every constraint, keeps those at or above the threshold
// (override when non-nil) and sorts them by confidence.
func (e *Engine) rank(constraints []models.Constraint, tc models.TriggerContext, override *float64) []models.ConstraintActivation {
	now := e.now()
	results := make([]models.ConstraintActivation, 0, len(constraints))
	for _, c := range constraints {
		act, ok, err := e.evaluateOne(c, tc, override, now)
		if err != nil {
			e.logger.Warn("skipping constraint", "error", err)
			continue
		}
		if ok {
			results = append(results, act)
		}
	}

	SortActivations(results)
	return results
}

// evaluateOne scores a single constraint. A panic while scoring is converted
// into an error so one bad definition cannot abort the evaluation.
func (e *Engine) evaluateOne(c models.Constraint, tc models.TriggerContext, override *float64, now time.Time) (act models.ConstraintActivation, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scoring constraint panicked: %v", r)
			ok = false
		}
	}()

	var def models.Definition
	switch v := c.(type) {
	case *models.AtomicConstraint:
		def = v.Def()
	case *models.CompositeConstraint:
		def = v.Def()
	default:
		return act, false, fmt.Errorf("unsupported constraint type %T", c)
	}

	if def.Trigger == nil {
		return act, false, nil
	}

	rel := tc.Relevance(*def.Trigger, e.scorer)
	if rel.Vetoed || rel.Score <= 0 {
		return act, false, nil
	}

	threshold := def.Trigger.Threshold()
	if override != nil {
		threshold = *override
	}
	if rel.Score < threshold {
		return act, false, nil
	}

	act, err = models.NewConstraintActivation(def.ID, rel.Score, rel.Reason, tc, now)
	if err != nil {
		return act, false, fmt.Errorf("constraint %s: %w", def.ID, err)
	}
	return act, true, nil
}

// SortActivations sorts by confidence, highest first. Ties keep input order.
func SortActivations(acts []models.ConstraintActivation) {
	sort.SliceStable(acts, func(i, j int) bool {
		return acts[i].ConfidenceScore > acts[j].ConfidenceScore
	})
}
