package composition

import (
	"fmt"

	"github.com/nvandessel/nudge/internal/models"
)

// ProgressiveStage is one numbered stage. Barrier stages must be completed
// or current before anything above them can be reached by skipping, and
// their Guidance is surfaced while they are current.
type ProgressiveStage struct {
	Name         string              `json:"name"`
	ConstraintID models.ConstraintID `json:"constraint_id"`
	Barrier      bool                `json:"barrier,omitempty"`
	Guidance     string              `json:"guidance,omitempty"`
}

// ProgressiveState is the stage cursor and the completed stage numbers.
type ProgressiveState struct {
	CurrentLevel int   `json:"current_level"`
	Completed    []int `json:"completed,omitempty"`
}

// IsCompleted reports whether stage level has been completed.
func (s ProgressiveState) IsCompleted(level int) bool {
	for _, c := range s.Completed {
		if c == level {
			return true
		}
	}
	return false
}

// SkipResult is the outcome of TrySkipToStage. A refused skip is an expected
// result, not an error: OK is false, Reason says why and State is unchanged.
type SkipResult struct {
	State  ProgressiveState `json:"state"`
	OK     bool             `json:"ok"`
	Reason string           `json:"reason,omitempty"`
}

// Progressive walks stages 0..N in order.
type Progressive struct {
	stages         []ProgressiveStage
	allowSkipAhead bool
}

// NewProgressive validates the stages. allowSkipAhead permits skipping more
// than one stage at a time.
func NewProgressive(stages []ProgressiveStage, allowSkipAhead bool) (*Progressive, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("progressive composition needs at least one stage")
	}
	for i, st := range stages {
		if st.ConstraintID == "" {
			return nil, fmt.Errorf("progressive stage %d needs a constraint", i)
		}
		if st.Barrier && st.Guidance == "" {
			return nil, fmt.Errorf("barrier stage %d needs guidance text", i)
		}
	}
	return &Progressive{
		stages:         append([]ProgressiveStage(nil), stages...),
		allowSkipAhead: allowSkipAhead,
	}, nil
}

// Kind implements Strategy.
func (p *Progressive) Kind() models.CompositionType { return models.CompositionProgressive }

// Members implements Strategy.
func (p *Progressive) Members() []models.ConstraintID {
	out := make([]models.ConstraintID, len(p.stages))
	for i, st := range p.stages {
		out[i] = st.ConstraintID
	}
	return out
}

// MaxLevel is the highest stage number.
func (p *Progressive) MaxLevel() int {
	return len(p.stages) - 1
}

// Initial implements Strategy.
func (p *Progressive) Initial() ProgressiveState {
	return ProgressiveState{}
}

// Next implements Strategy: the current stage, unless it is the last one and
// already completed.
func (p *Progressive) Next(state ProgressiveState, ctx Context) (models.ConstraintActivation, bool) {
	level := state.CurrentLevel
	if level < 0 || level > p.MaxLevel() {
		return models.ConstraintActivation{}, false
	}
	if level == p.MaxLevel() && state.IsCompleted(level) {
		return models.ConstraintActivation{}, false
	}
	return ctx.activate(p.stages[level].ConstraintID, models.ReasonCompositionStep), true
}

// Advance implements Strategy. Completing stage k moves the cursor to
// min(k+1, max); the cursor never moves backwards.
func (p *Progressive) Advance(state ProgressiveState, completed models.ConstraintActivation, _ Context) ProgressiveState {
	next := ProgressiveState{
		CurrentLevel: state.CurrentLevel,
		Completed:    append([]int(nil), state.Completed...),
	}
	for level, st := range p.stages {
		if st.ConstraintID != completed.ConstraintID {
			continue
		}
		if !next.IsCompleted(level) {
			next.Completed = append(next.Completed, level)
		}
		next.CurrentLevel = max(next.CurrentLevel, min(level+1, p.MaxLevel()))
	}
	return next
}

// TrySkipToStage moves the cursor to target when the rules allow it.
func (p *Progressive) TrySkipToStage(state ProgressiveState, target int) SkipResult {
	next, ok, reason := p.skip(state, target)
	return SkipResult{State: next, OK: ok, Reason: reason}
}

func (p *Progressive) skip(state ProgressiveState, target int) (ProgressiveState, bool, string) {
	unchanged := ProgressiveState{
		CurrentLevel: state.CurrentLevel,
		Completed:    append([]int(nil), state.Completed...),
	}
	if target <= state.CurrentLevel {
		return unchanged, false, fmt.Sprintf("stage %d is not ahead of the current stage %d", target, state.CurrentLevel)
	}
	if target > p.MaxLevel() {
		return unchanged, false, fmt.Sprintf("stage %d does not exist; the last stage is %d", target, p.MaxLevel())
	}
	for level := state.CurrentLevel + 1; level < target; level++ {
		if p.stages[level].Barrier && !state.IsCompleted(level) {
			return unchanged, false, fmt.Sprintf("stage %d (%s) must be completed first: %s", level, p.stageName(level), p.stages[level].Guidance)
		}
	}
	if target-state.CurrentLevel > 1 && !p.allowSkipAhead {
		return unchanged, false, fmt.Sprintf("skipping more than one stage ahead is not allowed (current %d, requested %d)", state.CurrentLevel, target)
	}
	unchanged.CurrentLevel = target
	return unchanged, true, ""
}

// GetBarrierSupport returns the guidance of a barrier stage.
func (p *Progressive) GetBarrierSupport(level int) (string, bool) {
	if level < 0 || level > p.MaxLevel() || !p.stages[level].Barrier {
		return "", false
	}
	return p.stages[level].Guidance, true
}

func (p *Progressive) guidance(state ProgressiveState) (string, bool) {
	return p.GetBarrierSupport(state.CurrentLevel)
}

func (p *Progressive) stageName(level int) string {
	if name := p.stages[level].Name; name != "" {
		return name
	}
	return p.stages[level].ConstraintID.String()
}
