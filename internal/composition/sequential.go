package composition

import (
	"fmt"

	"github.com/nvandessel/nudge/internal/models"
)

// SequentialStage is one user-named stage and the constraint it activates.
type SequentialStage struct {
	Name         string              `json:"name"`
	ConstraintID models.ConstraintID `json:"constraint_id"`
}

// SequentialRule maps the caller's workflow state and evaluation status to a
// stage. Empty fields and a nil Successful match anything.
type SequentialRule struct {
	WorkflowState   string `json:"workflow_state,omitempty"`
	EvaluationState string `json:"evaluation_state,omitempty"`
	Successful      *bool  `json:"successful,omitempty"`
	Stage           string `json:"stage"`
}

func (r SequentialRule) matches(ctx Context) bool {
	if r.WorkflowState != "" && r.WorkflowState != ctx.WorkflowState {
		return false
	}
	if r.EvaluationState != "" && r.EvaluationState != ctx.Evaluation.State {
		return false
	}
	if r.Successful != nil && *r.Successful != ctx.Evaluation.IsSuccessful {
		return false
	}
	return true
}

// SequentialState tracks completed stages.
type SequentialState struct {
	Current   string   `json:"current,omitempty"`
	Completed []string `json:"completed,omitempty"`
}

// Sequential activates exactly one stage of an ordered list. The first
// matching rule picks the stage; without a matching rule the first
// incomplete stage is active.
type Sequential struct {
	stages []SequentialStage
	rules  []SequentialRule
}

// NewSequential validates the stage list and rules.
func NewSequential(stages []SequentialStage, rules []SequentialRule) (*Sequential, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("sequential composition needs at least one stage")
	}
	names := make(map[string]bool, len(stages))
	for _, st := range stages {
		if st.Name == "" {
			return nil, fmt.Errorf("sequential stage needs a name")
		}
		if names[st.Name] {
			return nil, fmt.Errorf("duplicate sequential stage %q", st.Name)
		}
		if st.ConstraintID == "" {
			return nil, fmt.Errorf("sequential stage %q needs a constraint", st.Name)
		}
		names[st.Name] = true
	}
	for _, r := range rules {
		if !names[r.Stage] {
			return nil, fmt.Errorf("sequential rule refers to unknown stage %q", r.Stage)
		}
	}
	return &Sequential{
		stages: append([]SequentialStage(nil), stages...),
		rules:  append([]SequentialRule(nil), rules...),
	}, nil
}

// Kind implements Strategy.
func (s *Sequential) Kind() models.CompositionType { return models.CompositionSequential }

// Members implements Strategy.
func (s *Sequential) Members() []models.ConstraintID {
	out := make([]models.ConstraintID, len(s.stages))
	for i, st := range s.stages {
		out[i] = st.ConstraintID
	}
	return out
}

// Initial implements Strategy.
func (s *Sequential) Initial() SequentialState {
	return SequentialState{Current: s.stages[0].Name}
}

// Next implements Strategy.
func (s *Sequential) Next(state SequentialState, ctx Context) (models.ConstraintActivation, bool) {
	stage, ok := s.ActiveStage(state, ctx)
	if !ok {
		return models.ConstraintActivation{}, false
	}
	return ctx.activate(stage.ConstraintID, models.ReasonCompositionStep), true
}

// ActiveStage returns the single stage active for ctx.
func (s *Sequential) ActiveStage(state SequentialState, ctx Context) (SequentialStage, bool) {
	for _, r := range s.rules {
		if r.matches(ctx) {
			return s.stage(r.Stage)
		}
	}
	for _, st := range s.stages {
		if !containsString(state.Completed, st.Name) {
			return st, true
		}
	}
	return SequentialStage{}, false
}

// Advance implements Strategy. Completing a constraint that is not a stage
// of this composition leaves the state unchanged.
func (s *Sequential) Advance(state SequentialState, completed models.ConstraintActivation, _ Context) SequentialState {
	next := SequentialState{
		Current:   state.Current,
		Completed: append([]string(nil), state.Completed...),
	}
	for _, st := range s.stages {
		if st.ConstraintID == completed.ConstraintID && !containsString(next.Completed, st.Name) {
			next.Completed = append(next.Completed, st.Name)
		}
	}
	next.Current = ""
	for _, st := range s.stages {
		if !containsString(next.Completed, st.Name) {
			next.Current = st.Name
			break
		}
	}
	return next
}

func (s *Sequential) stage(name string) (SequentialStage, bool) {
	for _, st := range s.stages {
		if st.Name == name {
			return st, true
		}
	}
	return SequentialStage{}, false
}
