package composition

import (
	"testing"

	"github.com/nvandessel/nudge/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func tddCycle(t *testing.T) *Sequential {
	t.Helper()
	s, err := NewSequential(
		[]SequentialStage{
			{Name: "red", ConstraintID: "tdd.red"},
			{Name: "green", ConstraintID: "tdd.green"},
			{Name: "refactor", ConstraintID: "tdd.refactor"},
		},
		[]SequentialRule{
			{EvaluationState: "failing", Stage: "green"},
			{WorkflowState: "cleanup", Successful: boolPtr(true), Stage: "refactor"},
		},
	)
	if err != nil {
		t.Fatalf("NewSequential() error = %v", err)
	}
	return s
}

func TestSequential_Next(t *testing.T) {
	s := tddCycle(t)

	tests := []struct {
		name  string
		state SequentialState
		ctx   Context
		want  models.ConstraintID
		found bool
	}{
		{"fresh session starts at first stage", s.Initial(), Context{}, "tdd.red", true},
		{"rule on evaluation state", s.Initial(), Context{Evaluation: EvaluationStatus{State: "failing"}}, "tdd.green", true},
		{"rule needs every field", s.Initial(), Context{WorkflowState: "cleanup"}, "tdd.red", true},
		{"rule with success flag", s.Initial(), Context{WorkflowState: "cleanup", Evaluation: EvaluationStatus{State: "passing", IsSuccessful: true}}, "tdd.refactor", true},
		{"first incomplete stage", SequentialState{Completed: []string{"red"}}, Context{}, "tdd.green", true},
		{"all complete", SequentialState{Completed: []string{"red", "green", "refactor"}}, Context{}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.Next(tt.state, tt.ctx)
			if ok != tt.found {
				t.Fatalf("Next() ok = %v, want %v", ok, tt.found)
			}
			if got.ConstraintID != tt.want {
				t.Errorf("Next() = %s, want %s", got.ConstraintID, tt.want)
			}
			if ok && (got.Reason != models.ReasonCompositionStep || got.ConfidenceScore != 1.0) {
				t.Errorf("Next() = %+v, want composition step with confidence 1", got)
			}
		})
	}
}

func TestSequential_Advance(t *testing.T) {
	s := tddCycle(t)
	start := s.Initial()

	next := s.Advance(start, models.ConstraintActivation{ConstraintID: "tdd.red"}, Context{})
	if next.Current != "green" {
		t.Errorf("Advance() current = %q, want green", next.Current)
	}
	if len(start.Completed) != 0 {
		t.Error("Advance() mutated its input state")
	}

	same := s.Advance(next, models.ConstraintActivation{ConstraintID: "other"}, Context{})
	if same.Current != "green" || len(same.Completed) != 1 {
		t.Errorf("unrelated completion changed state: %+v", same)
	}

	done := s.Advance(s.Advance(next, models.ConstraintActivation{ConstraintID: "tdd.green"}, Context{}),
		models.ConstraintActivation{ConstraintID: "tdd.refactor"}, Context{})
	if done.Current != "" || len(done.Completed) != 3 {
		t.Errorf("final state = %+v, want all stages completed", done)
	}
}

func TestNewSequential_Validation(t *testing.T) {
	tests := []struct {
		name   string
		stages []SequentialStage
		rules  []SequentialRule
	}{
		{"no stages", nil, nil},
		{"unnamed stage", []SequentialStage{{ConstraintID: "a"}}, nil},
		{"duplicate stage", []SequentialStage{{Name: "x", ConstraintID: "a"}, {Name: "x", ConstraintID: "b"}}, nil},
		{"missing constraint", []SequentialStage{{Name: "x"}}, nil},
		{"rule to unknown stage", []SequentialStage{{Name: "x", ConstraintID: "a"}}, []SequentialRule{{Stage: "y"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSequential(tt.stages, tt.rules); err == nil {
				t.Error("NewSequential() error = nil, want error")
			}
		})
	}
}
