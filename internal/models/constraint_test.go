package models

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestNewConstraintID(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"tdd.test-first", false},
		{"arch", false},
		{"arch.layers.no_cycles", false},
		{"", true},
		{"   ", true},
		{"tdd..double", true},
		{".leading", true},
		{"has space", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := NewConstraintID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewConstraintID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}

func TestNewAtomicConstraint_Validation(t *testing.T) {
	trigger := &TriggerConfiguration{Keywords: []string{"test"}}

	tests := []struct {
		name    string
		def     Definition
		wantErr bool
	}{
		{"phase only", Definition{ID: "tdd.test-first", Priority: 0.92, Phases: []string{"red"}}, false},
		{"trigger only", Definition{ID: "tdd.test-first", Priority: 0.5, Trigger: trigger}, false},
		{"missing id", Definition{Priority: 0.5, Phases: []string{"red"}}, true},
		{"priority above one", Definition{ID: "a.b", Priority: 1.2, Phases: []string{"red"}}, true},
		{"negative priority", Definition{ID: "a.b", Priority: -0.1, Phases: []string{"red"}}, true},
		{"NaN priority", Definition{ID: "a.b", Priority: Priority(math.NaN()), Phases: []string{"red"}}, true},
		{"NaN threshold", Definition{ID: "a.b", Priority: 0.5, Trigger: &TriggerConfiguration{Keywords: []string{"test"}, ConfidenceThreshold: math.NaN()}}, true},
		{"neither phase nor trigger", Definition{ID: "a.b", Priority: 0.5}, true},
		{"blank phase", Definition{ID: "a.b", Priority: 0.5, Phases: []string{" "}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAtomicConstraint(tt.def)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewAtomicConstraint() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConstraint) {
				t.Errorf("error %v does not wrap ErrInvalidConstraint", err)
			}
		})
	}
}

func TestAtomicConstraint_DefIsACopy(t *testing.T) {
	c, err := NewAtomicConstraint(Definition{ID: "a.b", Priority: 0.5, Phases: []string{"red"}})
	if err != nil {
		t.Fatalf("NewAtomicConstraint() error = %v", err)
	}
	def := c.Def()
	def.Phases[0] = "green"
	if got := c.Def().Phases[0]; got != "red" {
		t.Errorf("Phases[0] = %q after mutating a copy, want red", got)
	}
}

func TestNewCompositeConstraint(t *testing.T) {
	def := Definition{ID: "tdd.cycle", Priority: 0.9, Phases: []string{"red", "green"}}

	c, err := NewCompositeConstraint(def, CompositionSequential, []ConstraintID{"tdd.red", "tdd.green"})
	if err != nil {
		t.Fatalf("NewCompositeConstraint() error = %v", err)
	}
	if c.Composition() != CompositionSequential {
		t.Errorf("Composition() = %q", c.Composition())
	}
	if len(c.Components()) != 2 {
		t.Errorf("Components() len = %d, want 2", len(c.Components()))
	}

	if _, err := NewCompositeConstraint(def, "random", []ConstraintID{"a"}); err == nil {
		t.Error("unknown composition accepted")
	}
	if _, err := NewCompositeConstraint(def, CompositionLayered, nil); err == nil {
		t.Error("empty components accepted")
	}
	if _, err := NewCompositeConstraint(def, CompositionLayered, []ConstraintID{"tdd.cycle"}); err == nil {
		t.Error("self reference accepted")
	}
	if _, err := NewCompositeConstraint(def, CompositionLayered, []ConstraintID{"a", "a"}); err == nil {
		t.Error("duplicate component accepted")
	}
}

func TestConstraint_TypeSwitch(t *testing.T) {
	atomic, _ := NewAtomicConstraint(Definition{ID: "a", Priority: 0.1, Phases: []string{"x"}})
	composite, _ := NewCompositeConstraint(Definition{ID: "b", Priority: 0.1, Phases: []string{"x"}}, CompositionProgressive, []ConstraintID{"a"})

	for _, c := range []Constraint{atomic, composite} {
		switch v := c.(type) {
		case *AtomicConstraint:
			if v.Def().ID != "a" {
				t.Errorf("atomic id = %s", v.Def().ID)
			}
		case *CompositeConstraint:
			if v.Composition() != CompositionProgressive {
				t.Errorf("composite composition = %s", v.Composition())
			}
		default:
			t.Fatalf("unexpected constraint type %T", c)
		}
	}
}

func TestNewConstraintActivation(t *testing.T) {
	now := time.Now()
	a, err := NewConstraintActivation("a.b", 0.8, "", TriggerContext{SessionID: "s"}, now)
	if err != nil {
		t.Fatalf("NewConstraintActivation() error = %v", err)
	}
	if a.Reason != ReasonUnknown {
		t.Errorf("Reason = %q, want unknown", a.Reason)
	}
	if _, err := NewConstraintActivation("a.b", 1.1, ReasonKeywordMatch, TriggerContext{}, now); err == nil {
		t.Error("score 1.1 accepted")
	}

	boosted := a.WithConfidence(1.5)
	if boosted.ConfidenceScore != 1.0 {
		t.Errorf("WithConfidence(1.5) = %v, want 1.0", boosted.ConfidenceScore)
	}
	if a.ConfidenceScore != 0.8 {
		t.Errorf("original mutated: %v", a.ConfidenceScore)
	}
}

func TestScheduleConfiguration(t *testing.T) {
	s, err := NewScheduleConfiguration(3, map[string]int{"red": 1})
	if err != nil {
		t.Fatalf("NewScheduleConfiguration() error = %v", err)
	}
	if s.Interval("red") != 1 || s.Interval("green") != 3 {
		t.Errorf("Interval(red)=%d Interval(green)=%d, want 1 and 3", s.Interval("red"), s.Interval("green"))
	}
	if _, err := NewScheduleConfiguration(0, nil); err == nil {
		t.Error("interval 0 accepted")
	}
	if _, err := NewScheduleConfiguration(2, map[string]int{"red": 0}); err == nil {
		t.Error("override 0 accepted")
	}
}
