package composition

import (
	"testing"

	"github.com/nvandessel/nudge/internal/models"
)

func fourStages(t *testing.T, allowSkipAhead bool) *Progressive {
	t.Helper()
	p, err := NewProgressive([]ProgressiveStage{
		{Name: "sketch", ConstraintID: "p.sketch"},
		{Name: "contract", ConstraintID: "p.contract"},
		{Name: "review", ConstraintID: "p.review", Barrier: true, Guidance: "get the contract reviewed"},
		{Name: "ship", ConstraintID: "p.ship"},
	}, allowSkipAhead)
	if err != nil {
		t.Fatalf("NewProgressive() error = %v", err)
	}
	return p
}

func TestProgressive_TrySkipToStage(t *testing.T) {
	tests := []struct {
		name      string
		allowSkip bool
		state     ProgressiveState
		target    int
		wantOK    bool
		wantLevel int
	}{
		{"backwards fails", true, ProgressiveState{CurrentLevel: 2}, 1, false, 2},
		{"same stage fails", true, ProgressiveState{CurrentLevel: 1}, 1, false, 1},
		{"beyond last fails", true, ProgressiveState{CurrentLevel: 0}, 4, false, 0},
		{"one ahead succeeds without skip policy", false, ProgressiveState{CurrentLevel: 0}, 1, true, 1},
		{"one ahead onto a barrier succeeds", false, ProgressiveState{CurrentLevel: 1}, 2, true, 2},
		{"one ahead from a barrier succeeds", false, ProgressiveState{CurrentLevel: 2}, 3, true, 3},
		{"two ahead refused by policy", false, ProgressiveState{CurrentLevel: 0}, 2, false, 0},
		{"two ahead allowed by policy", true, ProgressiveState{CurrentLevel: 0}, 2, true, 2},
		{"incomplete barrier blocks", true, ProgressiveState{CurrentLevel: 1}, 3, false, 1},
		{"completed barrier passes", true, ProgressiveState{CurrentLevel: 1, Completed: []int{2}}, 3, true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := fourStages(t, tt.allowSkip)
			got := p.TrySkipToStage(tt.state, tt.target)
			if got.OK != tt.wantOK {
				t.Fatalf("TrySkipToStage(%d) OK = %v (%s), want %v", tt.target, got.OK, got.Reason, tt.wantOK)
			}
			if !got.OK && got.Reason == "" {
				t.Error("refused skip needs a reason")
			}
			if got.State.CurrentLevel != tt.wantLevel {
				t.Errorf("CurrentLevel = %d, want %d", got.State.CurrentLevel, tt.wantLevel)
			}
		})
	}
}

func TestProgressive_Advance(t *testing.T) {
	p := fourStages(t, false)
	state := p.Initial()

	for _, id := range []models.ConstraintID{"p.sketch", "p.contract", "p.review", "p.ship"} {
		act, ok := p.Next(state, Context{})
		if !ok || act.ConstraintID != id {
			t.Fatalf("Next() = %v, %v; want %s", act.ConstraintID, ok, id)
		}
		state = p.Advance(state, act, Context{})
	}
	if state.CurrentLevel != p.MaxLevel() {
		t.Errorf("CurrentLevel = %d, want max %d", state.CurrentLevel, p.MaxLevel())
	}
	if _, ok := p.Next(state, Context{}); ok {
		t.Error("Next() after the last stage should report nothing")
	}

	// completing an earlier stage late never moves the cursor back
	back := p.Advance(ProgressiveState{CurrentLevel: 3}, models.ConstraintActivation{ConstraintID: "p.sketch"}, Context{})
	if back.CurrentLevel != 3 {
		t.Errorf("CurrentLevel = %d, want 3", back.CurrentLevel)
	}
}

func TestProgressive_GetBarrierSupport(t *testing.T) {
	p := fourStages(t, false)

	if text, ok := p.GetBarrierSupport(2); !ok || text != "get the contract reviewed" {
		t.Errorf("GetBarrierSupport(2) = %q, %v", text, ok)
	}
	for _, level := range []int{-1, 0, 3, 9} {
		if _, ok := p.GetBarrierSupport(level); ok {
			t.Errorf("GetBarrierSupport(%d) reported a barrier", level)
		}
	}
}

func TestNewProgressive_Validation(t *testing.T) {
	if _, err := NewProgressive(nil, false); err == nil {
		t.Error("empty stages should fail")
	}
	if _, err := NewProgressive([]ProgressiveStage{{Name: "x"}}, false); err == nil {
		t.Error("stage without constraint should fail")
	}
	if _, err := NewProgressive([]ProgressiveStage{{ConstraintID: "a", Barrier: true}}, false); err == nil {
		t.Error("barrier without guidance should fail")
	}
}
