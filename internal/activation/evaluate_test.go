package activation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/nvandessel/nudge/internal/keywords"
	"github.com/nvandessel/nudge/internal/models"
)

func mustAtomic(t *testing.T, id string, priority float64, phases []string, trigger *models.TriggerConfiguration) *models.AtomicConstraint {
	t.Helper()
	def := models.Definition{
		ID:       models.ConstraintID(id),
		Priority: models.Priority(priority),
		Phases:   phases,
	}
	if trigger != nil {
		cfg, err := models.NewTriggerConfiguration(*trigger)
		if err != nil {
			t.Fatalf("NewTriggerConfiguration(%s) error = %v", id, err)
		}
		def.Trigger = &cfg
	}
	c, err := models.NewAtomicConstraint(def)
	if err != nil {
		t.Fatalf("NewAtomicConstraint(%s) error = %v", id, err)
	}
	return c
}

func staticResolver(cs ...models.Constraint) Resolver {
	return ResolverFunc(func(context.Context) ([]models.Constraint, error) {
		return cs, nil
	})
}

func ids(acts []models.ConstraintActivation) []string {
	out := make([]string, len(acts))
	for i, a := range acts {
		out[i] = string(a.ConstraintID)
	}
	return out
}

func TestEngine_EvaluateConstraints(t *testing.T) {
	analyzer := NewAnalyzer(nil, nil)
	matcher := keywords.NewMatcher(nil)

	testFirst := mustAtomic(t, "tdd.test-first", 0.92, []string{"red"}, &models.TriggerConfiguration{
		Keywords:            []string{"test", "tdd"},
		AntiPatterns:        []string{"hotfix"},
		ConfidenceThreshold: 0.7,
	})
	pureCore := mustAtomic(t, "arch.pure", 0.88, []string{"red", "green"}, &models.TriggerConfiguration{
		Keywords:            []string{"domain", "pure"},
		FilePatterns:        []string{"internal/domain/**"},
		ConfidenceThreshold: 0.7,
	})
	phaseOnly := mustAtomic(t, "phase.only", 0.5, []string{"green"}, nil)

	engine := NewEngine(staticResolver(testFirst, pureCore, phaseOnly), matcher, EngineConfig{}, nil)

	tests := []struct {
		name      string
		input     string
		filePath  string
		wantIDs   []string
		wantScore float64
	}{
		{
			name:      "synonym match activates",
			input:     "writing unit tests",
			wantIDs:   []string{"tdd.test-first"},
			wantScore: 0.9,
		},
		{
			name:    "anti-pattern vetoes",
			input:   "hotfix writing unit tests",
			wantIDs: []string{},
		},
		{
			name:    "unrelated input",
			input:   "deploy the release",
			wantIDs: []string{},
		},
		{
			name:      "file pattern alone is enough",
			input:     "",
			filePath:  "internal/domain/order.go",
			wantIDs:   []string{"arch.pure"},
			wantScore: 1.0,
		},
		{
			name:     "file pattern mismatch",
			input:    "",
			filePath: "cmd/main.go",
			wantIDs:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := analyzer.AnalyzeUserInput(tt.input, "s1")
			tc.FilePath = tt.filePath

			got := engine.EvaluateConstraints(context.Background(), tc)
			if got == nil {
				t.Fatal("EvaluateConstraints() returned nil, want empty slice")
			}
			if gotIDs := ids(got); strings.Join(gotIDs, ",") != strings.Join(tt.wantIDs, ",") {
				t.Fatalf("EvaluateConstraints() ids = %v, want %v", gotIDs, tt.wantIDs)
			}
			if len(got) > 0 && math.Abs(got[0].ConfidenceScore-tt.wantScore) > 1e-9 {
				t.Errorf("confidence = %v, want %v", got[0].ConfidenceScore, tt.wantScore)
			}
			for _, a := range got {
				if a.TriggerContext.SessionID != "s1" {
					t.Errorf("activation lost its trigger context: %+v", a.TriggerContext)
				}
			}
		})
	}
}

func TestEngine_EvaluateConstraints_CapAndOrder(t *testing.T) {
	var cs []models.Constraint
	for i := 0; i < 7; i++ {
		cs = append(cs, mustAtomic(t, fmt.Sprintf("c%d", i), 0.5, nil, &models.TriggerConfiguration{
			Keywords:            []string{"test"},
			ConfidenceThreshold: 0.5,
		}))
	}
	// c7 scores higher than the rest: exact match plus a matching file pattern.
	cs = append(cs, mustAtomic(t, "c7", 0.5, nil, &models.TriggerConfiguration{
		Keywords:            []string{"tests"},
		FilePatterns:        []string{"*_test.go"},
		ConfidenceThreshold: 0.5,
	}))

	engine := NewEngine(staticResolver(cs...), keywords.NewMatcher(nil), EngineConfig{MaxActiveConstraints: 5}, nil)
	tc := models.TriggerContext{Keywords: []string{"tests"}, FilePath: "pkg/a_test.go", SessionID: "s"}

	got := engine.EvaluateConstraints(context.Background(), tc)
	want := []string{"c7", "c0", "c1", "c2", "c3"}
	if strings.Join(ids(got), ",") != strings.Join(want, ",") {
		t.Errorf("EvaluateConstraints() = %v, want %v", ids(got), want)
	}
	for i := 1; i < len(got); i++ {
		if got[i].ConfidenceScore > got[i-1].ConfidenceScore {
			t.Errorf("results not sorted at %d: %v > %v", i, got[i].ConfidenceScore, got[i-1].ConfidenceScore)
		}
	}
}

func TestEngine_EvaluateConstraints_ResolverError(t *testing.T) {
	engine := NewEngine(ResolverFunc(func(context.Context) ([]models.Constraint, error) {
		return nil, errors.New("library unavailable")
	}), keywords.NewMatcher(nil), EngineConfig{}, nil)

	got := engine.EvaluateConstraints(context.Background(), models.TriggerContext{Keywords: []string{"test"}})
	if got == nil || len(got) != 0 {
		t.Errorf("EvaluateConstraints() = %v, want empty", got)
	}
}

func TestEngine_EvaluateConstraints_ResolverPanic(t *testing.T) {
	engine := NewEngine(ResolverFunc(func(context.Context) ([]models.Constraint, error) {
		panic("boom")
	}), keywords.NewMatcher(nil), EngineConfig{}, nil)

	got := engine.EvaluateConstraints(context.Background(), models.TriggerContext{Keywords: []string{"test"}})
	if got == nil || len(got) != 0 {
		t.Errorf("EvaluateConstraints() = %v, want empty", got)
	}
}

// panicScorer panics for any target containing "boom" and otherwise scores 1.
type panicScorer struct{}

func (panicScorer) CalculateMatchConfidence(target, _ []string) float64 {
	for _, t := range target {
		if t == "boom" {
			panic("bad constraint")
		}
	}
	return 1.0
}

func TestEngine_EvaluateConstraints_SkipsFailingConstraint(t *testing.T) {
	bad := mustAtomic(t, "bad", 0.5, nil, &models.TriggerConfiguration{Keywords: []string{"boom"}})
	good := mustAtomic(t, "good", 0.5, nil, &models.TriggerConfiguration{Keywords: []string{"test"}})

	engine := NewEngine(staticResolver(bad, good), panicScorer{}, EngineConfig{}, nil)
	got := engine.EvaluateConstraints(context.Background(), models.TriggerContext{Keywords: []string{"test"}})

	if strings.Join(ids(got), ",") != "good" {
		t.Errorf("EvaluateConstraints() = %v, want [good]", ids(got))
	}
}

func TestEngine_GetRelevantConstraints(t *testing.T) {
	strict := mustAtomic(t, "strict", 0.5, nil, &models.TriggerConfiguration{
		Keywords:            []string{"test"},
		ConfidenceThreshold: 0.95,
	})
	engine := NewEngine(staticResolver(strict), keywords.NewMatcher(nil), EngineConfig{}, nil)
	tc := models.TriggerContext{Keywords: []string{"tests"}}

	if got := engine.EvaluateConstraints(context.Background(), tc); len(got) != 0 {
		t.Fatalf("EvaluateConstraints() = %v, want empty below the constraint threshold", ids(got))
	}
	if got := engine.GetRelevantConstraints(context.Background(), tc, 0.5); len(got) != 1 {
		t.Errorf("GetRelevantConstraints(0.5) = %v, want [strict]", ids(got))
	}
	if got := engine.GetRelevantConstraints(context.Background(), tc, 0.99); len(got) != 0 {
		t.Errorf("GetRelevantConstraints(0.99) = %v, want empty", ids(got))
	}
}

func TestEngine_Explain(t *testing.T) {
	c := mustAtomic(t, "tdd", 0.5, nil, &models.TriggerConfiguration{
		Keywords:     []string{"test"},
		AntiPatterns: []string{"hotfix"},
	})
	engine := NewEngine(staticResolver(c), keywords.NewMatcher(nil), EngineConfig{}, nil)

	got, err := engine.Explain(context.Background(), models.TriggerContext{Keywords: []string{"test", "hotfix"}})
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Explain() returned %d entries, want 1", len(got))
	}
	if !got[0].Relevance.Vetoed || got[0].Active || got[0].Relevance.VetoedBy != "hotfix" {
		t.Errorf("Explain() = %+v, want vetoed by hotfix", got[0])
	}
}
