package activation

import (
	"strings"
	"testing"

	"github.com/nvandessel/nudge/internal/models"
)

func TestSelectConstraints(t *testing.T) {
	testFirst := mustAtomic(t, "tdd.test-first", 0.92, []string{"red"}, nil)
	pure := mustAtomic(t, "arch.pure", 0.88, []string{"red", "green"}, nil)
	refactor := mustAtomic(t, "tdd.refactor", 0.7, []string{"refactor"}, nil)
	tieA := mustAtomic(t, "tie.a", 0.5, []string{"green"}, nil)
	tieB := mustAtomic(t, "tie.b", 0.5, []string{"green"}, nil)
	all := []models.Constraint{pure, testFirst, refactor, tieA, tieB}

	tests := []struct {
		name  string
		phase string
		topK  int
		want  []string
	}{
		{"red top two by priority", "red", 2, []string{"tdd.test-first", "arch.pure"}},
		{"top one", "red", 1, []string{"tdd.test-first"}},
		{"ties keep declaration order", "green", 3, []string{"arch.pure", "tie.a", "tie.b"}},
		{"unknown phase", "blue", 5, []string{}},
		{"zero k", "red", 0, []string{}},
		{"negative k", "red", -1, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectConstraints(all, tt.phase, tt.topK)
			if got == nil {
				t.Fatal("SelectConstraints() returned nil")
			}
			gotIDs := make([]string, len(got))
			for i, c := range got {
				gotIDs[i] = string(c.Def().ID)
			}
			if strings.Join(gotIDs, ",") != strings.Join(tt.want, ",") {
				t.Errorf("SelectConstraints(%q, %d) = %v, want %v", tt.phase, tt.topK, gotIDs, tt.want)
			}
		})
	}
}
