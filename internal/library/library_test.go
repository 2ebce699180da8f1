package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/nvandessel/nudge/internal/composition"
	"github.com/nvandessel/nudge/internal/models"
)

func TestDefault(t *testing.T) {
	lib := Default()

	if lib.Len() != 9 {
		t.Fatalf("Default().Len() = %d, want 9", lib.Len())
	}
	if got := len(lib.Workflows()); got != 2 {
		t.Fatalf("Default().Workflows() = %d, want 2", got)
	}

	c, err := lib.Lookup("tdd.cycle")
	if err != nil {
		t.Fatalf("Lookup(tdd.cycle) error = %v", err)
	}
	composite, ok := c.(*models.CompositeConstraint)
	if !ok {
		t.Fatalf("tdd.cycle is %T, want *models.CompositeConstraint", c)
	}
	want := []models.ConstraintID{"tdd.test-first", "tdd.minimal-implementation", "tdd.refactor"}
	if !reflect.DeepEqual(composite.Components(), want) {
		t.Errorf("tdd.cycle components = %v, want %v", composite.Components(), want)
	}
	if composite.Composition() != models.CompositionSequential {
		t.Errorf("tdd.cycle composition = %s", composite.Composition())
	}

	wf, err := lib.Workflow("arch.clean")
	if err != nil {
		t.Fatalf("Workflow(arch.clean) error = %v", err)
	}
	if wf.Kind() != models.CompositionLayered {
		t.Errorf("arch.clean kind = %s", wf.Kind())
	}
	members := wf.Members()
	if members[len(members)-1] != "arch.dependency-rule" {
		t.Errorf("arch.clean members = %v, want remediation last", members)
	}
}

func TestDefault_CycleStartsRed(t *testing.T) {
	wf, err := Default().Workflow("tdd.cycle")
	if err != nil {
		t.Fatal(err)
	}
	act, ok := wf.NewRunner().Next(composition.Context{})
	if !ok || act.ConstraintID != "tdd.test-first" {
		t.Errorf("first step = %v (%v), want tdd.test-first", act.ConstraintID, ok)
	}

	failing := composition.Context{}.WithEvaluation(composition.EvaluationStatus{State: "failing"})
	act, ok = wf.NewRunner().Next(failing)
	if !ok || act.ConstraintID != "tdd.minimal-implementation" {
		t.Errorf("step while failing = %v (%v), want tdd.minimal-implementation", act.ConstraintID, ok)
	}
}

func TestLibrary_LookupUnknown(t *testing.T) {
	_, err := Default().Lookup("nope")
	if !errors.Is(err, ErrConstraintNotFound) {
		t.Errorf("Lookup(nope) error = %v, want ErrConstraintNotFound", err)
	}
	if got := Default().Reminders("nope"); got != nil {
		t.Errorf("Reminders(nope) = %v, want nil", got)
	}
}

func TestLibrary_Constraints(t *testing.T) {
	lib := Default()
	cs, err := lib.Constraints(context.Background())
	if err != nil {
		t.Fatalf("Constraints() error = %v", err)
	}
	if cs[0].Def().ID != "tdd.test-first" {
		t.Errorf("first constraint = %s, want declaration order", cs[0].Def().ID)
	}
	cs[0] = nil
	if again := lib.Snapshot(); again[0] == nil {
		t.Error("Snapshot() shares its backing array")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := lib.Constraints(ctx); err == nil {
		t.Error("Constraints() with cancelled context should fail")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name: "minimal",
			doc: `
constraints:
  - id: a.one
    priority: 0.5
    phases: [red]
`,
		},
		{
			name: "trigger only",
			doc: `
constraints:
  - id: a.one
    keywords: [test]
    anti_patterns: [hotfix]
`,
		},
		{
			name:    "malformed yaml",
			doc:     "constraints: [",
			wantErr: "parsing constraint library",
		},
		{
			name: "bad id",
			doc: `
constraints:
  - id: "has space"
    phases: [red]
`,
			wantErr: "constraintid",
		},
		{
			name: "priority out of range",
			doc: `
constraints:
  - id: a.one
    priority: 1.5
    phases: [red]
`,
			wantErr: "lte",
		},
		{
			name: "no phase and no trigger",
			doc: `
constraints:
  - id: a.one
`,
			wantErr: "needs at least one phase",
		},
		{
			name: "anti-patterns alone are not a trigger",
			doc: `
constraints:
  - id: a.one
    anti_patterns: [hotfix]
`,
			wantErr: "trigger needs at least one",
		},
		{
			name: "duplicate id",
			doc: `
constraints:
  - id: a.one
    phases: [red]
  - id: a.one
    phases: [green]
`,
			wantErr: "duplicate constraint id",
		},
		{
			name: "unknown composition type",
			doc: `
constraints:
  - id: a.one
    phases: [red]
compositions:
  - id: c.one
    type: circular
    phases: [red]
`,
			wantErr: "oneof",
		},
		{
			name: "unknown stage constraint",
			doc: `
constraints:
  - id: a.one
    phases: [red]
compositions:
  - id: c.one
    type: sequential
    phases: [red]
    stages:
      - name: first
        constraint: a.two
`,
			wantErr: "constraint not found",
		},
		{
			name: "sequential without stages",
			doc: `
compositions:
  - id: c.one
    type: sequential
    phases: [red]
`,
			wantErr: "required_if",
		},
		{
			name: "barrier without guidance",
			doc: `
constraints:
  - id: a.one
    phases: [red]
compositions:
  - id: c.one
    type: progressive
    phases: [red]
    stages:
      - name: first
        constraint: a.one
        barrier: true
`,
			wantErr: "Guidance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib, err := Parse([]byte(tt.doc))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Parse() error = %v", err)
				}
				if lib.Len() == 0 {
					t.Error("Parse() returned an empty library")
				}
				return
			}
			if err == nil {
				t.Fatalf("Parse() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_HierarchicalAndProgressive(t *testing.T) {
	doc := `
constraints:
  - id: h.low
    priority: 0.2
    phases: [plan]
  - id: h.high
    priority: 0.9
    phases: [plan]
  - id: h.root
    priority: 0.1
    phases: [plan]
compositions:
  - id: h.tree
    type: hierarchical
    phases: [plan]
    members:
      - constraint: h.low
        level: 1
      - constraint: h.high
        level: 1
      - constraint: h.root
        level: 0
  - id: p.ladder
    type: progressive
    phases: [plan]
    allow_skip_ahead: true
    stages:
      - name: basics
        constraint: h.root
      - name: review
        constraint: h.low
        barrier: true
        guidance: Get a review before moving on.
      - name: ship
        constraint: h.high
`
	lib, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tree, err := lib.Workflow("h.tree")
	if err != nil {
		t.Fatal(err)
	}
	wantOrder := []models.ConstraintID{"h.root", "h.high", "h.low"}
	if got := tree.Members(); !reflect.DeepEqual(got, wantOrder) {
		t.Errorf("h.tree members = %v, want %v", got, wantOrder)
	}

	ladder, err := lib.Workflow("p.ladder")
	if err != nil {
		t.Fatal(err)
	}
	runner := ladder.NewRunner()
	if ok, reason := runner.SkipTo(2); ok {
		t.Errorf("SkipTo(2) over an incomplete barrier succeeded")
	} else if !strings.Contains(reason, "review") {
		t.Errorf("SkipTo(2) reason = %q, want it to name the barrier", reason)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "constraints.yaml")
	if err := os.WriteFile(path, []byte("constraints:\n  - id: a.one\n    phases: [red]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	lib, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if lib.Source() != path || lib.Len() != 1 {
		t.Errorf("Load() = %s with %d constraints", lib.Source(), lib.Len())
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load(missing) error = nil")
	}
}
