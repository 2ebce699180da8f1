package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func decodeStep(t *testing.T, out string) stepOutput {
	t.Helper()
	var got stepOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	return got
}

func TestWorkflowCmds(t *testing.T) {
	root, cfg := testProject(t)

	out, err := runCmd(t, newWorkflowCmd(), root, cfg, "", "next", "tdd.cycle", "--session", "w1", "--json")
	if err != nil {
		t.Fatalf("workflow next error = %v", err)
	}
	got := decodeStep(t, out)
	if got.Done || got.Next == nil || got.Next.Activation.ConstraintID != "tdd.test-first" {
		t.Fatalf("next = %+v, want tdd.test-first", got)
	}

	out, err = runCmd(t, newWorkflowCmd(), root, cfg, "", "advance", "tdd.cycle", "tdd.test-first", "--session", "w1", "--json")
	if err != nil {
		t.Fatalf("workflow advance error = %v", err)
	}
	got = decodeStep(t, out)
	if got.Next == nil || got.Next.Activation.ConstraintID != "tdd.green" {
		t.Fatalf("after advance = %+v, want tdd.green", got)
	}

	// Progress is kept in the session store between runs.
	out, err = runCmd(t, newWorkflowCmd(), root, cfg, "", "next", "tdd.cycle", "--session", "w1")
	if err != nil {
		t.Fatalf("workflow next error = %v", err)
	}
	if !strings.Contains(out, "Next step in tdd.cycle: tdd.green") || !strings.Contains(out, "- Make the test pass with the simplest change.") {
		t.Errorf("text output = %q", out)
	}

	out, err = runCmd(t, newWorkflowCmd(), root, cfg, "", "advance", "tdd.cycle", "tdd.green", "--session", "w1")
	if err != nil {
		t.Fatalf("workflow advance error = %v", err)
	}
	if out != "Workflow tdd.cycle is complete.\n" {
		t.Errorf("output = %q, want completion", out)
	}
}

func TestWorkflowSkipCmd_Sequential(t *testing.T) {
	root, cfg := testProject(t)

	out, err := runCmd(t, newWorkflowCmd(), root, cfg, "", "skip", "tdd.cycle", "1", "--session", "w1", "--json")
	if err != nil {
		t.Fatalf("workflow skip error = %v", err)
	}
	got := decodeStep(t, out)
	if got.OK == nil || *got.OK || got.Reason == "" {
		t.Errorf("skip = %+v, want a refusal with a reason", got)
	}
}

func TestWorkflowCmds_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing session", []string{"next", "tdd.cycle"}},
		{"unknown workflow", []string{"next", "nope", "--session", "w1"}},
		{"not a member", []string{"advance", "tdd.cycle", "arch.pure", "--session", "w1"}},
		{"bad stage", []string{"skip", "tdd.cycle", "two", "--session", "w1"}},
		{"bad dependency", []string{"next", "tdd.cycle", "--session", "w1", "--dep", "domain"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, cfg := testProject(t)
			if _, err := runCmd(t, newWorkflowCmd(), root, cfg, "", tt.args...); err == nil {
				t.Error("error = nil, want error")
			}
		})
	}
}
