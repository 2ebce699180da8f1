package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateCmd(t *testing.T) {
	root, cfg := testProject(t)

	out, err := runCmd(t, newValidateCmd(), root, cfg, "")
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	if !strings.HasPrefix(out, "✓ ") || !strings.Contains(out, "tdd.cycle (sequential): [tdd.test-first tdd.green]") {
		t.Errorf("output = %q", out)
	}

	out, err = runCmd(t, newValidateCmd(), root, cfg, "", "--json")
	if err != nil {
		t.Fatalf("validate --json error = %v", err)
	}
	var report validateReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if !report.Valid || len(report.Workflows) != 1 || report.Workflows[0].Kind != "sequential" {
		t.Errorf("report = %+v", report)
	}
}

func TestValidateCmd_InvalidLibrary(t *testing.T) {
	root, cfg := testProject(t)
	bad := filepath.Join(root, "bad.yaml")
	doc := "compositions:\n  - id: broken\n    type: sequential\n    stages:\n      - constraint: nowhere\n"
	if err := os.WriteFile(bad, []byte(doc), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := runCmd(t, newValidateCmd(), root, cfg, "", bad, "--json")
	if err == nil {
		t.Fatal("validate error = nil, want error")
	}
	var report validateReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if report.Valid || report.Error == "" {
		t.Errorf("report = %+v, want an error", report)
	}
}

func TestValidateCmd_BuiltIn(t *testing.T) {
	root := t.TempDir()
	isolateHome(t, root)
	cfg := filepath.Join(root, "config.yaml")
	if err := os.WriteFile(cfg, []byte("schedule:\n  every_n_interactions: 3\n"), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := runCmd(t, newValidateCmd(), root, cfg, "")
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	if !strings.HasPrefix(out, "✓ built-in:") {
		t.Errorf("output = %q", out)
	}
}
