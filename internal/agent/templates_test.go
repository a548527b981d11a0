package agent

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinTemplates(t *testing.T) {
	tpls, err := LoadTemplates("")
	if err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}
	for _, id := range []string{"research", "scheduler"} {
		tpl, ok := tpls[id]
		if !ok {
			t.Errorf("builtin template %q missing", id)
			continue
		}
		if len(tpl.Tools) == 0 {
			t.Errorf("template %q has no tools", id)
		}
		if tpl.MaxIterations < 1 || tpl.MaxIterations > MaxSubAgentIterations {
			t.Errorf("template %q iterations = %d", id, tpl.MaxIterations)
		}
	}
}

func TestLoadTemplatesMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	content := `templates:
  - id: triage
    description: Inbox triage
    tools: [todo]
    maxIterations: 4
  - id: research
    description: Override builtin
    tools: [web_fetch]
    maxIterations: 10
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tpls, err := LoadTemplates(path)
	if err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}
	if _, ok := tpls["triage"]; !ok {
		t.Error("user template triage missing")
	}
	if got := tpls["research"].MaxIterations; got != 10 {
		t.Errorf("research override: iterations = %d, want 10", got)
	}
	if _, ok := tpls["scheduler"]; !ok {
		t.Error("untouched builtin scheduler missing")
	}
}

func TestLoadTemplatesErrors(t *testing.T) {
	// Missing file falls back to builtins.
	tpls, err := LoadTemplates(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil || len(tpls) == 0 {
		t.Errorf("missing file: tpls=%d err=%v", len(tpls), err)
	}

	// Malformed YAML is an error.
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("templates: [{{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTemplates(bad); err == nil {
		t.Error("malformed yaml accepted")
	}

	// Template without an id is an error.
	noID := filepath.Join(t.TempDir(), "noid.yaml")
	if err := os.WriteFile(noID, []byte("templates:\n  - tools: [todo]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTemplates(noID); err == nil {
		t.Error("template without id accepted")
	}
}
