package brief

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderCodingIncludesDependencies(t *testing.T) {
	out, err := Render(KindCoding, Input{
		ProjectName: "demo",
		PhaseName:   "Phase One",
		TaskName:    "build widget",
		Dependencies: []DependencyOutput{
			{TaskName: "scaffold", Summary: "created module layout", Files: []string{"widget.go"}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "build widget") || !strings.Contains(out, "widget.go") {
		t.Fatalf("rendered brief missing expected content: %s", out)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	in := Input{ProjectName: "demo", PhaseName: "Phase One", TaskName: "t"}
	a, err := Render(KindCoding, in)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Render(KindCoding, in)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("expected deterministic rendering, got %q vs %q", a, b)
	}
}

func TestRenderUnknownKind(t *testing.T) {
	_, err := Render(Kind("bogus"), Input{})
	if err == nil {
		t.Fatal("expected error for unknown template kind")
	}
}

func TestWriteToProject(t *testing.T) {
	dir := t.TempDir()
	path, _, err := WriteToProject(dir, "task-1", KindRetryCoding, Input{
		ProjectName:  "demo",
		TaskName:     "t",
		ErrorContext: "exit status 1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "task-1.md" {
		t.Fatalf("expected brief at task-1.md, got %s", path)
	}
}
