// Package brief renders the prompt an Agent session receives for one task
// (spec §4.9). Templates are fixed and deterministic for given inputs: the
// same Input always renders the same string. Grounded on the teacher's
// text/template usage for code generation
// (internal/autopoiesis/tool_templates.go), adapted from Go-source
// generation to Markdown prompt generation.
package brief

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/terminal-coder/tc/internal/domain"
)

// Kind selects which fixed template renders a brief.
type Kind string

const (
	KindCoding       Kind = "coding"
	KindReview       Kind = "review"
	KindRetryCoding  Kind = "retry-coding"
	KindRetryReview  Kind = "retry-review"
	KindReplan       Kind = "replan"
)

// DependencyOutput summarizes one completed dependency's contribution, for
// inclusion in a brief.
type DependencyOutput struct {
	TaskName string
	Summary  string
	Files    []string
}

// Input carries everything a template needs to render one brief.
type Input struct {
	ProjectName  string
	PhaseName    string
	TaskName     string
	TaskKind     domain.TaskKind
	Dependencies []DependencyOutput
	ErrorContext string   // set on a retry brief
	Findings     []string // not set by any caller in this module
}

var templates = map[Kind]*template.Template{
	KindCoding:      template.Must(template.New(string(KindCoding)).Parse(codingTemplate)),
	KindReview:      template.Must(template.New(string(KindReview)).Parse(reviewTemplate)),
	KindRetryCoding: template.Must(template.New(string(KindRetryCoding)).Parse(retryCodingTemplate)),
	KindRetryReview: template.Must(template.New(string(KindRetryReview)).Parse(retryReviewTemplate)),
	KindReplan:      template.Must(template.New(string(KindReplan)).Parse(replanTemplate)),
}

const codingTemplate = `# Task: {{.TaskName}}

Project: {{.ProjectName}}
Phase: {{.PhaseName}}

{{if .Dependencies}}## Prior work this task builds on
{{range .Dependencies}}
- {{.TaskName}}: {{.Summary}}{{range .Files}}
  - {{.}}{{end}}
{{end}}{{end}}
Implement this task. Report completion via report_completion with a summary
and the list of files you changed.
`

const reviewTemplate = `# Review: {{.TaskName}}

Project: {{.ProjectName}}
Phase: {{.PhaseName}}

{{range .Dependencies}}## Changes under review
- {{.TaskName}}: {{.Summary}}{{range .Files}}
  - {{.}}{{end}}
{{end}}
Review the change above. Report your verdict via report_review: approved or
changes_requested, with findings.
`

const retryCodingTemplate = `# Retry: {{.TaskName}}

Project: {{.ProjectName}}
Phase: {{.PhaseName}}

The previous attempt failed:

{{.ErrorContext}}

Address the failure and retry the task. This is your last automatic retry.
`

const retryReviewTemplate = `# Review (retry): {{.TaskName}}

Project: {{.ProjectName}}
Phase: {{.PhaseName}}

The previous review attempt failed:

{{.ErrorContext}}

Retry the review.
`

const replanTemplate = `# Replan: {{.ProjectName}}

All phases have been reset. Produce a fresh plan for this project from its
PRD and bootstrap inputs.
`

// Render renders kind against in, returning the prompt string.
func Render(kind Kind, in Input) (string, error) {
	tpl, ok := templates[kind]
	if !ok {
		return "", fmt.Errorf("brief: unknown template kind %q", kind)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, in); err != nil {
		return "", fmt.Errorf("brief: render %s: %w", kind, err)
	}
	return buf.String(), nil
}

// WriteToProject renders kind against in and writes it to
// <projectDir>/.tc/briefs/<taskID>.md, returning the path written and the
// rendered content (spec §6 directory layout).
func WriteToProject(projectDir, taskID string, kind Kind, in Input) (path, rendered string, err error) {
	rendered, err = Render(kind, in)
	if err != nil {
		return "", "", err
	}
	dir := filepath.Join(projectDir, ".tc", "briefs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("brief: create briefs directory: %w", err)
	}
	path = filepath.Join(dir, taskID+".md")
	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		return "", "", fmt.Errorf("brief: write %s: %w", path, err)
	}
	return path, rendered, nil
}
