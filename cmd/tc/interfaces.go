package main

import (
	"context"
	"fmt"

	"github.com/terminal-coder/tc/internal/domain"
	"github.com/terminal-coder/tc/internal/eventbus"
)

// BootstrapVerifier runs the bootstrap's shell predicates against a project
// directory and reports one result per predicate. Bootstrap verification
// itself (spec §1) is an external collaborator; this is the interface the
// `verify` command delegates to.
type BootstrapVerifier interface {
	Verify(ctx context.Context, projectDir string) ([]VerificationResult, error)
}

// VerificationResult is one bootstrap predicate's outcome.
type VerificationResult struct {
	Predicate string
	Passed    bool
	Detail    string
}

// Planner invokes the Agent's planning mode against a PRD and bootstrap spec
// and returns the decomposed phase/task/dependency plan. PRD decomposition
// (spec §1) is an external collaborator; `plan` delegates to this interface
// and hands the result straight to `store.ReplacePlan`.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (Plan, error)
}

// PlanRequest carries the inputs a Planner needs.
type PlanRequest struct {
	ProjectDir    string
	PRDPath       string
	BootstrapPath string
	Replan        bool
}

// Plan is a Planner's decomposition output, shaped for direct use with
// store.ReplacePlan.
type Plan struct {
	Phases       []domain.Phase
	Tasks        []domain.Task
	Deps         []domain.TaskDependency
	Requirements []PlannedRequirement
}

// PlannedRequirement is a PRD requirement a Planner traced to the task(s)
// that cover it, recorded via store.RecordRequirement/LinkRequirement
// immediately after the plan that names those tasks is written.
type PlannedRequirement struct {
	Description      string
	Source           string
	CoveredByTaskIDs []string
}

// DashboardSink passively subscribes to the event bus for live display; it
// never writes to the store (spec §1: "a passive subscriber"). `dashboard`
// delegates rendering to this interface.
type DashboardSink interface {
	Run(ctx context.Context, sub *eventbus.Subscription) error
}

// notImplementedVerifier, notImplementedPlanner, and notImplementedDashboard
// are the CLI's default bindings for the three subsystems spec §1 places
// outside this module's scope. They let every command in the §6 table
// compile and run end to end while making unambiguous that the Agent-facing
// planner, the bootstrap predicate runner, and the TUI dashboard are not
// implemented here.
type notImplementedVerifier struct{}

func (notImplementedVerifier) Verify(ctx context.Context, projectDir string) ([]VerificationResult, error) {
	return nil, fmt.Errorf("bootstrap verification is not implemented by this module; wire a BootstrapVerifier")
}

type notImplementedPlanner struct{}

func (notImplementedPlanner) Plan(ctx context.Context, req PlanRequest) (Plan, error) {
	return Plan{}, fmt.Errorf("PRD decomposition is not implemented by this module; wire a Planner that invokes the Agent")
}

type notImplementedDashboard struct{}

func (notImplementedDashboard) Run(ctx context.Context, sub *eventbus.Subscription) error {
	return fmt.Errorf("the live dashboard is not implemented by this module; wire a DashboardSink")
}
