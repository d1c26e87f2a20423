package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/terminal-coder/tc/internal/domain"
	"github.com/terminal-coder/tc/internal/store"
)

var planReplan bool

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Invoke the Agent's planning mode and replace the project plan",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().BoolVar(&planReplan, "replan", false, "discard the existing plan and re-plan from scratch")
}

func runPlan(cmd *cobra.Command, args []string) error {
	projectDir, err := resolveProjectDir()
	if err != nil {
		return err
	}
	repo, proj, err := openProject(projectDir)
	if err != nil {
		return err
	}
	defer repo.Close()

	if proj.Status == domain.ProjectCompleted || proj.Status == domain.ProjectFailed {
		return &cliError{code: exitPrecondition, err: fmt.Errorf("project %s is %s; nothing to plan", proj.ID, proj.Status)}
	}
	existing, err := repo.ListPhases(proj.ID)
	if err != nil {
		return err
	}
	if len(existing) > 0 && !planReplan {
		return &cliError{code: exitPrecondition, err: fmt.Errorf("project already has a plan; pass --replan to discard it")}
	}

	var planner Planner = notImplementedPlanner{}
	plan, err := planner.Plan(context.Background(), PlanRequest{
		ProjectDir:    projectDir,
		PRDPath:       projectDir + "/prd.md",
		BootstrapPath: projectDir + "/bootstrap.md",
		Replan:        planReplan,
	})
	if err != nil {
		return err
	}

	if err := repo.UpdateProjectStatus(proj.ID, domain.ProjectPlanning); err != nil {
		return err
	}
	if err := repo.ReplacePlan(proj.ID, plan.Phases, plan.Tasks, plan.Deps); err != nil {
		return err
	}
	for _, pr := range plan.Requirements {
		req, err := repo.RecordRequirement(store.RequirementSpec{ProjectID: proj.ID, Description: pr.Description, Source: pr.Source})
		if err != nil {
			return err
		}
		for _, taskID := range pr.CoveredByTaskIDs {
			if err := repo.LinkRequirement(req.ID, taskID); err != nil {
				return err
			}
		}
	}
	if err := repo.UpdateProjectStatus(proj.ID, domain.ProjectPlanned); err != nil {
		return err
	}

	return printResult(plan, func() {
		printf("planned %d phase(s), %d task(s) for project %s\n", len(plan.Phases), len(plan.Tasks), proj.ID)
	})
}
