package main

import (
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the project's current phase/task status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	projectDir, err := resolveProjectDir()
	if err != nil {
		return err
	}
	repo, proj, err := openProject(projectDir)
	if err != nil {
		return err
	}
	defer repo.Close()

	snap, err := repo.Snapshot(proj.ID)
	if err != nil {
		return err
	}
	sort.Slice(snap.Phases, func(i, j int) bool { return snap.Phases[i].Sequence < snap.Phases[j].Sequence })

	type taskView struct {
		Sequence     int    `json:"sequence"`
		Kind         string `json:"kind"`
		Name         string `json:"name"`
		Status       string `json:"status"`
		RetryCount   int    `json:"retry_count"`
		ErrorContext string `json:"error_context,omitempty"`
	}
	type phaseView struct {
		Sequence int        `json:"sequence"`
		Name     string     `json:"name"`
		Status   string     `json:"status"`
		Tasks    []taskView `json:"tasks"`
	}
	type requirementView struct {
		ID          string   `json:"id"`
		Description string   `json:"description"`
		Source      string   `json:"source"`
		CoveredBy   []string `json:"covered_by,omitempty"`
	}
	type statusView struct {
		ProjectID     string            `json:"project_id"`
		ProjectName   string            `json:"project_name"`
		ProjectStatus string            `json:"project_status"`
		Phases        []phaseView       `json:"phases"`
		Requirements  []requirementView `json:"requirements,omitempty"`
	}

	view := statusView{ProjectID: proj.ID, ProjectName: proj.Name, ProjectStatus: string(proj.Status)}
	for _, ph := range snap.Phases {
		tasks := snap.TasksByPhase(ph.ID)
		sort.Slice(tasks, func(i, j int) bool { return tasks[i].Sequence < tasks[j].Sequence })
		pv := phaseView{Sequence: ph.Sequence, Name: ph.Name, Status: string(ph.Status)}
		for _, t := range tasks {
			pv.Tasks = append(pv.Tasks, taskView{
				Sequence:     t.Sequence,
				Kind:         string(t.Kind),
				Name:         t.Name,
				Status:       string(t.Status),
				RetryCount:   t.RetryCount,
				ErrorContext: t.ErrorContext,
			})
		}
		view.Phases = append(view.Phases, pv)
	}

	reqs, err := repo.ListRequirements(proj.ID)
	if err != nil {
		return err
	}
	for _, req := range reqs {
		view.Requirements = append(view.Requirements, requirementView{
			ID:          req.ID,
			Description: req.Description,
			Source:      req.Source,
			CoveredBy:   req.CoveredBy,
		})
	}

	return printResult(view, func() {
		printf("%s (%s) — %s\n", view.ProjectName, view.ProjectID, view.ProjectStatus)
		for _, ph := range view.Phases {
			printf("  phase %d %-24s %s\n", ph.Sequence, ph.Name, ph.Status)
			for _, t := range ph.Tasks {
				suffix := ""
				if t.RetryCount > 0 {
					suffix = " (retried)"
				}
				printf("    task %d [%s] %-24s %s%s\n", t.Sequence, t.Kind, t.Name, t.Status, suffix)
			}
		}
		if len(view.Requirements) > 0 {
			printf("  requirements:\n")
			for _, r := range view.Requirements {
				printf("    %s [%s] covered by %d task(s)\n", r.Description, r.Source, len(r.CoveredBy))
			}
		}
	})
}
