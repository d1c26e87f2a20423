package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/terminal-coder/tc/internal/domain"
)

var retryTaskID string

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Manually retry a paused task",
	RunE:  runRetry,
}

func init() {
	retryCmd.Flags().StringVar(&retryTaskID, "task", "", "paused task to retry (required)")
	retryCmd.MarkFlagRequired("task")
}

func runRetry(cmd *cobra.Command, args []string) error {
	projectDir, err := resolveProjectDir()
	if err != nil {
		return err
	}
	repo, _, err := openProject(projectDir)
	if err != nil {
		return err
	}
	defer repo.Close()

	task, err := repo.GetTask(retryTaskID)
	if err != nil {
		return err
	}
	if task.Status != domain.TaskPaused {
		return &cliError{code: exitPrecondition, err: fmt.Errorf("task %s is %s, not paused", retryTaskID, task.Status)}
	}

	if err := repo.ResetTask(retryTaskID, time.Now()); err != nil {
		return err
	}
	return printResult(struct {
		TaskID string `json:"task_id"`
	}{retryTaskID}, func() {
		printf("task %s reset to pending for retry\n", retryTaskID)
	})
}

var (
	resetTaskID  string
	resetPhaseID string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset a task or phase (and its tasks) back to pending",
	RunE:  runReset,
}

func init() {
	resetCmd.Flags().StringVar(&resetTaskID, "task", "", "task to reset")
	resetCmd.Flags().StringVar(&resetPhaseID, "phase", "", "phase to reset, cascading to its tasks")
}

func runReset(cmd *cobra.Command, args []string) error {
	if (resetTaskID == "") == (resetPhaseID == "") {
		return invalidArgsError("exactly one of --task or --phase is required")
	}

	projectDir, err := resolveProjectDir()
	if err != nil {
		return err
	}
	repo, _, err := openProject(projectDir)
	if err != nil {
		return err
	}
	defer repo.Close()

	now := time.Now()
	if resetTaskID != "" {
		if err := repo.ResetTask(resetTaskID, now); err != nil {
			return err
		}
		return printResult(struct {
			TaskID string `json:"task_id"`
		}{resetTaskID}, func() { printf("reset task %s\n", resetTaskID) })
	}

	if err := repo.ResetPhase(resetPhaseID, now); err != nil {
		return err
	}
	return printResult(struct {
		PhaseID string `json:"phase_id"`
	}{resetPhaseID}, func() { printf("reset phase %s and its tasks\n", resetPhaseID) })
}
