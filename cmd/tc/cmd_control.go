package main

import (
	"fmt"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/terminal-coder/tc/internal/domain"
	"github.com/terminal-coder/tc/internal/store"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the running engine (takes effect on its next tick)",
	RunE:  func(cmd *cobra.Command, args []string) error { return setProjectRunState(domain.ProjectPaused) },
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused engine (takes effect on its next tick)",
	RunE:  func(cmd *cobra.Command, args []string) error { return setProjectRunState(domain.ProjectRunning) },
}

func setProjectRunState(target domain.ProjectStatus) error {
	projectDir, err := resolveProjectDir()
	if err != nil {
		return err
	}
	repo, proj, err := openProject(projectDir)
	if err != nil {
		return err
	}
	defer repo.Close()

	if proj.Status != domain.ProjectRunning && proj.Status != domain.ProjectPaused {
		return &cliError{code: exitPrecondition, err: fmt.Errorf("project %s is %s, not running or paused", proj.ID, proj.Status)}
	}
	if err := repo.UpdateProjectStatus(proj.ID, target); err != nil {
		return err
	}
	return printResult(struct {
		ProjectID string `json:"project_id"`
		Status    string `json:"status"`
	}{proj.ID, string(target)}, func() {
		printf("project %s is now %s\n", proj.ID, target)
	})
}

var (
	killTaskID string
	killForce  bool
)

var killCmd = &cobra.Command{
	Use:   "kill",
	Short: "Kill a task's running session",
	RunE:  runKill,
}

func init() {
	killCmd.Flags().StringVar(&killTaskID, "task", "", "task whose running session should be killed (required)")
	killCmd.Flags().BoolVar(&killForce, "force", false, "send SIGKILL instead of SIGTERM")
	killCmd.MarkFlagRequired("task")
}

// runKill signals a task's running session process directly by PID rather
// than through the engine's PaneRunner: `kill` runs in a separate OS
// process from `tc run`'s engine loop, so it has no access to the running
// engine's in-memory pane handles, only what the store recorded. Process
// IDs are global to the machine, so a raw signal is all that's needed; the
// session/task bookkeeping mirrors what internal/engine.Engine.Kill does
// for an in-process kill.
func runKill(cmd *cobra.Command, args []string) error {
	projectDir, err := resolveProjectDir()
	if err != nil {
		return err
	}
	repo, _, err := openProject(projectDir)
	if err != nil {
		return err
	}
	defer repo.Close()

	sess, ok, err := repo.GetRunningSession(killTaskID)
	if err != nil {
		return err
	}
	if !ok {
		return &cliError{code: exitPrecondition, err: fmt.Errorf("task %s has no running session", killTaskID)}
	}

	sig := syscall.SIGTERM
	if killForce {
		sig = syscall.SIGKILL
	}
	if err := syscall.Kill(sess.ProcessID, sig); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("signal pid %d: %w", sess.ProcessID, err)
	}

	now := time.Now()
	if err := repo.FinishSession(sess.ID, domain.SessionKilled, now, -1); err != nil {
		return err
	}
	reason := "killed"
	if err := repo.UpdateTaskStatus(killTaskID, store.TaskStatusUpdate{
		NewStatus:    domain.TaskFailed,
		ErrorContext: &reason,
	}); err != nil {
		return err
	}
	if _, err := repo.AppendEvent(domain.EventStatusChange, killTaskID, map[string]any{"action": "killed", "force": killForce}, now); err != nil {
		return err
	}

	return printResult(struct {
		TaskID    string `json:"task_id"`
		SessionID string `json:"session_id"`
	}{killTaskID, sess.ID}, func() {
		printf("killed session %s for task %s\n", sess.ID, killTaskID)
	})
}
