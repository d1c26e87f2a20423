package engine

import (
	"time"

	"github.com/terminal-coder/tc/internal/domain"
	"github.com/terminal-coder/tc/internal/store"
)

// Kill terminates a task's running session (spec §5 "Cancellation and
// timeouts" / §6 `kill`): the pane wrapper is asked to send a termination
// signal (escalating to force if requested), the session is recorded
// killed, and the task moves to failed with error_context="killed" so the
// next tick's retry policy (C5) decides whether to retry or pause it.
func (e *Engine) Kill(taskID string, force bool, now time.Time) error {
	sess, ok, err := e.repo.GetRunningSession(taskID)
	if !ok {
		if err != nil {
			return err
		}
		return nil
	}

	if err := e.pane.Kill(sess.ProcessID, force); err != nil {
		return err
	}
	if err := e.repo.FinishSession(sess.ID, domain.SessionKilled, now, -1); err != nil {
		return err
	}

	reason := "killed"
	if err := e.repo.UpdateTaskStatus(taskID, store.TaskStatusUpdate{
		NewStatus:    domain.TaskFailed,
		ErrorContext: &reason,
	}); err != nil {
		return err
	}
	if _, err := e.repo.AppendEvent(domain.EventStatusChange, taskID, map[string]any{"action": "killed", "force": force}, now); err != nil {
		return err
	}
	e.bus.Publish(domain.Event{Kind: domain.EventStatusChange, Subject: taskID, CreatedAt: now, Payload: map[string]any{"action": "killed"}})
	return nil
}
