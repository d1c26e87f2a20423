package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/terminal-coder/tc/internal/domain"
	"github.com/terminal-coder/tc/internal/store"
)

// reap checks every running session's process liveness and reconciles task
// state for any that exited (spec §4.8 step 1).
func (e *Engine) reap(now time.Time) error {
	sessions, err := e.repo.ListRunningSessions(e.projectID)
	if err != nil {
		return err
	}

	for _, sess := range sessions {
		if e.pane.IsAlive(sess.ProcessID) {
			continue
		}

		task, err := e.repo.GetTask(sess.TaskID)
		if err != nil {
			return err
		}

		switch task.Status {
		case domain.TaskCompleted:
			if err := e.repo.FinishSession(sess.ID, domain.SessionCompleted, now, 0); err != nil {
				return err
			}
		case domain.TaskFailed:
			if err := e.repo.FinishSession(sess.ID, domain.SessionFailed, now, 1); err != nil {
				return err
			}
		default:
			// The process exited without a control-plane completion or
			// failure report; classify as a failure with synthetic context
			// (spec §4.8 step 1).
			msg := "session process exited without reporting completion or failure"
			if err := e.repo.UpdateTaskStatus(task.ID, store.TaskStatusUpdate{
				NewStatus:    domain.TaskFailed,
				ErrorContext: &msg,
			}); err != nil {
				return err
			}
			if err := e.repo.FinishSession(sess.ID, domain.SessionFailed, now, -1); err != nil {
				return err
			}
			if _, err := e.repo.AppendEvent(domain.EventError, task.ID, map[string]any{"message": msg}, now); err != nil {
				return err
			}
			e.log.Warn("session exited without report", zap.String("task_id", task.ID), zap.String("session_id", sess.ID))
		}
	}
	return nil
}
