package engine

import (
	"time"

	"github.com/terminal-coder/tc/internal/domain"
	"github.com/terminal-coder/tc/internal/scheduler"
	"github.com/terminal-coder/tc/internal/store"
)

// applyRetryPolicy consults the pure retry policy (C5) for every currently
// failed task and applies its verdict (spec §4.8 step 2).
func (e *Engine) applyRetryPolicy(now time.Time) error {
	failed, err := e.repo.ListFailedTasks(e.projectID)
	if err != nil {
		return err
	}

	for _, task := range failed {
		decision := scheduler.DecideRetry(task)
		// TC_MAX_RETRIES=0 disables the automatic retry: the first failure pauses.
		if e.cfg.MaxRetries < 1 && decision.Action == scheduler.RetryActionRetry {
			decision = scheduler.RetryDecision{
				Action:           scheduler.RetryActionPause,
				NewStatus:        domain.TaskPaused,
				NewRetryCount:    task.RetryCount,
				RaiseEnginePause: true,
			}
		}
		retryCount := decision.NewRetryCount
		if err := e.repo.UpdateTaskStatus(task.ID, store.TaskStatusUpdate{
			NewStatus:  decision.NewStatus,
			RetryCount: &retryCount,
		}); err != nil {
			return err
		}

		kind := domain.EventStatusChange
		payload := map[string]any{"action": string(decision.Action), "retry_count": decision.NewRetryCount}
		if _, err := e.repo.AppendEvent(kind, task.ID, payload, now); err != nil {
			return err
		}
		e.bus.Publish(domain.Event{Kind: kind, Subject: task.ID, CreatedAt: now, Payload: payload})

		if decision.RaiseEnginePause {
			e.Pause()
			if err := e.repo.UpdateProjectStatus(e.projectID, domain.ProjectPaused); err != nil {
				return err
			}
		}
	}
	return nil
}
