package scheduler

import "github.com/terminal-coder/tc/internal/domain"

// RetryAction is the pure retry-policy verdict for a failed task (spec
// §4.5).
type RetryAction string

const (
	RetryActionRetry RetryAction = "retry"
	RetryActionPause RetryAction = "pause"
)

// RetryDecision is the effect calculator's output: what to do, and the
// field deltas the repository should apply via update_task_status.
type RetryDecision struct {
	Action          RetryAction
	NewStatus       domain.TaskStatus
	NewRetryCount   int
	RaiseEnginePause bool
}

// DecideRetry implements the at-most-one-automatic-retry policy: a task
// that has not yet retried (retry_count == 0) is retried; a task that has
// already retried once is paused, and the engine's paused flag is raised so
// the scheduler stops issuing new coding dispatches until resume or manual
// reset. task.RetryCount must already be validated to be in {0, 1}.
func DecideRetry(task domain.Task) RetryDecision {
	if task.RetryCount < 1 {
		return RetryDecision{
			Action:        RetryActionRetry,
			NewStatus:     domain.TaskPending,
			NewRetryCount: task.RetryCount + 1,
		}
	}
	return RetryDecision{
		Action:           RetryActionPause,
		NewStatus:        domain.TaskPaused,
		NewRetryCount:    task.RetryCount,
		RaiseEnginePause: true,
	}
}
