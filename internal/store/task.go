package store

import (
	"database/sql"
	"fmt"

	"github.com/terminal-coder/tc/internal/domain"
	"github.com/terminal-coder/tc/internal/statemachine"
)

// TaskStatusUpdate describes a status transition plus the optional fields
// that accompany particular transitions (spec §4.3 update_task_status).
// ErrorContext is a pointer because the meaning of "absent" differs by
// caller: an automatic retry (spec §4.5) must leave a prior failure's
// error_context in place so the next brief can reference it, while
// report_failure and manual retry/reset explicitly set or clear it.
type TaskStatusUpdate struct {
	NewStatus    domain.TaskStatus
	ErrorContext *string // nil leaves error_context unchanged
	RetryCount   *int    // set when the retry policy advances the count
	BriefRef     *string // set to the rendered brief's path on dispatch
}

// UpdateTaskStatus validates the requested transition against the shared
// state machine and applies it in one transaction. A rejected transition
// persists nothing.
func (r *Repository) UpdateTaskStatus(taskID string, update TaskStatusUpdate) error {
	return r.withTx(func(tx *sql.Tx) error {
		var current string
		if err := tx.QueryRow(`SELECT status FROM tasks WHERE id = ?`, taskID).Scan(&current); err != nil {
			if err == sql.ErrNoRows {
				return domain.NewError(domain.ErrValidation, taskID, fmt.Errorf("task not found"))
			}
			return domain.NewError(domain.ErrInfrastructure, taskID, err)
		}

		from := domain.TaskStatus(current)
		if !statemachine.ValidTaskTransition(from, update.NewStatus) {
			return domain.NewError(domain.ErrPrecondition, taskID,
				fmt.Errorf("illegal task transition %s -> %s", from, update.NewStatus))
		}

		if update.ErrorContext != nil {
			if _, err := tx.Exec(`UPDATE tasks SET status = ?, error_context = ? WHERE id = ?`,
				string(update.NewStatus), *update.ErrorContext, taskID); err != nil {
				return domain.NewError(domain.ErrInfrastructure, taskID, err)
			}
		} else if _, err := tx.Exec(`UPDATE tasks SET status = ? WHERE id = ?`,
			string(update.NewStatus), taskID); err != nil {
			return domain.NewError(domain.ErrInfrastructure, taskID, err)
		}

		if update.RetryCount != nil {
			if _, err := tx.Exec(`UPDATE tasks SET retry_count = ? WHERE id = ?`, *update.RetryCount, taskID); err != nil {
				return domain.NewError(domain.ErrInfrastructure, taskID, err)
			}
		}
		if update.BriefRef != nil {
			if _, err := tx.Exec(`UPDATE tasks SET brief_ref = ? WHERE id = ?`, *update.BriefRef, taskID); err != nil {
				return domain.NewError(domain.ErrInfrastructure, taskID, err)
			}
		}
		return nil
	})
}

// UpdatePhaseStatus validates and applies a phase status transition.
func (r *Repository) UpdatePhaseStatus(phaseID string, newStatus domain.PhaseStatus) error {
	return r.withTx(func(tx *sql.Tx) error {
		var current string
		if err := tx.QueryRow(`SELECT status FROM phases WHERE id = ?`, phaseID).Scan(&current); err != nil {
			if err == sql.ErrNoRows {
				return domain.NewError(domain.ErrValidation, phaseID, fmt.Errorf("phase not found"))
			}
			return domain.NewError(domain.ErrInfrastructure, phaseID, err)
		}

		from := domain.PhaseStatus(current)
		if !statemachine.ValidPhaseTransition(from, newStatus) {
			return domain.NewError(domain.ErrPrecondition, phaseID,
				fmt.Errorf("illegal phase transition %s -> %s", from, newStatus))
		}

		if _, err := tx.Exec(`UPDATE phases SET status = ? WHERE id = ?`, string(newStatus), phaseID); err != nil {
			return domain.NewError(domain.ErrInfrastructure, phaseID, err)
		}
		return nil
	})
}

// ListFailedTasks returns every task across a project currently in the
// failed status, for the engine's retry-policy step.
func (r *Repository) ListFailedTasks(projectID string) ([]domain.Task, error) {
	return r.queryTasks(`
		SELECT t.id, t.phase_id, t.sequence, t.kind, t.name, t.brief_ref, t.status, t.retry_count, t.error_context
		FROM tasks t JOIN phases p ON p.id = t.phase_id
		WHERE p.project_id = ? AND t.status = ?
		ORDER BY p.sequence, t.sequence`, projectID, string(domain.TaskFailed))
}

// GetTask retrieves a single task by id.
func (r *Repository) GetTask(taskID string) (domain.Task, error) {
	var t domain.Task
	var kind, status string
	row := r.db.QueryRow(`SELECT id, phase_id, sequence, kind, name, brief_ref, status, retry_count, error_context FROM tasks WHERE id = ?`, taskID)
	if err := row.Scan(&t.ID, &t.PhaseID, &t.Sequence, &kind, &t.Name, &t.BriefRef, &status, &t.RetryCount, &t.ErrorContext); err != nil {
		if err == sql.ErrNoRows {
			return domain.Task{}, domain.NewError(domain.ErrValidation, taskID, fmt.Errorf("task not found"))
		}
		return domain.Task{}, domain.NewError(domain.ErrInfrastructure, taskID, err)
	}
	t.Kind = domain.TaskKind(kind)
	t.Status = domain.TaskStatus(status)
	return t, nil
}
