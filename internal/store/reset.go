package store

import (
	"database/sql"
	"fmt"
	"syscall"
	"time"

	"github.com/terminal-coder/tc/internal/domain"
)

// killRunningSessionsForTask signals the OS process behind any session still
// running for taskID, marks those sessions killed, and revokes their
// tokens, all within tx. A reset/replan that merely flips a running
// session's row to killed without touching the real process or its token
// leaves a zombie Agent process holding a token that stays valid even after
// the task is redispatched under a new session (spec §4.7 "maps token ->
// session -> task for every request"; spec §8 property #3: at most one live
// session per task). This mirrors cmd/tc/cmd_control.go's `runKill`, which
// has to do the same OS-level signal for the same reason: the process that
// spawned the session is not the process performing the reset.
func killRunningSessionsForTask(tx *sql.Tx, taskID string, at time.Time) error {
	rows, err := tx.Query(`SELECT id, process_id FROM sessions WHERE task_id = ? AND status = ?`,
		taskID, string(domain.SessionRunning))
	if err != nil {
		return domain.NewError(domain.ErrInfrastructure, taskID, err)
	}
	type running struct {
		id  string
		pid int
	}
	var sessions []running
	for rows.Next() {
		var s running
		if err := rows.Scan(&s.id, &s.pid); err != nil {
			rows.Close()
			return domain.NewError(domain.ErrInfrastructure, taskID, err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return domain.NewError(domain.ErrInfrastructure, taskID, err)
	}
	rows.Close()

	for _, s := range sessions {
		if err := syscall.Kill(s.pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
			return domain.NewError(domain.ErrInfrastructure, taskID, fmt.Errorf("kill pid %d: %w", s.pid, err))
		}
		if _, err := tx.Exec(`UPDATE sessions SET status = ?, ended_at = ? WHERE id = ?`,
			string(domain.SessionKilled), at, s.id); err != nil {
			return domain.NewError(domain.ErrInfrastructure, taskID, err)
		}
		if err := revokeSessionTokens(tx, s.id); err != nil {
			return err
		}
	}
	return nil
}

// ResetTask returns a task to pending, clearing retry_count and
// error_context, and kills any session still running for it. Reset moves a
// task out of completed/skipped/failed/paused directly, which the ordinary
// state machine table does not allow (spec §7: "completed and skipped are
// terminal until reset"), so this writes status directly rather than going
// through UpdateTaskStatus.
func (r *Repository) ResetTask(taskID string, at time.Time) error {
	return r.withTx(func(tx *sql.Tx) error {
		if err := killRunningSessionsForTask(tx, taskID, at); err != nil {
			return err
		}

		res, err := tx.Exec(`UPDATE tasks SET status = ?, retry_count = 0, error_context = '' WHERE id = ?`,
			string(domain.TaskPending), taskID)
		if err != nil {
			return domain.NewError(domain.ErrInfrastructure, taskID, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return domain.NewError(domain.ErrValidation, taskID, fmt.Errorf("task not found"))
		}
		return nil
	})
}

// ResetPhase cascades ResetTask to every task of a phase, then returns the
// phase itself to pending.
func (r *Repository) ResetPhase(phaseID string, at time.Time) error {
	return r.withTx(func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT id FROM tasks WHERE phase_id = ?`, phaseID)
		if err != nil {
			return domain.NewError(domain.ErrInfrastructure, phaseID, err)
		}
		var taskIDs []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return domain.NewError(domain.ErrInfrastructure, phaseID, err)
			}
			taskIDs = append(taskIDs, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return domain.NewError(domain.ErrInfrastructure, phaseID, err)
		}
		rows.Close()

		for _, id := range taskIDs {
			if err := killRunningSessionsForTask(tx, id, at); err != nil {
				return err
			}
			if _, err := tx.Exec(`UPDATE tasks SET status = ?, retry_count = 0, error_context = '' WHERE id = ?`,
				string(domain.TaskPending), id); err != nil {
				return domain.NewError(domain.ErrInfrastructure, id, err)
			}
		}

		res, err := tx.Exec(`UPDATE phases SET status = ? WHERE id = ?`, string(domain.PhasePending), phaseID)
		if err != nil {
			return domain.NewError(domain.ErrInfrastructure, phaseID, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return domain.NewError(domain.ErrValidation, phaseID, fmt.Errorf("phase not found"))
		}
		return nil
	})
}

// ResetProject cascades ResetPhase to every phase of a project, used by
// replan (spec §7: "replan is equivalent to resetting every phase of the
// project and re-running the planner").
func (r *Repository) ResetProject(projectID string, at time.Time) error {
	phases, err := r.ListPhases(projectID)
	if err != nil {
		return err
	}
	for _, p := range phases {
		if err := r.ResetPhase(p.ID, at); err != nil {
			return err
		}
	}
	return nil
}
