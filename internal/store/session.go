package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/terminal-coder/tc/internal/domain"
	"github.com/terminal-coder/tc/internal/statemachine"
)

// SessionSpec describes the inputs to create_session.
type SessionSpec struct {
	TaskID    string
	Pane      domain.Pane
	ProcessID int
	StartedAt time.Time
}

// CreateSession starts a new session bound to a task and pane. It enforces
// the invariant that at most one session may be running for a given task at
// a time (spec §8 property #3): the insert fails inside the transaction if
// one is already running.
func (r *Repository) CreateSession(spec SessionSpec) (domain.Session, error) {
	if err := domain.ValidatePane(spec.Pane); err != nil {
		return domain.Session{}, err
	}

	s := domain.Session{
		ID:        uuid.NewString(),
		TaskID:    spec.TaskID,
		Pane:      spec.Pane,
		ProcessID: spec.ProcessID,
		StartedAt: spec.StartedAt,
		Status:    domain.SessionRunning,
	}

	err := r.withTx(func(tx *sql.Tx) error {
		var running int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM sessions WHERE task_id = ? AND status = ?`, spec.TaskID, string(domain.SessionRunning)).Scan(&running); err != nil {
			return domain.NewError(domain.ErrInfrastructure, spec.TaskID, err)
		}
		if running > 0 {
			return domain.NewError(domain.ErrInvariant, spec.TaskID, fmt.Errorf("a session is already running for this task"))
		}
		_, err := tx.Exec(`INSERT INTO sessions (id, task_id, pane, process_id, started_at, status) VALUES (?, ?, ?, ?, ?, ?)`,
			s.ID, s.TaskID, int(s.Pane), s.ProcessID, s.StartedAt, string(s.Status))
		if err != nil {
			return domain.NewError(domain.ErrInfrastructure, spec.TaskID, err)
		}
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// FinishSession transitions a running session to a terminal status, stamping
// its end time and exit code.
func (r *Repository) FinishSession(sessionID string, newStatus domain.SessionStatus, endedAt time.Time, exitCode int) error {
	return r.withTx(func(tx *sql.Tx) error {
		var current string
		if err := tx.QueryRow(`SELECT status FROM sessions WHERE id = ?`, sessionID).Scan(&current); err != nil {
			if err == sql.ErrNoRows {
				return domain.NewError(domain.ErrValidation, sessionID, fmt.Errorf("session not found"))
			}
			return domain.NewError(domain.ErrInfrastructure, sessionID, err)
		}
		from := domain.SessionStatus(current)
		if !statemachine.ValidSessionTransition(from, newStatus) {
			return domain.NewError(domain.ErrPrecondition, sessionID,
				fmt.Errorf("illegal session transition %s -> %s", from, newStatus))
		}
		_, err := tx.Exec(`UPDATE sessions SET status = ?, ended_at = ?, exit_code = ? WHERE id = ?`,
			string(newStatus), endedAt, exitCode, sessionID)
		if err != nil {
			return domain.NewError(domain.ErrInfrastructure, sessionID, err)
		}
		return revokeSessionTokens(tx, sessionID)
	})
}

// GetRunningSession returns the currently running session for a task, if
// any.
func (r *Repository) GetRunningSession(taskID string) (domain.Session, bool, error) {
	row := r.db.QueryRow(`SELECT id, task_id, pane, process_id, started_at, ended_at, exit_code, status FROM sessions WHERE task_id = ? AND status = ?`,
		taskID, string(domain.SessionRunning))
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, domain.NewError(domain.ErrInfrastructure, taskID, err)
	}
	return s, true, nil
}

// ListSessionsByTask returns every session ever started for a task, most
// recent first.
func (r *Repository) ListSessionsByTask(taskID string) ([]domain.Session, error) {
	rows, err := r.db.Query(`SELECT id, task_id, pane, process_id, started_at, ended_at, exit_code, status FROM sessions WHERE task_id = ? ORDER BY started_at DESC`, taskID)
	if err != nil {
		return nil, domain.NewError(domain.ErrInfrastructure, taskID, err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := scanSessionRows(rows)
		if err != nil {
			return nil, domain.NewError(domain.ErrInfrastructure, taskID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListRunningSessions returns every session currently running for any task
// in a project, for the engine's reap step.
func (r *Repository) ListRunningSessions(projectID string) ([]domain.Session, error) {
	rows, err := r.db.Query(`
		SELECT s.id, s.task_id, s.pane, s.process_id, s.started_at, s.ended_at, s.exit_code, s.status
		FROM sessions s
		JOIN tasks t ON t.id = s.task_id
		JOIN phases p ON p.id = t.phase_id
		WHERE p.project_id = ? AND s.status = ?`, projectID, string(domain.SessionRunning))
	if err != nil {
		return nil, domain.NewError(domain.ErrInfrastructure, projectID, err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := scanSessionRows(rows)
		if err != nil {
			return nil, domain.NewError(domain.ErrInfrastructure, projectID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (domain.Session, error) {
	return scanSessionRows(s)
}

func scanSessionRows(s scanner) (domain.Session, error) {
	var sess domain.Session
	var pane int
	var status string
	var endedAt sql.NullTime
	var exitCode sql.NullInt64
	if err := s.Scan(&sess.ID, &sess.TaskID, &pane, &sess.ProcessID, &sess.StartedAt, &endedAt, &exitCode, &status); err != nil {
		return domain.Session{}, err
	}
	sess.Pane = domain.Pane(pane)
	sess.Status = domain.SessionStatus(status)
	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}
	if exitCode.Valid {
		c := int(exitCode.Int64)
		sess.ExitCode = &c
	}
	return sess, nil
}
