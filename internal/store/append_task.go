package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/terminal-coder/tc/internal/domain"
)

// AppendTask inserts a single new task at the tail of a phase's sequence,
// with dependency edges on dependsOn. Used by the control-plane to enqueue
// a review task after a coding task completes, and to enqueue a follow-up
// coding task when a review requests changes (spec §4.7). Tail-appending
// with a fresh dependency edge avoids renumbering the phase's existing
// tasks transactionally.
func (r *Repository) AppendTask(phaseID string, kind domain.TaskKind, name string, dependsOn []string) (domain.Task, error) {
	var t domain.Task
	err := r.withTx(func(tx *sql.Tx) error {
		var maxSeq sql.NullInt64
		if err := tx.QueryRow(`SELECT MAX(sequence) FROM tasks WHERE phase_id = ?`, phaseID).Scan(&maxSeq); err != nil {
			return domain.NewError(domain.ErrInfrastructure, phaseID, err)
		}
		next := 1
		if maxSeq.Valid {
			next = int(maxSeq.Int64) + 1
		}

		built, err := domain.NewTask(uuid.NewString(), phaseID, next, kind, name)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(`INSERT INTO tasks (id, phase_id, sequence, kind, name, brief_ref, status, retry_count, error_context) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			built.ID, built.PhaseID, built.Sequence, string(built.Kind), built.Name, built.BriefRef, string(built.Status), built.RetryCount, built.ErrorContext); err != nil {
			return domain.NewError(domain.ErrInfrastructure, phaseID, fmt.Errorf("append task: %w", err))
		}
		for _, dep := range dependsOn {
			if _, err := tx.Exec(`INSERT INTO task_dependencies (task_id, depends_on_id) VALUES (?, ?)`, built.ID, dep); err != nil {
				return domain.NewError(domain.ErrInfrastructure, phaseID, fmt.Errorf("append task dependency: %w", err))
			}
		}
		t = built
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}
