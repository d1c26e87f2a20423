package store

import (
	"database/sql"
	"fmt"

	"github.com/terminal-coder/tc/internal/domain"
	"github.com/terminal-coder/tc/internal/scheduler"
)

// ReplacePlan atomically replaces every phase, task, and dependency edge of
// a project. It rejects (and persists nothing for) a plan containing a
// dependency cycle, per spec §8 item 4: cycle detection runs before the
// delete+insert so a rejected plan leaves prior state untouched.
func (r *Repository) ReplacePlan(projectID string, phases []domain.Phase, tasks []domain.Task, deps []domain.TaskDependency) error {
	if err := scheduler.DetectCycle(tasks, deps); err != nil {
		return domain.NewError(domain.ErrValidation, projectID, err)
	}

	return r.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM task_dependencies WHERE task_id IN (SELECT id FROM tasks WHERE phase_id IN (SELECT id FROM phases WHERE project_id = ?))`, projectID); err != nil {
			return fmt.Errorf("replace_plan: clear dependencies: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM tasks WHERE phase_id IN (SELECT id FROM phases WHERE project_id = ?)`, projectID); err != nil {
			return fmt.Errorf("replace_plan: clear tasks: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM phases WHERE project_id = ?`, projectID); err != nil {
			return fmt.Errorf("replace_plan: clear phases: %w", err)
		}

		for _, p := range phases {
			if _, err := tx.Exec(`INSERT INTO phases (id, project_id, sequence, name, description, status) VALUES (?, ?, ?, ?, ?, ?)`,
				p.ID, projectID, p.Sequence, p.Name, p.Description, string(p.Status)); err != nil {
				return fmt.Errorf("replace_plan: insert phase %s: %w", p.ID, err)
			}
		}
		for _, t := range tasks {
			if err := domain.ValidateRetryCount(t.RetryCount); err != nil {
				return err
			}
			if _, err := tx.Exec(`INSERT INTO tasks (id, phase_id, sequence, kind, name, brief_ref, status, retry_count, error_context) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				t.ID, t.PhaseID, t.Sequence, string(t.Kind), t.Name, t.BriefRef, string(t.Status), t.RetryCount, t.ErrorContext); err != nil {
				return fmt.Errorf("replace_plan: insert task %s: %w", t.ID, err)
			}
		}
		for _, d := range deps {
			if _, err := tx.Exec(`INSERT INTO task_dependencies (task_id, depends_on_id) VALUES (?, ?)`, d.TaskID, d.DependsOnID); err != nil {
				return fmt.Errorf("replace_plan: insert dependency %s<-%s: %w", d.TaskID, d.DependsOnID, err)
			}
		}
		return nil
	})
}

// ListPhases returns every phase of a project, ascending by sequence.
func (r *Repository) ListPhases(projectID string) ([]domain.Phase, error) {
	rows, err := r.db.Query(`SELECT id, project_id, sequence, name, description, status FROM phases WHERE project_id = ? ORDER BY sequence`, projectID)
	if err != nil {
		return nil, domain.NewError(domain.ErrInfrastructure, projectID, err)
	}
	defer rows.Close()

	var out []domain.Phase
	for rows.Next() {
		var p domain.Phase
		var status string
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.Sequence, &p.Name, &p.Description, &status); err != nil {
			return nil, domain.NewError(domain.ErrInfrastructure, projectID, err)
		}
		p.Status = domain.PhaseStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListTasksByPhase returns every task belonging to a phase, ascending by
// sequence.
func (r *Repository) ListTasksByPhase(phaseID string) ([]domain.Task, error) {
	return r.queryTasks(`SELECT id, phase_id, sequence, kind, name, brief_ref, status, retry_count, error_context FROM tasks WHERE phase_id = ? ORDER BY sequence`, phaseID)
}

// ListTasksByProject returns every task belonging to any phase of a
// project, ascending by phase sequence then task sequence.
func (r *Repository) ListTasksByProject(projectID string) ([]domain.Task, error) {
	return r.queryTasks(`
		SELECT t.id, t.phase_id, t.sequence, t.kind, t.name, t.brief_ref, t.status, t.retry_count, t.error_context
		FROM tasks t JOIN phases p ON p.id = t.phase_id
		WHERE p.project_id = ?
		ORDER BY p.sequence, t.sequence`, projectID)
}

func (r *Repository) queryTasks(query string, args ...any) ([]domain.Task, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, domain.NewError(domain.ErrInfrastructure, "", err)
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		var t domain.Task
		var kind, status string
		if err := rows.Scan(&t.ID, &t.PhaseID, &t.Sequence, &kind, &t.Name, &t.BriefRef, &status, &t.RetryCount, &t.ErrorContext); err != nil {
			return nil, domain.NewError(domain.ErrInfrastructure, "", err)
		}
		t.Kind = domain.TaskKind(kind)
		t.Status = domain.TaskStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListDependencies returns every task dependency edge across a project.
func (r *Repository) ListDependencies(projectID string) ([]domain.TaskDependency, error) {
	rows, err := r.db.Query(`
		SELECT d.task_id, d.depends_on_id
		FROM task_dependencies d
		JOIN tasks t ON t.id = d.task_id
		JOIN phases p ON p.id = t.phase_id
		WHERE p.project_id = ?`, projectID)
	if err != nil {
		return nil, domain.NewError(domain.ErrInfrastructure, projectID, err)
	}
	defer rows.Close()

	var out []domain.TaskDependency
	for rows.Next() {
		var d domain.TaskDependency
		if err := rows.Scan(&d.TaskID, &d.DependsOnID); err != nil {
			return nil, domain.NewError(domain.ErrInfrastructure, projectID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Snapshot returns a consistent read of phases, tasks, and dependencies for
// a project in one transaction, for the scheduler to consume (spec §4.3).
func (r *Repository) Snapshot(projectID string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := r.withTx(func(tx *sql.Tx) error {
		snap.ProjectID = projectID

		phaseRows, err := tx.Query(`SELECT id, project_id, sequence, name, description, status FROM phases WHERE project_id = ? ORDER BY sequence`, projectID)
		if err != nil {
			return err
		}
		defer phaseRows.Close()
		for phaseRows.Next() {
			var p domain.Phase
			var status string
			if err := phaseRows.Scan(&p.ID, &p.ProjectID, &p.Sequence, &p.Name, &p.Description, &status); err != nil {
				return err
			}
			p.Status = domain.PhaseStatus(status)
			snap.Phases = append(snap.Phases, p)
		}
		if err := phaseRows.Err(); err != nil {
			return err
		}

		taskRows, err := tx.Query(`
			SELECT t.id, t.phase_id, t.sequence, t.kind, t.name, t.brief_ref, t.status, t.retry_count, t.error_context
			FROM tasks t JOIN phases p ON p.id = t.phase_id
			WHERE p.project_id = ?
			ORDER BY p.sequence, t.sequence`, projectID)
		if err != nil {
			return err
		}
		defer taskRows.Close()
		for taskRows.Next() {
			var t domain.Task
			var kind, status string
			if err := taskRows.Scan(&t.ID, &t.PhaseID, &t.Sequence, &kind, &t.Name, &t.BriefRef, &status, &t.RetryCount, &t.ErrorContext); err != nil {
				return err
			}
			t.Kind = domain.TaskKind(kind)
			t.Status = domain.TaskStatus(status)
			snap.Tasks = append(snap.Tasks, t)
		}
		if err := taskRows.Err(); err != nil {
			return err
		}

		depRows, err := tx.Query(`
			SELECT d.task_id, d.depends_on_id
			FROM task_dependencies d
			JOIN tasks t ON t.id = d.task_id
			JOIN phases p ON p.id = t.phase_id
			WHERE p.project_id = ?`, projectID)
		if err != nil {
			return err
		}
		defer depRows.Close()
		for depRows.Next() {
			var d domain.TaskDependency
			if err := depRows.Scan(&d.TaskID, &d.DependsOnID); err != nil {
				return err
			}
			snap.Deps = append(snap.Deps, d)
		}
		return depRows.Err()
	})
	if err != nil {
		return domain.Snapshot{}, domain.NewError(domain.ErrInfrastructure, projectID, err)
	}
	return snap, nil
}
