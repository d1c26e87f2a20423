package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/terminal-coder/tc/internal/domain"
)

// RequirementSpec describes the inputs to record_requirement.
type RequirementSpec struct {
	ProjectID   string
	Description string
	Source      string
}

// RecordRequirement inserts a requirement traced from a PRD or plan input.
// Requirements are read-only metadata: they never feed the scheduler or
// state machine (spec SPEC_FULL.md requirement traceability addition).
func (r *Repository) RecordRequirement(spec RequirementSpec) (domain.Requirement, error) {
	if spec.Description == "" {
		return domain.Requirement{}, domain.Validationf("requirement description must not be empty")
	}
	req := domain.Requirement{
		ID:          uuid.NewString(),
		ProjectID:   spec.ProjectID,
		Description: spec.Description,
		Source:      spec.Source,
	}
	err := r.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO requirements (id, project_id, description, source) VALUES (?, ?, ?, ?)`,
			req.ID, req.ProjectID, req.Description, req.Source)
		return err
	})
	if err != nil {
		return domain.Requirement{}, domain.NewError(domain.ErrInfrastructure, req.ID, err)
	}
	return req, nil
}

// LinkRequirement marks a requirement as covered by a task.
func (r *Repository) LinkRequirement(requirementID, taskID string) error {
	return r.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT OR IGNORE INTO requirement_coverage (requirement_id, task_id) VALUES (?, ?)`, requirementID, taskID)
		if err != nil {
			return domain.NewError(domain.ErrInfrastructure, requirementID, fmt.Errorf("link requirement: %w", err))
		}
		return nil
	})
}

// ListRequirements returns every requirement recorded for a project, each
// annotated with the ids of the tasks that cover it.
func (r *Repository) ListRequirements(projectID string) ([]domain.Requirement, error) {
	rows, err := r.db.Query(`SELECT id, project_id, description, source FROM requirements WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, domain.NewError(domain.ErrInfrastructure, projectID, err)
	}
	defer rows.Close()

	var out []domain.Requirement
	for rows.Next() {
		var req domain.Requirement
		if err := rows.Scan(&req.ID, &req.ProjectID, &req.Description, &req.Source); err != nil {
			return nil, domain.NewError(domain.ErrInfrastructure, projectID, err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewError(domain.ErrInfrastructure, projectID, err)
	}

	for i := range out {
		covered, err := r.coveringTasks(out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].CoveredBy = covered
	}
	return out, nil
}

// ListRequirementsForTask returns every requirement a task covers, for
// get_context (spec SPEC_FULL.md requirement traceability addition: "read-only
// metadata surfaced by get_context and status --json").
func (r *Repository) ListRequirementsForTask(taskID string) ([]domain.Requirement, error) {
	rows, err := r.db.Query(`
		SELECT r.id, r.project_id, r.description, r.source
		FROM requirements r
		JOIN requirement_coverage rc ON rc.requirement_id = r.id
		WHERE rc.task_id = ?`, taskID)
	if err != nil {
		return nil, domain.NewError(domain.ErrInfrastructure, taskID, err)
	}
	defer rows.Close()

	var out []domain.Requirement
	for rows.Next() {
		var req domain.Requirement
		if err := rows.Scan(&req.ID, &req.ProjectID, &req.Description, &req.Source); err != nil {
			return nil, domain.NewError(domain.ErrInfrastructure, taskID, err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewError(domain.ErrInfrastructure, taskID, err)
	}
	for i := range out {
		covered, err := r.coveringTasks(out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].CoveredBy = covered
	}
	return out, nil
}

func (r *Repository) coveringTasks(requirementID string) ([]string, error) {
	rows, err := r.db.Query(`SELECT task_id FROM requirement_coverage WHERE requirement_id = ?`, requirementID)
	if err != nil {
		return nil, domain.NewError(domain.ErrInfrastructure, requirementID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var taskID string
		if err := rows.Scan(&taskID); err != nil {
			return nil, domain.NewError(domain.ErrInfrastructure, requirementID, err)
		}
		out = append(out, taskID)
	}
	return out, rows.Err()
}
