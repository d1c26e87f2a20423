package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/terminal-coder/tc/internal/domain"
)

// ProjectSpec describes the inputs to create_project.
type ProjectSpec struct {
	Name string
	Root string
}

// CreateProject inserts a new Project row in the initialized status.
func (r *Repository) CreateProject(spec ProjectSpec) (domain.Project, error) {
	if spec.Name == "" || spec.Root == "" {
		return domain.Project{}, domain.Validationf("project name and root must not be empty")
	}
	p := domain.Project{
		ID:     uuid.NewString(),
		Name:   spec.Name,
		Root:   spec.Root,
		Status: domain.ProjectInitialized,
	}
	err := r.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO projects (id, name, root, status) VALUES (?, ?, ?, ?)`,
			p.ID, p.Name, p.Root, string(p.Status))
		return err
	})
	if err != nil {
		return domain.Project{}, domain.NewError(domain.ErrInfrastructure, p.ID, fmt.Errorf("create project: %w", err))
	}
	return p, nil
}

// GetProject retrieves a Project by id.
func (r *Repository) GetProject(id string) (domain.Project, error) {
	var p domain.Project
	var status string
	row := r.db.QueryRow(`SELECT id, name, root, status FROM projects WHERE id = ?`, id)
	if err := row.Scan(&p.ID, &p.Name, &p.Root, &status); err != nil {
		if err == sql.ErrNoRows {
			return domain.Project{}, domain.NewError(domain.ErrValidation, id, fmt.Errorf("project not found"))
		}
		return domain.Project{}, domain.NewError(domain.ErrInfrastructure, id, fmt.Errorf("get project: %w", err))
	}
	p.Status = domain.ProjectStatus(status)
	return p, nil
}

// GetSoleProject returns the one project row a project directory's store
// holds (spec §2: "one root directory driven by one engine instance"). The
// CLI uses this to recover the project id across separate invocations
// without the user having to pass it on every command.
func (r *Repository) GetSoleProject() (domain.Project, error) {
	var p domain.Project
	var status string
	row := r.db.QueryRow(`SELECT id, name, root, status FROM projects LIMIT 1`)
	if err := row.Scan(&p.ID, &p.Name, &p.Root, &status); err != nil {
		if err == sql.ErrNoRows {
			return domain.Project{}, domain.NewError(domain.ErrValidation, "", fmt.Errorf("no project recorded in this store"))
		}
		return domain.Project{}, domain.NewError(domain.ErrInfrastructure, "", fmt.Errorf("get sole project: %w", err))
	}
	p.Status = domain.ProjectStatus(status)
	return p, nil
}

// UpdateProjectStatus sets the project's overall status. Unlike task/phase
// status, project status is written by the engine loop and by the CLI's
// plan, pause and resume commands, and is not governed by the shared state
// machine table (spec §3: "transitions driven
// by the engine"), so this is a direct field update.
func (r *Repository) UpdateProjectStatus(id string, status domain.ProjectStatus) error {
	return r.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE projects SET status = ? WHERE id = ?`, string(status), id)
		if err != nil {
			return domain.NewError(domain.ErrInfrastructure, id, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return domain.NewError(domain.ErrValidation, id, fmt.Errorf("project not found"))
		}
		return nil
	})
}
