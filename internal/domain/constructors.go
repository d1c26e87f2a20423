package domain

import "fmt"

// NewPhase validates and constructs a Phase. Sequence must be >= 1.
func NewPhase(id, projectID string, sequence int, name, description string) (Phase, error) {
	if sequence < 1 {
		return Phase{}, Validationf("phase sequence must be >= 1, got %d", sequence)
	}
	if name == "" {
		return Phase{}, Validationf("phase name must not be empty")
	}
	return Phase{
		ID:          id,
		ProjectID:   projectID,
		Sequence:    sequence,
		Name:        name,
		Description: description,
		Status:      PhasePending,
	}, nil
}

// NewTask validates and constructs a Task. Sequence must be >= 1, kind must
// be one of the closed TaskKind values.
func NewTask(id, phaseID string, sequence int, kind TaskKind, name string) (Task, error) {
	if sequence < 1 {
		return Task{}, Validationf("task sequence must be >= 1, got %d", sequence)
	}
	if kind != KindCoding && kind != KindReview {
		return Task{}, Validationf("task kind must be %q or %q, got %q", KindCoding, KindReview, kind)
	}
	if name == "" {
		return Task{}, Validationf("task name must not be empty")
	}
	return Task{
		ID:       id,
		PhaseID:  phaseID,
		Sequence: sequence,
		Kind:     kind,
		Name:     name,
		Status:   TaskPending,
	}, nil
}

// ValidateRetryCount enforces retry_count in {0, 1}.
func ValidateRetryCount(n int) error {
	if n != 0 && n != 1 {
		return Validationf("retry_count must be 0 or 1, got %d", n)
	}
	return nil
}

// ValidatePane enforces pane in {0, 1}.
func ValidatePane(p Pane) error {
	if p != PaneCoding && p != PaneReview {
		return Validationf("pane must be 0 or 1, got %d", p)
	}
	return nil
}

// Equal reports structural equality on id, matching the spec's "equality is
// structural on id" rule for every entity type below.
func (p Project) Equal(o Project) bool { return p.ID == o.ID }
func (p Phase) Equal(o Phase) bool     { return p.ID == o.ID }
func (t Task) Equal(o Task) bool       { return t.ID == o.ID }
func (s Session) Equal(o Session) bool { return s.ID == o.ID }

// DerivePhaseStatus computes a phase's status from its tasks, per spec §3:
// completed iff all tasks are completed/skipped; failed iff any task failed
// and none is pending/running; running if any task is running; else
// pending.
func DerivePhaseStatus(tasks []Task) PhaseStatus {
	if len(tasks) == 0 {
		return PhasePending
	}
	allDone := true
	anyFailed := false
	anyPendingOrRunning := false
	anyRunning := false
	for _, t := range tasks {
		if !IsDone(t.Status) {
			allDone = false
		}
		if t.Status == TaskFailed {
			anyFailed = true
		}
		if t.Status == TaskPending || t.Status == TaskRunning {
			anyPendingOrRunning = true
		}
		if t.Status == TaskRunning {
			anyRunning = true
		}
	}
	switch {
	case allDone:
		return PhaseCompleted
	case anyFailed && !anyPendingOrRunning:
		return PhaseFailed
	case anyRunning:
		return PhaseRunning
	default:
		return PhasePending
	}
}

func (t Task) String() string {
	return fmt.Sprintf("Task{%s seq=%d kind=%s status=%s}", t.ID, t.Sequence, t.Kind, t.Status)
}
