// Package domain defines the frozen value objects of Terminal Coder: the
// five persistent entities (Project, Phase, Task, Session, Event) plus their
// closed status enums and the task dependency graph. Values are immutable
// once constructed; mutation is always expressed by the repository as
// construction of a new value from an id plus field deltas, never in-place
// editing of a loaded struct.
package domain

import "time"

// ProjectStatus is the closed set of states a Project may occupy.
type ProjectStatus string

const (
	ProjectInitialized ProjectStatus = "initialized"
	ProjectPlanning    ProjectStatus = "planning"
	ProjectPlanned     ProjectStatus = "planned"
	ProjectRunning     ProjectStatus = "running"
	ProjectPaused      ProjectStatus = "paused"
	ProjectCompleted   ProjectStatus = "completed"
	ProjectFailed      ProjectStatus = "failed"
)

// PhaseStatus is the closed set of states a Phase may occupy.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseRunning   PhaseStatus = "running"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
	PhaseSkipped   PhaseStatus = "skipped"
)

// TaskStatus is the closed set of states a Task may occupy.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskPaused    TaskStatus = "paused"
	TaskSkipped   TaskStatus = "skipped"
)

// TaskKind distinguishes the two kinds of pane work.
type TaskKind string

const (
	KindCoding TaskKind = "coding"
	KindReview TaskKind = "review"
)

// SessionStatus is the closed set of states a Session may occupy.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionKilled    SessionStatus = "killed"
)

// Pane identifies one of the two fixed terminal panes.
type Pane int

const (
	PaneCoding Pane = 0
	PaneReview Pane = 1
)

// EventKind is the closed set of event kinds appended to the event log.
type EventKind string

const (
	EventStatusChange      EventKind = "status_change"
	EventProgress          EventKind = "progress"
	EventError             EventKind = "error"
	EventReviewVerdict     EventKind = "review_verdict"
	EventHumanInputRequest EventKind = "human_input_request"
	EventEngineTick        EventKind = "engine_tick"
	EventOverflow          EventKind = "overflow" // synthesized by the event bus on subscriber overflow
)

// Project is the top-level unit of work: one root directory driven by one
// engine instance.
type Project struct {
	ID     string
	Name   string
	Root   string
	Status ProjectStatus
}

// Phase is an ordered grouping of tasks; phase k becomes runnable only once
// phase k-1 is completed or skipped.
type Phase struct {
	ID          string
	ProjectID   string
	Sequence    int // unique within project, 1-based
	Name        string
	Description string
	Status      PhaseStatus
}

// Task is the atomic unit of agent work.
type Task struct {
	ID           string
	PhaseID      string
	Sequence     int // unique within phase, 1-based
	Kind         TaskKind
	Name         string
	BriefRef     string
	Status       TaskStatus
	RetryCount   int // 0 or 1
	ErrorContext string
}

// TaskDependency is one edge of the task DAG: DependsOnID must complete (or
// be skipped) before TaskID can run.
type TaskDependency struct {
	TaskID      string
	DependsOnID string
}

// Session is one Agent process instance bound to one task and one pane.
type Session struct {
	ID        string
	TaskID    string
	Pane      Pane
	ProcessID int
	StartedAt time.Time
	EndedAt   *time.Time
	ExitCode  *int
	Status    SessionStatus
}

// Event is an append-only log entry. Subject is a task_id, session_id, or
// phase_id depending on Kind.
type Event struct {
	ID        int64
	CreatedAt time.Time
	Kind      EventKind
	Subject   string
	Payload   map[string]any
}

// Requirement records a PRD requirement traced to the tasks that cover it.
// Read-only metadata; does not participate in scheduling or the state
// machine.
type Requirement struct {
	ID          string
	ProjectID   string
	Description string
	Source      string
	CoveredBy   []string // task ids
}

// Snapshot is a consistent, in-memory read of everything the scheduler needs
// for one project: phases, tasks, and dependency edges as of one
// transaction. It carries no live store reference and no I/O capability, so
// the scheduler that consumes it remains a pure function.
type Snapshot struct {
	ProjectID string
	Phases    []Phase
	Tasks     []Task
	Deps      []TaskDependency
}

// TasksByPhase returns the tasks belonging to phaseID, in ascending sequence
// order is NOT guaranteed by this helper; callers needing order should sort.
func (s Snapshot) TasksByPhase(phaseID string) []Task {
	var out []Task
	for _, t := range s.Tasks {
		if t.PhaseID == phaseID {
			out = append(out, t)
		}
	}
	return out
}

// DependenciesOf returns the ids of tasks that taskID depends on.
func (s Snapshot) DependenciesOf(taskID string) []string {
	var out []string
	for _, d := range s.Deps {
		if d.TaskID == taskID {
			out = append(out, d.DependsOnID)
		}
	}
	return out
}

// TaskByID returns the task with the given id, if present.
func (s Snapshot) TaskByID(id string) (Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// PhaseByID returns the phase with the given id, if present.
func (s Snapshot) PhaseByID(id string) (Phase, bool) {
	for _, p := range s.Phases {
		if p.ID == id {
			return p, true
		}
	}
	return Phase{}, false
}

// IsDone reports whether a status counts as "finished" for dependency and
// phase-gating purposes. Per spec, skipped and completed are equivalent.
func IsDone(s TaskStatus) bool {
	return s == TaskCompleted || s == TaskSkipped
}

// IsPhaseDone mirrors IsDone for phase statuses.
func IsPhaseDone(s PhaseStatus) bool {
	return s == PhaseCompleted || s == PhaseSkipped
}
