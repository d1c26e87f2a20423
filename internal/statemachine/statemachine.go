// Package statemachine implements the single pure predicate that governs
// every legal status transition in Terminal Coder (spec §4.2). It has no
// dependency on the repository or any other I/O-bearing component: it is a
// lookup over two closed enums, nothing more.
package statemachine

import "github.com/terminal-coder/tc/internal/domain"

// EntityKind identifies which transition table to consult.
type EntityKind string

const (
	EntityTask    EntityKind = "task"
	EntitySession EntityKind = "session"
	EntityPhase   EntityKind = "phase"
)

var taskTransitions = map[domain.TaskStatus]map[domain.TaskStatus]bool{
	domain.TaskPending: {
		domain.TaskRunning: true,
		domain.TaskSkipped: true,
	},
	domain.TaskRunning: {
		domain.TaskCompleted: true,
		domain.TaskFailed:    true,
	},
	domain.TaskFailed: {
		domain.TaskRunning: true, // retry
		domain.TaskPaused:  true,
		domain.TaskPending: true, // automatic retry (scheduler.DecideRetry)
	},
	domain.TaskPaused: {
		domain.TaskRunning: true, // manual retry
		domain.TaskPending: true, // manual reset
	},
	// TaskCompleted and TaskSkipped are terminal until an explicit reset,
	// which is expressed as a repository-level reset operation rather than
	// a transition recognized here.
}

var sessionTransitions = map[domain.SessionStatus]map[domain.SessionStatus]bool{
	domain.SessionRunning: {
		domain.SessionCompleted: true,
		domain.SessionFailed:    true,
		domain.SessionKilled:    true,
	},
}

var phaseTransitions = map[domain.PhaseStatus]map[domain.PhaseStatus]bool{
	domain.PhasePending: {
		domain.PhaseRunning: true,
	},
	domain.PhaseRunning: {
		domain.PhaseCompleted: true,
		domain.PhaseFailed:    true,
	},
	domain.PhaseFailed: {
		domain.PhasePending: true, // reset
	},
	domain.PhaseCompleted: {
		domain.PhasePending: true, // reset/replan
	},
}

// ValidTransition reports whether moving an entity of the given kind from
// "from" to "to" is legal. Statuses are passed as strings so one function
// serves all three closed enums without generics gymnastics at call sites;
// callers in this module always pass a typed domain.*Status converted to
// string.
func ValidTransition(kind EntityKind, from, to string) bool {
	switch kind {
	case EntityTask:
		return taskTransitions[domain.TaskStatus(from)][domain.TaskStatus(to)]
	case EntitySession:
		return sessionTransitions[domain.SessionStatus(from)][domain.SessionStatus(to)]
	case EntityPhase:
		return phaseTransitions[domain.PhaseStatus(from)][domain.PhaseStatus(to)]
	default:
		return false
	}
}

// ValidTaskTransition is a typed convenience wrapper over ValidTransition.
func ValidTaskTransition(from, to domain.TaskStatus) bool {
	return ValidTransition(EntityTask, string(from), string(to))
}

// ValidSessionTransition is a typed convenience wrapper over ValidTransition.
func ValidSessionTransition(from, to domain.SessionStatus) bool {
	return ValidTransition(EntitySession, string(from), string(to))
}

// ValidPhaseTransition is a typed convenience wrapper over ValidTransition.
func ValidPhaseTransition(from, to domain.PhaseStatus) bool {
	return ValidTransition(EntityPhase, string(from), string(to))
}
