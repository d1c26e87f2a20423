// Package scheduler implements the dependency-aware task scheduler (spec
// §4.4) as a pure function of (snapshot, engine state) -> decision. It
// performs no I/O and holds no state between calls, per the "pure core
// depending only on configuration" design note in spec §9: every test
// fixture here constructs an in-memory domain.Snapshot by hand.
package scheduler

import (
	"fmt"
	"sort"

	"github.com/terminal-coder/tc/internal/domain"
)

// DecisionKind is the closed set of outcomes Schedule can return.
type DecisionKind string

const (
	DispatchCoding DecisionKind = "dispatch_coding"
	DispatchReview DecisionKind = "dispatch_review"
	Idle           DecisionKind = "idle"
	Complete       DecisionKind = "complete"
	Deadlock       DecisionKind = "deadlock"
)

// BlockedTask pairs a blocked task with the dependency ids still unmet, for
// Deadlock diagnostics.
type BlockedTask struct {
	TaskID        string
	UnmetDepends  []string
	PhaseSequence int
}

// Decision is the scheduler's single output. Exactly one of Task is set
// (for DispatchCoding/DispatchReview) or Blocked is populated (for
// Deadlock); the others carry no payload.
type Decision struct {
	Kind    DecisionKind
	Task    domain.Task
	Reason  string
	Blocked []BlockedTask
}

// EngineState is the small, engine-owned view the scheduler consults
// alongside the snapshot: which panes are busy, whether the project is
// paused, and which review task (if any) is queued for dispatch.
type EngineState struct {
	Pane0Busy         bool
	Pane1Busy         bool
	Paused            bool
	PendingReviewFor  string // id of a pending review task whose dependencies are done, "" if none
	AnySessionActive  bool
}

// Schedule implements the selection rules of spec §4.4, applied in order.
func Schedule(snap domain.Snapshot, state EngineState) Decision {
	// Rule 1: a queued review takes priority over starting new coding work,
	// so review feedback can land while coding proceeds behind it.
	if state.PendingReviewFor != "" && !state.Pane1Busy {
		if task, ok := snap.TaskByID(state.PendingReviewFor); ok && task.Status == domain.TaskPending && task.Kind == domain.KindReview {
			return Decision{Kind: DispatchReview, Task: task}
		}
	}

	if isComplete(snap) {
		return Decision{Kind: Complete}
	}

	phases := sortedPhases(snap.Phases)
	var currentPhase *domain.Phase
	for i := range phases {
		p := phases[i]
		if domain.IsPhaseDone(p.Status) {
			continue
		}
		currentPhase = &phases[i]
		break
	}

	if currentPhase == nil {
		// Every phase is done but isComplete said no: nothing to schedule,
		// but this is not itself a deadlock signal here; fall through to
		// the idle/deadlock decision below based on active sessions.
		return idleOrDeadlock(snap, state, nil)
	}

	runnable := runnableTasksInPhase(snap, *currentPhase)
	if len(runnable) == 0 {
		return idleOrDeadlock(snap, state, currentPhase)
	}

	next := runnable[0]
	if next.Kind == domain.KindReview {
		if state.Pane1Busy {
			return Decision{Kind: Idle, Reason: "review pane busy"}
		}
		return Decision{Kind: DispatchReview, Task: next}
	}

	// Coding dispatch.
	if state.Paused {
		return Decision{Kind: Idle, Reason: "project paused"}
	}
	if state.Pane0Busy {
		return Decision{Kind: Idle, Reason: "coding pane busy"}
	}
	return Decision{Kind: DispatchCoding, Task: next}
}

func isComplete(snap domain.Snapshot) bool {
	for _, p := range snap.Phases {
		if !domain.IsPhaseDone(p.Status) {
			return false
		}
	}
	return true
}

func sortedPhases(phases []domain.Phase) []domain.Phase {
	out := make([]domain.Phase, len(phases))
	copy(out, phases)
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// runnableTasksInPhase returns pending tasks in the phase whose every
// dependency is completed/skipped, in ascending task sequence order.
func runnableTasksInPhase(snap domain.Snapshot, phase domain.Phase) []domain.Task {
	tasks := snap.TasksByPhase(phase.ID)
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Sequence < tasks[j].Sequence })

	var runnable []domain.Task
	for _, t := range tasks {
		if t.Status != domain.TaskPending {
			continue
		}
		if allDepsSatisfied(snap, t.ID) {
			runnable = append(runnable, t)
		}
	}
	return runnable
}

func allDepsSatisfied(snap domain.Snapshot, taskID string) bool {
	for _, depID := range snap.DependenciesOf(taskID) {
		dep, ok := snap.TaskByID(depID)
		if !ok || !domain.IsDone(dep.Status) {
			return false
		}
	}
	return true
}

// idleOrDeadlock decides between Idle and Deadlock when no task in the
// current phase (or no current phase at all) is runnable right now.
func idleOrDeadlock(snap domain.Snapshot, state EngineState, phase *domain.Phase) Decision {
	if state.AnySessionActive || state.Pane0Busy || state.Pane1Busy {
		return Decision{Kind: Idle, Reason: "awaiting active session"}
	}
	if isComplete(snap) {
		return Decision{Kind: Complete}
	}
	// A paused project waits for resume or a manual retry rather than
	// failing as deadlocked.
	if state.Paused {
		return Decision{Kind: Idle, Reason: "project paused"}
	}

	// No active session, no runnable task, not complete: deadlock. Collect
	// every unfinished task's unmet dependencies for diagnostics, not just
	// the current phase's, since the reason should explain the whole stall.
	var blocked []BlockedTask
	for _, t := range snap.Tasks {
		if domain.IsDone(t.Status) {
			continue
		}
		var unmet []string
		for _, depID := range snap.DependenciesOf(t.ID) {
			dep, ok := snap.TaskByID(depID)
			if !ok || !domain.IsDone(dep.Status) {
				unmet = append(unmet, depID)
			}
		}
		ph, _ := snap.PhaseByID(t.PhaseID)
		blocked = append(blocked, BlockedTask{TaskID: t.ID, UnmetDepends: unmet, PhaseSequence: ph.Sequence})
	}

	reason := "no runnable task and no active session"
	if phase != nil {
		reason = fmt.Sprintf("phase %q (sequence %d) has no runnable task and no active session", phase.Name, phase.Sequence)
	}
	return Decision{Kind: Deadlock, Reason: reason, Blocked: blocked}
}
