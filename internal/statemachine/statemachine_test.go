package statemachine

import (
	"testing"

	"github.com/terminal-coder/tc/internal/domain"
)

func TestTaskTransitionTable(t *testing.T) {
	legal := map[[2]domain.TaskStatus]bool{
		{domain.TaskPending, domain.TaskRunning}:   true,
		{domain.TaskPending, domain.TaskSkipped}:   true,
		{domain.TaskRunning, domain.TaskCompleted}: true,
		{domain.TaskRunning, domain.TaskFailed}:    true,
		{domain.TaskFailed, domain.TaskRunning}:    true,
		{domain.TaskFailed, domain.TaskPaused}:     true,
		{domain.TaskFailed, domain.TaskPending}:    true,
		{domain.TaskPaused, domain.TaskRunning}:    true,
		{domain.TaskPaused, domain.TaskPending}:    true,
	}
	illegal := [][2]domain.TaskStatus{
		{domain.TaskPending, domain.TaskCompleted},
		{domain.TaskCompleted, domain.TaskRunning},
		{domain.TaskSkipped, domain.TaskRunning},
		{domain.TaskRunning, domain.TaskRunning},
		{domain.TaskRunning, domain.TaskPending},
		{domain.TaskPaused, domain.TaskFailed},
	}
	for pair := range legal {
		if !ValidTaskTransition(pair[0], pair[1]) {
			t.Errorf("expected %s -> %s to be legal", pair[0], pair[1])
		}
	}
	for _, pair := range illegal {
		if ValidTaskTransition(pair[0], pair[1]) {
			t.Errorf("expected %s -> %s to be illegal", pair[0], pair[1])
		}
	}
}

func TestSessionTransitionTable(t *testing.T) {
	if !ValidSessionTransition(domain.SessionRunning, domain.SessionCompleted) {
		t.Error("running -> completed should be legal")
	}
	if !ValidSessionTransition(domain.SessionRunning, domain.SessionKilled) {
		t.Error("running -> killed should be legal")
	}
	if ValidSessionTransition(domain.SessionCompleted, domain.SessionRunning) {
		t.Error("completed -> running should be illegal: sessions are terminal once non-running")
	}
}

func TestPhaseTransitionTable(t *testing.T) {
	if !ValidPhaseTransition(domain.PhasePending, domain.PhaseRunning) {
		t.Error("pending -> running should be legal")
	}
	if !ValidPhaseTransition(domain.PhaseCompleted, domain.PhasePending) {
		t.Error("completed -> pending (replan) should be legal")
	}
	if ValidPhaseTransition(domain.PhasePending, domain.PhaseCompleted) {
		t.Error("pending -> completed should be illegal (must pass through running)")
	}
}

// TestRoundTripMatchesDocumentedTable is the universal property from spec §8
// item 5: for every (from, to) pair of task statuses, the predicate agrees
// with the documented task table written out below.
func TestRoundTripMatchesDocumentedTable(t *testing.T) {
	documented := map[[2]domain.TaskStatus]bool{
		{domain.TaskPending, domain.TaskRunning}:   true,
		{domain.TaskPending, domain.TaskSkipped}:   true,
		{domain.TaskRunning, domain.TaskCompleted}: true,
		{domain.TaskRunning, domain.TaskFailed}:    true,
		{domain.TaskFailed, domain.TaskRunning}:    true,
		{domain.TaskFailed, domain.TaskPaused}:     true,
		{domain.TaskFailed, domain.TaskPending}:    true,
		{domain.TaskPaused, domain.TaskRunning}:    true,
		{domain.TaskPaused, domain.TaskPending}:    true,
	}
	all := []domain.TaskStatus{
		domain.TaskPending, domain.TaskRunning, domain.TaskCompleted,
		domain.TaskFailed, domain.TaskPaused, domain.TaskSkipped,
	}
	for _, from := range all {
		for _, to := range all {
			got := ValidTaskTransition(from, to)
			want := documented[[2]domain.TaskStatus{from, to}]
			if got != want {
				t.Errorf("ValidTaskTransition(%s,%s) = %v, want %v", from, to, got, want)
			}
		}
	}
}
