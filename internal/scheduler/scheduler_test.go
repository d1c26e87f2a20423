package scheduler

import (
	"testing"

	"github.com/terminal-coder/tc/internal/domain"
)

func phase(id string, seq int, status domain.PhaseStatus) domain.Phase {
	return domain.Phase{ID: id, Sequence: seq, Name: id, Status: status}
}

func task(id, phaseID string, seq int, kind domain.TaskKind, status domain.TaskStatus) domain.Task {
	return domain.Task{ID: id, PhaseID: phaseID, Sequence: seq, Kind: kind, Name: id, Status: status}
}

func TestSchedule_PicksEarliestRunnableTaskInEarliestPhase(t *testing.T) {
	snap := domain.Snapshot{
		Phases: []domain.Phase{
			phase("ph1", 1, domain.PhasePending),
			phase("ph2", 2, domain.PhasePending),
		},
		Tasks: []domain.Task{
			task("a", "ph1", 1, domain.KindCoding, domain.TaskPending),
			task("b", "ph1", 2, domain.KindCoding, domain.TaskPending),
			task("c", "ph2", 1, domain.KindCoding, domain.TaskPending),
		},
		Deps: []domain.TaskDependency{{TaskID: "b", DependsOnID: "a"}},
	}
	d := Schedule(snap, EngineState{})
	if d.Kind != DispatchCoding || d.Task.ID != "a" {
		t.Fatalf("expected DispatchCoding(a), got %+v", d)
	}
}

func TestSchedule_RespectsDependencies(t *testing.T) {
	snap := domain.Snapshot{
		Phases: []domain.Phase{phase("ph1", 1, domain.PhasePending)},
		Tasks: []domain.Task{
			task("a", "ph1", 1, domain.KindCoding, domain.TaskRunning),
			task("b", "ph1", 2, domain.KindCoding, domain.TaskPending),
		},
		Deps: []domain.TaskDependency{{TaskID: "b", DependsOnID: "a"}},
	}
	d := Schedule(snap, EngineState{Pane0Busy: true, AnySessionActive: true})
	if d.Kind != Idle {
		t.Fatalf("expected Idle while dependency still running, got %+v", d)
	}
}

func TestSchedule_SkippedDependencySatisfiesDownstream(t *testing.T) {
	snap := domain.Snapshot{
		Phases: []domain.Phase{phase("ph1", 1, domain.PhasePending)},
		Tasks: []domain.Task{
			task("a", "ph1", 1, domain.KindCoding, domain.TaskSkipped),
			task("b", "ph1", 2, domain.KindCoding, domain.TaskPending),
		},
		Deps: []domain.TaskDependency{{TaskID: "b", DependsOnID: "a"}},
	}
	d := Schedule(snap, EngineState{})
	if d.Kind != DispatchCoding || d.Task.ID != "b" {
		t.Fatalf("expected DispatchCoding(b) since skipped deps satisfy downstream, got %+v", d)
	}
}

func TestSchedule_ReviewHasPriorityWhenPane1Free(t *testing.T) {
	snap := domain.Snapshot{
		Phases: []domain.Phase{phase("ph1", 1, domain.PhaseRunning)},
		Tasks: []domain.Task{
			task("a", "ph1", 1, domain.KindCoding, domain.TaskPending),
			task("review-a", "ph1", 2, domain.KindReview, domain.TaskPending),
		},
	}
	d := Schedule(snap, EngineState{PendingReviewFor: "review-a"})
	if d.Kind != DispatchReview || d.Task.ID != "review-a" {
		t.Fatalf("expected DispatchReview(review-a), got %+v", d)
	}
}

func TestSchedule_NeverDispatchesCodingWhenPaused(t *testing.T) {
	snap := domain.Snapshot{
		Phases: []domain.Phase{phase("ph1", 1, domain.PhasePending)},
		Tasks:  []domain.Task{task("a", "ph1", 1, domain.KindCoding, domain.TaskPending)},
	}
	d := Schedule(snap, EngineState{Paused: true})
	if d.Kind == DispatchCoding {
		t.Fatalf("paused project must never dispatch coding, got %+v", d)
	}
}

func TestSchedule_PhaseGating(t *testing.T) {
	snap := domain.Snapshot{
		Phases: []domain.Phase{
			phase("ph1", 1, domain.PhasePending),
			phase("ph2", 2, domain.PhasePending),
		},
		Tasks: []domain.Task{
			task("a", "ph1", 1, domain.KindCoding, domain.TaskRunning),
			task("c", "ph2", 1, domain.KindCoding, domain.TaskPending),
		},
	}
	d := Schedule(snap, EngineState{Pane0Busy: true, AnySessionActive: true})
	if d.Kind == DispatchCoding && d.Task.ID == "c" {
		t.Fatalf("phase 2 task must not dispatch while phase 1 is unfinished, got %+v", d)
	}
}

func TestSchedule_Complete(t *testing.T) {
	snap := domain.Snapshot{
		Phases: []domain.Phase{phase("ph1", 1, domain.PhaseCompleted)},
		Tasks:  []domain.Task{task("a", "ph1", 1, domain.KindCoding, domain.TaskCompleted)},
	}
	d := Schedule(snap, EngineState{})
	if d.Kind != Complete {
		t.Fatalf("expected Complete, got %+v", d)
	}
}

func TestSchedule_DeadlockWhenNothingRunnableAndNoSession(t *testing.T) {
	snap := domain.Snapshot{
		Phases: []domain.Phase{phase("ph1", 1, domain.PhasePending)},
		Tasks: []domain.Task{
			task("a", "ph1", 1, domain.KindCoding, domain.TaskPending),
			task("b", "ph1", 2, domain.KindCoding, domain.TaskPending),
		},
		Deps: []domain.TaskDependency{
			{TaskID: "a", DependsOnID: "b"},
			{TaskID: "b", DependsOnID: "a"},
		},
	}
	d := Schedule(snap, EngineState{})
	if d.Kind != Deadlock {
		t.Fatalf("expected Deadlock for mutually-blocked tasks, got %+v", d)
	}
	if len(d.Blocked) != 2 {
		t.Fatalf("expected 2 blocked tasks reported, got %d", len(d.Blocked))
	}
}

func TestSchedule_IdleWhileSessionActiveNotDeadlock(t *testing.T) {
	snap := domain.Snapshot{
		Phases: []domain.Phase{phase("ph1", 1, domain.PhaseRunning)},
		Tasks:  []domain.Task{task("a", "ph1", 1, domain.KindCoding, domain.TaskRunning)},
	}
	d := Schedule(snap, EngineState{Pane0Busy: true, AnySessionActive: true})
	if d.Kind != Idle {
		t.Fatalf("expected Idle (not Deadlock) while a session is active, got %+v", d)
	}
}

func TestDetectCycle(t *testing.T) {
	tasks := []domain.Task{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
	}
	okDeps := []domain.TaskDependency{
		{TaskID: "b", DependsOnID: "a"},
		{TaskID: "c", DependsOnID: "b"},
	}
	if err := DetectCycle(tasks, okDeps); err != nil {
		t.Fatalf("expected no cycle, got %v", err)
	}

	cyclicDeps := []domain.TaskDependency{
		{TaskID: "a", DependsOnID: "c"},
		{TaskID: "b", DependsOnID: "a"},
		{TaskID: "c", DependsOnID: "b"},
	}
	if err := DetectCycle(tasks, cyclicDeps); err == nil {
		t.Fatal("expected cycle to be detected")
	}
}

func TestDetectCycle_SelfReferential(t *testing.T) {
	tasks := []domain.Task{{ID: "a"}}
	deps := []domain.TaskDependency{{TaskID: "a", DependsOnID: "a"}}
	if err := DetectCycle(tasks, deps); err == nil {
		t.Fatal("expected self-referential dependency to be detected as a cycle")
	}
}

func TestDecideRetry_FirstFailureRetries(t *testing.T) {
	d := DecideRetry(domain.Task{RetryCount: 0})
	if d.Action != RetryActionRetry || d.NewRetryCount != 1 || d.NewStatus != domain.TaskPending {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestDecideRetry_SecondFailurePauses(t *testing.T) {
	d := DecideRetry(domain.Task{RetryCount: 1})
	if d.Action != RetryActionPause || d.NewStatus != domain.TaskPaused || !d.RaiseEnginePause {
		t.Fatalf("unexpected decision: %+v", d)
	}
}
