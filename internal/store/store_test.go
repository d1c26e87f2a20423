package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/terminal-coder/tc/internal/domain"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "tc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedProject(t *testing.T, repo *Repository) domain.Project {
	t.Helper()
	p, err := repo.CreateProject(ProjectSpec{Name: "demo", Root: "/tmp/demo"})
	require.NoError(t, err)
	return p
}

func TestCreateAndGetProject(t *testing.T) {
	repo := openTestRepo(t)
	p := seedProject(t, repo)
	require.Equal(t, domain.ProjectInitialized, p.Status)

	got, err := repo.GetProject(p.ID)
	require.NoError(t, err)
	require.Equal(t, p, got)

	_, err = repo.GetProject("missing")
	require.Error(t, err)
}

func TestCreateProject_RejectsEmptyFields(t *testing.T) {
	repo := openTestRepo(t)
	_, err := repo.CreateProject(ProjectSpec{Name: "", Root: "/tmp"})
	require.Error(t, err)
}

func TestReplacePlan_RejectsCycleAndPersistsNothing(t *testing.T) {
	repo := openTestRepo(t)
	p := seedProject(t, repo)

	phase, err := domain.NewPhase("ph1", p.ID, 1, "Phase One", "")
	require.NoError(t, err)
	t1, err := domain.NewTask("t1", "ph1", 1, domain.KindCoding, "task one")
	require.NoError(t, err)
	t2, err := domain.NewTask("t2", "ph1", 2, domain.KindCoding, "task two")
	require.NoError(t, err)

	deps := []domain.TaskDependency{
		{TaskID: "t1", DependsOnID: "t2"},
		{TaskID: "t2", DependsOnID: "t1"},
	}

	err = repo.ReplacePlan(p.ID, []domain.Phase{phase}, []domain.Task{t1, t2}, deps)
	require.Error(t, err)

	phases, err := repo.ListPhases(p.ID)
	require.NoError(t, err)
	require.Empty(t, phases)
}

func TestReplacePlan_StoresAcyclicPlan(t *testing.T) {
	repo := openTestRepo(t)
	p := seedProject(t, repo)

	phase, err := domain.NewPhase("ph1", p.ID, 1, "Phase One", "")
	require.NoError(t, err)
	t1, err := domain.NewTask("t1", "ph1", 1, domain.KindCoding, "task one")
	require.NoError(t, err)
	t2, err := domain.NewTask("t2", "ph1", 2, domain.KindReview, "task two")
	require.NoError(t, err)
	deps := []domain.TaskDependency{{TaskID: "t2", DependsOnID: "t1"}}

	err = repo.ReplacePlan(p.ID, []domain.Phase{phase}, []domain.Task{t1, t2}, deps)
	require.NoError(t, err)

	snap, err := repo.Snapshot(p.ID)
	require.NoError(t, err)
	require.Len(t, snap.Phases, 1)
	require.Len(t, snap.Tasks, 2)
	require.Len(t, snap.Deps, 1)
}

func TestUpdateTaskStatus_RejectsIllegalTransition(t *testing.T) {
	repo := openTestRepo(t)
	p := seedProject(t, repo)
	phase, _ := domain.NewPhase("ph1", p.ID, 1, "Phase One", "")
	task, _ := domain.NewTask("t1", "ph1", 1, domain.KindCoding, "task one")
	require.NoError(t, repo.ReplacePlan(p.ID, []domain.Phase{phase}, []domain.Task{task}, nil))

	err := repo.UpdateTaskStatus("t1", TaskStatusUpdate{NewStatus: domain.TaskCompleted})
	require.Error(t, err)

	got, err := repo.GetTask("t1")
	require.NoError(t, err)
	require.Equal(t, domain.TaskPending, got.Status)
}

func TestUpdateTaskStatus_AppliesLegalTransition(t *testing.T) {
	repo := openTestRepo(t)
	p := seedProject(t, repo)
	phase, _ := domain.NewPhase("ph1", p.ID, 1, "Phase One", "")
	task, _ := domain.NewTask("t1", "ph1", 1, domain.KindCoding, "task one")
	require.NoError(t, repo.ReplacePlan(p.ID, []domain.Phase{phase}, []domain.Task{task}, nil))

	require.NoError(t, repo.UpdateTaskStatus("t1", TaskStatusUpdate{NewStatus: domain.TaskRunning}))
	got, err := repo.GetTask("t1")
	require.NoError(t, err)
	require.Equal(t, domain.TaskRunning, got.Status)
}

func TestCreateSession_RejectsSecondConcurrentSession(t *testing.T) {
	repo := openTestRepo(t)
	p := seedProject(t, repo)
	phase, _ := domain.NewPhase("ph1", p.ID, 1, "Phase One", "")
	task, _ := domain.NewTask("t1", "ph1", 1, domain.KindCoding, "task one")
	require.NoError(t, repo.ReplacePlan(p.ID, []domain.Phase{phase}, []domain.Task{task}, nil))

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := repo.CreateSession(SessionSpec{TaskID: "t1", Pane: domain.PaneCoding, ProcessID: 100, StartedAt: now})
	require.NoError(t, err)

	_, err = repo.CreateSession(SessionSpec{TaskID: "t1", Pane: domain.PaneCoding, ProcessID: 101, StartedAt: now})
	require.Error(t, err)
}

func TestFinishSession(t *testing.T) {
	repo := openTestRepo(t)
	p := seedProject(t, repo)
	phase, _ := domain.NewPhase("ph1", p.ID, 1, "Phase One", "")
	task, _ := domain.NewTask("t1", "ph1", 1, domain.KindCoding, "task one")
	require.NoError(t, repo.ReplacePlan(p.ID, []domain.Phase{phase}, []domain.Task{task}, nil))

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sess, err := repo.CreateSession(SessionSpec{TaskID: "t1", Pane: domain.PaneCoding, ProcessID: 100, StartedAt: now})
	require.NoError(t, err)

	require.NoError(t, repo.FinishSession(sess.ID, domain.SessionCompleted, now.Add(time.Minute), 0))

	_, running, err := repo.GetRunningSession("t1")
	require.NoError(t, err)
	require.False(t, running)
}

func TestAppendAndReadEvents(t *testing.T) {
	repo := openTestRepo(t)
	p := seedProject(t, repo)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.AppendEvent(domain.EventProgress, p.ID, map[string]any{"pct": float64(50)}, now)
	require.NoError(t, err)
	_, err = repo.AppendEvent(domain.EventStatusChange, p.ID, nil, now.Add(time.Second))
	require.NoError(t, err)

	events, err := repo.ReadEvents(EventFilter{Subject: p.ID})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, domain.EventProgress, events[0].Kind)
	require.Equal(t, float64(50), events[0].Payload["pct"])
}

func TestResetTask_ClearsStateAndKillsSession(t *testing.T) {
	repo := openTestRepo(t)
	p := seedProject(t, repo)
	phase, _ := domain.NewPhase("ph1", p.ID, 1, "Phase One", "")
	task, _ := domain.NewTask("t1", "ph1", 1, domain.KindCoding, "task one")
	require.NoError(t, repo.ReplacePlan(p.ID, []domain.Phase{phase}, []domain.Task{task}, nil))

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateTaskStatus("t1", TaskStatusUpdate{NewStatus: domain.TaskRunning}))
	_, err := repo.CreateSession(SessionSpec{TaskID: "t1", Pane: domain.PaneCoding, ProcessID: 100, StartedAt: now})
	require.NoError(t, err)

	require.NoError(t, repo.ResetTask("t1", now.Add(time.Minute)))

	got, err := repo.GetTask("t1")
	require.NoError(t, err)
	require.Equal(t, domain.TaskPending, got.Status)
	require.Equal(t, 0, got.RetryCount)
	require.Equal(t, "", got.ErrorContext)

	_, running, err := repo.GetRunningSession("t1")
	require.NoError(t, err)
	require.False(t, running)
}

func TestRecordAndLinkRequirement(t *testing.T) {
	repo := openTestRepo(t)
	p := seedProject(t, repo)
	phase, _ := domain.NewPhase("ph1", p.ID, 1, "Phase One", "")
	task, _ := domain.NewTask("t1", "ph1", 1, domain.KindCoding, "task one")
	require.NoError(t, repo.ReplacePlan(p.ID, []domain.Phase{phase}, []domain.Task{task}, nil))

	req, err := repo.RecordRequirement(RequirementSpec{ProjectID: p.ID, Description: "must do X", Source: "prd.md"})
	require.NoError(t, err)
	require.NoError(t, repo.LinkRequirement(req.ID, "t1"))

	reqs, err := repo.ListRequirements(p.ID)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, []string{"t1"}, reqs[0].CoveredBy)
}
