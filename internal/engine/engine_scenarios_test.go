package engine

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/terminal-coder/tc/internal/config"
	"github.com/terminal-coder/tc/internal/controlplane"
	"github.com/terminal-coder/tc/internal/domain"
	"github.com/terminal-coder/tc/internal/eventbus"
	"github.com/terminal-coder/tc/internal/store"
)

// scenarioHarness wires a real engine against a listening control-plane
// socket, so these tests drive the system the way an Agent actually would:
// connect, read its session token off disk, and call the six RPC ops.
type scenarioHarness struct {
	t          *testing.T
	repo       *store.Repository
	projectDir string
	socketPath string
	cp         *controlplane.Server
	pane       *fakePaneRunner
	eng        *Engine
	clock      *fakeClock
	// projectID is the id CreateProject assigned to the harness's project.
	projectID string
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time         { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newScenarioHarness(t *testing.T) *scenarioHarness {
	t.Helper()
	dir := t.TempDir()
	repo, err := store.Open(filepath.Join(dir, "tc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	bus := eventbus.New(64)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cp := controlplane.New(repo, bus, clock.now)
	socketPath := filepath.Join(dir, ".tc", "control.sock")
	require.NoError(t, os.MkdirAll(filepath.Dir(socketPath), 0o755))
	require.NoError(t, cp.Listen(socketPath))
	go cp.Serve()
	t.Cleanup(func() { cp.Close() })

	pane := newFakePaneRunner()
	cfg := config.Config{TickInterval: time.Millisecond, MaxRetries: 1, EventBuffer: 64}

	proj, err := repo.CreateProject(store.ProjectSpec{Name: "demo", Root: dir})
	require.NoError(t, err)

	eng := New(repo, bus, cp, pane, cfg, proj.ID, dir, clock.now)
	return &scenarioHarness{t: t, repo: repo, projectDir: dir, socketPath: socketPath, cp: cp, pane: pane, eng: eng, clock: clock, projectID: proj.ID}
}

func (h *scenarioHarness) tick() bool {
	h.t.Helper()
	stop, err := h.eng.tick(context.Background())
	require.NoError(h.t, err)
	return stop
}

// tokenFor reads the MCP config the engine writes on dispatch, the way an
// Agent process would read it on startup.
func (h *scenarioHarness) tokenFor(taskID string) string {
	h.t.Helper()
	raw, err := os.ReadFile(filepath.Join(h.projectDir, ".tc", "mcp", taskID+".json"))
	require.NoError(h.t, err)
	var cfg struct {
		Token string `json:"token"`
	}
	require.NoError(h.t, json.Unmarshal(raw, &cfg))
	return cfg.Token
}

func (h *scenarioHarness) call(token string, op controlplane.Op, taskID string, params any) controlplane.Response {
	h.t.Helper()
	conn, err := net.Dial("unix", h.socketPath)
	require.NoError(h.t, err)
	defer conn.Close()

	paramsRaw, err := json.Marshal(params)
	require.NoError(h.t, err)
	req := controlplane.Request{Op: op, Token: token, TaskID: taskID, Params: paramsRaw}
	reqRaw, err := json.Marshal(req)
	require.NoError(h.t, err)
	_, err = conn.Write(append(reqRaw, '\n'))
	require.NoError(h.t, err)

	scanner := bufio.NewScanner(conn)
	require.True(h.t, scanner.Scan())
	var resp controlplane.Response
	require.NoError(h.t, json.Unmarshal(scanner.Bytes(), &resp))
	return resp
}

func (h *scenarioHarness) runningPID(taskID string) int {
	h.t.Helper()
	sess, ok, err := h.repo.GetRunningSession(taskID)
	require.NoError(h.t, err)
	require.True(h.t, ok, "expected a running session for %s", taskID)
	return sess.ProcessID
}

// exitSession marks the task's currently running session's process dead in
// the fake pane, so the next reap notices the exit.
func (h *scenarioHarness) exitSession(taskID string) {
	h.t.Helper()
	h.pane.exit(h.runningPID(taskID))
}

// latestReviewTask returns the highest-sequence review task in a phase,
// which is always the one AppendTask most recently tail-appended.
func (h *scenarioHarness) latestReviewTask(phaseID string) domain.Task {
	h.t.Helper()
	tasks, err := h.repo.ListTasksByPhase(phaseID)
	require.NoError(h.t, err)
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Sequence > tasks[j].Sequence })
	for _, t := range tasks {
		if t.Kind == domain.KindReview {
			return t
		}
	}
	h.t.Fatalf("no review task found in phase %s", phaseID)
	return domain.Task{}
}

// latestCodingTask mirrors latestReviewTask for follow-up coding tasks
// created by a changes_requested verdict.
func (h *scenarioHarness) latestCodingTask(phaseID string) domain.Task {
	h.t.Helper()
	tasks, err := h.repo.ListTasksByPhase(phaseID)
	require.NoError(h.t, err)
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Sequence > tasks[j].Sequence })
	for _, t := range tasks {
		if t.Kind == domain.KindCoding {
			return t
		}
	}
	h.t.Fatalf("no coding task found in phase %s", phaseID)
	return domain.Task{}
}

// S1 — Happy path. Phase 1 (tasks A, B where B depends on A), phase 2 (task
// C). Agent reports completion for A, review approved, then B, review
// approved, then C, review approved. Expected: project completes; six
// coding/review dispatches total; no retries.
func TestScenario_S1_HappyPath(t *testing.T) {
	h := newScenarioHarness(t)
	projectID := h.projectID

	ph1, err := domain.NewPhase("ph1", projectID, 1, "Phase One", "")
	require.NoError(t, err)
	ph2, err := domain.NewPhase("ph2", projectID, 2, "Phase Two", "")
	require.NoError(t, err)
	taskA, err := domain.NewTask("a", "ph1", 1, domain.KindCoding, "task A")
	require.NoError(t, err)
	taskB, err := domain.NewTask("b", "ph1", 2, domain.KindCoding, "task B")
	require.NoError(t, err)
	taskC, err := domain.NewTask("c", "ph2", 1, domain.KindCoding, "task C")
	require.NoError(t, err)
	require.NoError(t, h.repo.ReplacePlan(projectID,
		[]domain.Phase{ph1, ph2},
		[]domain.Task{taskA, taskB, taskC},
		[]domain.TaskDependency{{TaskID: "b", DependsOnID: "a"}}))

	runCodingAndReviewRound := func(codingTaskID, phaseID string) {
		require.False(t, h.tick()) // dispatch coding, or idle if the previous tick already dispatched it
		dispatched, err := h.repo.GetTask(codingTaskID)
		require.NoError(t, err)
		require.Equal(t, domain.TaskRunning, dispatched.Status)

		tok := h.tokenFor(codingTaskID)
		resp := h.call(tok, controlplane.OpReportCompletion, codingTaskID,
			controlplane.ReportCompletionParams{Summary: "done", FilesChanged: []string{codingTaskID + ".go"}})
		require.True(t, resp.OK, "report_completion: %+v", resp.Error)
		h.exitSession(codingTaskID)

		require.False(t, h.tick()) // reap coding session, dispatch review
		review := h.latestReviewTask(phaseID)

		revTok := h.tokenFor(review.ID)
		resp = h.call(revTok, controlplane.OpReportReview, review.ID, controlplane.ReportReviewParams{Verdict: controlplane.VerdictApproved})
		require.True(t, resp.OK, "report_review: %+v", resp.Error)
		h.exitSession(review.ID)
	}

	runCodingAndReviewRound("a", "ph1")
	require.False(t, h.tick()) // reap review session; phase still open, task b now runnable and dispatched
	runCodingAndReviewRound("b", "ph1")
	require.False(t, h.tick()) // reap, phase one completes, phase two opens and task c is dispatched
	runCodingAndReviewRound("c", "ph2")

	stop := h.tick() // reap final review, derive phase two + project completion
	require.True(t, stop)

	proj, err := h.repo.GetProject(projectID)
	require.NoError(t, err)
	require.Equal(t, domain.ProjectCompleted, proj.Status)
	require.Equal(t, 6, h.pane.spawnCount(), "expected exactly six coding/review dispatches")

	for _, id := range []string{"a", "b", "c"} {
		task, err := h.repo.GetTask(id)
		require.NoError(t, err)
		require.Equal(t, 0, task.RetryCount, "no retries expected in the happy path")
	}
}

// S2 — Single retry succeeds. Task A fails once with an error context; the
// engine retries it automatically; the second attempt reports completion.
// Expected: retry_count ends at 1; one failure event and one completion
// event; phase progresses.
func TestScenario_S2_SingleRetrySucceeds(t *testing.T) {
	h := newScenarioHarness(t)
	projectID := h.projectID

	ph1, err := domain.NewPhase("ph1", projectID, 1, "Phase One", "")
	require.NoError(t, err)
	taskA, err := domain.NewTask("a", "ph1", 1, domain.KindCoding, "task A")
	require.NoError(t, err)
	require.NoError(t, h.repo.ReplacePlan(projectID, []domain.Phase{ph1}, []domain.Task{taskA}, nil))

	require.False(t, h.tick()) // dispatch A
	tok := h.tokenFor("a")
	resp := h.call(tok, controlplane.OpReportFailure, "a", controlplane.ReportFailureParams{Message: "syntax error"})
	require.True(t, resp.OK, "report_failure: %+v", resp.Error)
	h.exitSession("a")

	require.False(t, h.tick()) // reap failed session, retry policy fires, re-dispatch A
	task, err := h.repo.GetTask("a")
	require.NoError(t, err)
	require.Equal(t, domain.TaskRunning, task.Status, "engine should have redispatched the retried task")
	require.Equal(t, 1, task.RetryCount)
	require.Equal(t, "syntax error", task.ErrorContext, "retry brief needs the prior failure context")

	tok = h.tokenFor("a")
	resp = h.call(tok, controlplane.OpReportCompletion, "a", controlplane.ReportCompletionParams{Summary: "fixed", FilesChanged: []string{"a.go"}})
	require.True(t, resp.OK, "report_completion: %+v", resp.Error)

	task, err = h.repo.GetTask("a")
	require.NoError(t, err)
	require.Equal(t, domain.TaskCompleted, task.Status)
	require.Equal(t, 1, task.RetryCount)

	events, err := h.repo.ReadEvents(store.EventFilter{Subject: "a"})
	require.NoError(t, err)
	var failures, completions int
	for _, ev := range events {
		if ev.Kind == domain.EventError {
			failures++
		}
		if ev.Kind == domain.EventStatusChange {
			if s, ok := ev.Payload["summary"]; ok && s != nil {
				completions++
			}
		}
	}
	require.Equal(t, 1, failures)
	require.Equal(t, 1, completions)
}

// S3 — Pause after persistent failure. Task A fails twice. Expected:
// task.status=paused, project.status=paused, no further pane-0 dispatches
// until resume or manual retry.
func TestScenario_S3_PauseAfterPersistentFailure(t *testing.T) {
	h := newScenarioHarness(t)
	projectID := h.projectID

	ph1, err := domain.NewPhase("ph1", projectID, 1, "Phase One", "")
	require.NoError(t, err)
	taskA, err := domain.NewTask("a", "ph1", 1, domain.KindCoding, "task A")
	require.NoError(t, err)
	require.NoError(t, h.repo.ReplacePlan(projectID, []domain.Phase{ph1}, []domain.Task{taskA}, nil))

	require.False(t, h.tick()) // dispatch A
	tok := h.tokenFor("a")
	require.True(t, h.call(tok, controlplane.OpReportFailure, "a", controlplane.ReportFailureParams{Message: "first failure"}).OK)
	h.exitSession("a")
	require.False(t, h.tick()) // reap + automatic retry, re-dispatch A

	tok = h.tokenFor("a")
	require.True(t, h.call(tok, controlplane.OpReportFailure, "a", controlplane.ReportFailureParams{Message: "second failure"}).OK)
	h.exitSession("a")
	require.False(t, h.tick()) // reap + retry policy pauses on second failure

	task, err := h.repo.GetTask("a")
	require.NoError(t, err)
	require.Equal(t, domain.TaskPaused, task.Status)
	require.True(t, h.eng.Paused())

	proj, err := h.repo.GetProject(projectID)
	require.NoError(t, err)
	require.Equal(t, domain.ProjectPaused, proj.Status)

	spawnsBefore := h.pane.spawnCount()
	require.False(t, h.tick()) // paused: no further coding dispatch
	require.Equal(t, spawnsBefore, h.pane.spawnCount())
}

// S4 — Review requests changes. Task A completes; review returns
// changes_requested with findings. Expected: a follow-up coding task A' is
// scheduled next; after A' completes and review approves, the phase
// progresses.
func TestScenario_S4_ReviewRequestsChanges(t *testing.T) {
	h := newScenarioHarness(t)
	projectID := h.projectID

	ph1, err := domain.NewPhase("ph1", projectID, 1, "Phase One", "")
	require.NoError(t, err)
	taskA, err := domain.NewTask("a", "ph1", 1, domain.KindCoding, "task A")
	require.NoError(t, err)
	require.NoError(t, h.repo.ReplacePlan(projectID, []domain.Phase{ph1}, []domain.Task{taskA}, nil))

	require.False(t, h.tick()) // dispatch A
	tok := h.tokenFor("a")
	require.True(t, h.call(tok, controlplane.OpReportCompletion, "a",
		controlplane.ReportCompletionParams{Summary: "first pass", FilesChanged: []string{"a.go"}}).OK)
	h.exitSession("a")

	require.False(t, h.tick()) // dispatch review
	review := h.latestReviewTask("ph1")
	revTok := h.tokenFor(review.ID)
	require.True(t, h.call(revTok, controlplane.OpReportReview, review.ID,
		controlplane.ReportReviewParams{Verdict: controlplane.VerdictChangesRequested, Findings: []string{"add validation"}}).OK)
	h.exitSession(review.ID)

	require.False(t, h.tick()) // reap review, dispatch follow-up coding task
	followUp := h.latestCodingTask("ph1")
	require.NotEqual(t, "a", followUp.ID)

	fuTok := h.tokenFor(followUp.ID)
	require.True(t, h.call(fuTok, controlplane.OpReportCompletion, followUp.ID,
		controlplane.ReportCompletionParams{Summary: "addressed review", FilesChanged: []string{"a.go"}}).OK)
	h.exitSession(followUp.ID)

	require.False(t, h.tick()) // dispatch follow-up review
	followUpReview := h.latestReviewTask("ph1")
	require.NotEqual(t, review.ID, followUpReview.ID)
	fuRevTok := h.tokenFor(followUpReview.ID)
	require.True(t, h.call(fuRevTok, controlplane.OpReportReview, followUpReview.ID,
		controlplane.ReportReviewParams{Verdict: controlplane.VerdictApproved}).OK)
	h.exitSession(followUpReview.ID)

	stop := h.tick() // reap, phase and project complete
	require.True(t, stop)

	proj, err := h.repo.GetProject(projectID)
	require.NoError(t, err)
	require.Equal(t, domain.ProjectCompleted, proj.Status)
}

// S5 — Deadlock detection. A self-referential dependency is inserted via a
// direct database edit, bypassing ReplacePlan's cycle guard, to exercise
// the scheduler's defense-in-depth check. Expected: the next tick returns
// Deadlock and the engine marks the project failed with a reason listing
// the unmet dependency.
func TestScenario_S5_DeadlockDetection(t *testing.T) {
	h := newScenarioHarness(t)
	projectID := h.projectID

	ph1, err := domain.NewPhase("ph1", projectID, 1, "Phase One", "")
	require.NoError(t, err)
	taskA, err := domain.NewTask("a", "ph1", 1, domain.KindCoding, "task A")
	require.NoError(t, err)
	require.NoError(t, h.repo.ReplacePlan(projectID, []domain.Phase{ph1}, []domain.Task{taskA}, nil))

	// The store package's blank import of mattn/go-sqlite3 already registered
	// the "sqlite3" driver for this process; open a second, direct connection
	// to simulate an out-of-band edit the repository's own API would never
	// allow (ReplacePlan rejects cycles before writing anything).
	db, err := sql.Open("sqlite3", filepath.Join(h.projectDir, "tc.db"))
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`INSERT INTO task_dependencies (task_id, depends_on_id) VALUES ('a', 'a')`)
	require.NoError(t, err)

	stop := h.tick()
	require.True(t, stop)

	proj, err := h.repo.GetProject(projectID)
	require.NoError(t, err)
	require.Equal(t, domain.ProjectFailed, proj.Status)

	events, err := h.repo.ReadEvents(store.EventFilter{Subject: projectID})
	require.NoError(t, err)
	var found bool
	for _, ev := range events {
		if reason, ok := ev.Payload["reason"].(string); ok && reason != "" {
			found = true
		}
	}
	require.True(t, found, "expected the finish-project event to carry a deadlock reason")
}

// S6 — Kill during run. Task A is running; the operator issues a forced
// kill. Expected: the pane wrapper receives the kill, the session is marked
// killed, the task moves to failed with error_context="killed", and the
// retry policy applies on the next tick.
func TestScenario_S6_KillDuringRun(t *testing.T) {
	h := newScenarioHarness(t)
	projectID := h.projectID

	ph1, err := domain.NewPhase("ph1", projectID, 1, "Phase One", "")
	require.NoError(t, err)
	taskA, err := domain.NewTask("a", "ph1", 1, domain.KindCoding, "task A")
	require.NoError(t, err)
	require.NoError(t, h.repo.ReplacePlan(projectID, []domain.Phase{ph1}, []domain.Task{taskA}, nil))

	require.False(t, h.tick()) // dispatch A
	pid := h.runningPID("a")

	require.NoError(t, h.eng.Kill("a", true, h.clock.now()))
	require.False(t, h.pane.IsAlive(pid))

	sessions, err := h.repo.ListSessionsByTask("a")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, domain.SessionKilled, sessions[0].Status)

	task, err := h.repo.GetTask("a")
	require.NoError(t, err)
	require.Equal(t, domain.TaskFailed, task.Status)
	require.Equal(t, "killed", task.ErrorContext)

	require.False(t, h.tick()) // retry policy applies: one retry remaining
	task, err = h.repo.GetTask("a")
	require.NoError(t, err)
	require.Equal(t, domain.TaskRunning, task.Status)
	require.Equal(t, 1, task.RetryCount)
}
