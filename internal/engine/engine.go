// Package engine is the reconciliation loop (spec §4.8): the sole writer of
// task status outside the control-plane service. Grounded on the teacher's
// Orchestrator.Run (internal/campaign/orchestrator_execution.go) for its
// ctx.Done/pause-flag/ticker shape, reworked from a Mangle-kernel-queried
// "current phase" model into direct calls against the pure
// internal/scheduler core per spec §9's architectural line.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/terminal-coder/tc/internal/config"
	"github.com/terminal-coder/tc/internal/controlplane"
	"github.com/terminal-coder/tc/internal/domain"
	"github.com/terminal-coder/tc/internal/eventbus"
	"github.com/terminal-coder/tc/internal/logging"
	"github.com/terminal-coder/tc/internal/scheduler"
	"github.com/terminal-coder/tc/internal/store"
)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Engine drives one project's tasks to completion by ticking the pure
// scheduler against the repository's current state and actuating its
// decisions.
type Engine struct {
	repo       *store.Repository
	bus        *eventbus.Bus
	cp         *controlplane.Server
	pane       PaneRunner
	cfg        config.Config
	log        *zap.Logger
	clock      Clock
	projectID  string
	projectDir string

	paused atomic.Bool
	done   chan struct{}
}

// New constructs an Engine for one project.
func New(repo *store.Repository, bus *eventbus.Bus, cp *controlplane.Server, pane PaneRunner, cfg config.Config, projectID, projectDir string, clock Clock) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		repo:       repo,
		bus:        bus,
		cp:         cp,
		pane:       pane,
		cfg:        cfg,
		log:        logging.Named("engine"),
		clock:      clock,
		projectID:  projectID,
		projectDir: projectDir,
		done:       make(chan struct{}),
	}
}

// Pause stops new coding dispatch but lets running sessions finish; the
// engine observes this flag once per tick (spec §5).
func (e *Engine) Pause() { e.paused.Store(true) }

// Resume clears the paused flag.
func (e *Engine) Resume() { e.paused.Store(false) }

// Paused reports the current pause state.
func (e *Engine) Paused() bool { return e.paused.Load() }

// Done is closed once the loop stops (project completed, deadlocked, or ctx
// cancelled).
func (e *Engine) Done() <-chan struct{} { return e.done }

// Run ticks at the configured cadence until the project completes,
// deadlocks, or ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	if err := e.repo.UpdateProjectStatus(e.projectID, domain.ProjectRunning); err != nil {
		return fmt.Errorf("mark project running: %w", err)
	}

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine loop cancelled", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-ticker.C:
			stop, err := e.tick(ctx)
			if err != nil {
				e.log.Error("tick failed", zap.Error(err))
				return err
			}
			if stop {
				return nil
			}
		}
	}
}

// tick runs one reconciliation cycle: reap, retry, snapshot, schedule,
// actuate, publish. It returns stop=true once the project has reached a
// terminal state.
func (e *Engine) tick(ctx context.Context) (stop bool, err error) {
	now := e.clock()
	e.log.Debug("tick start")

	// The store is the only state shared across processes (spec §5): an
	// operator's `tc pause`/`tc resume`, issued from a separate CLI
	// invocation, only ever writes the project row. Pick that up here so it
	// takes effect on this engine's very next tick without any IPC beyond
	// the shared database file.
	if proj, err := e.repo.GetProject(e.projectID); err != nil {
		return false, fmt.Errorf("get project: %w", err)
	} else if proj.Status == domain.ProjectPaused {
		e.paused.Store(true)
	} else if proj.Status == domain.ProjectRunning {
		e.paused.Store(false)
	}

	if err := e.reap(now); err != nil {
		return false, fmt.Errorf("reap: %w", err)
	}
	if err := e.applyRetryPolicy(now); err != nil {
		return false, fmt.Errorf("retry policy: %w", err)
	}

	snap, err := e.repo.Snapshot(e.projectID)
	if err != nil {
		return false, fmt.Errorf("snapshot: %w", err)
	}
	if err := e.syncPhaseStatuses(snap); err != nil {
		return false, fmt.Errorf("sync phase statuses: %w", err)
	}
	snap, err = e.repo.Snapshot(e.projectID)
	if err != nil {
		return false, fmt.Errorf("snapshot: %w", err)
	}

	state, err := e.engineState(snap)
	if err != nil {
		return false, fmt.Errorf("engine state: %w", err)
	}

	decision := scheduler.Schedule(snap, state)
	stop, err = e.actuate(ctx, decision, now)
	if err != nil {
		return false, fmt.Errorf("actuate: %w", err)
	}

	e.publishHeartbeat(now, decision)
	return stop, nil
}

func (e *Engine) engineState(snap domain.Snapshot) (scheduler.EngineState, error) {
	running, err := e.repo.ListRunningSessions(e.projectID)
	if err != nil {
		return scheduler.EngineState{}, err
	}
	state := scheduler.EngineState{Paused: e.paused.Load()}
	for _, s := range running {
		state.AnySessionActive = true
		switch s.Pane {
		case domain.PaneCoding:
			state.Pane0Busy = true
		case domain.PaneReview:
			state.Pane1Busy = true
		}
	}
	state.PendingReviewFor = pendingReview(snap)
	return state, nil
}

// pendingReview finds a pending review task whose dependency has already
// completed, so Schedule can give it dispatch priority (spec §4.4 rule 1)
// even when an earlier-sequence coding task is also runnable.
func pendingReview(snap domain.Snapshot) string {
	tasks := make([]domain.Task, len(snap.Tasks))
	copy(tasks, snap.Tasks)
	sort.Slice(tasks, func(i, j int) bool {
		pi, _ := snap.PhaseByID(tasks[i].PhaseID)
		pj, _ := snap.PhaseByID(tasks[j].PhaseID)
		if pi.Sequence != pj.Sequence {
			return pi.Sequence < pj.Sequence
		}
		return tasks[i].Sequence < tasks[j].Sequence
	})
	for _, t := range tasks {
		if t.Kind != domain.KindReview || t.Status != domain.TaskPending {
			continue
		}
		satisfied := true
		for _, depID := range snap.DependenciesOf(t.ID) {
			dep, ok := snap.TaskByID(depID)
			if !ok || !domain.IsDone(dep.Status) {
				satisfied = false
				break
			}
		}
		if satisfied {
			return t.ID
		}
	}
	return ""
}

func (e *Engine) publishHeartbeat(now time.Time, decision scheduler.Decision) {
	payload := map[string]any{"decision": string(decision.Kind)}
	if decision.Reason != "" {
		payload["reason"] = decision.Reason
	}
	if _, err := e.repo.AppendEvent(domain.EventEngineTick, e.projectID, payload, now); err != nil {
		e.log.Warn("failed to append tick event", zap.Error(err))
		return
	}
	e.bus.Publish(domain.Event{Kind: domain.EventEngineTick, Subject: e.projectID, CreatedAt: now, Payload: payload})
}
