package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/terminal-coder/tc/internal/config"
	"github.com/terminal-coder/tc/internal/eventbus"
	"github.com/terminal-coder/tc/internal/store"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Replay the recorded event log into a dashboard view",
	RunE:  runDashboard,
}

// runDashboard subscribes a fresh, process-local bus rather than reusing
// `run`'s: the dashboard attaches out-of-process and the event bus (spec
// §4.6) is in-memory only, so a separately-invoked `tc dashboard` can only
// ever read the authoritative log, not the live engine's bus. It replays the
// events recorded so far as a synthetic stream; the log is read once, and
// events appended after that are not picked up.
func runDashboard(cmd *cobra.Command, args []string) error {
	projectDir, err := resolveProjectDir()
	if err != nil {
		return err
	}
	repo, proj, err := openProject(projectDir)
	if err != nil {
		return err
	}
	defer repo.Close()

	cfg := config.Load()
	bus := eventbus.New(cfg.EventBuffer)
	sub := bus.Subscribe(eventbus.Filter{})
	defer sub.Close()

	events, err := repo.ReadEvents(store.EventFilter{})
	if err != nil {
		return err
	}
	for _, ev := range events {
		bus.Publish(ev)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var dash DashboardSink = notImplementedDashboard{}
	if err := dash.Run(ctx, sub); err != nil {
		printf("dashboard for project %s: %v\n", proj.ID, err)
	}
	return nil
}
