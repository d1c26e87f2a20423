package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/terminal-coder/tc/internal/config"
	"github.com/terminal-coder/tc/internal/controlplane"
	"github.com/terminal-coder/tc/internal/engine"
	"github.com/terminal-coder/tc/internal/eventbus"
)

var runHeadless bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the engine: reconcile the plan against the Agent until done",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "run without attaching the live dashboard")
}

func runRun(cmd *cobra.Command, args []string) error {
	projectDir, err := resolveProjectDir()
	if err != nil {
		return err
	}
	repo, proj, err := openProject(projectDir)
	if err != nil {
		return err
	}
	defer repo.Close()

	phases, err := repo.ListPhases(proj.ID)
	if err != nil {
		return err
	}
	if len(phases) == 0 {
		return &cliError{code: exitPrecondition, err: fmt.Errorf("project %s has no plan yet; run `tc plan` first", proj.ID)}
	}

	cfg := config.Load()
	bus := eventbus.New(cfg.EventBuffer)
	cp := controlplane.New(repo, bus, time.Now)
	if err := cp.Listen(socketPath(projectDir)); err != nil {
		return fmt.Errorf("listen on control socket: %w", err)
	}
	defer cp.Close()

	fields := strings.Fields(agentCmd)
	command, cmdArgs := "true", []string(nil)
	if len(fields) > 0 {
		command, cmdArgs = fields[0], fields[1:]
	}
	pane := newProcessPaneRunner(command, cmdArgs)

	eng := engine.New(repo, bus, cp, pane, cfg, proj.ID, projectDir, time.Now)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		printf("received interrupt, shutting down\n")
		cancel()
	}()

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- cp.Serve() }()

	if !runHeadless {
		sub := bus.Subscribe(eventbus.Filter{})
		var dash DashboardSink = notImplementedDashboard{}
		go func() {
			if err := dash.Run(ctx, sub); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: dashboard not running: %v\n", err)
			}
		}()
	}

	runErr := eng.Run(ctx)
	cancel()
	<-eng.Done()

	select {
	case err := <-serveErrCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: control socket server stopped: %v\n", err)
		}
	default:
	}

	if runErr == context.Canceled {
		return nil
	}
	return runErr
}
