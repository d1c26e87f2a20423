package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/terminal-coder/tc/internal/logging"
)

// processPaneRunner is the CLI's default binding for internal/engine's
// PaneRunner interface. The real terminal-multiplexer wrapper is named an
// external collaborator (spec §1) and is not implemented here; this spawns
// the configured Agent command as a plain child process per dispatch, with
// the rendered brief piped to its stdin, which is enough to drive `run`
// end to end without a multiplexer dependency.
type processPaneRunner struct {
	command string
	args    []string
	log     *zap.Logger

	mu    sync.Mutex
	procs map[int]*os.Process
	done  map[int]bool
}

func newProcessPaneRunner(command string, args []string) *processPaneRunner {
	return &processPaneRunner{
		command: command,
		args:    args,
		log:     logging.Named("pane"),
		procs:   make(map[int]*os.Process),
		done:    make(map[int]bool),
	}
}

func (p *processPaneRunner) Spawn(ctx context.Context, pane int, brief string) (int, error) {
	cmd := exec.Command(p.command, p.args...)
	cmd.Stdin = strings.NewReader(brief)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("spawn pane %d: %w", pane, err)
	}

	pid := cmd.Process.Pid
	p.mu.Lock()
	p.procs[pid] = cmd.Process
	p.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		p.mu.Lock()
		p.done[pid] = true
		p.mu.Unlock()
	}()

	p.log.Info("spawned pane process", zap.Int("pane", pane), zap.Int("pid", pid))
	return pid, nil
}

func (p *processPaneRunner) IsAlive(processID int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done[processID] {
		return false
	}
	_, ok := p.procs[processID]
	return ok
}

func (p *processPaneRunner) Kill(processID int, force bool) error {
	p.mu.Lock()
	proc, ok := p.procs[processID]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	if err := proc.Signal(sig); err != nil && err != os.ErrProcessDone {
		return fmt.Errorf("kill pid %d: %w", processID, err)
	}
	return nil
}
