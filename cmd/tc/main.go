// Package main implements the tc CLI (spec §4.12 / §6): a thin command
// layer that opens the repository, calls into the core (repository,
// engine), and renders the result. No orchestration logic lives in this package.
//
// # File Index
//
//   - main.go         - entry point, rootCmd, global flags
//   - errors.go       - exit-code mapping (spec §6)
//   - helpers.go      - project directory / store resolution, output rendering
//   - interfaces.go   - BootstrapVerifier / Planner / DashboardSink stubs for
//     the three external collaborators spec §1 names out of scope
//   - pane.go         - processPaneRunner, the default PaneRunner binding
//   - cmd_init.go     - init
//   - cmd_verify.go   - verify
//   - cmd_plan.go     - plan
//   - cmd_run.go      - run
//   - cmd_status.go   - status
//   - cmd_control.go  - pause, resume, kill
//   - cmd_retry_reset.go - retry, reset
//   - cmd_history.go  - history
//   - cmd_dashboard.go - dashboard
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/terminal-coder/tc/internal/logging"
)

var (
	dir         string
	jsonOutput  bool
	verbose     bool
	agentCmd    string
)

var rootCmd = &cobra.Command{
	Use:   "tc",
	Short: "Terminal Coder — orchestrates an Agent through phased, reviewed tasks",
	Long: `Terminal Coder drives an external coding Agent through a
dependency-ordered plan of phases and tasks via two terminal panes, one for
coding and one for review, reconciling engine state against a local
embedded store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var logPath string
		if cmd.Name() != "init" {
			if d, err := resolveProjectDir(); err == nil {
				logPath = filepath.Join(tcDir(d), "logs", "engine.log")
			}
		}
		_, err := logging.Init(logging.Options{Verbose: verbose, LogFilePath: logPath})
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dir, "dir", "d", "", "project directory (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "render machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&agentCmd, "agent-command", "true", "command spawned per pane dispatch (default binding for the external pane wrapper)")

	rootCmd.AddCommand(
		initCmd,
		verifyCmd,
		planCmd,
		runCmd,
		statusCmd,
		pauseCmd,
		resumeCmd,
		retryCmd,
		resetCmd,
		killCmd,
		historyCmd,
		dashboardCmd,
	)
}

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}
