package main

import (
	"github.com/spf13/cobra"

	"github.com/terminal-coder/tc/internal/store"
)

var (
	historyTaskID string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the append-only event log",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyTaskID, "task", "", "restrict to events whose subject is this task/session/phase id")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 100, "maximum number of events to print")
}

func runHistory(cmd *cobra.Command, args []string) error {
	projectDir, err := resolveProjectDir()
	if err != nil {
		return err
	}
	repo, _, err := openProject(projectDir)
	if err != nil {
		return err
	}
	defer repo.Close()

	events, err := repo.ReadEvents(store.EventFilter{Subject: historyTaskID, Limit: historyLimit})
	if err != nil {
		return err
	}

	return printResult(events, func() {
		for _, ev := range events {
			printf("%-8d %s  %-16s %s  %v\n", ev.ID, ev.CreatedAt.Format("2006-01-02T15:04:05"), ev.Kind, ev.Subject, ev.Payload)
		}
	})
}
