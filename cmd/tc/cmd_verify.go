package main

import (
	"context"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the bootstrap's shell predicates and record results",
	RunE:  runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	projectDir, err := resolveProjectDir()
	if err != nil {
		return err
	}
	repo, _, err := openProject(projectDir)
	if err != nil {
		return err
	}
	defer repo.Close()

	var verifier BootstrapVerifier = notImplementedVerifier{}
	results, err := verifier.Verify(context.Background(), projectDir)
	if err != nil {
		return err
	}

	return printResult(results, func() {
		for _, r := range results {
			status := "ok"
			if !r.Passed {
				status = "FAIL"
			}
			printf("%-6s %s  %s\n", status, r.Predicate, r.Detail)
		}
	})
}
