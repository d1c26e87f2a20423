package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/terminal-coder/tc/internal/store"
)

var (
	initPRDPath       string
	initBootstrapPath string
	initName          string
)

var initCmd = &cobra.Command{
	Use:   "init <dir>",
	Short: "Create .tc/, the embedded store, and record the project",
	Args:  cobra.ExactArgs(1),
	RunE:  runInit,
}

func init() {
	initCmd.Flags().StringVar(&initPRDPath, "prd", "", "path to the PRD document (required)")
	initCmd.Flags().StringVar(&initBootstrapPath, "bootstrap", "", "path to the bootstrap specification (required)")
	initCmd.Flags().StringVar(&initName, "name", "", "project name (default: directory base name)")
	initCmd.MarkFlagRequired("prd")
	initCmd.MarkFlagRequired("bootstrap")
}

func runInit(cmd *cobra.Command, args []string) error {
	projectDir, err := filepath.Abs(args[0])
	if err != nil {
		return invalidArgsError("resolve project directory: %v", err)
	}
	if _, err := os.Stat(initPRDPath); err != nil {
		return invalidArgsError("prd file %s: %v", initPRDPath, err)
	}
	if _, err := os.Stat(initBootstrapPath); err != nil {
		return invalidArgsError("bootstrap file %s: %v", initBootstrapPath, err)
	}

	if _, err := os.Stat(dbPath(projectDir)); err == nil {
		return &cliError{code: exitPrecondition, err: fmt.Errorf("%s is already initialized", projectDir)}
	}

	for _, sub := range []string{"briefs", "logs", "plans", "mcp"} {
		if err := os.MkdirAll(filepath.Join(tcDir(projectDir), sub), 0o755); err != nil {
			return fmt.Errorf("create .tc/%s: %w", sub, err)
		}
	}
	if err := copyFile(initPRDPath, filepath.Join(projectDir, "prd.md")); err != nil {
		return fmt.Errorf("copy prd: %w", err)
	}
	if err := copyFile(initBootstrapPath, filepath.Join(projectDir, "bootstrap.md")); err != nil {
		return fmt.Errorf("copy bootstrap: %w", err)
	}

	repo, err := store.Open(dbPath(projectDir))
	if err != nil {
		return err
	}
	defer repo.Close()

	name := initName
	if name == "" {
		name = filepath.Base(projectDir)
	}
	proj, err := repo.CreateProject(store.ProjectSpec{Name: name, Root: projectDir})
	if err != nil {
		return err
	}

	return printResult(proj, func() {
		printf("initialized project %q (%s) in %s\n", proj.Name, proj.ID, projectDir)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
