package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/terminal-coder/tc/internal/domain"
	"github.com/terminal-coder/tc/internal/store"
)

// tcDir returns the fixed, spec-authoritative layout directory under a
// project root (spec §6).
func tcDir(projectDir string) string { return filepath.Join(projectDir, ".tc") }

func dbPath(projectDir string) string { return filepath.Join(tcDir(projectDir), "tc.db") }

func socketPath(projectDir string) string { return filepath.Join(tcDir(projectDir), "control.sock") }

func briefsDir(projectDir string) string { return filepath.Join(tcDir(projectDir), "briefs") }

// resolveProjectDir returns the absolute project directory for the --dir
// flag, defaulting to the working directory.
func resolveProjectDir() (string, error) {
	if dir == "" {
		return os.Getwd()
	}
	return filepath.Abs(dir)
}

// openProject opens the repository for an already-initialized project
// directory and loads its sole project row. Every command but `init`
// requires this to succeed; a missing store is reported as exit code 3
// (spec §6), not a generic infrastructure error.
func openProject(projectDir string) (*store.Repository, domain.Project, error) {
	if _, err := os.Stat(dbPath(projectDir)); err != nil {
		return nil, domain.Project{}, noProjectError(projectDir)
	}
	repo, err := store.Open(dbPath(projectDir))
	if err != nil {
		return nil, domain.Project{}, err
	}
	proj, err := repo.GetSoleProject()
	if err != nil {
		repo.Close()
		return nil, domain.Project{}, noProjectError(projectDir)
	}
	return repo, proj, nil
}

// printResult renders v as JSON when --json was passed, otherwise delegates
// to the given plain-text renderer.
func printResult(v any, plain func()) error {
	if !jsonOutput {
		plain()
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format, args...)
}
