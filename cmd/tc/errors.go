package main

import (
	"errors"
	"fmt"

	"github.com/terminal-coder/tc/internal/domain"
)

// Exit codes, spec §6 verbatim.
const (
	exitOK               = 0
	exitInvalidArgs      = 2
	exitNoProject        = 3
	exitPrecondition     = 4
	exitDeadlockOrFatal  = 5
	exitUnexpectedError  = 1
)

// cliError pins an exit code to an error, for commands that need a code
// other than the one domain.TCError's kind would naturally map to (notably
// "no project in this directory", which has no domain.ErrorKind of its
// own).
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func noProjectError(dir string) error {
	return &cliError{code: exitNoProject, err: fmt.Errorf("no project found in %s (run `tc init` first)", dir)}
}

func invalidArgsError(format string, args ...any) error {
	return &cliError{code: exitInvalidArgs, err: fmt.Errorf(format, args...)}
}

// exitCodeFor maps an error to the exit code the §6 table assigns it.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	var tc *domain.TCError
	if errors.As(err, &tc) {
		switch tc.Kind {
		case domain.ErrValidation:
			return exitInvalidArgs
		case domain.ErrPrecondition:
			return exitPrecondition
		case domain.ErrDeadlock:
			return exitDeadlockOrFatal
		default:
			return exitUnexpectedError
		}
	}
	return exitUnexpectedError
}
