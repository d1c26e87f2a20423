// Package logging provides the single structured logger used throughout
// Terminal Coder. Every component obtains a named child logger from one
// process-wide zap.Logger rather than constructing its own, so every log
// line carries a consistent component tag and honors one global level.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the process-wide logger.
type Options struct {
	// Verbose switches to human-readable console output at debug level,
	// matching the teacher CLI's --verbose flag behavior.
	Verbose bool
	// LogFilePath, if set, receives the log entries (spec §6's
	// .tc/logs/engine.log). Without Verbose the file is the only output and
	// entries are JSON-encoded; with Verbose, stderr is added and both use
	// the console encoding.
	LogFilePath string
}

var base *zap.Logger = zap.NewNop()

// Init constructs the process-wide base logger. Call once from cmd/tc's
// main(); component packages call Named afterward. Safe to call again in
// tests with a fresh Options.
func Init(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
	}

	var outputs []string
	if opts.LogFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LogFilePath), 0o755); err != nil {
			return nil, fmt.Errorf("logging: create log directory: %w", err)
		}
		outputs = append(outputs, opts.LogFilePath)
	}
	if opts.Verbose || len(outputs) == 0 {
		outputs = append(outputs, "stderr")
	}
	cfg.OutputPaths = outputs
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	base = logger
	return logger, nil
}

// Named returns a child of the process-wide logger tagged with component.
// Before Init is called (e.g. in unit tests), this returns a no-op logger so
// packages never need a nil check.
func Named(component string) *zap.Logger {
	return base.Named(component)
}

// Sync flushes the process-wide logger. Call from a deferred cleanup in
// main().
func Sync() {
	_ = base.Sync()
}

// Nop returns a no-op logger, useful for constructing components in tests
// without wiring Init.
func Nop() *zap.Logger {
	return zap.NewNop()
}
