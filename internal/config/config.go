// Package config loads the environment variables Terminal Coder honors
// (spec §6) into an immutable Config value. Components never read the
// environment directly; a Config is constructed once per process and passed
// by value into constructors, matching the "pure core depending only on
// configuration" design note in spec §9.
package config

import (
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/terminal-coder/tc/internal/logging"
)

const (
	envTickInterval = "TC_TICK_INTERVAL_MS"
	envMaxRetries   = "TC_MAX_RETRIES"
	envEventBuffer  = "TC_EVENT_BUFFER"

	defaultTickIntervalMS = 2000
	defaultMaxRetries     = 1
	defaultEventBuffer    = 256
)

// Config is the process-wide, immutable configuration.
type Config struct {
	TickInterval time.Duration
	MaxRetries   int
	EventBuffer  int
}

// Load reads the environment and returns a validated Config. Malformed
// values fall back to the default and are logged as a warning rather than
// failing the process, since these are operational tuning knobs, not
// correctness-critical input.
func Load() Config {
	log := logging.Named("config")

	tickMS := intFromEnv(log, envTickInterval, defaultTickIntervalMS, 1, int(time.Hour/time.Millisecond))
	maxRetries := intFromEnv(log, envMaxRetries, defaultMaxRetries, 0, 1)
	eventBuffer := intFromEnv(log, envEventBuffer, defaultEventBuffer, 1, 1<<20)

	return Config{
		TickInterval: time.Duration(tickMS) * time.Millisecond,
		MaxRetries:   maxRetries,
		EventBuffer:  eventBuffer,
	}
}

func intFromEnv(log *zap.Logger, name string, def, min, max int) int {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn("invalid integer env var, using default", zap.String("var", name), zap.String("value", raw), zap.Int("default", def))
		return def
	}
	if v < min || v > max {
		clamped := v
		if v < min {
			clamped = min
		}
		if v > max {
			clamped = max
		}
		log.Warn("env var out of range, clamping", zap.String("var", name), zap.Int("value", v), zap.Int("clamped", clamped))
		return clamped
	}
	return v
}
