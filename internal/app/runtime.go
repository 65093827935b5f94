package app

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// TestModeEnv marks the process as a test run. Commands return before they
// connect to Postgres or Redis.
const TestModeEnv = "LEDGER_TEST_MODE"

var testMode struct {
	once sync.Once
	on   atomic.Bool
}

func parseTestMode(v string) bool {
	on, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && on
}

func detectTestMode() {
	testMode.on.Store(parseTestMode(os.Getenv(TestModeEnv)))
}

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	testMode.once.Do(detectTestMode)
	return testMode.on.Load()
}

// RefreshTestMode re-reads the flag after the environment changed.
func RefreshTestMode() {
	testMode.once.Do(func() {})
	detectTestMode()
}

// SkipStartup reports whether component must not start, logging why.
func SkipStartup(logger *slog.Logger, component string) bool {
	if !InTestMode() {
		return false
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("test mode detected, skipping startup",
		slog.String("component", component),
		slog.String("env", TestModeEnv))
	return true
}
