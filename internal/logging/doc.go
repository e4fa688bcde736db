// Package logging assembles structured slog loggers and formatting helpers used
// across threadwatch components.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so cycle code can tag log lines
// with cycle IDs, source names, and post IDs. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
package logging
