// Package logging assembles structured slog loggers and formatting helpers used
// across reel.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so worker code can tag log lines
// with job IDs, stages, source directories, and correlation IDs. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
package logging
