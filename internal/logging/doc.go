// Package logging assembles structured slog loggers and formatting helpers used
// across photoflow.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so workers can tag log lines
// with photo IDs, worker numbers, and correlation IDs. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
