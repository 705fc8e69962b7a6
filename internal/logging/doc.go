// Package logging assembles structured slog loggers and formatting helpers used
// across reelup.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so upload code can tag log lines with the
// file, stage and request id it is working on. NewNop provides a silent
// logger for tests and for wiring code that was handed a nil logger.
package logging
