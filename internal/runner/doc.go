// Package runner drives one upload task from the command line: it holds the
// single-instance lock, skips files the service already has, polls the task
// on a ticker, turns interrupts into a graceful cancel and reports the
// outcome through ntfy.
package runner
