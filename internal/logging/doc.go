// Package logging assembles structured slog loggers and formatting helpers.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code tags log lines
// with run IDs, user keys, stages, and correlation IDs. The daemon tees a JSON
// copy of every record into a per-start log file; retention pruning removes
// old files. A no-op logger serves tests and wiring code that cannot fail.
package logging
