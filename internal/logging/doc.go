// Package logging assembles the structured slog loggers shared by every cbx
// component.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and standardizes the field keys that tag log lines with the
// archive and pipeline stage being processed. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components
// emit data with the same shape as the rest of the system.
package logging
