// Package stats persists per-batch conversion totals in SQLite and answers
// lifetime queries over them.
//
// Each completed batch becomes one row in the runs table, written once after
// the packaging queue has drained. Lifetime figures are computed by query
// rather than kept as running counters, so an interrupted process can never
// leave them out of step with the recorded runs.
//
// Schema changes bump the version in schema.go; the store refuses databases
// written by a different version and tells the user to remove the file.
package stats
