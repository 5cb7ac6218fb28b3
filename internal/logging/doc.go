// Package logging assembles the structured slog loggers used by the ispeak
// CLI and its workflow components.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// context helpers that tag log lines with job ids, pipeline steps, attempt
// counters and correlation ids. NewNop provides a silent logger for tests and
// for wiring code that cannot fail.
package logging
