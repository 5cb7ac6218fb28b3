// Package pipeline turns the status tokens pushed by the analysis service into
// the ordered, user-facing step list shown while a job runs.
//
// The step set is fixed when a Machine is built: health_check, upload,
// convert and finalize always, transcribe when intelligibility segments are
// present, analyze when acoustic segments are. Each token is looked up in a
// transition table. Steps only move forward; completed and error are
// terminal. An error token halts the machine.
//
// A Machine is not safe for concurrent use; callers serialize access.
package pipeline
