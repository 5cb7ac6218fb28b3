// Package workflow coordinates one analysis session: it owns the segment
// store, validates the recording and segments, probes the analysis service,
// uploads, and feeds the job's status stream into the pipeline state
// machine.
//
// Collaborators are injected (Uploader, StreamConnector, Clock and an
// optional JobRecorder) so the orchestrator runs against fakes in tests.
// Every asynchronous result is tagged with the attempt that started it;
// results from an attempt superseded by Start, Resume, Retry or Reset are
// dropped instead of cancelled.
package workflow
