// Package jobstore persists the history of submitted analysis jobs in SQLite
// and guards live status streams with a process-wide file lock.
//
// A job row captures what was uploaded (file, session metadata, segment
// list) together with the last observed pipeline token and progress, so
// `ispeak resume` can rebuild the step list for a job that was left running
// and `ispeak jobs` can list prior submissions.
//
// The database is local bookkeeping only. The analysis service remains the
// source of truth for results; schema changes bump schemaVersion and users
// clear the database to adopt them.
package jobstore
