// Command ispeak submits speech recordings to the remote analysis service
// and follows the job's pipeline until it finishes.
//
// A session is described by a TOML manifest (see package manifest). The
// analyze command marks each manifest range through the selection
// controller, commits it to the segment store, mirrors the store onto the
// region layer, then uploads and renders step progress from the status
// stream. Submitted jobs are recorded locally so resume, results and jobs
// can find them again.
package main
