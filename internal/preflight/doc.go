// Package preflight runs the readiness checks behind `ispeak status`: local
// state directories, the configured user identity, the job history database
// and reachability of the analysis service.
//
// Checks never fail hard; each returns a Result with a human-readable
// detail so the CLI can render them as a table.
package preflight
