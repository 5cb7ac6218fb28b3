// Package services defines shared utilities consumed by the workflow
// orchestrator and the remote analysis integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, attempt counters, and
//     correlation identifiers for logging.
//   - The classified Error type with its five codes (validation, connection,
//     processing, api, unknown) plus Wrap and Normalize, which translate any
//     failure into that taxonomy.
//
// Use these helpers when wiring new workflow logic so error reporting and
// observability stay uniform across the client.
package services
