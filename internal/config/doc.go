// Package config loads, normalizes, and validates ispeak configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ISPEAK_API_URL and ISPEAK_USER_ID. The Config type centralizes every knob
// the CLI and workflow need so the analysis service endpoint, request
// timeouts and local state directory are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
