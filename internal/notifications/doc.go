// Package notifications pushes analysis job outcomes to ntfy.
//
// NewService returns a no-op notifier when no topic is configured, so callers
// can notify unconditionally. Delivery failures are returned to the caller;
// the CLI logs them and carries on since a missed push never affects the job.
package notifications
