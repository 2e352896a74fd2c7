// Package api is the caller-facing facade over the run queue and the session
// store, plus the transport-friendly types the daemon and CLI render.
//
// # Key Types
//
// RoastService: submit, poll and await runs; initialize, read, tune and reset
// sessions. Transports call it instead of touching the stores directly.
//
// Run: transport representation of a queued run. Output carries the stored
// pipeline output verbatim as json.RawMessage, so repeated polls of a
// terminal run return byte-identical payloads.
//
// Envelope: the JSON wrapper every HTTP response uses.
//
// WorkflowStatus / DaemonStatus: worker pool state, queue counts, and
// dependency availability for the health endpoint and `roast status`.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
package api
