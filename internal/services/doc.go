// Package services defines shared utilities consumed by pipeline stages,
// stores, and the transport layers.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, user keys, stage names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers (validation, upstream, state, timeout) plus
//     the Wrap helper, so stages can decide between fallback and abort and
//     transports can map failures to status codes.
package services
