// Package notifications delivers run events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Per-event toggles
// in the [notifications] section suppress events without touching callers,
// which depend only on the Service interface.
package notifications
