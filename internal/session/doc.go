// Package session stores the per-user karaoke history.
//
// Each user key owns one JSON record in SQLite. All operations for a key are
// funneled through a short-lived actor goroutine, so two pipeline runs for the
// same user never interleave their read-modify-write cycles, while different
// users proceed independently. Read projections (Stats, EscalationContext) go
// through the same actor and therefore see the latest committed attempt.
package session
