// Package workflow drains the run queue with a bounded pool of workers.
//
// The Manager claims queued runs, hands each to the pipeline executor, and
// keeps a heartbeat on the run while it executes. A maintenance loop reclaims
// runs whose heartbeat went stale (their checkpoints make the retry cheap) and
// purges terminal runs past the retention window. At startup every run still
// marked running is re-queued, since the daemon lock guarantees no other
// process owns it.
//
// Completed and errored runs are reported through the notifications service.
package workflow
