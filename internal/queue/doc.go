// Package queue persists pipeline runs in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store owns three tables: runs (status machine, output, heartbeat),
// run_inputs (zstd-compressed audio kept apart so listings stay cheap), and
// run_checkpoints (one row per completed stage). A checkpoint row and the
// run's current_stage advance in the same transaction, and a stage that
// already has a checkpoint is never written again.
//
// The database is treated as transient storage for in-flight and recently
// finished runs rather than a long-term archive; PurgeFinished removes
// terminal runs past the retention window. Schema changes bump schemaVersion;
// users delete the database to adopt the new schema.
package queue
