// Package sqlitedb holds the SQLite plumbing shared by the run queue and the
// session store: opening with WAL pragmas, versioned schema creation, busy
// retries around statements and transactions, and timestamp encoding.
package sqlitedb
