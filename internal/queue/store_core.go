package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"roastmachine/internal/config"
	"roastmachine/internal/sqlitedb"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
// Users will need to delete their queue database after schema changes.
const schemaVersion = 1

// Store manages run persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the queue database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.QueueDBPath())
}

// OpenPath opens a queue database at an explicit path.
func OpenPath(path string) (*Store, error) {
	db, err := sqlitedb.Open(path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, path: path, now: time.Now}
	if err := sqlitedb.InitSchema(context.Background(), db, schemaSQL, schemaVersion); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) timestamp() string {
	return sqlitedb.FormatTime(s.now())
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return sqlitedb.Exec(ctx, s.db, query, args...)
}
