package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// InitSchema creates the schema on a fresh database or verifies the recorded
// version on an existing one. schemaSQL must create a schema_version table.
func InitSchema(ctx context.Context, db *sql.DB, schemaSQL string, version int) error {
	ctx = EnsureContext(ctx)
	var tableExists int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return InTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
				return fmt.Errorf("record schema version: %w", err)
			}
			return nil
		})
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current != version {
		return fmt.Errorf("%w: database has version %d, expected %d (delete the database to recreate it)",
			ErrSchemaMismatch, current, version)
	}
	return nil
}
