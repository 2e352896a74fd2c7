package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"roastmachine/internal/sqlitedb"
)

// PurgeFinished deletes terminal runs that finished before cutoff, along with
// their inputs and checkpoints.
func (s *Store) PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	terminal := terminalStatusList()
	args := append(statusArgs(terminal), sqlitedb.FormatTime(cutoff))
	res, err := s.execWithRetry(ctx,
		`DELETE FROM runs WHERE status IN (`+makePlaceholders(len(terminal))+`)
         AND finished_at IS NOT NULL AND finished_at < ?`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("purge finished runs: %w", err)
	}
	return res.RowsAffected()
}

// Remove deletes one finished run with its input and checkpoints, regardless
// of age. Queued, running and paused runs must be terminated first.
func (s *Store) Remove(ctx context.Context, id string) error {
	terminal := terminalStatusList()
	args := append([]any{strings.TrimSpace(id)}, statusArgs(terminal)...)
	res, err := s.execWithRetry(ctx,
		`DELETE FROM runs WHERE id = ? AND status IN (`+makePlaceholders(len(terminal))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("remove run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	run, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return ErrRunNotFound
	}
	return fmt.Errorf("%w: cannot remove run %s in status %s", ErrInvalidTransition, run.ID, run.Status)
}

// Stats returns a count of runs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates run counts for status output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusQueued:
			health.Queued += count
		case StatusRunning:
			health.Running += count
		case StatusPaused:
			health.Paused += count
		case StatusComplete:
			health.Complete += count
		case StatusErrored:
			health.Errored += count
		case StatusTerminated:
			health.Terminated += count
		}
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(sqlitedb.EnsureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	var tableName string
	err = s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'runs'").Scan(&tableName)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		health.Error = err.Error()
		return health, fmt.Errorf("query table info: %w", err)
	default:
		health.TableExists = true
	}

	if health.TableExists {
		columns, err := s.tableColumns(connCtx, "runs")
		if err != nil {
			health.Error = err.Error()
			return health, err
		}
		for _, col := range expectedRunColumns {
			if _, ok := columns[col]; !ok {
				health.MissingColumns = append(health.MissingColumns, col)
			}
		}
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM runs").Scan(&health.TotalRuns); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count runs: %w", err)
		}
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}

func (s *Store) tableColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]struct{})
	for rows.Next() {
		var (
			cid     int
			name    string
			typeStr string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typeStr, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		columns[name] = struct{}{}
	}
	return columns, rows.Err()
}
