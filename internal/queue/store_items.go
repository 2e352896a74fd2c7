package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"roastmachine/internal/services"
	"roastmachine/internal/sqlitedb"
)

// Enqueue inserts a new queued run and its compressed audio in one transaction.
func (s *Store) Enqueue(ctx context.Context, input Input) (*Run, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, services.Wrap(services.ErrValidation, "queue", "enqueue", "userId is required", nil)
	}
	id := uuid.NewString()
	timestamp := s.timestamp()
	blob := compressAudio(input.Audio)

	err := sqlitedb.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (
                id, user_id, intensity, session_id, content_type, audio_bytes,
                status, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id,
			userID,
			sqlitedb.NullableString(input.Intensity),
			sqlitedb.NullableString(input.SessionID),
			sqlitedb.NullableString(input.ContentType),
			len(input.Audio),
			StatusQueued,
			timestamp,
			timestamp,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_inputs (run_id, audio_zstd) VALUES (?, ?)`, id, blob); err != nil {
			return fmt.Errorf("insert run input: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrState, "queue", "enqueue", "", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a run by identifier, returning nil when it does not exist.
func (s *Store) GetByID(ctx context.Context, id string) (*Run, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, strings.TrimSpace(id))
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// List returns runs filtered by status set (or all runs when no status is
// provided), newest first. A limit of zero or less returns every match.
func (s *Store) List(ctx context.Context, limit int, statuses ...Status) ([]*Run, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		args = append(args, statusArgs(statuses)...)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return scanRuns(rows)
}

// ListByUser returns one user's runs, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*Run, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	query := `SELECT ` + runColumns + ` FROM runs WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`
	args := []any{strings.TrimSpace(userID)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list user runs: %w", err)
	}
	return scanRuns(rows)
}

// LoadAudio returns the decompressed audio submitted with a run.
func (s *Store) LoadAudio(ctx context.Context, id string) ([]byte, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT audio_zstd FROM run_inputs WHERE run_id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load audio: %w", err)
	}
	return decompressAudio(blob)
}

// SaveCheckpoint records a completed stage and advances the run's current
// stage in one transaction. A stage that already has a checkpoint keeps its
// original result; the second write is ignored and reported as false.
func (s *Store) SaveCheckpoint(ctx context.Context, runID, stage string, seq int, ok bool, result []byte) (bool, error) {
	stage = strings.TrimSpace(stage)
	if stage == "" {
		return false, services.Wrap(services.ErrValidation, "queue", "save checkpoint", "stage is required", nil)
	}
	var inserted bool
	timestamp := s.timestamp()
	err := sqlitedb.InTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO run_checkpoints (run_id, stage, seq, ok, result_json, created_at)
             VALUES (?, ?, ?, ?, ?, ?)
             ON CONFLICT(run_id, stage) DO NOTHING`,
			runID, stage, seq, boolToInt(ok), string(result), timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert checkpoint: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		inserted = affected > 0
		upd, err := tx.ExecContext(ctx,
			`UPDATE runs SET current_stage = ?, updated_at = ? WHERE id = ?`,
			stage, timestamp, runID,
		)
		if err != nil {
			return fmt.Errorf("advance stage: %w", err)
		}
		if n, _ := upd.RowsAffected(); n == 0 {
			return ErrRunNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			return false, err
		}
		return false, services.Wrap(services.ErrState, "queue", "save checkpoint", stage, err)
	}
	return inserted, nil
}

// Checkpoints returns a run's recorded stages in execution order.
func (s *Store) Checkpoints(ctx context.Context, runID string) ([]Checkpoint, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, stage, seq, ok, result_json, created_at
         FROM run_checkpoints WHERE run_id = ? ORDER BY seq, created_at`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []Checkpoint
	for rows.Next() {
		var (
			cp      Checkpoint
			ok      int
			created sql.NullString
		)
		if err := rows.Scan(&cp.RunID, &cp.Stage, &cp.Seq, &ok, &cp.ResultJSON, &created); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp.OK = ok != 0
		cp.CreatedAt = sqlitedb.Time(created)
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}
