package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"roastmachine/internal/sqlitedb"
)

// ClaimNext atomically moves the oldest queued run to running, bumping its
// attempt counter and heartbeat. It returns nil when nothing is queued.
func (s *Store) ClaimNext(ctx context.Context) (*Run, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	var claimed *Run
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		now := s.timestamp()
		row := s.db.QueryRowContext(ctx,
			`UPDATE runs
             SET status = ?, attempts = attempts + 1, started_at = COALESCE(started_at, ?),
                 last_heartbeat = ?, updated_at = ?
             WHERE id = (SELECT id FROM runs WHERE status = ? ORDER BY created_at, rowid LIMIT 1)
             RETURNING `+runColumns,
			StatusRunning, now, now, now, StatusQueued,
		)
		run, err := scanRun(row)
		if errors.Is(err, sql.ErrNoRows) {
			claimed = nil
			return nil
		}
		if err != nil {
			return err
		}
		claimed = run
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim run: %w", err)
	}
	return claimed, nil
}

// Complete stores the serialized output and marks a running run complete.
func (s *Store) Complete(ctx context.Context, id string, output []byte) error {
	now := s.timestamp()
	return s.transition(ctx, id, "complete", []Status{StatusRunning},
		`status = ?, output_json = ?, error_message = NULL, finished_at = ?, last_heartbeat = NULL`,
		StatusComplete, string(output), now)
}

// Fail marks a queued or running run errored with message and optional output.
func (s *Store) Fail(ctx context.Context, id, message string, output []byte) error {
	now := s.timestamp()
	var payload any
	if len(output) > 0 {
		payload = string(output)
	}
	return s.transition(ctx, id, "fail", []Status{StatusQueued, StatusRunning},
		`status = ?, output_json = ?, error_message = ?, finished_at = ?, last_heartbeat = NULL`,
		StatusErrored, payload, sqlitedb.NullableString(message), now)
}

// Pause parks a queued or running run. A running run stops before its next stage.
func (s *Store) Pause(ctx context.Context, id string) error {
	return s.transition(ctx, id, "pause", []Status{StatusQueued, StatusRunning},
		`status = ?, last_heartbeat = NULL`, StatusPaused)
}

// Resume re-queues a paused run; it continues after its last checkpoint.
func (s *Store) Resume(ctx context.Context, id string) error {
	return s.transition(ctx, id, "resume", []Status{StatusPaused},
		`status = ?`, StatusQueued)
}

// Terminate ends a non-terminal run without output.
func (s *Store) Terminate(ctx context.Context, id string) error {
	now := s.timestamp()
	return s.transition(ctx, id, "terminate", []Status{StatusQueued, StatusRunning, StatusPaused},
		`status = ?, error_message = ?, finished_at = ?, last_heartbeat = NULL`,
		StatusTerminated, TerminateReason, now)
}

// UpdateHeartbeat updates the last heartbeat timestamp for a running run.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`UPDATE runs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now, now, id, StatusRunning,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale returns running runs whose heartbeat expired before cutoff to
// the queue. They resume after their last checkpoint.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusQueued, s.timestamp(), StatusRunning, sqlitedb.FormatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale runs: %w", err)
	}
	return res.RowsAffected()
}

// ResetRunning re-queues every running run. Called at startup, when no worker
// can still own one.
func (s *Store) ResetRunning(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, last_heartbeat = NULL, updated_at = ? WHERE status = ?`,
		StatusQueued, s.timestamp(), StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reset running runs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) transition(ctx context.Context, id, op string, from []Status, set string, args ...any) error {
	query := `UPDATE runs SET ` + set + `, updated_at = ? WHERE id = ? AND status IN (` + makePlaceholders(len(from)) + `)`
	params := append(append([]any{}, args...), s.timestamp(), strings.TrimSpace(id))
	params = append(params, statusArgs(from)...)

	res, err := s.execWithRetry(ctx, query, params...)
	if err != nil {
		return fmt.Errorf("%s run: %w", op, err)
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
	return fmt.Errorf("%w: cannot %s run %s in status %s", ErrInvalidTransition, op, run.ID, run.Status)
}
