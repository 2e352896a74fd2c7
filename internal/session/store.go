package session

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"roastmachine/internal/config"
	"roastmachine/internal/services"
	"roastmachine/internal/sqlitedb"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// Store persists one session per user key. Every operation for a key runs on
// that key's actor, and every mutation is a single SQLite transaction.
type Store struct {
	db               *sql.DB
	path             string
	policy           Policy
	recentRoasts     int
	escalationWindow int
	now              func() time.Time
	newID            func() string
	keys             *keyedExecutor
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps and streaks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides roast entry id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithPolicy overrides history and streak settings.
func WithPolicy(p Policy) Option {
	return func(s *Store) {
		s.policy = p.normalized()
	}
}

// Open initializes or connects to the session database configured in cfg.
func Open(cfg *config.Config, opts ...Option) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	base := []Option{
		WithPolicy(Policy{HistoryLimit: cfg.Session.HistoryLimit, StreakWindow: cfg.StreakWindow()}),
		withWindows(cfg.Session.RecentRoasts, cfg.Session.EscalationWindow),
	}
	return OpenPath(cfg.SessionDBPath(), append(base, opts...)...)
}

// OpenPath opens a session database at an explicit path.
func OpenPath(path string, opts ...Option) (*Store, error) {
	db, err := sqlitedb.Open(path)
	if err != nil {
		return nil, err
	}
	store := &Store{
		db:               db,
		path:             path,
		policy:           DefaultPolicy(),
		recentRoasts:     5,
		escalationWindow: 3,
		now:              time.Now,
		newID:            uuid.NewString,
		keys:             newKeyedExecutor(),
	}
	for _, opt := range opts {
		opt(store)
	}
	if err := sqlitedb.InitSchema(context.Background(), db, schemaSQL, schemaVersion); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func withWindows(recent, escalation int) Option {
	return func(s *Store) {
		if recent > 0 {
			s.recentRoasts = recent
		}
		if escalation > 0 {
			s.escalationWindow = escalation
		}
	}
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

// Initialize creates a zero-valued session for userID when none exists and
// returns the current session either way.
func (s *Store) Initialize(ctx context.Context, userID string) (*Session, error) {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	var out *Session
	err = s.keys.Do(ctx, userID, func() error {
		return sqlitedb.InTx(ctx, s.db, func(tx *sql.Tx) error {
			current, err := load(ctx, tx, userID)
			if err != nil {
				return err
			}
			if current == nil {
				now := s.now().UTC()
				current = newSession(userID, now)
				if err := save(ctx, tx, current, now); err != nil {
					return err
				}
			}
			out = current
			return nil
		})
	})
	if err != nil {
		return nil, stateError("initialize", err)
	}
	return out.Clone(), nil
}

// RecordAttempt appends a roast entry and updates counts, streak, and
// favorite song. It fails with ErrSessionNotInitialized for unknown users.
func (s *Store) RecordAttempt(ctx context.Context, userID string, attempt Attempt) (*Session, RoastEntry, error) {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return nil, RoastEntry{}, err
	}
	song := strings.TrimSpace(attempt.Song)
	if song == "" {
		return nil, RoastEntry{}, services.Wrap(services.ErrValidation, "session", "record attempt", "song is required", nil)
	}

	var (
		out   *Session
		entry RoastEntry
	)
	err = s.keys.Do(ctx, userID, func() error {
		return sqlitedb.InTx(ctx, s.db, func(tx *sql.Tx) error {
			current, err := load(ctx, tx, userID)
			if err != nil {
				return err
			}
			if current == nil {
				return ErrSessionNotInitialized
			}
			now := s.now().UTC()
			intensity := attempt.Intensity
			if !intensity.Valid() {
				intensity = current.Intensity
			}
			entry = RoastEntry{
				ID:            s.newID(),
				Song:          song,
				Accuracy:      clamp01(attempt.Accuracy),
				Confidence:    clamp01(attempt.Confidence),
				Commentary:    attempt.Commentary,
				Style:         attempt.Style,
				Timestamp:     now,
				Intensity:     intensity,
				Transcription: attempt.Transcription,
			}
			applyAttempt(current, entry, s.policy)
			if err := save(ctx, tx, current, now); err != nil {
				return err
			}
			out = current
			return nil
		})
	})
	if err != nil {
		return nil, RoastEntry{}, stateError("record attempt", err)
	}
	return out.Clone(), entry, nil
}

// UpdatePreference sets the session's intensity.
func (s *Store) UpdatePreference(ctx context.Context, userID string, intensity Intensity) (*Session, error) {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	if !intensity.Valid() {
		if _, err := ParseIntensity(string(intensity)); err != nil {
			return nil, err
		}
	}
	var out *Session
	err = s.keys.Do(ctx, userID, func() error {
		return sqlitedb.InTx(ctx, s.db, func(tx *sql.Tx) error {
			current, err := load(ctx, tx, userID)
			if err != nil {
				return err
			}
			if current == nil {
				return ErrSessionNotInitialized
			}
			current.Intensity = intensity
			if err := save(ctx, tx, current, s.now().UTC()); err != nil {
				return err
			}
			out = current
			return nil
		})
	})
	if err != nil {
		return nil, stateError("update preference", err)
	}
	return out.Clone(), nil
}

// GetSession returns the session for userID, or nil when none exists.
func (s *Store) GetSession(ctx context.Context, userID string) (*Session, error) {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	var out *Session
	err = s.keys.Do(ctx, userID, func() error {
		current, err := load(ctx, s.db, userID)
		out = current
		return err
	})
	if err != nil {
		return nil, stateError("get session", err)
	}
	return out, nil
}

// GetStats returns the stats projection, defaulted for unknown users. Only a
// storage failure produces an error.
func (s *Store) GetStats(ctx context.Context, userID string) (Stats, error) {
	current, err := s.GetSession(ctx, userID)
	if err != nil {
		return DefaultStats(), err
	}
	return ProjectStats(current, s.recentRoasts), nil
}

// EscalationContext returns the history view for song, defaulted for unknown users.
func (s *Store) EscalationContext(ctx context.Context, userID, song string) (EscalationContext, error) {
	current, err := s.GetSession(ctx, userID)
	if err != nil {
		return ProjectEscalation(nil, song, s.escalationWindow), err
	}
	return ProjectEscalation(current, strings.TrimSpace(song), s.escalationWindow), nil
}

// Reset deletes all persisted state for userID and reports whether a session existed.
func (s *Store) Reset(ctx context.Context, userID string) (bool, error) {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return false, err
	}
	var deleted bool
	err = s.keys.Do(ctx, userID, func() error {
		res, err := sqlitedb.Exec(ctx, s.db, "DELETE FROM sessions WHERE user_id = ?", userID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		deleted = affected > 0
		return err
	})
	if err != nil {
		return false, stateError("reset", err)
	}
	return deleted, nil
}

// ListSessions returns summaries ordered by most recent activity.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Summary, error) {
	ctx = sqlitedb.EnsureContext(ctx)
	query := `SELECT user_id, intensity, total_attempts, current_streak, favorite_song, last_attempt_at, created_at
		FROM sessions ORDER BY updated_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, stateError("list sessions", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			summary   Summary
			intensity string
			favorite  sql.NullString
			last      sql.NullString
			created   sql.NullString
		)
		if err := rows.Scan(&summary.UserID, &intensity, &summary.TotalAttempts, &summary.CurrentStreak, &favorite, &last, &created); err != nil {
			return nil, stateError("list sessions", err)
		}
		summary.Intensity = Intensity(intensity)
		summary.FavoriteVictimSong = favorite.String
		summary.LastAttemptTime = sqlitedb.TimePtr(last)
		summary.CreatedAt = sqlitedb.Time(created)
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, stateError("list sessions", err)
	}
	return out, nil
}

// Count returns the number of stored sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(sqlitedb.EnsureContext(ctx), "SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		return 0, stateError("count sessions", err)
	}
	return n, nil
}

// ActiveKeys reports how many user keys currently have an actor goroutine.
func (s *Store) ActiveKeys() int {
	return s.keys.Active()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func load(ctx context.Context, q queryer, userID string) (*Session, error) {
	var payload string
	err := q.QueryRowContext(ctx, "SELECT payload FROM sessions WHERE user_id = ?", userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return nil, fmt.Errorf("decode session payload: %w", err)
	}
	if s.RoastHistory == nil {
		s.RoastHistory = []RoastEntry{}
	}
	return &s, nil
}

func save(ctx context.Context, tx *sql.Tx, s *Session, now time.Time) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session payload: %w", err)
	}
	var last *time.Time
	if !s.LastAttemptTime.IsZero() {
		last = &s.LastAttemptTime
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO sessions
		(user_id, intensity, total_attempts, current_streak, favorite_song, last_attempt_at, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			intensity = excluded.intensity,
			total_attempts = excluded.total_attempts,
			current_streak = excluded.current_streak,
			favorite_song = excluded.favorite_song,
			last_attempt_at = excluded.last_attempt_at,
			updated_at = excluded.updated_at,
			payload = excluded.payload`,
		s.UserID,
		string(s.Intensity),
		s.TotalAttempts,
		s.CurrentStreak,
		sqlitedb.NullableString(s.FavoriteVictimSong),
		sqlitedb.NullableTime(last),
		sqlitedb.FormatTime(s.CreatedAt),
		sqlitedb.FormatTime(now),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func normalizeUserID(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", services.Wrap(services.ErrValidation, "session", "", "userId is required", nil)
	}
	return userID, nil
}

func stateError(operation string, err error) error {
	if errors.Is(err, services.ErrState) || errors.Is(err, services.ErrValidation) {
		return err
	}
	return services.Wrap(services.ErrState, "session", operation, "", err)
}
