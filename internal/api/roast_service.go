package api

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"roastmachine/internal/queue"
	"roastmachine/internal/services"
	"roastmachine/internal/session"
)

const (
	defaultAwaitInterval = time.Second
	defaultAwaitPolls    = 60
)

// RunQueue abstracts the queue operations the facade needs.
type RunQueue interface {
	Enqueue(ctx context.Context, input queue.Input) (*queue.Run, error)
	GetByID(ctx context.Context, id string) (*queue.Run, error)
}

// SessionBackend abstracts the session operations the facade needs.
type SessionBackend interface {
	Initialize(ctx context.Context, userID string) (*session.Session, error)
	GetStats(ctx context.Context, userID string) (session.Stats, error)
	UpdatePreference(ctx context.Context, userID string, intensity session.Intensity) (*session.Session, error)
	Reset(ctx context.Context, userID string) (bool, error)
}

// Waker is notified after a run is queued so idle workers can claim it at once.
type Waker interface {
	Wake()
}

// SubmitRequest is a validated upload ready to be queued.
type SubmitRequest struct {
	UserID      string
	Intensity   string
	SessionID   string
	ContentType string
	Audio       []byte
}

// RoastService is the caller-facing facade for runs and sessions.
type RoastService struct {
	runs          RunQueue
	sessions      SessionBackend
	waker         Waker
	awaitInterval time.Duration
	awaitPolls    int
	now           func() time.Time
}

// Option configures a RoastService.
type Option func(*RoastService)

// WithAwaitPolling overrides the Await cadence and budget.
func WithAwaitPolling(interval time.Duration, maxPolls int) Option {
	return func(s *RoastService) {
		if interval > 0 {
			s.awaitInterval = interval
		}
		if maxPolls > 0 {
			s.awaitPolls = maxPolls
		}
	}
}

// WithWaker registers a waker that is nudged after every submission.
func WithWaker(w Waker) Option {
	return func(s *RoastService) {
		s.waker = w
	}
}

// WithClock overrides the time source used for generated session ids.
func WithClock(now func() time.Time) Option {
	return func(s *RoastService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRoastService constructs the facade.
func NewRoastService(runs RunQueue, sessions SessionBackend, opts ...Option) *RoastService {
	s := &RoastService{
		runs:          runs,
		sessions:      sessions,
		awaitInterval: defaultAwaitInterval,
		awaitPolls:    defaultAwaitPolls,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Submit queues a run and returns it immediately in the queued state.
func (s *RoastService) Submit(ctx context.Context, req SubmitRequest) (Run, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return Run{}, services.Wrap(services.ErrValidation, "api", "submit", "userId is required", nil)
	}
	if len(req.Audio) == 0 {
		return Run{}, services.Wrap(services.ErrValidation, "api", "submit", "no audio file provided", nil)
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = newSessionID(s.now())
	}
	run, err := s.runs.Enqueue(ctx, queue.Input{
		UserID:      userID,
		Intensity:   strings.TrimSpace(req.Intensity),
		SessionID:   sessionID,
		ContentType: req.ContentType,
		Audio:       req.Audio,
	})
	if err != nil {
		return Run{}, err
	}
	if s.waker != nil {
		s.waker.Wake()
	}
	return FromRun(run), nil
}

// Poll returns the run's current status and, once terminal, its stored output.
func (s *RoastService) Poll(ctx context.Context, runID string) (Run, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return Run{}, services.Wrap(services.ErrValidation, "api", "poll", "run id is required", nil)
	}
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return Run{}, err
	}
	if run == nil {
		return Run{}, services.Wrap(services.ErrNotFound, "api", "poll", fmt.Sprintf("run %s not found", runID), nil)
	}
	return FromRun(run), nil
}

// Await polls until the run is terminal. When the poll budget is exhausted it
// returns the last observed run together with an ErrTimeout error; the run
// remains retrievable with Poll.
func (s *RoastService) Await(ctx context.Context, runID string) (Run, error) {
	var last Run
	for attempt := 0; attempt < s.awaitPolls; attempt++ {
		run, err := s.Poll(ctx, runID)
		if err != nil {
			return last, err
		}
		last = run
		if run.Terminal() {
			return run, nil
		}
		timer := time.NewTimer(s.awaitInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, ctx.Err()
		case <-timer.C:
		}
	}
	return last, services.Wrap(services.ErrTimeout, "api", "await",
		fmt.Sprintf("run %s still %s after %d polls", runID, last.Status, s.awaitPolls), nil)
}

// Process submits a run and awaits its completion.
func (s *RoastService) Process(ctx context.Context, req SubmitRequest) (Run, error) {
	run, err := s.Submit(ctx, req)
	if err != nil {
		return Run{}, err
	}
	done, err := s.Await(ctx, run.ID)
	if err != nil && done.ID == "" {
		done = run
	}
	return done, err
}

// InitSession creates the user's session if needed and returns it.
func (s *RoastService) InitSession(ctx context.Context, userID string) (*session.Session, error) {
	return s.sessions.Initialize(ctx, userID)
}

// Stats returns the user's stats, defaulted when no session exists.
func (s *RoastService) Stats(ctx context.Context, userID string) (session.Stats, error) {
	if strings.TrimSpace(userID) == "" {
		return session.Stats{}, services.Wrap(services.ErrValidation, "api", "stats", "userId is required", nil)
	}
	return s.sessions.GetStats(ctx, userID)
}

// SetIntensity updates the user's commentary intensity preference.
func (s *RoastService) SetIntensity(ctx context.Context, userID, intensity string) (*session.Session, error) {
	parsed, err := session.ParseIntensity(intensity)
	if err != nil {
		return nil, err
	}
	return s.sessions.UpdatePreference(ctx, userID, parsed)
}

// Reset deletes the user's session and reports whether one existed.
func (s *RoastService) Reset(ctx context.Context, userID string) (bool, error) {
	return s.sessions.Reset(ctx, userID)
}

// newSessionID formats session_<unix ms>_<9 base36 chars>.
func newSessionID(now time.Time) string {
	suffix := strconv.FormatUint(rand.Uint64(), 36)
	for len(suffix) < 9 {
		suffix = "0" + suffix
	}
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), suffix[:9])
}
