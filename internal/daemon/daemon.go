package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"roastmachine/internal/api"
	"roastmachine/internal/config"
	"roastmachine/internal/deps"
	"roastmachine/internal/logging"
	"roastmachine/internal/notifications"
	"roastmachine/internal/preflight"
	"roastmachine/internal/queue"
	"roastmachine/internal/session"
	"roastmachine/internal/workflow"
)

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	runs     *queue.Store
	sessions *session.Store
	workflow *workflow.Manager
	service  *api.RoastService
	server   *apiServer

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt atomic.Pointer[time.Time]
	cancel    context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	StartedAt     time.Time
	Workflow      workflow.StatusSummary
	QueueDBPath   string
	SessionDBPath string
	LockFilePath  string
	SessionCount  int
	Dependencies  []deps.Status
	Checks        []preflight.Result
}

// Healthy reports whether every directory check passed and no required binary is missing.
func (s Status) Healthy() bool {
	return len(preflight.Failed(s.Checks)) == 0 && len(deps.MissingRequired(s.Dependencies)) == 0
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, runs *queue.Store, sessions *session.Store, wf *workflow.Manager, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || runs == nil || sessions == nil || wf == nil {
		return nil, errors.New("daemon requires config, run store, session store, and workflow manager")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	service := api.NewRoastService(runs, sessions,
		api.WithWaker(wf),
		api.WithAwaitPolling(cfg.AwaitPollInterval(), cfg.Pipeline.AwaitMaxPolls),
	)
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		runs:     runs,
		sessions: sessions,
		workflow: wf,
		service:  service,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.server = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, launches the workflow manager and begins serving HTTP.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another roast daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.server.start(runCtx); err != nil {
		d.workflow.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	now := time.Now()
	d.startedAt.Store(&now)
	d.running.Store(true)
	d.logger.Info("roast daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.server.address()),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

// Stop stops HTTP serving and background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("roast daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return errors.Join(d.runs.Close(), d.sessions.Close())
}

// Address returns the bound HTTP address once started.
func (d *Daemon) Address() string {
	return d.server.address()
}

// Handler exposes the HTTP routes, mainly for tests.
func (d *Daemon) Handler() http.Handler {
	return d.server.handler
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return notifications.NewService(d.cfg).Publish(ctx, notifications.EventTest, nil)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		Workflow:      d.workflow.Status(ctx),
		QueueDBPath:   d.runs.Path(),
		SessionDBPath: d.sessions.Path(),
		LockFilePath:  d.lockPath,
		Dependencies:  preflight.CheckSystemDeps(d.cfg),
		Checks:        preflight.RunLocal(d.cfg),
	}
	if started := d.startedAt.Load(); started != nil {
		status.StartedAt = *started
	}
	if count, err := d.sessions.Count(ctx); err == nil {
		status.SessionCount = count
	} else {
		d.logger.Warn("failed to count sessions", logging.Error(err))
	}
	return status
}
