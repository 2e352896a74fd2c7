package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"roastmachine/internal/config"
	"roastmachine/internal/logging"
	"roastmachine/internal/notifications"
	"roastmachine/internal/pipeline"
	"roastmachine/internal/queue"
)

// Executor runs one claimed run to a terminal state. *pipeline.Runner satisfies it.
type Executor interface {
	Execute(ctx context.Context, run *queue.Run) (pipeline.Output, error)
}

const purgeInterval = 10 * time.Minute

// Manager coordinates queue processing across a pool of workers.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	executor     Executor
	logger       *slog.Logger
	notifier     notifications.Service
	heartbeat    *HeartbeatMonitor
	workers      int
	pollInterval time.Duration
	retryDelay   time.Duration
	wake         chan struct{}

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	group     *errgroup.Group
	lastErr   error
	lastRun   *queue.Run
	active    int
	completed int
	errored   int
}

// NewManager constructs a new workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, executor Executor, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, executor, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, executor Executor, logger *slog.Logger, notifier notifications.Service) *Manager {
	logger = logging.NewComponentLogger(logger, "workflow")
	workers := cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		executor:     executor,
		logger:       logger,
		notifier:     notifier,
		workers:      workers,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		retryDelay:   time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		wake: make(chan struct{}, workers),
	}
}

// Wake nudges idle workers to poll the queue immediately. It never blocks.
func (m *Manager) Wake() {
	for range m.workers {
		select {
		case m.wake <- struct{}{}:
		default:
			return
		}
	}
}
