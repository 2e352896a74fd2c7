package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"roastmachine/internal/logging"
	"roastmachine/internal/pipeline"
	"roastmachine/internal/queue"
	"roastmachine/internal/services"
)

// Start re-queues orphaned runs and begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.executor == nil {
		m.mu.Unlock()
		return errors.New("workflow executor not configured")
	}

	if reset, err := m.store.ResetRunning(ctx); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("reset running runs: %w", err)
	} else if reset > 0 {
		m.logger.Info("re-queued runs left running by a previous process",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "runs_requeued"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	m.cancel = cancel
	m.group = group
	m.running = true
	m.mu.Unlock()

	for i := range m.workers {
		logger := m.logger.With(logging.Int("worker", i+1))
		group.Go(func() error {
			m.runWorker(groupCtx, logger)
			return nil
		})
	}
	group.Go(func() error {
		m.runMaintenance(groupCtx)
		return nil
	})

	m.logger.Info("workflow started",
		logging.Int("workers", m.workers),
		logging.String(logging.FieldEventType, "workflow_start"),
	)
	return nil
}

// Stop terminates background processing and waits for in-flight runs to
// return. Runs interrupted mid-stage stay running and are re-queued on the
// next start.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	group := m.group
	m.running = false
	m.cancel = nil
	m.group = nil
	m.mu.Unlock()

	cancel()
	_ = group.Wait()
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stop"))
}

func (m *Manager) runWorker(ctx context.Context, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		run, err := m.store.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if run == nil {
			m.waitForWork(ctx)
			continue
		}
		m.processRun(ctx, logger, run)
	}
}

func (m *Manager) processRun(ctx context.Context, logger *slog.Logger, run *queue.Run) {
	ctx = services.WithRunID(ctx, run.ID)
	ctx = services.WithUserID(ctx, run.UserID)
	runLogger := logging.WithContext(ctx, logger)
	runLogger.Info("run claimed",
		logging.String(logging.FieldEventType, "run_claimed"),
		logging.Int("attempt", run.Attempts),
		logging.String("resume_after", run.CurrentStage),
	)
	m.trackStart(run)

	hbCtx, hbCancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &wg, run.ID)

	started := time.Now()
	output, err := m.executor.Execute(ctx, run)
	hbCancel()
	wg.Wait()

	switch {
	case err == nil:
		m.trackFinish(run, nil, true)
		runLogger.Debug("run finished", logging.Duration("elapsed", time.Since(started)))
		m.notifyRunCompleted(ctx, run, output)
	case errors.Is(err, pipeline.ErrInterrupted):
		m.trackFinish(run, nil, false)
		runLogger.Info("run stopped before completion",
			logging.String(logging.FieldEventType, "run_interrupted"),
			logging.String("reason", err.Error()),
		)
	case ctx.Err() != nil:
		m.trackFinish(run, nil, false)
		runLogger.Info("run suspended by shutdown; it will be re-queued on restart",
			logging.String(logging.FieldEventType, "run_suspended"),
		)
	default:
		m.trackFinish(run, err, false)
		details := services.Details(err)
		logging.ErrorWithContext(runLogger, "run errored", "run_errored",
			logging.String(logging.FieldErrorKind, string(details.Kind)),
			logging.String(logging.FieldErrorHint, details.Hint),
			logging.Error(err),
		)
		m.notifyRunErrored(ctx, run, err)
	}
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logging.ErrorWithContext(logger, "failed to claim next run", "queue_claim_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	delay := m.retryDelay
	if delay <= 0 {
		delay = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func (m *Manager) waitForWork(ctx context.Context) {
	interval := m.pollInterval
	if interval <= 0 {
		interval = time.Second
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-timer.C:
	}
}

func (m *Manager) runMaintenance(ctx context.Context) {
	interval := m.heartbeat.Interval()
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	lastPurge := time.Time{}

	for {
		if reclaimed, err := m.heartbeat.ReclaimStaleRuns(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.WarnWithContext(m.logger, "reclaim stale runs failed; stuck runs may remain", "heartbeat_reclaim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		} else if reclaimed > 0 {
			m.Wake()
		}

		if time.Since(lastPurge) >= purgeInterval {
			m.purgeFinished(ctx)
			lastPurge = time.Now()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) purgeFinished(ctx context.Context) {
	retention := m.cfg.RunRetention()
	if retention <= 0 {
		return
	}
	removed, err := m.store.PurgeFinished(ctx, time.Now().Add(-retention))
	if err != nil {
		if ctx.Err() == nil {
			logging.WarnWithContext(m.logger, "purge of finished runs failed", "run_purge_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "old runs stay in the queue database"),
			)
		}
		return
	}
	if removed > 0 {
		m.logger.Info("purged finished runs",
			logging.Int64("count", removed),
			logging.String(logging.FieldEventType, "run_purge"),
		)
	}
}
