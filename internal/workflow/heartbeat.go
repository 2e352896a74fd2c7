package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"roastmachine/internal/logging"
	"roastmachine/internal/queue"
)

// HeartbeatMonitor manages run heartbeats and stale run reclamation.
type HeartbeatMonitor struct {
	store             *queue.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:             store,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// Interval returns how often running runs are refreshed.
func (h *HeartbeatMonitor) Interval() time.Duration {
	return h.heartbeatInterval
}

// ReclaimStaleRuns re-queues running runs whose heartbeat is older than the timeout.
func (h *HeartbeatMonitor) ReclaimStaleRuns(ctx context.Context) (int64, error) {
	if h.heartbeatTimeout <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-h.heartbeatTimeout)
	reclaimed, err := h.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale runs",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "heartbeat_reclaim"),
		)
	}
	return reclaimed, nil
}

// StartLoop runs a heartbeat updater for a specific run until context cancellation.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, runID string) {
	defer wg.Done()
	if h.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, runID); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Debug("heartbeat update cancelled")
				} else {
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
			}
		}
	}
}
