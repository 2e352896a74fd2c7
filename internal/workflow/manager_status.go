package workflow

import (
	"context"

	"roastmachine/internal/logging"
	"roastmachine/internal/queue"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool
	Workers    int
	ActiveRuns int
	Completed  int
	Errored    int
	LastError  string
	LastRun    *queue.Run
	QueueStats map[queue.Status]int
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:    m.running,
		Workers:    m.workers,
		ActiveRuns: m.active,
		Completed:  m.completed,
		Errored:    m.errored,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastRun != nil {
		snap := *m.lastRun
		summary.LastRun = &snap
	}
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) trackStart(run *queue.Run) {
	m.mu.Lock()
	m.active++
	snap := *run
	m.lastRun = &snap
	m.mu.Unlock()
}

func (m *Manager) trackFinish(run *queue.Run, err error, completed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active > 0 {
		m.active--
	}
	switch {
	case completed:
		m.completed++
	case err != nil:
		m.errored++
		m.lastErr = err
	}
	snap := *run
	m.lastRun = &snap
}
