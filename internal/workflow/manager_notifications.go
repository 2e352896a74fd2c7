package workflow

import (
	"context"
	"errors"

	"roastmachine/internal/logging"
	"roastmachine/internal/notifications"
	"roastmachine/internal/pipeline"
	"roastmachine/internal/queue"
)

func (m *Manager) notifyRunErrored(ctx context.Context, run *queue.Run, runErr error) {
	if m.notifier == nil || runErr == nil {
		return
	}
	stage := ""
	if latest, err := m.store.GetByID(ctx, run.ID); err == nil && latest != nil {
		stage = nextStage(latest.CurrentStage)
	}
	m.publish(ctx, notifications.EventRunErrored, notifications.Payload{
		"runId":  run.ID,
		"userId": run.UserID,
		"stage":  stage,
		"error":  runErr,
	})
}

func (m *Manager) notifyRunCompleted(ctx context.Context, run *queue.Run, output pipeline.Output) {
	if m.notifier == nil {
		return
	}
	m.publish(ctx, notifications.EventRunCompleted, notifications.Payload{
		"runId":  run.ID,
		"userId": run.UserID,
		"song":   output.Analysis.DetectedSong,
		"roast":  output.Roast.Text,
	})
}

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not send notification", logging.String("event", string(event)))
			return
		}
		m.logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

// nextStage returns the stage after the last checkpointed one, which is the
// stage that was executing when a run failed.
func nextStage(current string) string {
	stages := pipeline.Stages()
	if current == "" {
		return stages[0]
	}
	for i, name := range stages {
		if name == current && i+1 < len(stages) {
			return stages[i+1]
		}
	}
	return current
}
