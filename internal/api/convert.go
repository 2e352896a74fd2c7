package api

import (
	"encoding/json"
	"strings"
	"time"

	"roastmachine/internal/queue"
	"roastmachine/internal/session"
	"roastmachine/internal/workflow"
)

// FromRun converts a queue record to its API representation.
func FromRun(run *queue.Run) Run {
	if run == nil {
		return Run{}
	}
	dto := Run{
		ID:           run.ID,
		UserID:       run.UserID,
		SessionID:    run.SessionID,
		Intensity:    run.Intensity,
		ContentType:  run.ContentType,
		AudioBytes:   run.AudioBytes,
		Status:       string(run.Status),
		CurrentStage: run.CurrentStage,
		ErrorMessage: run.ErrorMessage,
		Attempts:     run.Attempts,
		CreatedAt:    formatTime(run.CreatedAt),
		UpdatedAt:    formatTime(run.UpdatedAt),
		StartedAt:    formatTimePtr(run.StartedAt),
		FinishedAt:   formatTimePtr(run.FinishedAt),
	}
	if raw := strings.TrimSpace(run.OutputJSON); raw != "" {
		dto.Output = json.RawMessage(run.OutputJSON)
	}
	return dto
}

// FromRuns converts a slice of queue records into API DTOs.
func FromRuns(runs []*queue.Run) []Run {
	out := make([]Run, 0, len(runs))
	for _, run := range runs {
		out = append(out, FromRun(run))
	}
	return out
}

// FromCheckpoints converts recorded stage results.
func FromCheckpoints(checkpoints []queue.Checkpoint) []Checkpoint {
	out := make([]Checkpoint, 0, len(checkpoints))
	for _, cp := range checkpoints {
		dto := Checkpoint{
			Stage:     cp.Stage,
			Seq:       cp.Seq,
			OK:        cp.OK,
			CreatedAt: formatTime(cp.CreatedAt),
		}
		if strings.TrimSpace(cp.ResultJSON) != "" {
			dto.Result = json.RawMessage(cp.ResultJSON)
		}
		out = append(out, dto)
	}
	return out
}

// FromSessionSummaries converts the session listing.
func FromSessionSummaries(summaries []session.Summary) []SessionSummary {
	out := make([]SessionSummary, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, SessionSummary{
			UserID:             s.UserID,
			Intensity:          string(s.Intensity),
			TotalAttempts:      s.TotalAttempts,
			CurrentStreak:      s.CurrentStreak,
			FavoriteVictimSong: s.FavoriteVictimSong,
			LastAttemptTime:    formatTimePtr(s.LastAttemptTime),
			CreatedAt:          formatTime(s.CreatedAt),
		})
	}
	return out
}

// FromStatusSummary converts a workflow status summary.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:    summary.Running,
		Workers:    summary.Workers,
		ActiveRuns: summary.ActiveRuns,
		Completed:  summary.Completed,
		Errored:    summary.Errored,
		QueueStats: MergeQueueStats(summary.QueueStats),
		LastError:  summary.LastError,
	}
	if summary.LastRun != nil {
		run := FromRun(summary.LastRun)
		run.Output = nil
		status.LastRun = &run
	}
	return status
}

// MergeQueueStats converts status counts to string keys, listing every known
// status even when its count is zero.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = stats[status]
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
