package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Envelope wraps every HTTP response body.
type Envelope struct {
	Success          bool   `json:"success"`
	Data             any    `json:"data,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorKind        string `json:"errorKind,omitempty"`
	Timestamp        string `json:"timestamp"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
}

// Run describes a pipeline run in a transport-friendly format.
type Run struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	SessionID    string          `json:"sessionId,omitempty"`
	Intensity    string          `json:"intensity,omitempty"`
	ContentType  string          `json:"contentType,omitempty"`
	AudioBytes   int64           `json:"audioBytes"`
	Status       string          `json:"status"`
	CurrentStage string          `json:"currentStage,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Attempts     int             `json:"attempts"`
	CreatedAt    string          `json:"createdAt,omitempty"`
	UpdatedAt    string          `json:"updatedAt,omitempty"`
	StartedAt    string          `json:"startedAt,omitempty"`
	FinishedAt   string          `json:"finishedAt,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
}

// Terminal reports whether the run can no longer change.
func (r Run) Terminal() bool {
	switch r.Status {
	case "complete", "errored", "terminated":
		return true
	default:
		return false
	}
}

// Checkpoint is a recorded stage result.
type Checkpoint struct {
	Stage     string          `json:"stage"`
	Seq       int             `json:"seq"`
	OK        bool            `json:"ok"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt string          `json:"createdAt,omitempty"`
}

// SessionSummary is one row of the session listing.
type SessionSummary struct {
	UserID             string `json:"userId"`
	Intensity          string `json:"intensity"`
	TotalAttempts      int    `json:"totalAttempts"`
	CurrentStreak      int    `json:"currentStreak"`
	FavoriteVictimSong string `json:"favoriteVictimSong,omitempty"`
	LastAttemptTime    string `json:"lastAttemptTime,omitempty"`
	CreatedAt          string `json:"createdAt,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running    bool           `json:"running"`
	Workers    int            `json:"workers"`
	ActiveRuns int            `json:"activeRuns"`
	Completed  int            `json:"completed"`
	Errored    int            `json:"errored"`
	QueueStats map[string]int `json:"queueStats"`
	LastError  string         `json:"lastError,omitempty"`
	LastRun    *Run           `json:"lastRun,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates runtime information served by the health endpoint.
type DaemonStatus struct {
	Status       string             `json:"status"`
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	Uptime       string             `json:"uptime,omitempty"`
	QueueDBPath  string             `json:"queueDbPath"`
	SessionCount int                `json:"sessionCount"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}
