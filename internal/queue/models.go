package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a pipeline run.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusRunning    Status = "running"
	StatusComplete   Status = "complete"
	StatusErrored    Status = "errored"
	StatusPaused     Status = "paused"
	StatusTerminated Status = "terminated"
)

// TerminateReason is the error message set when an operator terminates a run.
const TerminateReason = "Terminated by operator"

var allStatuses = []Status{
	StatusQueued,
	StatusRunning,
	StatusComplete,
	StatusErrored,
	StatusPaused,
	StatusTerminated,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusComplete:   {},
	StatusErrored:    {},
	StatusTerminated: {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

func terminalStatusList() []Status {
	return []Status{StatusComplete, StatusErrored, StatusTerminated}
}

// Input is the submission payload persisted with a new run.
type Input struct {
	UserID      string
	Intensity   string
	SessionID   string
	ContentType string
	Audio       []byte
}

// Run is a pipeline run persisted in SQLite. Audio bytes live in a side table
// and are loaded on demand with LoadAudio.
type Run struct {
	ID            string
	UserID        string
	Intensity     string
	SessionID     string
	ContentType   string
	AudioBytes    int64
	Status        Status
	CurrentStage  string
	OutputJSON    string
	ErrorMessage  string
	Attempts      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	LastHeartbeat *time.Time
}

// IsTerminal reports whether the run has finished.
func (r Run) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// Checkpoint is the persisted result of one completed stage.
type Checkpoint struct {
	RunID      string
	Stage      string
	Seq        int
	OK         bool
	ResultJSON string
	CreatedAt  time.Time
}

// HealthSummary describes aggregated run counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Queued     int
	Running    int
	Paused     int
	Complete   int
	Errored    int
	Terminated int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	MissingColumns   []string
	IntegrityCheck   bool
	TotalRuns        int
	Error            string
}
