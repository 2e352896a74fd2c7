package queue

import (
	"database/sql"
	"strings"

	"roastmachine/internal/sqlitedb"
)

const runColumns = "id, user_id, intensity, session_id, content_type, audio_bytes, status, current_stage, output_json, error_message, attempts, created_at, updated_at, started_at, finished_at, last_heartbeat"

var expectedRunColumns = strings.Split(strings.ReplaceAll(runColumns, " ", ""), ",")

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run          Run
		intensity    sql.NullString
		sessionID    sql.NullString
		contentType  sql.NullString
		statusStr    string
		currentStage sql.NullString
		output       sql.NullString
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
		heartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&run.ID,
		&run.UserID,
		&intensity,
		&sessionID,
		&contentType,
		&run.AudioBytes,
		&statusStr,
		&currentStage,
		&output,
		&errorMessage,
		&run.Attempts,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	run.Intensity = intensity.String
	run.SessionID = sessionID.String
	run.ContentType = contentType.String
	run.Status = Status(statusStr)
	run.CurrentStage = currentStage.String
	run.OutputJSON = output.String
	run.ErrorMessage = errorMessage.String
	run.CreatedAt = sqlitedb.Time(createdRaw)
	run.UpdatedAt = sqlitedb.Time(updatedRaw)
	run.StartedAt = sqlitedb.TimePtr(startedRaw)
	run.FinishedAt = sqlitedb.TimePtr(finishedRaw)
	run.LastHeartbeat = sqlitedb.TimePtr(heartbeatRaw)
	return &run, nil
}

func scanRuns(rows *sql.Rows) ([]*Run, error) {
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	return args
}
