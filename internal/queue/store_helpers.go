package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"reel/internal/protocol"
)

const jobColumns = "id, request_id, version, source_path, dest_dir, mode, source_type, series, season, disc, files_json, status, error_message, files_done, files_failed, files_skipped, created_at, updated_at, last_heartbeat"

var expectedColumns = []string{
	"id", "request_id", "version", "source_path", "dest_dir", "mode", "source_type",
	"series", "season", "disc", "files_json", "status", "error_message",
	"files_done", "files_failed", "files_skipped", "created_at", "updated_at", "last_heartbeat",
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id               int64
		requestID        string
		version          int
		sourcePath       string
		destDir          string
		mode             string
		sourceType       sql.NullString
		series           sql.NullString
		season           sql.NullString
		disc             sql.NullString
		filesJSON        sql.NullString
		statusStr        string
		errorMessage     sql.NullString
		filesDone        int
		filesFailed      int
		filesSkipped     int
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		lastHeartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&requestID,
		&version,
		&sourcePath,
		&destDir,
		&mode,
		&sourceType,
		&series,
		&season,
		&disc,
		&filesJSON,
		&statusStr,
		&errorMessage,
		&filesDone,
		&filesFailed,
		&filesSkipped,
		&createdRaw,
		&updatedRaw,
		&lastHeartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		RequestID:    requestID,
		Version:      version,
		SourcePath:   sourcePath,
		DestDir:      destDir,
		Mode:         protocol.Mode(mode),
		SourceType:   protocol.SourceType(sourceType.String),
		Series:       series.String,
		Season:       season.String,
		Disc:         disc.String,
		Status:       Status(statusStr),
		ErrorMessage: errorMessage.String,
		FilesDone:    filesDone,
		FilesFailed:  filesFailed,
		FilesSkipped: filesSkipped,
	}
	if filesJSON.Valid && filesJSON.String != "" {
		if err := json.Unmarshal([]byte(filesJSON.String), &job.Files); err != nil {
			return nil, err
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	return job, nil
}

func encodeFiles(files []string) (any, error) {
	if len(files) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(files)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nowString() string {
	return formatTime(time.Now())
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
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
		args[i] = status
	}
	return args
}
