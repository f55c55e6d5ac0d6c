package queue

import (
	"strings"
	"time"

	"reel/internal/protocol"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DaemonStopReason is the error message used when a job is abandoned on shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a user-supplied status name.
func ParseStatus(value string) (Status, bool) {
	candidate := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == candidate {
			return status, true
		}
	}
	return "", false
}

// Job is one announced source directory waiting for or undergoing encoding.
type Job struct {
	ID            int64
	RequestID     string
	Version       int
	SourcePath    string
	DestDir       string
	Mode          protocol.Mode
	SourceType    protocol.SourceType
	Series        string
	Season        string
	Disc          string
	Files         []string
	Status        Status
	ErrorMessage  string
	FilesDone     int
	FilesFailed   int
	FilesSkipped  int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastHeartbeat *time.Time
}

// FilesHandled is the number of files with a final outcome.
func (j Job) FilesHandled() int {
	return j.FilesDone + j.FilesFailed + j.FilesSkipped
}

// IsProcessing reports whether the worker currently owns the job.
func (j Job) IsProcessing() bool {
	return j.Status == StatusProcessing
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
}
