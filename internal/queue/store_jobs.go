package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Enqueue inserts job as pending and returns the stored row. A missing
// RequestID is generated.
func (s *Store) Enqueue(ctx context.Context, job Job) (*Job, error) {
	if strings.TrimSpace(job.SourcePath) == "" {
		return nil, errors.New("enqueue: source path is empty")
	}
	if job.RequestID == "" {
		job.RequestID = uuid.NewString()
	}
	files, err := encodeFiles(job.Files)
	if err != nil {
		return nil, fmt.Errorf("encode files: %w", err)
	}
	timestamp := nowString()

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            request_id, version, source_path, dest_dir, mode, source_type,
            series, season, disc, files_json, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.RequestID,
		job.Version,
		job.SourcePath,
		job.DestDir,
		string(job.Mode),
		nullableString(string(job.SourceType)),
		nullableString(job.Series),
		nullableString(job.Season),
		nullableString(job.Disc),
		files,
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. A missing job yields (nil, nil).
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ClaimNext moves the oldest pending job to processing and returns it. It
// returns (nil, nil) when nothing is pending.
func (s *Store) ClaimNext(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)
	now := nowString()
	var job *Job
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(
			ctx,
			`UPDATE jobs
             SET status = ?, last_heartbeat = ?, updated_at = ?, error_message = NULL,
                 files_done = 0, files_failed = 0, files_skipped = 0
             WHERE id = (SELECT id FROM jobs WHERE status = ? ORDER BY id LIMIT 1)
             RETURNING `+jobColumns,
			StatusProcessing, now, now, StatusPending,
		)
		var scanErr error
		job, scanErr = scanJob(row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

// UpdateCounts persists the per-file outcome counters of a running job.
func (s *Store) UpdateCounts(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET files_done = ?, files_failed = ?, files_skipped = ?, updated_at = ? WHERE id = ?`,
		job.FilesDone, job.FilesFailed, job.FilesSkipped, nowString(), job.ID,
	); err != nil {
		return fmt.Errorf("update counts: %w", err)
	}
	return nil
}

// Complete finishes job. Without keepHistory the row is deleted.
func (s *Store) Complete(ctx context.Context, job *Job, keepHistory bool) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if !keepHistory {
		if _, err := s.Remove(ctx, job.ID); err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
		job.Status = StatusCompleted
		return nil
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, files_done = ?, files_failed = ?, files_skipped = ?,
             last_heartbeat = NULL, updated_at = ?
         WHERE id = ?`,
		StatusCompleted, job.FilesDone, job.FilesFailed, job.FilesSkipped, nowString(), job.ID,
	); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	job.Status = StatusCompleted
	return nil
}

// Fail marks a job failed with message.
func (s *Store) Fail(ctx context.Context, id int64, message string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_message = ?, last_heartbeat = NULL, updated_at = ? WHERE id = ?`,
		StatusFailed, nullableString(message), nowString(), id,
	); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// List returns jobs filtered by status set (or all jobs when no status is
// provided) in FIFO order.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		query := baseQuery + ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, statusArgs(statuses)...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Remove deletes a job by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes only completed jobs.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed jobs.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every job that the worker does not currently own.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status <> ?`, StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}
