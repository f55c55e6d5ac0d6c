package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"reel/internal/encoding"
	"reel/internal/logging"
	"reel/internal/pathmap"
	"reel/internal/queue"
	"reel/internal/retry"
	"reel/internal/services"
	"reel/internal/status"
)

// errStopping reports a file abandoned because the daemon is shutting down
// before its encode started.
var errStopping = fmt.Errorf("%s: %w", queue.DaemonStopReason, status.ErrAbandoned)

// processJob encodes every media file of job. runCtx ends on shutdown; an
// encode already running is not interrupted.
func (m *Manager) processJob(runCtx context.Context, job *queue.Job) {
	ctx := services.WithJobID(runCtx, job.ID)
	ctx = services.WithRequestID(ctx, job.RequestID)
	ctx = services.WithDirectory(ctx, job.SourcePath)
	ctx = services.WithStage(ctx, "encode")
	logger := logging.WithContext(ctx, m.logger)

	// Heartbeats and store writes outlive shutdown so an in-flight encode
	// is still recorded.
	jobCtx, cancelJob := context.WithCancel(context.WithoutCancel(ctx))
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(jobCtx, &hbWG, job.ID)
	defer func() {
		cancelJob()
		hbWG.Wait()
		m.setCurrent(nil, "")
	}()

	m.setCurrent(job, "")
	started := time.Now()
	logger.Info("job started",
		logging.String("dest_dir", job.DestDir),
		logging.String("mode", string(job.Mode)),
	)

	files, err := ListMediaFiles(job.SourcePath, m.cfg.Paths.MediaExtensions, job.Files)
	if err != nil {
		m.failJob(jobCtx, logger, job, err)
		return
	}
	if len(files) == 0 {
		logger.Info("no media files found")
	}

	for _, rel := range files {
		if runCtx.Err() != nil {
			logger.Info("stopping between files; job resumes on next start",
				logging.Int("handled", job.FilesHandled()),
				logging.Int("total", len(files)),
			)
			return
		}
		deferred := m.processFile(runCtx, jobCtx, logger, job, rel)
		if err := m.store.UpdateCounts(jobCtx, job); err != nil {
			logger.Warn("failed to persist file counters", logging.Error(err))
		}
		if deferred {
			// Left in processing; the next start requeues the job.
			return
		}
	}

	m.finishJob(jobCtx, logger, job, len(files), time.Since(started))
}

// processFile handles one media file. It reports true when the file was put
// off because the daemon is stopping.
func (m *Manager) processFile(runCtx, jobCtx context.Context, logger *slog.Logger, job *queue.Job, rel string) bool {
	input := filepath.Join(job.SourcePath, rel)
	output := filepath.Join(job.DestDir, rel)
	m.setCurrent(job, input)

	mode := string(job.Mode)
	if pathmap.OutputExists(output) {
		job.FilesSkipped++
		m.metrics.FileHandled("skipped", mode)
		logger.Info("output exists; skipping", logging.String("input", input), logging.String("output", output))
		return false
	}

	attempts := 0
	err := m.publisher.Track(jobCtx, job.Version, job.ID, input, output, func(ctx context.Context, begin func()) error {
		if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
			return services.Wrap(services.ErrPermanent, "encode", "create output directory", filepath.Dir(output), err)
		}
		var err error
		attempts, err = m.policy.Do(runCtx, func(attempt int) error {
			return m.encodeOnce(runCtx, ctx, logger, job, input, output, attempt, begin)
		})
		return err
	})
	if errors.Is(err, errStopping) {
		logger.Info("file deferred until next start", logging.String("input", input))
		return true
	}
	if err != nil {
		job.FilesFailed++
		m.metrics.FileHandled("failed", mode)
		logging.ErrorWithContext(logger, "file failed", "encode_failed",
			logging.String("input", input),
			logging.String("output", output),
			logging.Int("attempts", attempts),
			logging.String("failure_kind", retry.Classify(err).String()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hintFor(err)),
		)
		return false
	}
	job.FilesDone++
	m.metrics.FileHandled("done", mode)
	logger.Info("file encoded",
		logging.String("input", input),
		logging.String("output", output),
		logging.Int("attempts", attempts),
	)
	return false
}

// encodeOnce runs a single attempt under the hardware lock. Waiting for the
// lock ends on shutdown; the encode itself runs on encodeCtx. begin is called
// once the lock is held, so start is never announced for a file that only
// waited.
func (m *Manager) encodeOnce(lockCtx, encodeCtx context.Context, logger *slog.Logger, job *queue.Job, input, output string, attempt int, begin func()) error {
	if lockCtx.Err() != nil {
		return errStopping
	}
	started := time.Now()
	err := m.lock.WithLock(lockCtx, func(context.Context) error {
		begin()
		return m.encoder.Encode(encodeCtx, encoding.Request{
			Input:      input,
			Output:     output,
			SourceType: job.SourceType,
		})
	})
	switch {
	case err == nil:
		m.metrics.EncodeAttempt("ok")
		m.metrics.EncodeFinished(time.Since(started))
	case errors.Is(err, context.Canceled) && lockCtx.Err() != nil:
		return errStopping
	default:
		kind := retry.Classify(err)
		m.metrics.EncodeAttempt(kind.String())
		if m.policy.ShouldRetry(attempt, kind) {
			logger.Warn("transient encode failure; retrying",
				logging.String("input", input),
				logging.Int("attempt", attempt+1),
				logging.Int("max_attempts", m.policy.MaxAttempts()),
				logging.Error(err),
			)
		}
	}
	return err
}

func (m *Manager) finishJob(ctx context.Context, logger *slog.Logger, job *queue.Job, total int, elapsed time.Duration) {
	attrs := []logging.Attr{
		logging.Int("total", total),
		logging.Int("done", job.FilesDone),
		logging.Int("skipped", job.FilesSkipped),
		logging.Int("failed", job.FilesFailed),
		logging.Duration("elapsed", elapsed),
	}
	m.setLastJob(job)

	if job.FilesFailed > 0 {
		msg := fmt.Sprintf("%d of %d files failed", job.FilesFailed, total)
		if err := m.store.Fail(ctx, job.ID, msg); err != nil {
			logger.Error("failed to record job failure", logging.Error(err))
		}
		job.Status = queue.StatusFailed
		job.ErrorMessage = msg
		m.metrics.JobFinished("failed")
		logger.Warn("job finished with failures", logging.Args(attrs...)...)
		return
	}
	if err := m.store.Complete(ctx, job, m.cfg.Queue.KeepHistory); err != nil {
		logger.Error("failed to complete job", logging.Error(err))
		m.setLastError(err)
	}
	m.metrics.JobFinished("completed")
	logger.Info("job completed", logging.Args(attrs...)...)
}

// failJob records a job that could not be processed at all and reports it
// once on the error topic.
func (m *Manager) failJob(ctx context.Context, logger *slog.Logger, job *queue.Job, cause error) {
	m.setLastError(cause)
	if err := m.store.Fail(ctx, job.ID, cause.Error()); err != nil {
		logger.Error("failed to record job failure", logging.Error(err))
	}
	job.Status = queue.StatusFailed
	job.ErrorMessage = cause.Error()
	m.setLastJob(job)
	m.metrics.JobFinished("failed")
	m.publisher.Error(ctx, job.Version, job.ID, job.SourcePath, job.DestDir, cause.Error())
	logging.ErrorWithContext(logger, "source directory unreadable", "job_failed",
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "check that the rip finished and the path is mounted"),
	)
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, errStopping):
		return "the file is retried when the daemon starts again"
	case errors.Is(err, services.ErrNotFound):
		return "check that the source file still exists"
	case retry.Classify(err) == retry.Transient:
		return "the hardware encoder stayed busy or failed to initialize; check other VAAPI users"
	default:
		return "inspect the ffmpeg output in error_detail; the source may be damaged"
	}
}
