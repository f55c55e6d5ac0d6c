package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"

	"reel/internal/logging"
	"reel/internal/pathmap"
	"reel/internal/protocol"
	"reel/internal/queue"
	"reel/internal/services"
)

// HandleMessage decodes a broker payload and enqueues it. It is the inbound
// topic callback; errors are already logged and counted.
func (m *Manager) HandleMessage(ctx context.Context, payload []byte) error {
	evt, err := protocol.DecodeRipDone(payload)
	if err != nil {
		m.reject(ctx, "decode", protocol.RipDoneEvent{}, err)
		return err
	}
	_, err = m.Enqueue(ctx, evt)
	return err
}

// Enqueue validates evt, resolves its destination, persists a pending job
// and wakes the worker. It never waits for the worker. Rejected events are
// not queued and publish nothing.
func (m *Manager) Enqueue(ctx context.Context, evt protocol.RipDoneEvent) (*queue.Job, error) {
	if err := evt.Validate(m.cfg.Bus.PayloadVersion); err != nil {
		reason := "invalid"
		if errors.Is(err, protocol.ErrUnsupportedVersion) {
			reason = "version"
		}
		m.reject(ctx, reason, evt, err)
		return nil, err
	}

	res, err := m.mapper.Resolve(evt.SourcePath, evt.Mode)
	if err != nil {
		m.reject(ctx, "unmapped", evt, err)
		return nil, services.Wrap(services.ErrValidation, "enqueue", "resolve destination", "", err)
	}

	info, err := os.Stat(evt.SourcePath)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is not a directory", evt.SourcePath)
		}
		m.reject(ctx, "missing_source", evt, err)
		return nil, services.Wrap(services.ErrNotFound, "enqueue", "stat source", evt.SourcePath, err)
	}

	sourceType := evt.SourceType
	if sourceType == "" {
		stop := res.Root.Dir
		if stop == "" {
			stop = evt.SourcePath
		}
		sourceType = pathmap.DetectSourceType(evt.SourcePath, stop, res.SourceType)
	}

	requestID, _ := services.RequestIDFromContext(ctx)
	job, err := m.store.Enqueue(ctx, queue.Job{
		RequestID:  requestID,
		Version:    evt.Version,
		SourcePath: evt.SourcePath,
		DestDir:    res.DestDir,
		Mode:       res.Mode,
		SourceType: sourceType,
		Series:     evt.Series,
		Season:     evt.Season,
		Disc:       evt.Disc,
		Files:      evt.Files,
	})
	if err != nil {
		m.setLastError(err)
		logging.ErrorWithContext(m.logger, "failed to persist job", "enqueue_failed",
			logging.String(logging.FieldDirectory, evt.SourcePath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return nil, fmt.Errorf("enqueue %s: %w", evt.SourcePath, err)
	}

	m.metrics.EventAccepted()
	m.refreshQueueDepth(ctx)
	m.logger.Info("job queued",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldCorrelationID, job.RequestID),
		logging.String(logging.FieldDirectory, job.SourcePath),
		logging.String("dest_dir", job.DestDir),
		logging.String("mode", string(job.Mode)),
		logging.String("source_type", string(job.SourceType)),
		logging.Int("files", len(job.Files)),
	)
	m.notify()
	return job, nil
}

func (m *Manager) reject(ctx context.Context, reason string, evt protocol.RipDoneEvent, err error) {
	m.metrics.EventRejected(reason)
	logging.WarnWithContext(logging.WithContext(ctx, m.logger), "announcement rejected", "event_rejected",
		logging.String("reason", reason),
		logging.String(logging.FieldDirectory, evt.SourcePath),
		logging.Int("version", evt.Version),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the ripper payload and path configuration"),
		logging.String(logging.FieldImpact, "this directory is not transcoded until announced again"),
	)
}
