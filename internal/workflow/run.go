package workflow

import (
	"context"
	"errors"
	"time"

	"reel/internal/logging"
	"reel/internal/queue"
)

// Start resets jobs left in processing by a previous run and launches the
// worker.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	m.mu.Unlock()

	reset, err := m.store.ResetProcessing(ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		m.logger.Info("requeued interrupted jobs", logging.Int64("count", reset))
	}
	m.refreshQueueDepth(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	go m.runWorker(runCtx)
	return nil
}

// Stop asks the worker to finish its current file and waits for it.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Wait blocks until the worker has exited.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) runWorker(ctx context.Context) {
	defer m.wg.Done()
	logger := m.logger
	logger.Info("worker started")
	defer logger.Info("worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		if err := m.heartbeat.ReclaimStaleJobs(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(logger, "reclaim stale jobs failed; stuck jobs may remain", "heartbeat_reclaim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}

		job, err := m.store.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleClaimError(ctx, err)
			continue
		}
		if job == nil {
			m.waitForJobOrShutdown(ctx)
			continue
		}

		m.refreshQueueDepth(ctx)
		m.processJob(ctx, job)
	}
}

func (m *Manager) handleClaimError(ctx context.Context, err error) {
	m.setLastError(err)
	logging.ErrorWithContext(m.logger, "failed to claim next job", "queue_fetch_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(m.cfg.Queue.ErrorRetryInterval) * time.Second):
	}
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	timer := time.NewTimer(m.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-timer.C:
	}
}

func (m *Manager) setCurrent(job *queue.Job, file string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job == nil {
		m.currentJob = nil
		m.current = ""
		return
	}
	snapshot := *job
	m.currentJob = &snapshot
	m.current = file
}
