package workflow

import (
	"context"
	"fmt"

	"reel/internal/logging"
	"reel/internal/queue"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	LastError   string
	LastJob     *queue.Job
	CurrentJob  *queue.Job
	CurrentFile string
	QueueStats  map[queue.Status]int
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{Running: m.running, CurrentFile: m.current}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastJob != nil {
		snapshot := *m.lastJob
		summary.LastJob = &snapshot
	}
	if m.currentJob != nil {
		snapshot := *m.currentJob
		summary.CurrentJob = &snapshot
	}
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats
	return summary
}

// Health reports an error when the worker is not running or the queue
// database is unreachable.
func (m *Manager) Health(ctx context.Context) error {
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()
	if !running {
		return fmt.Errorf("worker not running")
	}
	if _, err := m.store.Stats(ctx); err != nil {
		return fmt.Errorf("queue unavailable: %w", err)
	}
	return nil
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	m.mu.Lock()
	if job != nil {
		snapshot := *job
		m.lastJob = &snapshot
	} else {
		m.lastJob = nil
	}
	m.mu.Unlock()
}
