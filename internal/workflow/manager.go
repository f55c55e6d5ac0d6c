package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"reel/internal/config"
	"reel/internal/encoding"
	"reel/internal/hwlock"
	"reel/internal/logging"
	"reel/internal/metrics"
	"reel/internal/pathmap"
	"reel/internal/queue"
	"reel/internal/retry"
	"reel/internal/status"
)

const defaultPollInterval = 5 * time.Second

// Deps are the collaborators the manager drives.
type Deps struct {
	Config    *config.Config
	Store     *queue.Store
	Mapper    *pathmap.Mapper
	Encoder   encoding.Encoder
	Lock      *hwlock.Lock
	Retry     retry.Policy
	Publisher *status.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithPollInterval sets how often the idle worker re-checks the store for
// jobs added by other processes.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// Manager owns the job queue and its single worker.
type Manager struct {
	cfg       *config.Config
	store     *queue.Store
	mapper    *pathmap.Mapper
	encoder   encoding.Encoder
	lock      *hwlock.Lock
	policy    retry.Policy
	publisher *status.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	pollInterval time.Duration
	heartbeat    *HeartbeatMonitor
	wake         chan struct{}

	mu         sync.RWMutex
	running    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	lastErr    error
	lastJob    *queue.Job
	currentJob *queue.Job
	current    string
}

// NewManager validates deps and constructs a manager.
func NewManager(deps Deps, opts ...Option) (*Manager, error) {
	switch {
	case deps.Config == nil:
		return nil, errors.New("workflow: config is required")
	case deps.Store == nil:
		return nil, errors.New("workflow: store is required")
	case deps.Mapper == nil:
		return nil, errors.New("workflow: path mapper is required")
	case deps.Encoder == nil:
		return nil, errors.New("workflow: encoder is required")
	case deps.Lock == nil:
		return nil, errors.New("workflow: hardware lock is required")
	case deps.Publisher == nil:
		return nil, errors.New("workflow: status publisher is required")
	}
	logger := logging.NewComponentLogger(deps.Logger, "workflow")
	m := &Manager{
		cfg:          deps.Config,
		store:        deps.Store,
		mapper:       deps.Mapper,
		encoder:      deps.Encoder,
		lock:         deps.Lock,
		policy:       deps.Retry,
		publisher:    deps.Publisher,
		metrics:      deps.Metrics,
		logger:       logger,
		pollInterval: defaultPollInterval,
		heartbeat: NewHeartbeatMonitor(
			deps.Store,
			logger,
			time.Duration(deps.Config.Queue.HeartbeatInterval)*time.Second,
			time.Duration(deps.Config.Queue.HeartbeatTimeout)*time.Second,
		),
		wake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// notify wakes the worker without blocking.
func (m *Manager) notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) refreshQueueDepth(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		return
	}
	m.metrics.SetQueueDepth(stats[queue.StatusPending])
}
