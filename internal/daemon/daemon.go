package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"reel/internal/bus"
	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/metrics"
	"reel/internal/queue"
	"reel/internal/services"
	"reel/internal/workflow"
)

// ErrAlreadyRunning reports that another daemon holds the instance lock.
var ErrAlreadyRunning = errors.New("another reel daemon instance is already running")

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	bus      bus.Bus
	workflow *workflow.Manager
	metrics  *metrics.Metrics

	lockPath string
	lock     *flock.Flock

	active  atomic.Bool
	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies. m may be nil.
func New(cfg *config.Config, store *queue.Store, b bus.Bus, wf *workflow.Manager, m *metrics.Metrics, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || b == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, bus, and workflow manager")
	}
	lockPath := cfg.DaemonLockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		bus:      b,
		workflow: wf,
		metrics:  m,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Run holds the instance lock and processes inbound announcements until ctx
// ends. It returns nil on a clean shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.active.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.active.Store(false)

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	sub, err := d.bus.Subscribe(ctx, d.cfg.Bus.InboundTopic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", d.cfg.Bus.InboundTopic, err)
	}
	defer sub.Close()

	if err := d.workflow.Start(ctx); err != nil {
		return fmt.Errorf("start workflow: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.dispatch(gctx, sub)
	})
	if bind := d.cfg.Metrics.Bind; bind != "" {
		server := metrics.NewServer(bind, metrics.Handler(d.metrics, d.workflow.Health), d.logger)
		g.Go(func() error {
			return server.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		d.workflow.Stop()
		return nil
	})

	d.running.Store(true)
	defer d.running.Store(false)
	d.logger.Info("reel daemon started",
		logging.String("lock", d.lockPath),
		logging.String("topic", d.cfg.Bus.InboundTopic),
		logging.String("transport", d.cfg.Bus.Transport),
	)
	err = g.Wait()
	d.logger.Info("reel daemon stopped")
	return err
}

// dispatch forwards inbound payloads to the workflow manager. Rejections are
// logged by the manager and never stop the loop.
func (d *Daemon) dispatch(ctx context.Context, sub bus.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("inbound subscription closed")
			}
			msgCtx := services.WithRequestID(ctx, uuid.NewString())
			_ = d.workflow.HandleMessage(msgCtx, msg.Payload)
		}
	}
}

// Running reports whether Run is subscribed and the worker is started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Status(ctx),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
}
