// Package daemonrun wires the daemon from configuration.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"reel/internal/bus"
	"reel/internal/config"
	"reel/internal/daemon"
	"reel/internal/deps"
	"reel/internal/encoding"
	"reel/internal/hwlock"
	"reel/internal/logging"
	"reel/internal/metrics"
	"reel/internal/pathmap"
	"reel/internal/preflight"
	"reel/internal/queue"
	"reel/internal/retry"
	"reel/internal/status"
	"reel/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	// SkipPreflight starts even when required checks fail.
	SkipPreflight bool
}

// Run starts the reel daemon and blocks until SIGINT/SIGTERM or cmdCtx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	ctx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	sessionID := uuid.NewString()
	logger, err := logging.NewFromConfig(cfg, sessionID)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := runPreflight(ctx, logger, cfg); err != nil && !opts.SkipPreflight {
		return err
	}

	pidPath := filepath.Join(cfg.Paths.StateDir, "reeld.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	mapper, err := pathmap.New(cfg.Paths)
	if err != nil {
		return fmt.Errorf("path mapping: %w", err)
	}
	logger.Info("source layout resolved",
		logging.String("layout", string(mapper.Layout())),
		logging.Int("roots", len(mapper.SourceRoots())),
	)

	m := metrics.New()
	b, err := bus.Open(ctx, cfg.Bus, logger)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("connect bus: %w", err)
	}
	defer b.Close()

	encoder, err := encoding.NewFFmpeg(cfg.Encoder, cfg.Hardware, encoding.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}

	mgr, err := workflow.NewManager(workflow.Deps{
		Config:    cfg,
		Store:     store,
		Mapper:    mapper,
		Encoder:   encoder,
		Lock:      newHardwareLock(cfg, logger, m),
		Retry:     newRetryPolicy(cfg, logger),
		Publisher: newPublisher(cfg, b, logger, m),
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}

	d, err := daemon.New(cfg, store, b, mgr, m, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Run(ctx); err != nil {
		return err
	}
	logger.Info("reel daemon shutting down")
	return nil
}

func newHardwareLock(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *hwlock.Lock {
	return hwlock.New(cfg.Hardware.LockPath, cfg.LockPollInterval(),
		hwlock.WithLogger(logging.NewComponentLogger(logger, "hwlock")),
		hwlock.WithWaitObserver(m.LockWaited),
	)
}

func newRetryPolicy(cfg *config.Config, logger *slog.Logger) retry.Policy {
	initial, maxDelay := cfg.RetryBackoff()
	policy := retry.NewPolicy(cfg.Hardware.MaxRetries, initial, maxDelay)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Debug("encode retry scheduled",
			logging.Int("attempt", attempt+1),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
	}
	return policy
}

// newPublisher builds the status publisher used by the daemon.
func newPublisher(cfg *config.Config, b bus.Publisher, logger *slog.Logger, m *metrics.Metrics) *status.Publisher {
	start, done, failed := cfg.Topics()
	return status.NewPublisher(b, status.Topics{Start: start, Done: done, Error: failed}, cfg.PublishTimeout(), logger, m)
}

// runPreflight logs every check and fails when a required one did not pass.
func runPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	results := preflight.RunAll(ctx, cfg)
	for _, r := range results {
		if r.Passed {
			logger.Info("preflight ok", logging.String("check", r.Name), logging.String("detail", r.Detail))
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.Bool("optional", r.Optional),
			logging.String(logging.FieldErrorHint, "fix permissions or paths in the configuration"),
		)
	}

	statuses := deps.CheckBinaries(deps.Requirements(cfg.Encoder.Binary))
	for _, st := range statuses {
		logger.Info("dependency",
			logging.String(logging.FieldEventType, "dependency_snapshot"),
			logging.String("name", st.Name),
			logging.String("command", st.Command),
			logging.Bool("available", st.Available),
		)
	}

	if failed := preflight.Failed(results); len(failed) > 0 {
		return fmt.Errorf("preflight: %s: %s", failed[0].Name, failed[0].Detail)
	}
	if missing := deps.Missing(statuses); len(missing) > 0 {
		return fmt.Errorf("dependency %s unavailable: %s", missing[0].Name, missing[0].Detail)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
