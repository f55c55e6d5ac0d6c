package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"reel/internal/bus"
	"reel/internal/config"
	"reel/internal/encoding"
	"reel/internal/hwlock"
	"reel/internal/logging"
	"reel/internal/pathmap"
	"reel/internal/queue"
	"reel/internal/retry"
	"reel/internal/status"
	"reel/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) withStore(fn func(*config.Config, *queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

// cliLogger writes warnings and errors to stderr so command output stays
// parseable.
func cliLogger(level string) *slog.Logger {
	if level == "" {
		level = "warn"
	}
	logger, err := logging.New(logging.Options{Level: level, Format: "console", OutputPaths: []string{"stderr"}})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

// newLocalManager builds a workflow manager that is only used to validate and
// persist announcements; its worker is never started.
func newLocalManager(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*workflow.Manager, error) {
	mapper, err := pathmap.New(cfg.Paths)
	if err != nil {
		return nil, err
	}
	encoder, err := encoding.NewFFmpeg(cfg.Encoder, cfg.Hardware)
	if err != nil {
		return nil, err
	}
	start, done, failed := cfg.Topics()
	return workflow.NewManager(workflow.Deps{
		Config:    cfg,
		Store:     store,
		Mapper:    mapper,
		Encoder:   encoder,
		Lock:      hwlock.New(cfg.Hardware.LockPath, cfg.LockPollInterval()),
		Retry:     retry.NewPolicy(cfg.Hardware.MaxRetries, 0, 0),
		Publisher: status.NewPublisher(bus.NewMemoryBus(), status.Topics{Start: start, Done: done, Error: failed}, cfg.PublishTimeout(), logger, nil),
		Logger:    logger,
	})
}

func openBus(ctx context.Context, cfg *config.Config, logger *slog.Logger) (bus.Bus, error) {
	b, err := bus.Open(ctx, cfg.Bus, logger)
	if err != nil {
		return nil, fmt.Errorf("connect %s broker at %s:%d: %w", cfg.Bus.Transport, cfg.Bus.Host, cfg.Bus.Port, err)
	}
	return b, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
