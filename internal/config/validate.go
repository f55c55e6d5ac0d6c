package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateBus(); err != nil {
		return err
	}
	if err := c.validateHardware(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.SourceBase) == "" {
		return errors.New("paths.source_base must be set (or SRC_BASE)")
	}
	for key, value := range map[string]string{
		"paths.series_subpath": c.Paths.SeriesSubpath,
		"paths.movie_subpath":  c.Paths.MovieSubpath,
	} {
		if err := validateSubpath(key, value); err != nil {
			return err
		}
	}
	if c.Paths.SeriesDest == "" {
		return errors.New("paths.series_dest must be set")
	}
	if c.Paths.MovieDest == "" {
		return errors.New("paths.movie_dest must be set")
	}
	switch c.Paths.Layout {
	case "auto", "flat", "split":
	default:
		return fmt.Errorf("paths.layout: unsupported value %q (want auto, flat or split)", c.Paths.Layout)
	}
	switch c.Paths.DefaultSourceType {
	case "dvd", "bluray":
	default:
		return fmt.Errorf("paths.default_source_type must be dvd or bluray, got %q", c.Paths.DefaultSourceType)
	}
	return nil
}

func validateSubpath(key, value string) error {
	if filepath.IsAbs(value) {
		return fmt.Errorf("%s must be relative, got %q", key, value)
	}
	cleaned := filepath.Clean(value)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("%s must name a directory below the source root, got %q", key, value)
	}
	return nil
}

func (c *Config) validateBus() error {
	switch c.Bus.Transport {
	case "mqtt", "redis", "memory":
	default:
		return fmt.Errorf("bus.transport: unsupported value %q (want mqtt, redis or memory)", c.Bus.Transport)
	}
	if c.Bus.Port <= 0 || c.Bus.Port > 65535 {
		return fmt.Errorf("bus.port out of range: %d", c.Bus.Port)
	}
	for key, value := range map[string]string{
		"bus.inbound_topic": c.Bus.InboundTopic,
		"bus.start_topic":   c.Bus.StartTopic,
		"bus.done_topic":    c.Bus.DoneTopic,
		"bus.error_topic":   c.Bus.ErrorTopic,
	} {
		if value == "" {
			return fmt.Errorf("%s must be set", key)
		}
	}
	if c.Bus.PayloadVersion <= 0 {
		return errors.New("bus.payload_version must be positive")
	}
	return nil
}

func (c *Config) validateHardware() error {
	if !filepath.IsAbs(c.Hardware.LockPath) {
		return fmt.Errorf("hardware.lock_path must be absolute, got %q", c.Hardware.LockPath)
	}
	if c.Hardware.MaxRetries < 0 {
		return errors.New("hardware.max_retries must not be negative")
	}
	if c.Hardware.RetryBackoff < 0 || c.Hardware.RetryBackoffMax < 0 {
		return errors.New("hardware.retry_backoff values must not be negative")
	}
	if c.Hardware.RetryBackoffMax > 0 && c.Hardware.RetryBackoffMax < c.Hardware.RetryBackoff {
		return errors.New("hardware.retry_backoff_max must be >= hardware.retry_backoff")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.HeartbeatInterval <= 0 {
		return errors.New("queue.heartbeat_interval must be positive")
	}
	if c.Queue.HeartbeatTimeout <= c.Queue.HeartbeatInterval {
		return errors.New("queue.heartbeat_timeout must be greater than queue.heartbeat_interval")
	}
	if c.Queue.ErrorRetryInterval <= 0 {
		return errors.New("queue.error_retry_interval must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
