package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBus()
	c.normalizeEncoder()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.SourceBase, err = expandPath(c.Paths.SourceBase); err != nil {
		return fmt.Errorf("paths.source_base: %w", err)
	}
	if c.Paths.SeriesDest, err = expandPath(c.Paths.SeriesDest); err != nil {
		return fmt.Errorf("paths.series_dest: %w", err)
	}
	if c.Paths.MovieDest, err = expandPath(c.Paths.MovieDest); err != nil {
		return fmt.Errorf("paths.movie_dest: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	c.Paths.SeriesSubpath = strings.Trim(strings.TrimSpace(c.Paths.SeriesSubpath), "/")
	c.Paths.MovieSubpath = strings.Trim(strings.TrimSpace(c.Paths.MovieSubpath), "/")
	if c.Paths.SeriesSubpath == "" {
		c.Paths.SeriesSubpath = defaultSeriesSubpath
	}
	if c.Paths.MovieSubpath == "" {
		c.Paths.MovieSubpath = defaultMovieSubpath
	}
	c.Paths.Layout = strings.ToLower(strings.TrimSpace(c.Paths.Layout))
	if c.Paths.Layout == "" {
		c.Paths.Layout = defaultLayout
	}
	c.Paths.DefaultSourceType = strings.ToLower(strings.TrimSpace(c.Paths.DefaultSourceType))
	if c.Paths.DefaultSourceType == "" {
		c.Paths.DefaultSourceType = defaultSourceType
	}

	exts := make([]string, 0, len(c.Paths.MediaExtensions))
	seen := make(map[string]struct{}, len(c.Paths.MediaExtensions))
	for _, ext := range c.Paths.MediaExtensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = append(exts, defaultMediaExtensions...)
	}
	c.Paths.MediaExtensions = exts
	return nil
}

func (c *Config) normalizeBus() {
	c.Bus.Transport = strings.ToLower(strings.TrimSpace(c.Bus.Transport))
	if c.Bus.Transport == "" {
		c.Bus.Transport = defaultBusTransport
	}
	c.Bus.Host = strings.TrimSpace(c.Bus.Host)
	if c.Bus.Host == "" {
		c.Bus.Host = defaultBusHost
	}
	if c.Bus.Port == 0 {
		switch c.Bus.Transport {
		case "redis":
			c.Bus.Port = defaultRedisPort
		default:
			c.Bus.Port = defaultMQTTPort
		}
	}
	c.Bus.ClientID = strings.TrimSpace(c.Bus.ClientID)
	c.Bus.InboundTopic = strings.TrimSpace(c.Bus.InboundTopic)
	c.Bus.StartTopic = strings.TrimSpace(c.Bus.StartTopic)
	c.Bus.DoneTopic = strings.TrimSpace(c.Bus.DoneTopic)
	c.Bus.ErrorTopic = strings.TrimSpace(c.Bus.ErrorTopic)
	if c.Bus.PublishTimeout <= 0 {
		c.Bus.PublishTimeout = defaultPublishTimeout
	}
	if c.Bus.ConnectRetry <= 0 {
		c.Bus.ConnectRetry = defaultConnectRetry
	}
}

func (c *Config) normalizeEncoder() {
	c.Encoder.Binary = strings.TrimSpace(c.Encoder.Binary)
	if c.Encoder.Binary == "" {
		c.Encoder.Binary = defaultFFmpegBinary
	}
	c.Encoder.VideoCodec = strings.TrimSpace(c.Encoder.VideoCodec)
	if c.Encoder.VideoCodec == "" {
		c.Encoder.VideoCodec = defaultVideoCodec
	}
	c.Hardware.LockPath = strings.TrimSpace(c.Hardware.LockPath)
	if c.Hardware.LockPath == "" {
		c.Hardware.LockPath = defaultLockPath
	}
	c.Hardware.Device = strings.TrimSpace(c.Hardware.Device)
	if c.Hardware.LockPollInterval <= 0 {
		c.Hardware.LockPollInterval = defaultLockPollInterval
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
