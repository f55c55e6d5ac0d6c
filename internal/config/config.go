package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths describes the raw source tree and the two destination trees.
type Paths struct {
	SourceBase        string   `toml:"source_base"`
	SeriesSubpath     string   `toml:"series_subpath"`
	MovieSubpath      string   `toml:"movie_subpath"`
	SeriesDest        string   `toml:"series_dest"`
	MovieDest         string   `toml:"movie_dest"`
	Layout            string   `toml:"layout"`
	DefaultSourceType string   `toml:"default_source_type"`
	StateDir          string   `toml:"state_dir"`
	MediaExtensions   []string `toml:"media_extensions"`
}

// Bus contains message broker settings.
type Bus struct {
	Transport      string `toml:"transport"`
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TLS            bool   `toml:"tls"`
	ClientID       string `toml:"client_id"`
	RedisDB        int    `toml:"redis_db"`
	InboundTopic   string `toml:"inbound_topic"`
	StartTopic     string `toml:"start_topic"`
	DoneTopic      string `toml:"done_topic"`
	ErrorTopic     string `toml:"error_topic"`
	PayloadVersion int    `toml:"payload_version"`
	PublishTimeout int    `toml:"publish_timeout"`
	ConnectRetry   int    `toml:"connect_retry"`
}

// Hardware contains settings for the shared transcoding device.
type Hardware struct {
	LockPath         string `toml:"lock_path"`
	Device           string `toml:"device"`
	MaxRetries       int    `toml:"max_retries"`
	RetryBackoff     int    `toml:"retry_backoff"`
	RetryBackoffMax  int    `toml:"retry_backoff_max"`
	LockPollInterval int    `toml:"lock_poll_interval_ms"`
}

// Encoder contains the ffmpeg invocation settings.
type Encoder struct {
	Binary     string   `toml:"binary"`
	VideoCodec string   `toml:"video_codec"`
	QP         int      `toml:"qp"`
	ExtraArgs  []string `toml:"extra_args"`
}

// Queue contains job queue persistence and worker timing settings.
type Queue struct {
	KeepHistory        bool `toml:"keep_history"`
	HeartbeatInterval  int  `toml:"heartbeat_interval"`
	HeartbeatTimeout   int  `toml:"heartbeat_timeout"`
	ErrorRetryInterval int  `toml:"error_retry_interval"`
}

// Metrics configures the optional Prometheus endpoint.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for reel.
//
// Configuration sections by subsystem:
//   - Paths: raw source tree, destination trees and layout convention
//   - Bus: broker transport, credentials and topics
//   - Hardware: lock file, render device and retry policy
//   - Encoder: ffmpeg binary and encode parameters
//   - Queue: durable job queue and worker heartbeat
//   - Metrics: optional Prometheus endpoint
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Bus      Bus      `toml:"bus"`
	Hardware Hardware `toml:"hardware"`
	Encoder  Encoder  `toml:"encoder"`
	Queue    Queue    `toml:"queue"`
	Metrics  Metrics  `toml:"metrics"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. Environment variables override file values.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	if value, ok := os.LookupEnv("REEL_CONFIG"); ok && strings.TrimSpace(value) != "" {
		return resolveConfigPath(strings.TrimSpace(value))
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon owns. Destination
// trees are not created here; they are checked by preflight and created per
// job on demand.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.StateDir, err)
	}
	return nil
}

// QueuePath returns the SQLite job queue location.
func (c *Config) QueuePath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// LogPath returns the daemon log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.StateDir, "reel.log")
}

// DaemonLockPath returns the single-instance lock used by the daemon.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.StateDir, "reeld.lock")
}

// PublishTimeout returns the bound applied to each broker publish.
func (c *Config) PublishTimeout() time.Duration {
	return time.Duration(c.Bus.PublishTimeout) * time.Second
}

// ConnectRetryInterval returns the delay between broker connection attempts.
func (c *Config) ConnectRetryInterval() time.Duration {
	return time.Duration(c.Bus.ConnectRetry) * time.Second
}

// LockPollInterval returns the interval used while waiting for the hardware lock.
func (c *Config) LockPollInterval() time.Duration {
	return time.Duration(c.Hardware.LockPollInterval) * time.Millisecond
}

// RetryBackoff returns the initial and maximum delay between encode attempts.
func (c *Config) RetryBackoff() (time.Duration, time.Duration) {
	return time.Duration(c.Hardware.RetryBackoff) * time.Second,
		time.Duration(c.Hardware.RetryBackoffMax) * time.Second
}

// Topics returns the status topics in start, done, error order.
func (c *Config) Topics() (string, string, string) {
	return c.Bus.StartTopic, c.Bus.DoneTopic, c.Bus.ErrorTopic
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := renameio.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
