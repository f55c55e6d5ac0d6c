package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"reel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The source tree uses the flat layout and the bus is in-memory; retries do
// not back off.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.SourceBase = filepath.Join(base, "raw")
	cfgVal.Paths.SeriesDest = filepath.Join(base, "out", "Serien")
	cfgVal.Paths.MovieDest = filepath.Join(base, "out", "Filme")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.Layout = "flat"
	cfgVal.Bus.Transport = "memory"
	cfgVal.Bus.Port = 1883
	cfgVal.Bus.PublishTimeout = 1
	cfgVal.Hardware.LockPath = filepath.Join(base, "vaapi.lock")
	cfgVal.Hardware.LockPollInterval = 5
	cfgVal.Hardware.RetryBackoff = 0
	cfgVal.Hardware.RetryBackoffMax = 0
	cfgVal.Queue.HeartbeatInterval = 1
	cfgVal.Queue.HeartbeatTimeout = 5
	cfgVal.Queue.ErrorRetryInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	for _, dir := range []string{
		cfgVal.Paths.SourceBase,
		cfgVal.Paths.StateDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return builder.cfg
}

// WithSplitLayout switches the source tree to <source_base>/<dvd|bluray>/...
// and creates both source type directories.
func WithSplitLayout() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.Layout = "split"
		for _, kind := range []string{"dvd", "bluray"} {
			dir := filepath.Join(b.cfg.Paths.SourceBase, kind)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				b.t.Fatalf("mkdir %s: %v", dir, err)
			}
		}
	}
}

// WithMaxRetries overrides the transient failure retry budget.
func WithMaxRetries(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Hardware.MaxRetries = n
	}
}

// WithKeepHistory keeps completed jobs in the queue.
func WithKeepHistory() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.KeepHistory = true
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// SeriesSource returns the series source root for the flat layout.
func SeriesSource(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.SourceBase, cfg.Paths.SeriesSubpath)
}

// MovieSource returns the movie source root for the flat layout.
func MovieSource(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.SourceBase, cfg.Paths.MovieSubpath)
}
