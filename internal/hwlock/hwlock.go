// Package hwlock guards the shared hardware encoder with an advisory file
// lock that is visible to every process on the host, including manual
// ffmpeg runs that flock the same path.
package hwlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"reel/internal/logging"
)

const defaultPollInterval = 250 * time.Millisecond

// Lock names a system-wide exclusive lock. Each Acquire opens its own file
// descriptor, so two Acquire calls in one process exclude each other exactly
// like two processes do.
type Lock struct {
	path   string
	poll   time.Duration
	logger *slog.Logger
	onWait func(time.Duration)
}

// Option customizes a Lock.
type Option func(*Lock)

// WithLogger attaches a logger used while waiting for a contended lock.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lock) { l.logger = logger }
}

// WithWaitObserver receives the time spent waiting for each acquisition.
func WithWaitObserver(fn func(time.Duration)) Option {
	return func(l *Lock) { l.onWait = fn }
}

// New returns a lock for path. pollInterval bounds how quickly a released
// lock is noticed; zero selects a default.
func New(path string, pollInterval time.Duration, opts ...Option) *Lock {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	l := &Lock{path: path, poll: pollInterval, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logging.NewNop()
	}
	return l
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Handle is an acquired lock. Release is safe to call more than once.
type Handle struct {
	fl   *flock.Flock
	once sync.Once
	err  error
}

// Acquire blocks until the lock is held. There is no timeout; only ctx
// cancellation ends the wait.
func (l *Lock) Acquire(ctx context.Context) (*Handle, error) {
	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create lock directory: %w", err)
		}
	}
	fl := flock.New(l.path)
	started := time.Now()

	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", l.path, err)
	}
	if !ok {
		l.logger.Info("waiting for hardware lock", logging.String("lock_path", l.path))
		ok, err = fl.TryLockContext(ctx, l.poll)
		if err != nil {
			_ = fl.Close()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("lock %s: %w", l.path, err)
		}
		if !ok {
			_ = fl.Close()
			return nil, fmt.Errorf("lock %s: not acquired", l.path)
		}
	}

	waited := time.Since(started)
	if l.onWait != nil {
		l.onWait(waited)
	}
	l.logger.Debug("hardware lock acquired", logging.String("lock_path", l.path), logging.Duration("waited", waited))
	return &Handle{fl: fl}, nil
}

// Release unlocks and closes the underlying descriptor.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		h.err = h.fl.Unlock()
		if closeErr := h.fl.Close(); closeErr != nil && h.err == nil && !errors.Is(closeErr, os.ErrClosed) {
			h.err = closeErr
		}
	})
	return h.err
}

// WithLock runs fn while holding the lock. The lock is released on every
// exit path, including a panic in fn, which is re-raised after release.
func (l *Lock) WithLock(ctx context.Context, fn func(context.Context) error) (err error) {
	handle, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := handle.Release(); releaseErr != nil {
			l.logger.Warn("hardware lock release failed",
				logging.String("lock_path", l.path),
				logging.Error(releaseErr),
				logging.String(logging.FieldEventType, "hwlock_release_failed"),
				logging.String(logging.FieldErrorHint, "check permissions on the lock file"),
				logging.String(logging.FieldImpact, "other encoders may wait until this process exits"),
			)
			if err == nil {
				err = fmt.Errorf("release lock: %w", releaseErr)
			}
		}
	}()
	return fn(ctx)
}

// Held reports whether another descriptor currently holds the lock. It never
// blocks.
func (l *Lock) Held() (bool, error) {
	fl := flock.New(l.path)
	ok, err := fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("check lock %s: %w", l.path, err)
	}
	if !ok {
		_ = fl.Close()
		return true, nil
	}
	if err := fl.Unlock(); err != nil {
		return false, fmt.Errorf("release check lock: %w", err)
	}
	_ = fl.Close()
	return false, nil
}
