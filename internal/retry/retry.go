// Package retry decides whether a failed encode attempt is repeated and
// paces the repeats with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"reel/internal/services"
)

// DefaultMaxRetries is the number of additional attempts after the first.
const DefaultMaxRetries = 2

// FailureKind classifies a failed attempt.
type FailureKind int

const (
	Permanent FailureKind = iota
	Transient
)

func (k FailureKind) String() string {
	if k == Transient {
		return "transient"
	}
	return "permanent"
}

// Classifier is implemented by errors that know their own failure kind.
type Classifier interface {
	FailureKind() FailureKind
}

// Classify reports the failure kind of err. Errors implementing Classifier
// decide for themselves; otherwise the services markers for contention and
// timeouts are transient and everything else is permanent.
func Classify(err error) FailureKind {
	if err == nil {
		return Permanent
	}
	var classified Classifier
	if errors.As(err, &classified) {
		return classified.FailureKind()
	}
	if services.Retryable(err) {
		return Transient
	}
	return Permanent
}

// Policy bounds retries of transient failures.
type Policy struct {
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// OnRetry, when set, is called before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// NewPolicy builds a policy; negative retries are treated as zero.
func NewPolicy(maxRetries int, initial, max time.Duration) Policy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if max > 0 && max < initial {
		max = initial
	}
	return Policy{MaxRetries: maxRetries, BackoffInitial: initial, BackoffMax: max}
}

// ShouldRetry reports whether the attempt with zero-based index attempt,
// which failed with kind, is followed by another attempt.
func (p Policy) ShouldRetry(attempt int, kind FailureKind) bool {
	return kind == Transient && attempt >= 0 && attempt < p.MaxRetries
}

// MaxAttempts returns the total number of attempts allowed.
func (p Policy) MaxAttempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return 1 + p.MaxRetries
}

func (p Policy) newBackOff() backoff.BackOff {
	if p.BackoffInitial <= 0 {
		return &backoff.ZeroBackOff{}
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BackoffInitial
	exp.RandomizationFactor = 0.2
	exp.Multiplier = 2
	exp.MaxInterval = p.BackoffMax
	if exp.MaxInterval <= 0 {
		exp.MaxInterval = p.BackoffInitial
	}
	exp.MaxElapsedTime = 0
	exp.Reset()
	return exp
}

// Do runs fn until it succeeds, fails permanently, or the retry budget is
// spent. It returns the number of attempts made and the last error. A
// cancelled ctx interrupts only the backoff sleep, never a running attempt.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) (int, error) {
	b := p.newBackOff()
	for attempt := 0; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return attempt + 1, nil
		}
		if !p.ShouldRetry(attempt, Classify(err)) {
			return attempt + 1, err
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return attempt + 1, err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if delay <= 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return attempt + 1, errors.Join(err, ctxErr)
			}
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt + 1, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}
