package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reel/internal/retry"
	"reel/internal/services"
)

type kindError struct{ kind retry.FailureKind }

func (e kindError) Error() string                  { return "classified " + e.kind.String() }
func (e kindError) FailureKind() retry.FailureKind { return e.kind }

func TestShouldRetry(t *testing.T) {
	policy := retry.NewPolicy(2, 0, 0)
	assert.True(t, policy.ShouldRetry(0, retry.Transient))
	assert.True(t, policy.ShouldRetry(1, retry.Transient))
	assert.False(t, policy.ShouldRetry(2, retry.Transient))
	assert.False(t, policy.ShouldRetry(0, retry.Permanent))
	assert.Equal(t, 3, policy.MaxAttempts())

	none := retry.NewPolicy(-1, 0, 0)
	assert.False(t, none.ShouldRetry(0, retry.Transient))
	assert.Equal(t, 1, none.MaxAttempts())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, retry.Transient, retry.Classify(services.Wrap(services.ErrHardwareBusy, "encode", "", "busy", nil)))
	assert.Equal(t, retry.Transient, retry.Classify(kindError{retry.Transient}))
	assert.Equal(t, retry.Permanent, retry.Classify(kindError{retry.Permanent}))
	assert.Equal(t, retry.Permanent, retry.Classify(errors.New("corrupt input")))
	assert.Equal(t, retry.Permanent, retry.Classify(nil))
}

func TestDoAttemptsBoundedByPolicy(t *testing.T) {
	for _, observed := range []int{1, 2, 3, 5} {
		policy := retry.NewPolicy(2, 0, 0)
		calls := 0
		attempts, err := policy.Do(context.Background(), func(int) error {
			calls++
			if calls < observed {
				return kindError{retry.Transient}
			}
			return nil
		})
		want := min(observed, policy.MaxAttempts())
		assert.Equal(t, want, attempts, "observed=%d", observed)
		assert.Equal(t, want, calls, "observed=%d", observed)
		if observed > policy.MaxAttempts() {
			require.Error(t, err)
		} else {
			require.NoError(t, err)
		}
	}
}

func TestDoStopsOnPermanentFailure(t *testing.T) {
	policy := retry.NewPolicy(5, 0, 0)
	var retried []int
	policy.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

	attempts, err := policy.Do(context.Background(), func(attempt int) error {
		if attempt == 0 {
			return kindError{retry.Transient}
		}
		return kindError{retry.Permanent}
	})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []int{0}, retried)
}

func TestDoBacksOffBetweenAttempts(t *testing.T) {
	policy := retry.NewPolicy(1, 20*time.Millisecond, 20*time.Millisecond)
	start := time.Now()
	attempts, err := policy.Do(context.Background(), func(int) error { return kindError{retry.Transient} })
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestDoCancelledDuringBackoff(t *testing.T) {
	policy := retry.NewPolicy(3, time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	failure := kindError{retry.Transient}
	policy.OnRetry = func(int, error, time.Duration) { cancel() }

	attempts, err := policy.Do(ctx, func(int) error { return failure })
	assert.Equal(t, 1, attempts)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, failure)
}
