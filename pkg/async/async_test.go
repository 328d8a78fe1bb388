package async

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo(t *testing.T) {
	t.Run("runs the task", func(t *testing.T) {
		done := make(chan struct{})
		Go(context.Background(), time.Second, "test task", func(ctx context.Context) error {
			close(done)
			return nil
		})
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("task never ran")
		}
	})

	t.Run("recovers from panic", func(t *testing.T) {
		done := make(chan struct{})
		Go(context.Background(), time.Second, "panicking task", func(ctx context.Context) error {
			defer close(done)
			panic("boom")
		})
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("task never ran")
		}
		// Reaching here without the test binary dying is the assertion.
	})

	t.Run("enforces the timeout", func(t *testing.T) {
		errs := make(chan error, 1)
		Go(context.Background(), 10*time.Millisecond, "slow task", func(ctx context.Context) error {
			<-ctx.Done()
			errs <- ctx.Err()
			return nil
		})
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout never fired")
		}
	})
}

func TestRetryPolicy_NextDelay(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
	})

	assert.Equal(t, time.Second, policy.NextDelay(0))
	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	assert.Equal(t, 8*time.Second, policy.NextDelay(4))
	// Capped at MaxDelay.
	assert.Equal(t, 10*time.Second, policy.NextDelay(5))
	assert.Equal(t, 10*time.Second, policy.NextDelay(50))
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 2.0})

	assert.False(t, policy.ShouldRetry(1, nil))
	assert.True(t, policy.ShouldRetry(1, errors.New("fail")))
	assert.True(t, policy.ShouldRetry(2, errors.New("fail")))
	assert.False(t, policy.ShouldRetry(3, errors.New("fail")))
}

func TestRetryPolicy_Defaults(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{})
	assert.Equal(t, 5, policy.MaxAttempts())
	assert.Equal(t, time.Second, policy.NextDelay(1))
}

func TestRetryPolicy_Retry(t *testing.T) {
	fast := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffMultiplier: 2.0}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		policy := NewRetryPolicy(fast)
		attempts := 0
		err := policy.Retry(context.Background(), "flaky", func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("returns the last error after exhausting attempts", func(t *testing.T) {
		policy := NewRetryPolicy(fast)
		attempts := 0
		err := policy.Retry(context.Background(), "hopeless", func(ctx context.Context) error {
			attempts++
			return errors.New("permanent")
		})
		assert.EqualError(t, err, "permanent")
		assert.Equal(t, 3, attempts)
	})

	t.Run("stops on context cancellation", func(t *testing.T) {
		policy := NewRetryPolicy(RetryConfig{MaxAttempts: 100, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffMultiplier: 2.0})
		ctx, cancel := context.WithCancel(context.Background())

		errs := make(chan error, 1)
		go func() {
			errs <- policy.Retry(ctx, "cancelled", func(ctx context.Context) error {
				return errors.New("fail")
			})
		}()
		cancel()

		select {
		case err := <-errs:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("retry did not observe cancellation")
		}
	})
}
