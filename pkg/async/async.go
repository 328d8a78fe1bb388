package async

import (
	"context"
	"math"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// Go executes fn in a goroutine with context cancellation, a per-task
// timeout, and panic recovery. Use this instead of a bare `go func()` for
// post-commit side effects so a panicking task cannot crash the process.
//
// Example:
//
//	async.Go(ctx, 30*time.Second, "suspension notification", func(ctx context.Context) error {
//	    return notifier.SuspensionNotice(ctx, principal)
//	})
func Go(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			logrus.WithField("task", taskName).WithError(err).Warn("background task failed")
		}
	}()
}

// RetryConfig configures exponential backoff behavior.
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the retry configuration used for the
// credential revocation cascade: 5 attempts, 1s initial delay, doubling,
// capped at 1 minute.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      1 * time.Second,
		MaxDelay:          1 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// RetryPolicy implements capped exponential backoff.
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a retry policy, substituting defaults for any
// zero or nonsensical config values.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 1 * time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 1 * time.Minute
	}
	if config.BackoffMultiplier <= 1.0 {
		config.BackoffMultiplier = 2.0
	}
	return &RetryPolicy{config: config}
}

// MaxAttempts returns the configured attempt cap.
func (p *RetryPolicy) MaxAttempts() int {
	return p.config.MaxAttempts
}

// ShouldRetry reports whether another attempt is allowed after `attempts`
// failed tries.
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil {
		return false
	}
	return attempts < p.config.MaxAttempts
}

// NextDelay calculates the delay before the next retry.
func (p *RetryPolicy) NextDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return p.config.InitialDelay
	}

	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, float64(attempts-1))
	if delay > float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}
	return time.Duration(delay)
}

// Retry runs fn until it succeeds, the policy's attempt cap is reached, or
// ctx is cancelled. The returned error is the last attempt's error.
func (p *RetryPolicy) Retry(ctx context.Context, taskName string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !p.ShouldRetry(attempt, lastErr) {
			return lastErr
		}

		delay := p.NextDelay(attempt)
		logrus.WithFields(logrus.Fields{
			"task":    taskName,
			"attempt": attempt,
			"delay":   delay,
		}).WithError(lastErr).Warn("retrying after failure")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
