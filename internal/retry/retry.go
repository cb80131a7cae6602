package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy defines how transient failures are retried.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         bool
}

// DefaultPolicy returns a sensible default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// TransientError wraps an error to indicate the operation may succeed on a
// later attempt. Validation failures must never be wrapped with it.
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %v)", e.Err, e.RetryAfter)
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient marks an error as retryable.
func Transient(err error) error {
	return &TransientError{Err: err}
}

// TransientWithDelay marks an error as retryable with a server-provided delay.
func TransientWithDelay(err error, delay time.Duration) error {
	return &TransientError{Err: err, RetryAfter: delay}
}

// IsTransient reports whether an error should trigger a retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var transient *TransientError
	return errors.As(err, &transient)
}

// Do executes fn, retrying transient failures with exponential backoff.
// Non-transient errors are returned immediately.
func Do(ctx context.Context, policy Policy, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			return err
		}

		if attempt == policy.MaxRetries {
			break
		}

		backoff := backoffFor(policy, attempt)

		var transient *TransientError
		if errors.As(err, &transient) && transient.RetryAfter > 0 {
			backoff = transient.RetryAfter
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("max retries exceeded (%d): %w", policy.MaxRetries, lastErr)
}

func backoffFor(policy Policy, attempt int) time.Duration {
	backoff := float64(policy.InitialBackoff) * math.Pow(policy.BackoffFactor, float64(attempt))
	if backoff > float64(policy.MaxBackoff) {
		backoff = float64(policy.MaxBackoff)
	}

	duration := time.Duration(backoff)

	if policy.Jitter {
		// +/-10% to avoid synchronized retries across workers.
		jitter := time.Duration(float64(duration) * 0.1 * (2*rand.Float64() - 1))
		duration += jitter
	}

	return duration
}
