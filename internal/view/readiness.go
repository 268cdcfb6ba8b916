package view

import (
	"context"
	"errors"
	"time"

	"example.com/fitnessclient/internal/domain"
)

// ReadinessPolicy describes how long to wait for the backend to finish asynchronous work.
type ReadinessPolicy struct {
	InitialDelay time.Duration
	Interval     time.Duration
	MaxAttempts  int
}

// PollPolicy re-fetches every interval, up to attempts times.
func PollPolicy(interval time.Duration, attempts int) ReadinessPolicy {
	return ReadinessPolicy{Interval: interval, MaxAttempts: attempts}
}

// FixedDelayPolicy waits d and then makes a single attempt.
func FixedDelayPolicy(d time.Duration) ReadinessPolicy {
	return ReadinessPolicy{InitialDelay: d, MaxAttempts: 1}
}

// AwaitReady wraps fetch so it retries while the backend answers NotFound or ready reports false.
// Any other error stops immediately. When attempts run out the last result is returned as is:
// the last NotFound error, or the last not-yet-ready value without error.
func AwaitReady[T any](fetch Fetcher[T], ready func(T) bool, policy ReadinessPolicy) Fetcher[T] {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return func(ctx context.Context) (T, error) {
		var (
			last    T
			lastErr error
		)
		if err := sleep(ctx, policy.InitialDelay); err != nil {
			return last, err
		}
		for attempt := 1; attempt <= attempts; attempt++ {
			value, err := fetch(ctx)
			switch {
			case err == nil && (ready == nil || ready(value)):
				return value, nil
			case err == nil:
				last, lastErr = value, nil
			case errors.Is(err, domain.ErrNotFound):
				var zero T
				last, lastErr = zero, err
			default:
				return value, err
			}
			if attempt < attempts {
				if err := sleep(ctx, policy.Interval); err != nil {
					return last, err
				}
			}
		}
		return last, lastErr
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		kind := domain.KindConnectionFailed
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = domain.KindTimeout
		}
		return &domain.NetworkError{Kind: kind, Op: "await readiness", Err: ctx.Err()}
	}
}
