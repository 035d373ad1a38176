package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/press-release-collector/internal/collector"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Runner applies a Policy around an operation.
type Runner struct {
	Policy *Policy
	// Sleep defaults to a context-aware timer.
	Sleep SleepFunc
	// OnAttempt observes every attempt, successful or not.
	OnAttempt func(collector.FetchAttempt)
	Logger    *zap.Logger
}

// Do runs fn until it succeeds, the policy declares the error terminal, the
// attempt budget is spent, or ctx is done. It returns the value, the number of
// attempts made, and the last error.
func Do[T any](ctx context.Context, r Runner, url, step string, fn func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	policy := r.Policy
	if policy == nil {
		policy = NewPolicy(Config{})
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, fmt.Errorf("%s canceled: %w", step, err)
		}
		start := time.Now()
		value, err := fn(ctx)
		category := collector.Classify(err)
		if r.OnAttempt != nil {
			r.OnAttempt(collector.FetchAttempt{
				URL:      url,
				Step:     step,
				Attempt:  attempt,
				Category: category,
				Duration: time.Since(start),
			})
		}
		if err == nil {
			return value, attempt, nil
		}
		if ctx.Err() != nil {
			return zero, attempt, fmt.Errorf("%s canceled: %w", step, ctx.Err())
		}
		decision := policy.Decide(err, attempt)
		if !decision.Retry {
			return zero, attempt, err
		}
		logger.Debug("retrying after failure",
			zap.String("url", url),
			zap.String("step", step),
			zap.Int("attempt", attempt),
			zap.String("category", string(decision.Category)),
			zap.Duration("delay", decision.Delay),
			zap.Error(err),
		)
		if err := sleep(ctx, decision.Delay); err != nil {
			return zero, attempt, fmt.Errorf("%s backoff canceled: %w", step, err)
		}
	}
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
