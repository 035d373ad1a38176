package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/press-release-collector/internal/collector"
)

type attemptLog struct {
	mu       sync.Mutex
	attempts []collector.FetchAttempt
}

func (l *attemptLog) record(a collector.FetchAttempt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, a)
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	t.Parallel()

	log := &attemptLog{}
	runner := Runner{Policy: NewPolicy(Config{MaxAttempts: 3}), Sleep: noSleep, OnAttempt: log.record}
	calls := 0
	value, attempts, err := Do(context.Background(), runner, "https://x.test/a", "page", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", collector.NewFetchError(collector.CategoryTransientNetwork, "https://x.test/a", 0, errors.New("timeout"))
		}
		return "ok", nil
	})

	require.NoError(t, err)
	require.Equal(t, "ok", value)
	require.Equal(t, 3, attempts)
	require.Len(t, log.attempts, 3)
	require.Equal(t, collector.CategoryTransientNetwork, log.attempts[0].Category)
	require.True(t, log.attempts[2].Succeeded())
	require.Equal(t, 3, log.attempts[2].Attempt)
}

func TestDoStopsOnClientRejected(t *testing.T) {
	t.Parallel()

	log := &attemptLog{}
	runner := Runner{Policy: NewPolicy(Config{MaxAttempts: 3}), Sleep: noSleep, OnAttempt: log.record}
	_, attempts, err := Do(context.Background(), runner, "https://x.test/a", "page", func(context.Context) (int, error) {
		return 0, collector.NewFetchError(collector.CategoryClientRejected, "https://x.test/a", 404, nil)
	})

	require.Error(t, err)
	require.Equal(t, 1, attempts)
	require.Len(t, log.attempts, 1)
	require.Equal(t, collector.CategoryClientRejected, collector.Classify(err))
}

func TestDoExhaustsBudget(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	runner := Runner{
		Policy: NewPolicy(Config{MaxAttempts: 3, BaseDelay: time.Millisecond}),
		Sleep: func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}
	_, attempts, err := Do(context.Background(), runner, "u", "page", func(context.Context) (int, error) {
		return 0, collector.NewFetchError(collector.CategoryRateLimited, "u", 429, nil)
	})

	require.Error(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, delays)
}

func TestDoHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	runner := Runner{Policy: NewPolicy(Config{MaxAttempts: 5, BaseDelay: time.Hour})}
	done := make(chan error, 1)
	go func() {
		_, _, err := Do(ctx, runner, "u", "page", func(context.Context) (int, error) {
			return 0, collector.NewFetchError(collector.CategoryTransientNetwork, "u", 0, errors.New("reset"))
		})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
}

func TestSleepReturnsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	require.NoError(t, Sleep(context.Background(), 0))
}
