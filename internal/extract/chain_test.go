package extract

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/press-release-collector/internal/collector"
	"github.com/JakeFAU/press-release-collector/internal/retry"
)

// stubStrategy fails for the first fails attempts, then returns body.
type stubStrategy struct {
	name  string
	fails int
	err   error
	body  string
	panic bool

	mu    sync.Mutex
	calls int
	log   *callLog
}

type callLog struct {
	mu    sync.Mutex
	order []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = append(l.order, name)
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Attempt(_ context.Context, url string) (collector.ContentRecord, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()
	if s.log != nil {
		s.log.add(s.name)
	}
	if s.panic {
		panic("boom")
	}
	if s.fails < 0 || n <= s.fails {
		return collector.ContentRecord{}, s.err
	}
	return collector.ContentRecord{URL: url, Title: s.name, BodyText: s.body}, nil
}

func (s *stubStrategy) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testRunner(attempts int) retry.Runner {
	return retry.Runner{
		Policy: retry.NewPolicy(retry.Config{MaxAttempts: attempts}),
		Sleep:  func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
}

var (
	longBody   = strings.Repeat("Press release body text. ", 20)
	rejected   = collector.NewFetchError(collector.CategoryClientRejected, "u", 403, nil)
	transient  = collector.NewFetchError(collector.CategoryTransientNetwork, "u", 0, errors.New("reset"))
	fixedClock = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
)

func TestChainFallsBackInOrder(t *testing.T) {
	t.Parallel()

	log := &callLog{}
	a := &stubStrategy{name: "A", fails: -1, err: rejected, log: log}
	b := &stubStrategy{name: "B", fails: -1, err: rejected, log: log}
	c := &stubStrategy{name: "C", body: longBody, log: log}
	chain, err := NewChain([]Strategy{a, b, c}, 100, testRunner(3), zap.NewNop())
	require.NoError(t, err)
	chain.WithClock(fixedClock)

	rec, err := chain.Extract(context.Background(), "https://x.test/a")
	require.NoError(t, err)
	require.Equal(t, "C", rec.StrategyUsed)
	require.Equal(t, "https://x.test/a", rec.URL)
	require.Equal(t, fixedClock(), rec.FetchedAt)
	require.Equal(t, []string{"A", "B", "C"}, log.order)
}

func TestChainShortCircuitsOnFirstAccepted(t *testing.T) {
	t.Parallel()

	a := &stubStrategy{name: "A", fails: -1, err: rejected}
	b := &stubStrategy{name: "B", body: longBody}
	c := &stubStrategy{name: "C", body: longBody}
	d := &stubStrategy{name: "D", body: longBody}
	chain, err := NewChain([]Strategy{a, b, c, d}, 100, testRunner(3), nil)
	require.NoError(t, err)

	rec, err := chain.Extract(context.Background(), "https://x.test/a")
	require.NoError(t, err)
	require.Equal(t, "B", rec.StrategyUsed)
	require.Zero(t, c.Calls())
	require.Zero(t, d.Calls())
}

func TestChainQualityGateRejectsShortContent(t *testing.T) {
	t.Parallel()

	short := &stubStrategy{name: "short", body: "too short"}
	empty := &stubStrategy{name: "empty", body: "   "}
	chain, err := NewChain([]Strategy{short, empty}, 100, testRunner(3), nil)
	require.NoError(t, err)

	_, err = chain.Extract(context.Background(), "https://x.test/b")
	require.ErrorIs(t, err, collector.ErrAllStrategiesFailed)
	require.Equal(t, collector.CategoryAllStrategiesFailed, collector.Classify(err))

	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	require.Len(t, chainErr.Failures, 2)
	require.Equal(t, collector.CategoryContentTooShort, chainErr.Failures[0].Category)
	require.Equal(t, 1, chainErr.Failures[0].Attempts)
	require.Equal(t, 1, short.Calls())
}

func TestChainThresholdIsExclusive(t *testing.T) {
	t.Parallel()

	exact := &stubStrategy{name: "exact", body: strings.Repeat("x", 10)}
	chain, err := NewChain([]Strategy{exact}, 10, testRunner(1), nil)
	require.NoError(t, err)
	_, err = chain.Extract(context.Background(), "https://x.test/c")
	require.Error(t, err)

	chain, err = NewChain([]Strategy{&stubStrategy{name: "over", body: strings.Repeat("x", 11)}}, 10, testRunner(1), nil)
	require.NoError(t, err)
	_, err = chain.Extract(context.Background(), "https://x.test/c")
	require.NoError(t, err)
}

func TestChainRetriesWithinStrategy(t *testing.T) {
	t.Parallel()

	flaky := &stubStrategy{name: "flaky", fails: 2, err: transient, body: longBody}
	next := &stubStrategy{name: "next", body: longBody}
	chain, err := NewChain([]Strategy{flaky, next}, 100, testRunner(3), nil)
	require.NoError(t, err)

	rec, err := chain.Extract(context.Background(), "https://x.test/d")
	require.NoError(t, err)
	require.Equal(t, "flaky", rec.StrategyUsed)
	require.Equal(t, 3, flaky.Calls())
	require.Zero(t, next.Calls())
}

func TestChainIsolatesPanics(t *testing.T) {
	t.Parallel()

	bad := &stubStrategy{name: "bad", panic: true}
	good := &stubStrategy{name: "good", body: longBody}
	chain, err := NewChain([]Strategy{bad, good}, 100, testRunner(3), nil)
	require.NoError(t, err)

	rec, err := chain.Extract(context.Background(), "https://x.test/e")
	require.NoError(t, err)
	require.Equal(t, "good", rec.StrategyUsed)
	// Unclassified failures are retried once.
	require.Equal(t, 2, bad.Calls())
}

func TestChainCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := &stubStrategy{name: "A", body: longBody}
	chain, err := NewChain([]Strategy{a}, 10, testRunner(3), nil)
	require.NoError(t, err)

	_, err = chain.Extract(ctx, "https://x.test/f")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, collector.CategoryCanceled, collector.Classify(err))
	require.Zero(t, a.Calls())
}

func TestNewChainValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChain(nil, 10, testRunner(1), nil)
	require.ErrorIs(t, err, collector.ErrNoStrategies)

	_, err = NewChain([]Strategy{&stubStrategy{name: "A"}}, -1, testRunner(1), nil)
	require.ErrorIs(t, err, collector.ErrInvalidInput)

	chain, err := NewChain([]Strategy{&stubStrategy{name: "A"}, &stubStrategy{name: "B"}}, 0, testRunner(1), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, chain.Names())
}
