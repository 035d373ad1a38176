// Package extract turns article pages into ContentRecords by trying an ordered
// list of independent strategies until one passes the quality gate.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/press-release-collector/internal/collector"
	"github.com/JakeFAU/press-release-collector/internal/retry"
)

// Strategy is one way of turning a URL into article content.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, url string) (collector.ContentRecord, error)
}

// StrategyFailure records why one strategy gave up on a URL.
type StrategyFailure struct {
	Strategy string
	Category collector.Category
	Attempts int
	Err      error
}

// ChainError is returned when every strategy failed for a URL.
type ChainError struct {
	URL      string
	Failures []StrategyFailure
}

func (e *ChainError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Strategy, f.Err))
	}
	return fmt.Sprintf("all extraction strategies failed for %s (%s)", e.URL, strings.Join(parts, "; "))
}

// Unwrap lets errors.Is match collector.ErrAllStrategiesFailed.
func (e *ChainError) Unwrap() error {
	return collector.ErrAllStrategiesFailed
}

// Chain runs strategies in order. Strategies never run in parallel for one URL.
type Chain struct {
	strategies []Strategy
	minChars   int
	runner     retry.Runner
	now        func() time.Time
	logger     *zap.Logger
}

// NewChain validates and builds a chain. minChars is the exclusive lower bound
// on body text length for a result to be accepted.
func NewChain(strategies []Strategy, minChars int, runner retry.Runner, logger *zap.Logger) (*Chain, error) {
	if len(strategies) == 0 {
		return nil, collector.ErrNoStrategies
	}
	if minChars < 0 {
		return nil, fmt.Errorf("%w: extraction quality threshold must be >= 0", collector.ErrInvalidInput)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	runner.Logger = logger
	return &Chain{
		strategies: strategies,
		minChars:   minChars,
		runner:     runner,
		now:        time.Now,
		logger:     logger,
	}, nil
}

// WithClock overrides the timestamp source for FetchedAt.
func (c *Chain) WithClock(now func() time.Time) *Chain {
	c.now = now
	return c
}

// Names lists the strategies in priority order.
func (c *Chain) Names() []string {
	out := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		out[i] = s.Name()
	}
	return out
}

// Extract returns the first accepted record, tagged with the strategy that
// produced it, or a *ChainError when every strategy failed.
func (c *Chain) Extract(ctx context.Context, url string) (collector.ContentRecord, error) {
	chainErr := &ChainError{URL: url}
	for _, strategy := range c.strategies {
		if err := ctx.Err(); err != nil {
			return collector.ContentRecord{}, fmt.Errorf("extract %s canceled: %w", url, err)
		}
		record, attempts, err := retry.Do(ctx, c.runner, url, strategy.Name(), func(ctx context.Context) (collector.ContentRecord, error) {
			rec, err := attemptSafely(ctx, strategy, url)
			if err != nil {
				return collector.ContentRecord{}, err
			}
			if err := c.accept(rec); err != nil {
				return collector.ContentRecord{}, fmt.Errorf("%s: %w", strategy.Name(), err)
			}
			return rec, nil
		})
		if err == nil {
			record.URL = url
			record.StrategyUsed = strategy.Name()
			if record.FetchedAt.IsZero() {
				record.FetchedAt = c.now().UTC()
			}
			c.logger.Debug("strategy accepted",
				zap.String("url", url),
				zap.String("strategy", strategy.Name()),
				zap.Int("attempts", attempts),
			)
			return record, nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return collector.ContentRecord{}, fmt.Errorf("extract %s canceled: %w", url, err)
		}
		category := collector.Classify(err)
		chainErr.Failures = append(chainErr.Failures, StrategyFailure{
			Strategy: strategy.Name(),
			Category: category,
			Attempts: attempts,
			Err:      err,
		})
		c.logger.Debug("strategy failed",
			zap.String("url", url),
			zap.String("strategy", strategy.Name()),
			zap.String("category", string(category)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	}
	return collector.ContentRecord{}, chainErr
}

func (c *Chain) accept(rec collector.ContentRecord) error {
	body := strings.TrimSpace(rec.BodyText)
	if body == "" || utf8.RuneCountInString(body) <= c.minChars {
		return collector.ErrContentTooShort
	}
	return nil
}

// attemptSafely contains strategy panics so they surface as ordinary failures.
func attemptSafely(ctx context.Context, s Strategy, url string) (rec collector.ContentRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = collector.NewFetchError(collector.CategoryUnclassified, url, 0, fmt.Errorf("strategy %s panicked: %v", s.Name(), r))
		}
	}()
	return s.Attempt(ctx, url)
}
