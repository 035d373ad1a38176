// Package serp walks a search query through its structured result pages.
package serp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/press-release-collector/internal/collector"
	"github.com/JakeFAU/press-release-collector/internal/retry"
)

// StopReason explains why pagination ended for a query.
type StopReason string

// Stop reasons.
const (
	StopExhausted  StopReason = "exhausted"
	StopEmptyPage  StopReason = "empty_page"
	StopMaxPages   StopReason = "max_pages"
	StopPageFailed StopReason = "page_failed"
	StopCanceled   StopReason = "canceled"
)

const pageStep = "serp_page"

// Config controls pagination.
type Config struct {
	MaxPages int
	// PageDelay is the pause between consecutive page fetches.
	PageDelay time.Duration
	// JSONSuffix is re-appended to each next_page_link so the upstream keeps
	// answering with structured JSON.
	JSONSuffix string
}

// QueryResult is the terminal outcome of one query.
type QueryResult struct {
	Query   collector.Query
	Records []collector.SearchResultRecord
	Pages   int
	Reason  StopReason
	// Err is set when the last page attempted failed terminally.
	Err error
}

// Failed reports whether no page of the query succeeded.
func (r QueryResult) Failed() bool {
	return r.Pages == 0 && r.Err != nil
}

// Walker drives queries through result pages.
type Walker struct {
	fetcher collector.Fetcher
	runner  retry.Runner
	cfg     Config
	logger  *zap.Logger
}

// NewWalker builds a Walker. runner carries the shared retry policy.
func NewWalker(fetcher collector.Fetcher, runner retry.Runner, cfg Config, logger *zap.Logger) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if runner.Sleep == nil {
		runner.Sleep = retry.Sleep
	}
	runner.Logger = logger
	return &Walker{fetcher: fetcher, runner: runner, cfg: cfg, logger: logger}
}

// Walk fetches pages strictly in sequence until a stop condition is reached.
// Records from pages that succeeded are always returned.
func (w *Walker) Walk(ctx context.Context, query collector.Query) QueryResult {
	result := QueryResult{Query: query}
	logger := w.logger.With(zap.String("query", query.Raw))

	for {
		if result.Pages >= w.cfg.MaxPages {
			result.Reason = StopMaxPages
			break
		}
		if result.Pages > 0 {
			if err := w.runner.Sleep(ctx, w.cfg.PageDelay); err != nil {
				result.Reason = StopCanceled
				result.Err = err
				break
			}
		}

		pageURL := query.CurrentURL()
		p, attempts, err := retry.Do(ctx, w.runner, pageURL, pageStep, func(ctx context.Context) (page, error) {
			return w.fetchPage(ctx, pageURL)
		})
		if err != nil {
			result.Err = fmt.Errorf("page %d: %w", result.Pages+1, err)
			result.Reason = StopPageFailed
			if errors.Is(err, context.Canceled) {
				result.Reason = StopCanceled
			}
			logger.Warn("serp page failed",
				zap.Int("page", result.Pages+1),
				zap.Int("attempts", attempts),
				zap.String("category", string(collector.Classify(err))),
				zap.Error(err),
			)
			break
		}

		if len(p.Organic) == 0 {
			result.Reason = StopEmptyPage
			break
		}
		records, skipped := p.records(query.Raw)
		if skipped > 0 {
			logger.Debug("skipped organic entries without link", zap.Int("count", skipped))
		}
		result.Records = append(result.Records, records...)
		result.Pages++

		next := p.nextLink()
		if next == "" {
			result.Reason = StopExhausted
			break
		}
		query.Cursor = w.decorate(next)
	}

	result.Query = query
	logger.Debug("serp query finished",
		zap.Int("pages", result.Pages),
		zap.Int("records", len(result.Records)),
		zap.String("reason", string(result.Reason)),
	)
	return result
}

func (w *Walker) fetchPage(ctx context.Context, pageURL string) (page, error) {
	resp, err := w.fetcher.Fetch(ctx, collector.FetchRequest{URL: pageURL})
	if err != nil {
		return page{}, err
	}
	p, err := decodePage(resp.Body)
	if err != nil {
		return page{}, collector.NewFetchError(collector.CategoryParseFailure, pageURL, resp.StatusCode, err)
	}
	return p, nil
}

func (w *Walker) decorate(link string) string {
	if w.cfg.JSONSuffix == "" || strings.Contains(link, strings.TrimLeft(w.cfg.JSONSuffix, "&?")) {
		return link
	}
	return link + w.cfg.JSONSuffix
}
