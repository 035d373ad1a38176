// Package collyfetcher implements collector.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/press-release-collector/internal/collector"
	"github.com/JakeFAU/press-release-collector/internal/fetcher/httpclient"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// Transport overrides the pooled default (tests, proxies).
	Transport http.RoundTripper
	Limiter   httpclient.Waiter
}

// Fetcher implements collector.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// visitOutcome is filled by the collector callbacks.
type visitOutcome struct {
	response collector.FetchResponse
	status   int
	err      error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	transport := cfg.Transport
	if transport == nil {
		transport = httpclient.NewTransport(nil)
	}
	c.WithTransport(transport)
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET using Colly.
func (f *Fetcher) Fetch(ctx context.Context, request collector.FetchRequest) (collector.FetchResponse, error) {
	if err := httpclient.ValidateURL(request.URL); err != nil {
		return collector.FetchResponse{}, err
	}
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, request.URL); err != nil {
			return collector.FetchResponse{}, err
		}
	}
	var outcome visitOutcome
	c := f.buildCollector(request, time.Now(), &outcome)
	if err := f.runCollector(ctx, c, request.URL, &outcome); err != nil {
		return collector.FetchResponse{}, err
	}
	return outcome.response, nil
}

func (f *Fetcher) buildCollector(request collector.FetchRequest, start time.Time, outcome *visitOutcome) *colly.Collector {
	c := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		c.UserAgent = f.cfg.UserAgent
	}
	c.IgnoreRobotsTxt = !f.cfg.RespectRobots
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c.SetRequestTimeout(timeout)
	f.configureCollectorHooks(c, request, start, outcome)
	return c
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, request collector.FetchRequest, start time.Time, outcome *visitOutcome) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		outcome.response = collector.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			outcome.status = r.StatusCode
		}
		outcome.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, c *colly.Collector, url string, outcome *visitOutcome) error {
	done := make(chan error, 1)
	go func() {
		done <- c.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			err = outcome.err
		}
		if err == nil {
			return nil
		}
		return classifyVisitError(url, outcome.status, err)
	}
}

func classifyVisitError(url string, status int, err error) error {
	if category := collector.CategoryForStatus(status); category != "" {
		return collector.NewFetchError(category, url, status, nil)
	}
	if errors.Is(err, colly.ErrRobotsTxtBlocked) || errors.Is(err, colly.ErrForbiddenURL) || errors.Is(err, colly.ErrForbiddenDomain) {
		return collector.NewFetchError(collector.CategoryClientRejected, url, 0, err)
	}
	return collector.NewFetchError(collector.CategoryTransientNetwork, url, 0, err)
}

func copyHeaders(request collector.FetchRequest, r *colly.Request) {
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}
