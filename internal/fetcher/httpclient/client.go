// Package httpclient implements the plain HTTP fetcher used for SERP pages and
// the lightweight extraction strategies.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/press-release-collector/internal/collector"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 10 << 20
)

// Waiter blocks until a request to url may proceed.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls the client.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	// HTTPProxy and HTTPSProxy route requests by target scheme. Empty means direct.
	HTTPProxy    string
	HTTPSProxy   string
	MaxBodyBytes int64
	Limiter      Waiter
	// Transport overrides the default transport (tests).
	Transport http.RoundTripper
}

// Client issues single GET requests and maps failures onto the collector taxonomy.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Client. Proxy URLs are validated up front.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	transport := cfg.Transport
	if transport == nil {
		proxy, err := proxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy)
		if err != nil {
			return nil, err
		}
		transport = NewTransport(proxy)
	}
	logger.Info("http client configured",
		zap.Duration("timeout", cfg.Timeout),
		zap.String("http_proxy", MaskProxy(cfg.HTTPProxy)),
		zap.String("https_proxy", MaskProxy(cfg.HTTPSProxy)),
	)
	return &Client{
		cfg:    cfg,
		client: &http.Client{Transport: transport},
		logger: logger,
	}, nil
}

// Fetch performs the GET. Non-2xx statuses are returned as *collector.FetchError.
func (c *Client) Fetch(ctx context.Context, request collector.FetchRequest) (collector.FetchResponse, error) {
	if err := ValidateURL(request.URL); err != nil {
		return collector.FetchResponse{}, err
	}
	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(ctx, request.URL); err != nil {
			return collector.FetchResponse{}, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, request.URL, nil)
	if err != nil {
		return collector.FetchResponse{}, collector.NewFetchError(collector.CategoryInvalidInput, request.URL, 0,
			fmt.Errorf("%w: %v", collector.ErrInvalidInput, err))
	}
	for key, values := range request.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if c.cfg.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return collector.FetchResponse{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
		}
		return collector.FetchResponse{}, collector.NewFetchError(collector.CategoryTransientNetwork, request.URL, 0, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return collector.FetchResponse{}, collector.NewFetchError(collector.CategoryTransientNetwork, request.URL, resp.StatusCode, err)
	}
	if category := collector.CategoryForStatus(resp.StatusCode); category != "" {
		return collector.FetchResponse{}, collector.NewFetchError(category, request.URL, resp.StatusCode, nil)
	}

	return collector.FetchResponse{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}

// ValidateURL rejects anything that is not an absolute http(s) URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return collector.NewFetchError(collector.CategoryInvalidInput, raw, 0,
			fmt.Errorf("%w: not an absolute http(s) url", collector.ErrInvalidInput))
	}
	return nil
}

// NewTransport returns a pooled transport using the given proxy selector.
func NewTransport(proxy func(*http.Request) (*url.URL, error)) *http.Transport {
	if proxy == nil {
		proxy = http.ProxyFromEnvironment
	}
	return &http.Transport{
		Proxy: proxy,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

func proxyFunc(httpProxy, httpsProxy string) (func(*http.Request) (*url.URL, error), error) {
	if httpProxy == "" && httpsProxy == "" {
		return nil, nil
	}
	parse := func(raw string) (*url.URL, error) {
		if raw == "" {
			return nil, nil
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q", MaskProxy(raw))
		}
		return u, nil
	}
	httpURL, err := parse(httpProxy)
	if err != nil {
		return nil, err
	}
	httpsURL, err := parse(httpsProxy)
	if err != nil {
		return nil, err
	}
	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" && httpsURL != nil {
			return httpsURL, nil
		}
		if httpURL != nil {
			return httpURL, nil
		}
		return httpsURL, nil
	}, nil
}

// MaskProxy hides the password in a proxy URL so it can be logged.
func MaskProxy(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid>"
	}
	return u.Redacted()
}
