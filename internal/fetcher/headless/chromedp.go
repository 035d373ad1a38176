// Package headless renders pages in headless Chrome for newsrooms that only
// deliver article bodies through JavaScript.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/press-release-collector/internal/collector"
)

const (
	defaultNavTimeout  = 45 * time.Second
	defaultSettleDelay = 500 * time.Millisecond
)

// Config controls the browser pool.
type Config struct {
	// MaxParallel caps concurrent tabs. Zero means unbounded.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// ProxyServer is passed to Chrome as --proxy-server when set.
	ProxyServer string
	// SettleDelay is how long to wait after body is ready for late scripts.
	SettleDelay time.Duration
	// Locale is sent as the browser locale. Defaults to en-US.
	Locale string
}

// Fetcher implements collector.Fetcher with one shared Chrome process and a
// fresh tab per request.
type Fetcher struct {
	cfg         Config
	tabs        *semaphore.Weighted
	browser     context.Context
	stopBrowser context.CancelFunc
}

// NewChromedp starts the allocator. Chrome itself is launched lazily by the
// first Fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, errors.New("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.Locale == "" {
		cfg.Locale = "en-US"
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ProxyServer != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.ProxyServer))
	}
	browser, stop := chromedp.NewExecAllocator(context.Background(), opts...)

	f := &Fetcher{cfg: cfg, browser: browser, stopBrowser: stop}
	if cfg.MaxParallel > 0 {
		f.tabs = semaphore.NewWeighted(int64(cfg.MaxParallel))
	}
	return f, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.stopBrowser()
}

// Fetch opens request.URL in a new tab and returns the DOM after scripts
// have settled. Navigation failures are transient; a document status of 4xx
// or 5xx maps to its category.
func (f *Fetcher) Fetch(ctx context.Context, request collector.FetchRequest) (collector.FetchResponse, error) {
	if f.tabs != nil {
		if err := f.tabs.Acquire(ctx, 1); err != nil {
			return collector.FetchResponse{}, fmt.Errorf("wait for browser tab: %w", err)
		}
		defer f.tabs.Release(1)
	}

	tab, closeTab := chromedp.NewContext(f.browser)
	defer closeTab()
	// Cancel the tab when the caller gives up so Chrome stops loading.
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()
	tab, cancel := context.WithTimeout(tab, f.cfg.NavigationTimeout)
	defer cancel()

	doc := &documentTracker{}
	chromedp.ListenTarget(tab, doc.observe)

	start := time.Now()
	page, err := f.render(tab, request)
	if err != nil {
		if ctx.Err() != nil {
			return collector.FetchResponse{}, fmt.Errorf("headless fetch canceled: %w", ctx.Err())
		}
		return collector.FetchResponse{}, collector.NewFetchError(collector.CategoryTransientNetwork, request.URL, 0, err)
	}

	status, headers, finalURL := doc.result()
	if status == 0 {
		// No document event (cached or same-document navigation): trust the render.
		status = http.StatusOK
	}
	if finalURL == "" {
		finalURL = page.location
	}
	if finalURL == "" {
		finalURL = request.URL
	}
	if category := collector.CategoryForStatus(status); category != "" {
		return collector.FetchResponse{}, collector.NewFetchError(category, request.URL, status, nil)
	}

	return collector.FetchResponse{
		URL:        finalURL,
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(page.html),
		Duration:   time.Since(start),
	}, nil
}

type renderedPage struct {
	html     string
	location string
}

func (f *Fetcher) render(tab context.Context, request collector.FetchRequest) (renderedPage, error) {
	var page renderedPage
	err := chromedp.Run(tab,
		f.prepareTab(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.cfg.SettleDelay),
		chromedp.Location(&page.location),
		chromedp.OuterHTML("html", &page.html, chromedp.ByQuery),
	)
	if err != nil {
		return renderedPage{}, fmt.Errorf("render %s: %w", request.URL, err)
	}
	return page, nil
}

func (f *Fetcher) prepareTab(extra http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network: %w", err)
		}
		if err := emulation.SetLocaleOverride().WithLocale(f.cfg.Locale).Do(ctx); err != nil {
			return fmt.Errorf("set locale: %w", err)
		}
		if f.cfg.UserAgent != "" {
			override := emulation.SetUserAgentOverride(f.cfg.UserAgent).WithAcceptLanguage(f.cfg.Locale)
			if err := override.Do(ctx); err != nil {
				return fmt.Errorf("set user agent: %w", err)
			}
		}
		if len(extra) == 0 {
			return nil
		}
		if err := network.SetExtraHTTPHeaders(networkHeaders(extra)).Do(ctx); err != nil {
			return fmt.Errorf("set request headers: %w", err)
		}
		return nil
	})
}

// documentTracker remembers the response that delivered the tab's top-level
// document. Redirect hops and subframes are ignored; the last main-frame
// document wins.
type documentTracker struct {
	mu      sync.Mutex
	frame   cdp.FrameID
	status  int
	headers http.Header
	url     string
}

func (d *documentTracker) observe(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frame == "" {
		d.frame = resp.FrameID
	} else if resp.FrameID != d.frame {
		return
	}
	d.status = int(resp.Response.Status)
	d.headers = httpHeaders(resp.Response.Headers)
	d.url = resp.Response.URL
}

func (d *documentTracker) result() (int, http.Header, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	headers := d.headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	return d.status, headers, d.url
}

// httpHeaders converts devtools headers, whose values arrive as JSON
// scalars or arrays, into an http.Header.
func httpHeaders(src network.Headers) http.Header {
	out := make(http.Header, len(src))
	for key, value := range src {
		switch v := value.(type) {
		case string:
			out.Add(key, v)
		case []string:
			for _, s := range v {
				out.Add(key, s)
			}
		case []any:
			for _, s := range v {
				out.Add(key, fmt.Sprint(s))
			}
		default:
			out.Add(key, fmt.Sprint(v))
		}
	}
	return out
}

// networkHeaders joins repeated values with a comma, which is how Chrome
// expects multi-valued extra headers.
func networkHeaders(h http.Header) network.Headers {
	out := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		joined := values[0]
		for _, v := range values[1:] {
			joined += ", " + v
		}
		out[key] = joined
	}
	return out
}
