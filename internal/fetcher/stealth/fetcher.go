// Package stealth fetches pages with a Chrome TLS ClientHello so newsrooms that
// fingerprint Go's default TLS stack still serve the article.
package stealth

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	tls "github.com/refraction-networking/utls"

	"github.com/JakeFAU/press-release-collector/internal/collector"
	"github.com/JakeFAU/press-release-collector/internal/fetcher/httpclient"
)

// ChromeUserAgent matches the TLS fingerprint presented by the dialer.
const ChromeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

const maxBodyBytes = 10 << 20

// chromeH1Spec is Chrome's ClientHello with ALPN pinned to http/1.1, since
// net/http cannot speak h2 over a utls connection.
var chromeH1Spec *tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = &spec
}

// Config controls the stealth fetcher.
type Config struct {
	Timeout time.Duration
	Limiter httpclient.Waiter
}

// Fetcher implements collector.Fetcher over a utls transport.
type Fetcher struct {
	cfg    Config
	client *http.Client
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	transport := &http.Transport{
		DialTLSContext:    dialChrome,
		ForceAttemptHTTP2: false,
		MaxIdleConns:      50,
		IdleConnTimeout:   90 * time.Second,
	}
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}
}

// Fetch issues a browser-like GET.
func (f *Fetcher) Fetch(ctx context.Context, request collector.FetchRequest) (collector.FetchResponse, error) {
	if err := httpclient.ValidateURL(request.URL); err != nil {
		return collector.FetchResponse{}, err
	}
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, request.URL); err != nil {
			return collector.FetchResponse{}, err
		}
	}
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, request.URL, nil)
	if err != nil {
		return collector.FetchResponse{}, fmt.Errorf("stealth: build request: %w", err)
	}
	req.Header.Set("User-Agent", ChromeUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")
	for key, values := range request.Headers {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return collector.FetchResponse{}, fmt.Errorf("stealth fetch canceled: %w", ctx.Err())
		}
		return collector.FetchResponse{}, collector.NewFetchError(collector.CategoryTransientNetwork, request.URL, 0, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
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

func dialChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("stealth dial: %w", err)
	}
	host, _, _ := net.SplitHostPort(addr)
	var tlsConn *tls.UConn
	if chromeH1Spec != nil {
		tlsConn = tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
		if err := tlsConn.ApplyPreset(chromeH1Spec); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("stealth: apply tls spec: %w", err)
		}
	} else {
		tlsConn = tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloChrome_Auto)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("stealth handshake: %w", err)
	}
	return tlsConn, nil
}
