package headless

import (
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2, ProxyServer: "http://proxy.test:8080"})
	require.NoError(t, err)
	defer fetcher.Close()
	require.NotNil(t, fetcher.tabs)
	require.Equal(t, defaultSettleDelay, fetcher.cfg.SettleDelay)
	require.Equal(t, defaultNavTimeout, fetcher.cfg.NavigationTimeout)
	require.Equal(t, "en-US", fetcher.cfg.Locale)

	unbounded, err := NewChromedp(Config{NavigationTimeout: time.Second})
	require.NoError(t, err)
	defer unbounded.Close()
	require.Nil(t, unbounded.tabs)
	require.Equal(t, time.Second, unbounded.cfg.NavigationTimeout)
}

func TestHeaderConversions(t *testing.T) {
	t.Parallel()

	out := networkHeaders(http.Header{"Accept-Language": {"en-US", "en"}, "Empty": nil})
	require.Equal(t, network.Headers{"Accept-Language": "en-US, en"}, out)

	in := httpHeaders(network.Headers{
		"Content-Type": "text/html",
		"Set-Cookie":   []any{"a=1", "b=2"},
		"Age":          float64(3),
	})
	require.Equal(t, "text/html", in.Get("Content-Type"))
	require.Equal(t, []string{"a=1", "b=2"}, in.Values("Set-Cookie"))
	require.Equal(t, "3", in.Get("Age"))
}

func TestDocumentTrackerFollowsMainFrame(t *testing.T) {
	t.Parallel()

	doc := &documentTracker{}
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		FrameID:  "main",
		Response: &network.Response{Status: 200, URL: "https://news.acme.test/pr/1"},
	})
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		FrameID:  "ad-iframe",
		Response: &network.Response{Status: 500, URL: "https://ads.test/slot"},
	})
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		FrameID:  "main",
		Response: &network.Response{Status: 404, URL: "https://cdn.test/app.js"},
	})
	doc.observe(&network.EventResponseReceived{
		Type:    network.ResourceTypeDocument,
		FrameID: "main",
		Response: &network.Response{
			Status:  404,
			URL:     "https://news.acme.test/gone",
			Headers: network.Headers{"X-Request-ID": "abc"},
		},
	})

	status, headers, url := doc.result()
	require.Equal(t, 404, status)
	require.Equal(t, "https://news.acme.test/gone", url)
	require.Equal(t, "abc", headers.Get("X-Request-ID"))
}

func TestDocumentTrackerEmpty(t *testing.T) {
	t.Parallel()

	status, headers, url := (&documentTracker{}).result()
	require.Zero(t, status)
	require.Empty(t, url)
	require.NotNil(t, headers)
}
