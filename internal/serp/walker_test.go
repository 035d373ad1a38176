package serp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/press-release-collector/internal/collector"
	"github.com/JakeFAU/press-release-collector/internal/fetcher/httpclient"
	"github.com/JakeFAU/press-release-collector/internal/retry"
)

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// scriptedFetcher serves canned responses per URL, consuming them in order.
type scriptedFetcher struct {
	mu        sync.Mutex
	responses map[string][]scripted
	calls     []string
}

type scripted struct {
	body string
	err  error
}

func (f *scriptedFetcher) Fetch(_ context.Context, req collector.FetchRequest) (collector.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.URL)
	queue := f.responses[req.URL]
	if len(queue) == 0 {
		return collector.FetchResponse{}, collector.NewFetchError(collector.CategoryClientRejected, req.URL, 404, nil)
	}
	next := queue[0]
	if len(queue) > 1 {
		f.responses[req.URL] = queue[1:]
	}
	if next.err != nil {
		return collector.FetchResponse{}, next.err
	}
	return collector.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(next.body)}, nil
}

func newTestWalker(f collector.Fetcher, maxPages int) *Walker {
	runner := retry.Runner{Policy: retry.NewPolicy(retry.Config{MaxAttempts: 3}), Sleep: noSleep}
	return NewWalker(f, runner, Config{MaxPages: maxPages, JSONSuffix: "&brd_json=1"}, zap.NewNop())
}

const page1 = `{"general":{"query":"site:news.test"},"organic":[
 {"title":"One","description":"first","link":"https://news.test/1","rank":1},
 {"link":"https://news.test/2","rank":"2"},
 {"title":"No link"}
],"pagination":{"next_page_link":"https://serp.test/search?q=x&start=10"}}`

const page2 = `{"general":{"query":"site:news.test"},"organic":[
 {"title":"Three","link":"https://news.test/3","rank":3}
],"pagination":{}}`

func TestWalkFollowsPaginationAndFillsAbsentFields(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{responses: map[string][]scripted{
		"https://serp.test/search?q=x":                     {{body: page1}},
		"https://serp.test/search?q=x&start=10&brd_json=1": {{body: page2}},
	}}
	w := newTestWalker(f, 10)

	res := w.Walk(context.Background(), collector.NewQuery("https://serp.test/search?q=x"))
	require.NoError(t, res.Err)
	require.Equal(t, StopExhausted, res.Reason)
	require.Equal(t, 2, res.Pages)
	require.Len(t, res.Records, 3)

	first := res.Records[0]
	require.Equal(t, "One", collector.StringValue(first.Title))
	require.Equal(t, 1, *first.Rank)
	require.Equal(t, "site:news.test", first.SourceQuery)

	second := res.Records[1]
	require.Nil(t, second.Title)
	require.Nil(t, second.Description)
	require.Equal(t, 2, *second.Rank)
	require.Equal(t, "https://news.test/3", res.Records[2].Link)
}

func TestWalkIsIdempotent(t *testing.T) {
	t.Parallel()

	build := func() *scriptedFetcher {
		return &scriptedFetcher{responses: map[string][]scripted{
			"https://serp.test/search?q=x":                     {{body: page1}},
			"https://serp.test/search?q=x&start=10&brd_json=1": {{body: page2}},
		}}
	}
	q := collector.NewQuery("https://serp.test/search?q=x")
	first := newTestWalker(build(), 10).Walk(context.Background(), q)
	second := newTestWalker(build(), 10).Walk(context.Background(), q)
	require.Equal(t, first.Records, second.Records)
}

func TestWalkEmptyOrganicEndsWithoutFailure(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{responses: map[string][]scripted{
		"https://serp.test/q": {{body: `{"organic":[],"pagination":{"next_page_link":"https://serp.test/q2"}}`}},
	}}
	res := newTestWalker(f, 10).Walk(context.Background(), collector.NewQuery("https://serp.test/q"))
	require.NoError(t, res.Err)
	require.False(t, res.Failed())
	require.Equal(t, StopEmptyPage, res.Reason)
	require.Empty(t, res.Records)
	require.Len(t, f.calls, 1)
}

func TestWalkDropsEntriesWithoutLink(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{responses: map[string][]scripted{
		"https://serp.test/q": {{body: `{"organic":[{"title":"No link","rank":1},{"title":"B","link":" https://news.test/b ","rank":2}]}`}},
	}}
	res := newTestWalker(f, 10).Walk(context.Background(), collector.NewQuery("https://serp.test/q"))
	require.NoError(t, res.Err)
	require.Equal(t, 1, res.Pages)
	require.Len(t, res.Records, 1)
	require.Equal(t, "https://news.test/b", res.Records[0].Link)
}

func TestWalkRetriesParseFailureThenSucceeds(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{responses: map[string][]scripted{
		"https://serp.test/q": {{body: "<html>captcha</html>"}, {body: page2}},
	}}
	res := newTestWalker(f, 10).Walk(context.Background(), collector.NewQuery("https://serp.test/q"))
	require.NoError(t, res.Err)
	require.Len(t, res.Records, 1)
	require.Len(t, f.calls, 2)
}

func TestWalkKeepsEarlierPagesAfterParseBudgetExhausted(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{responses: map[string][]scripted{
		"https://serp.test/search?q=x":                     {{body: page1}},
		"https://serp.test/search?q=x&start=10&brd_json=1": {{body: "not json"}},
	}}
	res := newTestWalker(f, 10).Walk(context.Background(), collector.NewQuery("https://serp.test/search?q=x"))
	require.Error(t, res.Err)
	require.Equal(t, collector.CategoryParseFailure, collector.Classify(res.Err))
	require.Equal(t, StopPageFailed, res.Reason)
	require.False(t, res.Failed())
	require.Len(t, res.Records, 2)
	require.Len(t, f.calls, 4)
}

func TestWalkClientRejectedIsNotRetried(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{responses: map[string][]scripted{}}
	res := newTestWalker(f, 10).Walk(context.Background(), collector.NewQuery("https://serp.test/blocked"))
	require.True(t, res.Failed())
	require.Equal(t, collector.CategoryClientRejected, collector.Classify(res.Err))
	require.Len(t, f.calls, 1)
}

func TestWalkStopsAtMaxPages(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{responses: map[string][]scripted{}}
	for i := 0; i < 5; i++ {
		cur := fmt.Sprintf("https://serp.test/p%d", i)
		if i > 0 {
			cur += "&brd_json=1"
		}
		f.responses[cur] = []scripted{{body: fmt.Sprintf(
			`{"organic":[{"link":"https://news.test/%d"}],"pagination":{"next_page_link":"https://serp.test/p%d"}}`, i, i+1)}}
	}
	res := newTestWalker(f, 3).Walk(context.Background(), collector.NewQuery("https://serp.test/p0"))
	require.Equal(t, StopMaxPages, res.Reason)
	require.Equal(t, 3, res.Pages)
	require.Len(t, f.calls, 3)
}

func TestWalkHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &scriptedFetcher{responses: map[string][]scripted{
		"https://serp.test/q": {{err: errors.New("unused")}},
	}}
	res := newTestWalker(f, 10).Walk(ctx, collector.NewQuery("https://serp.test/q"))
	require.Equal(t, StopCanceled, res.Reason)
	require.ErrorIs(t, res.Err, context.Canceled)
}

func TestWalkOverHTTPRetriesRateLimit(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		n := hits
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"organic":[{"title":"A","link":"https://news.test/a","rank":1}]}`))
	}))
	defer srv.Close()

	client, err := httpclient.New(httpclient.Config{Timeout: time.Second}, nil)
	require.NoError(t, err)
	var delays []time.Duration
	runner := retry.Runner{
		Policy: retry.NewPolicy(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, RateLimitMultiplier: 10}),
		Sleep: func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}
	w := NewWalker(client, runner, Config{MaxPages: 5}, nil)

	res := w.Walk(context.Background(), collector.NewQuery(srv.URL+"/search?q=a"))
	require.NoError(t, res.Err)
	require.Len(t, res.Records, 1)
	require.Equal(t, srv.URL+"/search?q=a", res.Records[0].SourceQuery)
	require.Equal(t, []time.Duration{10 * time.Millisecond}, delays)
}

func TestParseRank(t *testing.T) {
	t.Parallel()

	require.Nil(t, parseRank(nil))
	require.Nil(t, parseRank([]byte("null")))
	require.Nil(t, parseRank([]byte(`"first"`)))
	require.Equal(t, 4, *parseRank([]byte("4")))
	require.Equal(t, 7, *parseRank([]byte(`"7"`)))
}
