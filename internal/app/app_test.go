package app_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/press-release-collector/internal/app"
	"github.com/JakeFAU/press-release-collector/internal/clock/system"
	"github.com/JakeFAU/press-release-collector/internal/collector"
	"github.com/JakeFAU/press-release-collector/internal/config"
	"github.com/JakeFAU/press-release-collector/internal/dedup"
	"github.com/JakeFAU/press-release-collector/internal/extract"
	"github.com/JakeFAU/press-release-collector/internal/progress"
	pubmemory "github.com/JakeFAU/press-release-collector/internal/publisher/memory"
	"github.com/JakeFAU/press-release-collector/internal/storage/memory"
)

// fakeStrategy answers per URL; URLs it does not know are rejected.
type fakeStrategy struct {
	name    string
	answers map[string]string
}

func (s *fakeStrategy) Name() string { return s.name }

func (s *fakeStrategy) Attempt(_ context.Context, url string) (collector.ContentRecord, error) {
	body, ok := s.answers[url]
	if !ok {
		return collector.ContentRecord{}, collector.NewFetchError(collector.CategoryClientRejected, url, 403, nil)
	}
	return collector.ContentRecord{Title: s.name, BodyText: body}, nil
}

// serpFetcher serves canned JSON pages by URL.
type serpFetcher struct {
	mu    sync.Mutex
	pages map[string]string
}

func (f *serpFetcher) Fetch(_ context.Context, req collector.FetchRequest) (collector.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.pages[req.URL]
	if !ok {
		return collector.FetchResponse{}, collector.NewFetchError(collector.CategoryClientRejected, req.URL, 400, nil)
	}
	return collector.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(body)}, nil
}

type sequentialIDs struct {
	mu sync.Mutex
	n  int
}

func (s *sequentialIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("run-%d", s.n), nil
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func testConfig() config.Config {
	return config.Config{
		Retry:   config.RetryConfig{Attempts: 2, RateLimitMultiplier: 1},
		SERP:    config.SERPConfig{MaxPages: 5, MaxWorkers: 2, JSONSuffix: "&brd_json=1"},
		Scraper: config.ScraperConfig{MaxWorkers: 2, ExtractionQualityMinChars: 20},
		Progress: config.ProgressConfig{
			BufferSize:     64,
			MaxBatchEvents: 8,
			MaxBatchWaitMs: 5,
		},
	}
}

type harness struct {
	app       *app.App
	sink      *memory.RecordSink
	runs      *memory.RunStore
	publisher *pubmemory.Publisher
}

func newHarness(t *testing.T, cfg config.Config, deps app.Deps) *harness {
	t.Helper()
	h := &harness{
		sink:      memory.NewRecordSink(),
		runs:      memory.NewRunStore(),
		publisher: pubmemory.New(),
	}
	deps.Sink = h.sink
	deps.Runs = h.runs
	deps.Publisher = h.publisher
	deps.Clock = system.NewFixed(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	deps.IDs = &sequentialIDs{}
	deps.Sleep = noSleep
	deps.Registerer = prometheus.NewRegistry()

	a, err := app.NewWithDeps(cfg, deps, nil)
	require.NoError(t, err)
	h.app = a
	return h
}

func longBody(word string) string {
	return strings.Repeat(word+" ", 20)
}

func TestScrapeContentFallsBackAndRecordsFailures(t *testing.T) {
	t.Parallel()

	strategies := []extract.Strategy{
		&fakeStrategy{name: "a"},
		&fakeStrategy{name: "b", answers: map[string]string{"https://x.test/a": "too short"}},
		&fakeStrategy{name: "c", answers: map[string]string{"https://x.test/a": longBody("press")}},
	}
	h := newHarness(t, testConfig(), app.Deps{Strategies: strategies})

	report, err := h.app.ScrapeContent(context.Background(), []string{
		"https://x.test/a", "https://x.test/b", " https://x.test/a ",
	})
	require.NoError(t, err)

	require.Equal(t, "run-1", report.RunID)
	require.Equal(t, progress.RunSuccess, report.Status)
	require.Equal(t, 2, report.Metrics.Total)
	require.Equal(t, 1, report.Metrics.Successful)
	require.Equal(t, 1, report.Metrics.Failed)
	require.Equal(t, map[collector.Category]int{collector.CategoryAllStrategiesFailed: 1}, report.Metrics.Categories)
	require.Equal(t, map[string]int{"c": 1}, report.Metrics.Strategies)
	require.InDelta(t, 50.0, report.SuccessRate, 0.001)
	require.Equal(t, 1, report.ErrorLogEntries)
	require.Contains(t, report.Summary, "All Scrapers Failed")

	content := h.sink.Content("run-1")
	require.Len(t, content, 1)
	require.Equal(t, "https://x.test/a", content[0].URL)
	require.Equal(t, "c", content[0].StrategyUsed)

	failures := h.sink.Failures("run-1")
	require.Len(t, failures, 1)
	require.Equal(t, "https://x.test/b", failures[0].URL)
	require.Equal(t, collector.CategoryAllStrategiesFailed, failures[0].Category)

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	payload, ok := msgs[0].Payload.(app.RunReport)
	require.True(t, ok)
	require.Equal(t, "success", payload.Attributes()["status"])

	require.NoError(t, h.app.Close(context.Background()))
	run, err := h.runs.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, progress.RunSuccess, run.Status)
	require.Equal(t, progress.Counts{Total: 2, Done: 2, Succeeded: 1, Failed: 1}, run.Counts)
	require.Equal(t, int64(1), run.Categories[collector.CategoryAllStrategiesFailed])
}

func TestScrapeContentNoFailuresSkipsErrorLog(t *testing.T) {
	t.Parallel()

	strategies := []extract.Strategy{
		&fakeStrategy{name: "dom", answers: map[string]string{"https://x.test/a": longBody("news")}},
	}
	h := newHarness(t, testConfig(), app.Deps{Strategies: strategies})
	defer func() { require.NoError(t, h.app.Close(context.Background())) }()

	report, err := h.app.ScrapeContent(context.Background(), []string{"https://x.test/a"})
	require.NoError(t, err)
	require.Equal(t, 0, report.ErrorLogEntries)
	require.Empty(t, h.sink.Failures(report.RunID))
}

func TestScrapeContentRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), app.Deps{Strategies: []extract.Strategy{&fakeStrategy{name: "dom"}}})
	defer func() { require.NoError(t, h.app.Close(context.Background())) }()

	_, err := h.app.ScrapeContent(context.Background(), []string{" ", ""})
	require.ErrorIs(t, err, collector.ErrInvalidInput)
}

func TestScrapeContentRequiresStrategies(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), app.Deps{})
	defer func() { require.NoError(t, h.app.Close(context.Background())) }()

	_, err := h.app.ScrapeContent(context.Background(), []string{"https://x.test/a"})
	require.ErrorIs(t, err, collector.ErrNoStrategies)
}

func TestScrapeContentSkipsProcessedURLs(t *testing.T) {
	t.Parallel()

	tracker, err := dedup.Open(t.TempDir()+"/processed.txt", nil)
	require.NoError(t, err)
	tracker.Mark("https://x.test/old")

	strategies := []extract.Strategy{
		&fakeStrategy{name: "dom", answers: map[string]string{"https://x.test/new": longBody("fresh")}},
	}
	h := newHarness(t, testConfig(), app.Deps{Strategies: strategies, Dedup: tracker})
	defer func() { require.NoError(t, h.app.Close(context.Background())) }()

	report, err := h.app.ScrapeContent(context.Background(), []string{"https://x.test/old", "https://x.test/new"})
	require.NoError(t, err)
	require.Equal(t, 1, report.AlreadyProcessed)
	require.Equal(t, 1, report.Metrics.Total)
	require.True(t, tracker.IsProcessed("https://x.test/new"))
}

func TestScrapeContentPublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	strategies := []extract.Strategy{
		&fakeStrategy{name: "dom", answers: map[string]string{"https://x.test/a": longBody("news")}},
	}
	h := newHarness(t, testConfig(), app.Deps{Strategies: strategies})
	defer func() { require.NoError(t, h.app.Close(context.Background())) }()
	h.publisher.FailWith(errors.New("topic gone"))

	report, err := h.app.ScrapeContent(context.Background(), []string{"https://x.test/a"})
	require.NoError(t, err)
	require.Equal(t, progress.RunSuccess, report.Status)
}

const serpPage1 = `{"organic":[
 {"title":"One","description":"first","link":"https://news.test/1","rank":1},
 {"link":"https://news.test/2","rank":2}
],"pagination":{"next_page_link":"https://serp.test/search?q=a&start=10&brd_json=1"}}`

const serpPage2 = `{"organic":[
 {"title":"Three","link":"https://news.test/3","rank":3},
 {"title":"Dup","link":"https://news.test/1","rank":4}
],"pagination":{}}`

func TestCollectSERPWritesRecordsAndListsFailedQueries(t *testing.T) {
	t.Parallel()

	fetcher := &serpFetcher{pages: map[string]string{
		"https://serp.test/search?q=a&brd_json=1":          serpPage1,
		"https://serp.test/search?q=a&start=10&brd_json=1": serpPage2,
	}}
	h := newHarness(t, testConfig(), app.Deps{SERPFetcher: fetcher})

	report, err := h.app.CollectSERP(context.Background(), []collector.Query{
		collector.NewQuery("https://serp.test/search?q=a&brd_json=1"),
		collector.NewQuery("https://serp.test/search?q=missing&brd_json=1"),
	})
	require.NoError(t, err)
	require.Equal(t, 4, report.Records)
	require.Equal(t, []string{"https://news.test/1", "https://news.test/2", "https://news.test/3"}, report.Links)
	require.Equal(t, []string{"https://serp.test/search?q=missing&brd_json=1"}, report.FailedQueries)
	require.Equal(t, 1, report.Metrics.Successful)
	require.Equal(t, 1, report.Metrics.Failed)
	require.Equal(t, 1, report.Metrics.Categories[collector.CategoryClientRejected])

	records := h.sink.SearchResults(report.RunID)
	require.Len(t, records, 4)
	require.Nil(t, records[1].Title)
	require.Len(t, h.sink.Failures(report.RunID), 1)

	require.NoError(t, h.app.Close(context.Background()))
	run, err := h.runs.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	require.Equal(t, collector.PhaseSERP, run.Phase)
}

func TestCollectSERPRequiresProxy(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.SERP.RequireProxy = true
	h := newHarness(t, cfg, app.Deps{SERPFetcher: &serpFetcher{}})
	defer func() { require.NoError(t, h.app.Close(context.Background())) }()

	_, err := h.app.CollectSERP(context.Background(), []collector.Query{collector.NewQuery("https://serp.test/q")})
	require.ErrorContains(t, err, "proxy")
	require.Empty(t, h.publisher.Messages())
}

// blockingStrategy never finishes on its own.
type blockingStrategy struct{}

func (blockingStrategy) Name() string { return "slow" }

func (blockingStrategy) Attempt(ctx context.Context, _ string) (collector.ContentRecord, error) {
	<-ctx.Done()
	return collector.ContentRecord{}, ctx.Err()
}

func TestScrapeContentRunTimeoutAccountsForEveryURL(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Run.TimeoutSeconds = 1
	cfg.Scraper.MaxWorkers = 1
	h := newHarness(t, cfg, app.Deps{Strategies: []extract.Strategy{blockingStrategy{}}})
	defer func() { require.NoError(t, h.app.Close(context.Background())) }()

	urls := []string{"https://x.test/1", "https://x.test/2", "https://x.test/3"}
	report, err := h.app.ScrapeContent(context.Background(), urls)
	require.NoError(t, err)
	require.Equal(t, progress.RunError, report.Status)
	require.Equal(t, 3, report.Metrics.Total)
	require.Equal(t, 3, report.Metrics.Categories[collector.CategoryCanceled])
	require.Len(t, h.sink.Failures(report.RunID), 3)
}
