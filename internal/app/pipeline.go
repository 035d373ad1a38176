package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/press-release-collector/internal/collector"
	"github.com/JakeFAU/press-release-collector/internal/dedup"
	"github.com/JakeFAU/press-release-collector/internal/dispatcher"
	"github.com/JakeFAU/press-release-collector/internal/extract"
	"github.com/JakeFAU/press-release-collector/internal/metrics"
	"github.com/JakeFAU/press-release-collector/internal/progress"
	"github.com/JakeFAU/press-release-collector/internal/retry"
	"github.com/JakeFAU/press-release-collector/internal/serp"
	"github.com/JakeFAU/press-release-collector/internal/worker"
)

const failedQueriesLogged = 5

// RunReport is the outcome of one pipeline run. It doubles as the
// run-complete notification payload.
type RunReport struct {
	RunID   string             `json:"run_id"`
	Phase   collector.Phase    `json:"phase"`
	Status  progress.RunStatus `json:"status"`
	Metrics metrics.Snapshot   `json:"metrics"`
	// SuccessRate is a percentage.
	SuccessRate float64 `json:"success_rate"`
	Throughput  float64 `json:"throughput_per_sec"`
	// Records counts SearchResultRecords or ContentRecords written.
	Records int `json:"records"`
	// ErrorLogEntries counts FailureRecords written to the error log.
	ErrorLogEntries int `json:"error_log_entries"`
	// FailedQueries lists queries whose first page never succeeded.
	FailedQueries []string `json:"failed_queries,omitempty"`
	// Links holds the unique result links of a SERP run, in rank order.
	Links []string `json:"links,omitempty"`
	// AlreadyProcessed counts URLs dropped by the dedup tracker.
	AlreadyProcessed int    `json:"already_processed,omitempty"`
	Error            string `json:"error,omitempty"`
	Summary          string `json:"-"`
}

// Attributes lets subscribers filter notifications without decoding them.
func (r RunReport) Attributes() map[string]string {
	return map[string]string{
		"run_id": r.RunID,
		"phase":  string(r.Phase),
		"status": string(r.Status),
	}
}

// CollectSERP walks every query and writes the SearchResultRecords collected.
// A missing proxy or an empty query list is a configuration error and nothing
// runs.
func (a *App) CollectSERP(ctx context.Context, queries []collector.Query) (RunReport, error) {
	if err := a.cfg.ValidateSERP(); err != nil {
		return RunReport{}, fmt.Errorf("serp configuration: %w", err)
	}
	if a.serp == nil {
		return RunReport{}, errors.New("serp fetcher is not configured")
	}
	if len(queries) == 0 {
		return RunReport{}, fmt.Errorf("no queries: %w", collector.ErrInvalidInput)
	}
	runID, err := a.ids.NewID()
	if err != nil {
		return RunReport{}, err
	}
	logger := a.logger.With(zap.String("run_id", runID), zap.String("phase", string(collector.PhaseSERP)))
	runMetrics := metrics.NewRunMetrics(collector.PhaseSERP, a.clock.Now)
	a.emit(runID, collector.PhaseSERP, progress.Event{Stage: progress.StageRunStart, Total: len(queries)})
	logger.Info("serp run started", zap.Int("queries", len(queries)))

	runCtx, cancel := a.withRunTimeout(ctx)
	defer cancel()

	walker := serp.NewWalker(a.serp, a.runner(runMetrics, logger), serp.Config{
		MaxPages:   a.cfg.SERP.MaxPages,
		PageDelay:  a.cfg.SERPDelay(),
		JSONSuffix: a.cfg.SERP.JSONSuffix,
	}, logger)
	task := &worker.Query{
		RunID:    runID,
		Walker:   walker,
		Metrics:  runMetrics,
		Progress: a.hub,
		Clock:    a.clock,
		Logger:   logger,
	}
	// Throttled queries need the pause most, so it follows failures too.
	d := dispatcher.New(dispatcher.Config{
		Workers:           a.cfg.SERP.MaxWorkers,
		CourtesyDelay:     a.cfg.SERPDelay(),
		PauseAfterFailure: true,
	}, logger).WithProgress(a.progressFunc(runID, collector.PhaseSERP))

	summary := dispatcher.Run(runCtx, d, queries, task.Do)

	var (
		records []collector.SearchResultRecord
		failed  []string
	)
	for _, result := range summary.Results {
		records = append(records, result.Records...)
		if result.Failed() {
			failed = append(failed, result.Query.Raw)
		}
	}
	for _, idx := range undispatched(len(queries), summary.Indices) {
		a.recordSkipped(runID, collector.PhaseSERP, queries[idx].Raw, runMetrics)
		failed = append(failed, queries[idx].Raw)
	}
	runMetrics.Finish()

	// Flush what accumulated even after the run deadline.
	flushCtx := context.WithoutCancel(ctx)
	report := a.newReport(runID, collector.PhaseSERP, runMetrics)
	report.FailedQueries = failed
	report.Records = len(records)
	report.Links = uniqueLinks(records)

	var errs []error
	if err := a.sink.WriteSearchResults(flushCtx, runID, records); err != nil {
		errs = append(errs, fmt.Errorf("write search results: %w", err))
	}
	n, err := runMetrics.SaveErrorLog(flushCtx, a.sink, runID)
	if err != nil {
		errs = append(errs, err)
	}
	report.ErrorLogEntries = n

	if len(failed) > 0 {
		shown := failed
		if len(shown) > failedQueriesLogged {
			shown = shown[:failedQueriesLogged]
		}
		logger.Warn("queries failed", zap.Int("count", len(failed)), zap.Strings("first", shown))
	}
	return a.finish(flushCtx, report, summary.Canceled || runCtx.Err() != nil, errors.Join(errs...), logger)
}

// ScrapeContent extracts every URL and writes one ContentRecord or one
// FailureRecord per unique URL.
func (a *App) ScrapeContent(ctx context.Context, urls []string) (RunReport, error) {
	urls = dedup.Unique(urls)
	alreadyProcessed := 0
	if a.dedup != nil {
		urls, alreadyProcessed = a.dedup.Filter(urls)
	}
	if len(urls) == 0 && alreadyProcessed == 0 {
		return RunReport{}, fmt.Errorf("no urls: %w", collector.ErrInvalidInput)
	}
	runID, err := a.ids.NewID()
	if err != nil {
		return RunReport{}, err
	}
	logger := a.logger.With(zap.String("run_id", runID), zap.String("phase", string(collector.PhaseContent)))
	runMetrics := metrics.NewRunMetrics(collector.PhaseContent, a.clock.Now)

	chain, err := extract.NewChain(a.strategies, a.cfg.Scraper.ExtractionQualityMinChars, a.runner(runMetrics, logger), logger)
	if err != nil {
		return RunReport{}, fmt.Errorf("extraction chain: %w", err)
	}
	chain.WithClock(a.clock.Now)

	a.emit(runID, collector.PhaseContent, progress.Event{Stage: progress.StageRunStart, Total: len(urls)})
	logger.Info("content run started",
		zap.Int("urls", len(urls)),
		zap.Int("already_processed", alreadyProcessed),
		zap.Strings("strategies", chain.Names()),
	)

	runCtx, cancel := a.withRunTimeout(ctx)
	defer cancel()

	task := &worker.Content{
		RunID:     runID,
		Extractor: chain,
		Metrics:   runMetrics,
		Progress:  a.hub,
		Clock:     a.clock,
		Logger:    logger,
	}
	d := dispatcher.New(dispatcher.Config{
		Workers:       a.cfg.Scraper.MaxWorkers,
		CourtesyDelay: a.cfg.ScraperDelay(),
	}, logger).WithProgress(a.progressFunc(runID, collector.PhaseContent))

	summary := dispatcher.Run(runCtx, d, urls, task.Do)

	var (
		records []collector.ContentRecord
		scraped []string
	)
	for _, outcome := range summary.Results {
		if outcome.Record != nil {
			records = append(records, *outcome.Record)
			scraped = append(scraped, outcome.Record.URL)
		}
	}
	for _, idx := range undispatched(len(urls), summary.Indices) {
		a.recordSkipped(runID, collector.PhaseContent, urls[idx], runMetrics)
	}
	runMetrics.Finish()

	flushCtx := context.WithoutCancel(ctx)
	report := a.newReport(runID, collector.PhaseContent, runMetrics)
	report.Records = len(records)
	report.AlreadyProcessed = alreadyProcessed

	var errs []error
	if err := a.sink.WriteContent(flushCtx, runID, records); err != nil {
		errs = append(errs, fmt.Errorf("write content: %w", err))
	}
	n, err := runMetrics.SaveErrorLog(flushCtx, a.sink, runID)
	if err != nil {
		errs = append(errs, err)
	}
	report.ErrorLogEntries = n

	if a.dedup != nil && len(scraped) > 0 {
		a.dedup.Mark(scraped...)
		if err := a.dedup.Save(); err != nil {
			errs = append(errs, err)
		}
	}
	return a.finish(flushCtx, report, summary.Canceled || runCtx.Err() != nil, errors.Join(errs...), logger)
}

func (a *App) runner(runMetrics *metrics.RunMetrics, logger *zap.Logger) retry.Runner {
	return retry.Runner{
		Policy:    a.policy,
		Sleep:     a.sleep,
		OnAttempt: runMetrics.RecordAttempt,
		Logger:    logger,
	}
}

func (a *App) withRunTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout := a.cfg.RunTimeout(); timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func (a *App) progressFunc(runID string, phase collector.Phase) dispatcher.ProgressFunc {
	return func(p dispatcher.Progress) {
		a.emit(runID, phase, progress.Event{
			Stage:     progress.StageProgress,
			Total:     p.Total,
			Done:      p.Done,
			Succeeded: p.Succeeded,
			Failed:    p.Failed,
		})
	}
}

func (a *App) emit(runID string, phase collector.Phase, evt progress.Event) {
	evt.RunID = runID
	evt.Phase = phase
	evt.TS = a.clock.Now()
	a.hub.Emit(evt)
}

// recordSkipped turns an item the deadline kept from starting into a
// FailureRecord so every input still has exactly one outcome.
func (a *App) recordSkipped(runID string, phase collector.Phase, item string, runMetrics *metrics.RunMetrics) {
	failure := collector.FailureRecord{
		URL:       item,
		Category:  collector.CategoryCanceled,
		Message:   "run deadline reached before the item started",
		Timestamp: a.clock.Now(),
	}
	runMetrics.RecordFailure(failure, 0)
	a.emit(runID, phase, progress.Event{
		Stage:    progress.StageItemFailed,
		URL:      item,
		Category: failure.Category,
		Note:     failure.Message,
	})
}

func (a *App) newReport(runID string, phase collector.Phase, runMetrics *metrics.RunMetrics) RunReport {
	snap := runMetrics.Snapshot()
	return RunReport{
		RunID:       runID,
		Phase:       phase,
		Metrics:     snap,
		SuccessRate: snap.SuccessRate(),
		Throughput:  snap.Throughput(),
		Summary:     runMetrics.GenerateReport(),
	}
}

// finish emits the terminal event, publishes the notification, and returns
// the report. A deadline is reported in the run status, not as an error, since
// whatever accumulated has been written.
func (a *App) finish(ctx context.Context, report RunReport, timedOut bool, writeErr error, logger *zap.Logger) (RunReport, error) {
	counts := progress.Event{
		Total:     report.Metrics.Total,
		Done:      report.Metrics.Total,
		Succeeded: report.Metrics.Successful,
		Failed:    report.Metrics.Failed,
		Dur:       report.Metrics.Elapsed,
	}
	switch {
	case writeErr != nil:
		report.Status = progress.RunError
		report.Error = writeErr.Error()
	case timedOut:
		report.Status = progress.RunError
		report.Error = "run timeout reached"
	default:
		report.Status = progress.RunSuccess
	}
	if report.Status == progress.RunSuccess {
		counts.Stage = progress.StageRunDone
	} else {
		counts.Stage = progress.StageRunError
		counts.Note = report.Error
	}
	a.emit(report.RunID, report.Phase, counts)

	if a.publisher != nil {
		msgID, err := a.publisher.Publish(ctx, "", report)
		if err != nil {
			logger.Warn("publish run notification failed", zap.Error(err))
		} else {
			logger.Debug("run notification published", zap.String("message_id", msgID))
		}
	}
	logger.Info("run finished",
		zap.String("status", string(report.Status)),
		zap.Int("total", report.Metrics.Total),
		zap.Int("successful", report.Metrics.Successful),
		zap.Int("failed", report.Metrics.Failed),
		zap.Duration("elapsed", report.Metrics.Elapsed.Round(time.Millisecond)),
	)
	logger.Info(report.Summary)
	if writeErr != nil {
		return report, writeErr
	}
	return report, nil
}

// undispatched returns the input positions missing from done.
func undispatched(n int, done []int) []int {
	seen := make([]bool, n)
	for _, idx := range done {
		seen[idx] = true
	}
	var missing []int
	for i, ok := range seen {
		if !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

func uniqueLinks(records []collector.SearchResultRecord) []string {
	links := make([]string, 0, len(records))
	for _, r := range records {
		links = append(links, r.Link)
	}
	return dedup.Unique(links)
}
