package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/press-release-collector/internal/collector"
	"github.com/JakeFAU/press-release-collector/internal/metrics"
	"github.com/JakeFAU/press-release-collector/internal/progress"
)

// Extractor produces a content record for one URL.
type Extractor interface {
	Extract(ctx context.Context, url string) (collector.ContentRecord, error)
}

// ContentOutcome is exactly one of Record or Failure.
type ContentOutcome struct {
	Record  *collector.ContentRecord
	Failure *collector.FailureRecord
}

// Content scrapes one article URL per call.
type Content struct {
	RunID     string
	Extractor Extractor
	Metrics   *metrics.RunMetrics
	Progress  progress.Emitter
	Clock     collector.Clock
	Logger    *zap.Logger
}

// Do extracts url. The bool reports success for the dispatcher's courtesy
// delay and progress counters.
func (w *Content) Do(ctx context.Context, url string) (ContentOutcome, bool) {
	start := w.now()
	rec, err := w.Extractor.Extract(ctx, url)
	elapsed := w.now().Sub(start)

	if err != nil {
		failure := collector.FailureRecord{
			URL:       url,
			Category:  categoryOf(ctx, err),
			Message:   err.Error(),
			Timestamp: w.now(),
		}
		w.Metrics.RecordFailure(failure, elapsed)
		w.emit(progress.Event{
			Stage:    progress.StageItemFailed,
			URL:      url,
			Category: failure.Category,
			Dur:      elapsed,
			Note:     failure.Message,
		})
		w.logger().Warn("scrape failed",
			zap.String("run_id", w.RunID),
			zap.String("url", url),
			zap.String("category", string(failure.Category)),
			zap.Error(err),
		)
		return ContentOutcome{Failure: &failure}, false
	}

	w.Metrics.RecordSuccess(rec.StrategyUsed, elapsed)
	w.emit(progress.Event{
		Stage:    progress.StageItemDone,
		URL:      url,
		Strategy: rec.StrategyUsed,
		Dur:      elapsed,
	})
	w.logger().Debug("scrape succeeded",
		zap.String("run_id", w.RunID),
		zap.String("url", url),
		zap.String("strategy", rec.StrategyUsed),
		zap.Duration("elapsed", elapsed),
	)
	return ContentOutcome{Record: &rec}, true
}

func (w *Content) emit(evt progress.Event) {
	if w.Progress == nil {
		return
	}
	evt.RunID = w.RunID
	evt.TS = w.now()
	evt.Phase = collector.PhaseContent
	w.Progress.Emit(evt)
}

func (w *Content) now() time.Time {
	if w.Clock == nil {
		return time.Now().UTC()
	}
	return w.Clock.Now()
}

func (w *Content) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

// categoryOf reports Canceled for anything cut short by the run deadline,
// whatever the underlying error looked like.
func categoryOf(ctx context.Context, err error) collector.Category {
	if ctx.Err() != nil {
		return collector.CategoryCanceled
	}
	return collector.Classify(err)
}
