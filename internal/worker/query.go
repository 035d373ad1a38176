package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/press-release-collector/internal/collector"
	"github.com/JakeFAU/press-release-collector/internal/metrics"
	"github.com/JakeFAU/press-release-collector/internal/progress"
	"github.com/JakeFAU/press-release-collector/internal/serp"
)

// Walker drives one query through its result pages.
type Walker interface {
	Walk(ctx context.Context, query collector.Query) serp.QueryResult
}

// Query walks one SERP query per call.
type Query struct {
	RunID    string
	Walker   Walker
	Metrics  *metrics.RunMetrics
	Progress progress.Emitter
	Clock    collector.Clock
	Logger   *zap.Logger
}

// Do walks q. A query whose first page never succeeded is a failure; one
// that stopped later keeps its records and counts as a success.
func (w *Query) Do(ctx context.Context, q collector.Query) (serp.QueryResult, bool) {
	start := w.now()
	result := w.Walker.Walk(ctx, q)
	elapsed := w.now().Sub(start)

	if result.Failed() {
		failure := collector.FailureRecord{
			URL:       q.Raw,
			Category:  categoryOf(ctx, result.Err),
			Message:   result.Err.Error(),
			Timestamp: w.now(),
		}
		w.Metrics.RecordFailure(failure, elapsed)
		w.emit(progress.Event{
			Stage:    progress.StageItemFailed,
			URL:      q.Raw,
			Category: failure.Category,
			Dur:      elapsed,
			Note:     failure.Message,
		})
		w.logger().Warn("query failed",
			zap.String("run_id", w.RunID),
			zap.String("query", q.Raw),
			zap.String("category", string(failure.Category)),
			zap.Error(result.Err),
		)
		return result, false
	}

	w.Metrics.RecordSuccess("", elapsed)
	w.emit(progress.Event{
		Stage: progress.StageItemDone,
		URL:   q.Raw,
		Dur:   elapsed,
		Note:  string(result.Reason),
	})
	w.logger().Info("query collected",
		zap.String("run_id", w.RunID),
		zap.String("query", q.Raw),
		zap.Int("pages", result.Pages),
		zap.Int("records", len(result.Records)),
		zap.String("reason", string(result.Reason)),
	)
	return result, true
}

func (w *Query) emit(evt progress.Event) {
	if w.Progress == nil {
		return
	}
	evt.RunID = w.RunID
	evt.TS = w.now()
	evt.Phase = collector.PhaseSERP
	w.Progress.Emit(evt)
}

func (w *Query) now() time.Time {
	if w.Clock == nil {
		return time.Now().UTC()
	}
	return w.Clock.Now()
}

func (w *Query) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}
