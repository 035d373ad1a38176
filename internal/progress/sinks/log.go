package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/press-release-collector/internal/progress"
)

// LogSink emits structured logs for run progress. Item-level events are logged
// at debug so long runs stay readable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("phase", string(evt.Phase)),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageItemDone:
			s.logger.Debug("item done", append(fields,
				zap.String("url", evt.URL),
				zap.String("strategy", evt.Strategy),
				zap.Duration("dur", evt.Dur),
			)...)
		case progress.StageItemFailed:
			s.logger.Debug("item failed", append(fields,
				zap.String("url", evt.URL),
				zap.String("category", string(evt.Category)),
				zap.String("note", evt.Note),
			)...)
		case progress.StageRunError:
			s.logger.Warn("run error", append(fields, zap.String("note", evt.Note))...)
		default:
			s.logger.Info("run progress", append(fields,
				zap.Int("total", evt.Total),
				zap.Int("done", evt.Done),
				zap.Int("succeeded", evt.Succeeded),
				zap.Int("failed", evt.Failed),
				zap.Duration("dur", evt.Dur),
			)...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
