package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/press-release-collector/internal/collector"
	"github.com/JakeFAU/press-release-collector/internal/progress"
)

// StoreSink persists run progress via a progress.RunRepository. Counter
// updates and failure categories are collapsed per batch.
type StoreSink struct {
	repo   progress.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo progress.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards lifecycle events immediately and collapses counters and
// failure deltas before writing them.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	latest := make(map[string]progress.Event)
	failures := make(map[failureKey]*failureDelta)

	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.StartRun(ctx, evt.RunID, evt.Phase, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageProgress:
			latest[evt.RunID] = evt
		case progress.StageItemFailed:
			key := failureKey{runID: evt.RunID, category: evt.Category}
			delta := failures[key]
			if delta == nil {
				delta = &failureDelta{}
				failures[key] = delta
			}
			delta.count++
			if evt.TS.After(delta.at) {
				delta.at = evt.TS
			}
		case progress.StageRunDone, progress.StageRunError:
			latest[evt.RunID] = evt
		}
	}

	for key, delta := range failures {
		if err := s.repo.AddFailures(ctx, key.runID, key.category, delta.count, delta.at); err != nil {
			return fmt.Errorf("add failures: %w", err)
		}
	}
	for runID, evt := range latest {
		counts := progress.Counts{Total: evt.Total, Done: evt.Done, Succeeded: evt.Succeeded, Failed: evt.Failed}
		if err := s.repo.UpdateCounts(ctx, runID, counts, evt.TS); err != nil {
			return fmt.Errorf("update counts: %w", err)
		}
		if err := s.complete(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) complete(ctx context.Context, evt progress.Event) error {
	var (
		status progress.RunStatus
		note   *string
	)
	switch evt.Stage {
	case progress.StageRunDone:
		status = progress.RunSuccess
	case progress.StageRunError:
		status = progress.RunError
		if evt.Note != "" {
			msg := evt.Note
			note = &msg
		}
	default:
		return nil
	}
	if err := s.repo.CompleteRun(ctx, evt.RunID, evt.TS, status, note); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type failureKey struct {
	runID    string
	category collector.Category
}

type failureDelta struct {
	count int64
	at    time.Time
}
