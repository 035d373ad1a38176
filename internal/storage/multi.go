package storage

import (
	"context"
	"errors"

	"github.com/JakeFAU/press-release-collector/internal/collector"
)

// Multi fans records out to every sink. All sinks are attempted; their errors
// are joined.
type Multi []collector.RecordSink

// WriteSearchResults implements collector.RecordSink.
func (m Multi) WriteSearchResults(ctx context.Context, runID string, records []collector.SearchResultRecord) error {
	return m.each(func(s collector.RecordSink) error {
		return s.WriteSearchResults(ctx, runID, records)
	})
}

// WriteContent implements collector.RecordSink.
func (m Multi) WriteContent(ctx context.Context, runID string, records []collector.ContentRecord) error {
	return m.each(func(s collector.RecordSink) error {
		return s.WriteContent(ctx, runID, records)
	})
}

// WriteFailures implements collector.RecordSink and collector.FailureSink.
func (m Multi) WriteFailures(ctx context.Context, runID string, records []collector.FailureRecord) error {
	return m.each(func(s collector.RecordSink) error {
		return s.WriteFailures(ctx, runID, records)
	})
}

func (m Multi) each(fn func(collector.RecordSink) error) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := fn(sink); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
