package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/press-release-collector/internal/collector"
)

// RecordSink keeps every written record grouped by run.
type RecordSink struct {
	mu       sync.RWMutex
	results  map[string][]collector.SearchResultRecord
	content  map[string][]collector.ContentRecord
	failures map[string][]collector.FailureRecord
}

// NewRecordSink constructs an empty RecordSink.
func NewRecordSink() *RecordSink {
	return &RecordSink{
		results:  make(map[string][]collector.SearchResultRecord),
		content:  make(map[string][]collector.ContentRecord),
		failures: make(map[string][]collector.FailureRecord),
	}
}

// WriteSearchResults appends SERP records for runID.
func (s *RecordSink) WriteSearchResults(_ context.Context, runID string, records []collector.SearchResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[runID] = append(s.results[runID], records...)
	return nil
}

// WriteContent appends content records for runID.
func (s *RecordSink) WriteContent(_ context.Context, runID string, records []collector.ContentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[runID] = append(s.content[runID], records...)
	return nil
}

// WriteFailures appends failure records for runID.
func (s *RecordSink) WriteFailures(_ context.Context, runID string, records []collector.FailureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[runID] = append(s.failures[runID], records...)
	return nil
}

// SearchResults returns a copy of the SERP records for runID.
func (s *RecordSink) SearchResults(runID string) []collector.SearchResultRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]collector.SearchResultRecord(nil), s.results[runID]...)
}

// Content returns a copy of the content records for runID.
func (s *RecordSink) Content(runID string) []collector.ContentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]collector.ContentRecord(nil), s.content[runID]...)
}

// Failures returns a copy of the failure records for runID.
func (s *RecordSink) Failures(runID string) []collector.FailureRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]collector.FailureRecord(nil), s.failures[runID]...)
}
