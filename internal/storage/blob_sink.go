package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/press-release-collector/internal/collector"
)

// FileNames names the three output files of a run.
type FileNames struct {
	SearchResults string
	Content       string
	Failures      string
}

// DefaultFileNames mirrors the pipeline's historical output names.
var DefaultFileNames = FileNames{
	SearchResults: "collected_results.csv",
	Content:       "content_records.jsonl",
	Failures:      "scraper_errors.csv",
}

// BlobSink encodes records into files and writes them to a BlobStore under
// <prefix>/<runID>/<name>.
type BlobSink struct {
	store  collector.BlobStore
	prefix string
	names  FileNames
	logger *zap.Logger

	mu      sync.Mutex
	written []string
}

// NewBlobSink wires a BlobStore as a RecordSink.
func NewBlobSink(store collector.BlobStore, prefix string, names FileNames, logger *zap.Logger) (*BlobSink, error) {
	if store == nil {
		return nil, errors.New("blob store is required")
	}
	if names.SearchResults == "" {
		names.SearchResults = DefaultFileNames.SearchResults
	}
	if names.Content == "" {
		names.Content = DefaultFileNames.Content
	}
	if names.Failures == "" {
		names.Failures = DefaultFileNames.Failures
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobSink{store: store, prefix: prefix, names: names, logger: logger}, nil
}

// WriteSearchResults writes the SERP CSV.
func (s *BlobSink) WriteSearchResults(ctx context.Context, runID string, records []collector.SearchResultRecord) error {
	data, err := EncodeSearchResults(records)
	if err != nil {
		return err
	}
	return s.put(ctx, runID, s.names.SearchResults, ContentTypeCSV, data)
}

// WriteContent writes the content JSONL file.
func (s *BlobSink) WriteContent(ctx context.Context, runID string, records []collector.ContentRecord) error {
	data, err := EncodeContent(records)
	if err != nil {
		return err
	}
	return s.put(ctx, runID, s.names.Content, ContentTypeJSONL, data)
}

// WriteFailures writes the failure log CSV.
func (s *BlobSink) WriteFailures(ctx context.Context, runID string, records []collector.FailureRecord) error {
	data, err := EncodeFailures(records)
	if err != nil {
		return err
	}
	return s.put(ctx, runID, s.names.Failures, ContentTypeCSV, data)
}

// Written returns the URIs written so far.
func (s *BlobSink) Written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.written...)
}

func (s *BlobSink) put(ctx context.Context, runID, name, contentType string, data []byte) error {
	key := path.Join(s.prefix, runID, name)
	uri, err := s.store.PutObject(ctx, key, contentType, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	s.logger.Info("wrote run file", zap.String("run_id", runID), zap.String("uri", uri), zap.Int("bytes", len(data)))
	s.mu.Lock()
	s.written = append(s.written, uri)
	s.mu.Unlock()
	return nil
}
