package collector

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// RecordSink persists the records produced by a run.
type RecordSink interface {
	WriteSearchResults(ctx context.Context, runID string, records []SearchResultRecord) error
	WriteContent(ctx context.Context, runID string, records []ContentRecord) error
	WriteFailures(ctx context.Context, runID string, records []FailureRecord) error
}

// FailureSink receives the structured failure log.
type FailureSink interface {
	WriteFailures(ctx context.Context, runID string, records []FailureRecord) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes run completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
