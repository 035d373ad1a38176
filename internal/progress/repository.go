package progress

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/press-release-collector/internal/collector"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus mirrors the collector_runs status column.
type RunStatus string

// Run statuses.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Counts are the cumulative item counters of a run.
type Counts struct {
	Total     int `json:"total"`
	Done      int `json:"done"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Run models one persisted run for API responses.
type Run struct {
	ID         string                       `json:"id"`
	Phase      collector.Phase              `json:"phase"`
	StartedAt  time.Time                    `json:"started_at"`
	FinishedAt *time.Time                   `json:"finished_at,omitempty"`
	Status     RunStatus                    `json:"status"`
	Error      *string                      `json:"error,omitempty"`
	Counts     Counts                       `json:"counts"`
	Categories map[collector.Category]int64 `json:"failure_categories,omitempty"`
}

// RunRepository persists incremental run progress.
type RunRepository interface {
	// StartRun inserts (or idempotently updates) the run row.
	StartRun(ctx context.Context, runID string, phase collector.Phase, startedAt time.Time) error
	// UpdateCounts overwrites the cumulative counters.
	UpdateCounts(ctx context.Context, runID string, counts Counts, at time.Time) error
	// AddFailures applies a delta to the per-category failure count.
	AddFailures(ctx context.Context, runID string, category collector.Category, delta int64, at time.Time) error
	// CompleteRun marks the run finished.
	CompleteRun(ctx context.Context, runID string, finishedAt time.Time, status RunStatus, errMsg *string) error
}

// RunReader exposes persisted runs to the HTTP API.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (Run, error)
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
}
