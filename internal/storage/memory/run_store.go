package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/press-release-collector/internal/collector"
	"github.com/JakeFAU/press-release-collector/internal/progress"
)

// RunStore implements progress.RunRepository and progress.RunReader.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]progress.Run
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]progress.Run)}
}

// StartRun records the run as running. Repeated calls keep the first start time.
func (s *RunStore) StartRun(_ context.Context, runID string, phase collector.Phase, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; ok {
		return nil
	}
	s.runs[runID] = progress.Run{
		ID:        runID,
		Phase:     phase,
		StartedAt: startedAt,
		Status:    progress.RunRunning,
	}
	return nil
}

// UpdateCounts overwrites the counters of a known run.
func (s *RunStore) UpdateCounts(_ context.Context, runID string, counts progress.Counts, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return progress.ErrNotFound
	}
	run.Counts = counts
	s.runs[runID] = run
	return nil
}

// AddFailures increments the category counter of a known run.
func (s *RunStore) AddFailures(_ context.Context, runID string, category collector.Category, delta int64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return progress.ErrNotFound
	}
	cats := make(map[collector.Category]int64, len(run.Categories)+1)
	for k, v := range run.Categories {
		cats[k] = v
	}
	cats[category] += delta
	run.Categories = cats
	s.runs[runID] = run
	return nil
}

// CompleteRun marks a known run finished.
func (s *RunStore) CompleteRun(
	_ context.Context,
	runID string,
	finishedAt time.Time,
	status progress.RunStatus,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return progress.ErrNotFound
	}
	ts := finishedAt
	run.FinishedAt = &ts
	run.Status = status
	run.Error = errMsg
	s.runs[runID] = run
	return nil
}

// GetRun returns the run or progress.ErrNotFound.
func (s *RunStore) GetRun(_ context.Context, runID string) (progress.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return progress.Run{}, progress.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *RunStore) ListRuns(_ context.Context, status *progress.RunStatus, limit, offset int) ([]progress.Run, error) {
	s.mu.RLock()
	out := make([]progress.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		out = append(out, run)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if offset >= len(out) {
		return []progress.Run{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
