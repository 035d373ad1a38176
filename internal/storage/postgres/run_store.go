package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/press-release-collector/internal/collector"
	"github.com/JakeFAU/press-release-collector/internal/progress"
)

// RunStore implements progress.RunRepository and progress.RunReader.
type RunStore struct {
	pool   pool
	tables Tables
}

// NewRunStore wraps an existing pool.
func NewRunStore(p pool, tables Tables) (*RunStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if tables.Runs == "" {
		return nil, errors.New("tables are required")
	}
	return &RunStore{pool: p, tables: tables}, nil
}

// StartRun inserts the run row; a repeated start is ignored.
func (s *RunStore) StartRun(ctx context.Context, runID string, phase collector.Phase, startedAt time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, phase, started_at, status, updated_at)
VALUES ($1, $2, $3, $4, $3)
ON CONFLICT (id) DO NOTHING`, s.tables.Runs)
	if _, err := s.pool.Exec(ctx, query, runID, string(phase), startedAt, string(progress.RunRunning)); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateCounts overwrites the cumulative counters.
func (s *RunStore) UpdateCounts(ctx context.Context, runID string, counts progress.Counts, at time.Time) error {
	query := fmt.Sprintf(`
UPDATE %s SET total = $1, done = $2, succeeded = $3, failed = $4, updated_at = $5
WHERE id = $6`, s.tables.Runs)
	res, err := s.pool.Exec(ctx, query, counts.Total, counts.Done, counts.Succeeded, counts.Failed, at, runID)
	if err != nil {
		return fmt.Errorf("update run counts: %w", err)
	}
	if res.RowsAffected() == 0 {
		return progress.ErrNotFound
	}
	return nil
}

// AddFailures upserts the per-category counter.
func (s *RunStore) AddFailures(ctx context.Context, runID string, category collector.Category, delta int64, at time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %[1]s (run_id, category, count, last_update)
VALUES ($1, $2, $3, $4)
ON CONFLICT (run_id, category) DO UPDATE
SET count = %[1]s.count + EXCLUDED.count, last_update = EXCLUDED.last_update`, s.tables.RunFailures)
	if _, err := s.pool.Exec(ctx, query, runID, string(category), delta, at); err != nil {
		return fmt.Errorf("upsert failure category: %w", err)
	}
	return nil
}

// CompleteRun marks the run finished.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID string,
	finishedAt time.Time,
	status progress.RunStatus,
	errMsg *string,
) error {
	query := fmt.Sprintf(`
UPDATE %s SET finished_at = $1, status = $2, error_message = $3, updated_at = $1
WHERE id = $4`, s.tables.Runs)
	if _, err := s.pool.Exec(ctx, query, finishedAt, string(status), errMsg, runID); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

func (s *RunStore) selectRuns() string {
	return fmt.Sprintf(`SELECT id, phase, started_at, finished_at, status, error_message, total, done, succeeded, failed
FROM %s`, s.tables.Runs)
}

// GetRun loads one run plus its failure categories.
func (s *RunStore) GetRun(ctx context.Context, runID string) (progress.Run, error) {
	run, err := scanRun(s.pool.QueryRow(ctx, s.selectRuns()+` WHERE id = $1`, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return progress.Run{}, progress.ErrNotFound
		}
		return progress.Run{}, fmt.Errorf("get run: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT category, count FROM %s WHERE run_id = $1`, s.tables.RunFailures), runID)
	if err != nil {
		return progress.Run{}, fmt.Errorf("list run failures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			category string
			count    int64
		)
		if err := rows.Scan(&category, &count); err != nil {
			return progress.Run{}, fmt.Errorf("scan run failure: %w", err)
		}
		if run.Categories == nil {
			run.Categories = make(map[collector.Category]int64)
		}
		run.Categories[collector.Category(category)] = count
	}
	if err := rows.Err(); err != nil {
		return progress.Run{}, fmt.Errorf("iterate run failures: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first with an optional status filter.
func (s *RunStore) ListRuns(ctx context.Context, status *progress.RunStatus, limit, offset int) ([]progress.Run, error) {
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	query := s.selectRuns() + `
WHERE ($1::text IS NULL OR status = $1)
ORDER BY started_at DESC
LIMIT $2 OFFSET $3`
	rows, err := s.pool.Query(ctx, query, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []progress.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Close releases the pool.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func scanRun(row pgx.Row) (progress.Run, error) {
	var (
		run    progress.Run
		phase  string
		status string
	)
	err := row.Scan(
		&run.ID,
		&phase,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.Error,
		&run.Counts.Total,
		&run.Counts.Done,
		&run.Counts.Succeeded,
		&run.Counts.Failed,
	)
	if err != nil {
		return progress.Run{}, err
	}
	run.Phase = collector.Phase(phase)
	run.Status = progress.RunStatus(status)
	return run, nil
}
