package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/press-release-collector/internal/collector"
	"github.com/JakeFAU/press-release-collector/internal/hash/sha256"
)

// RecordStore writes SERP, content, and failure rows. Each call inserts its
// records in one transaction.
type RecordStore struct {
	pool   pool
	tables Tables
	hasher *sha256.Hasher
}

// NewRecordStore wraps an existing pool.
func NewRecordStore(p pool, tables Tables) (*RecordStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if tables.SearchResults == "" {
		return nil, errors.New("tables are required")
	}
	return &RecordStore{pool: p, tables: tables, hasher: sha256.New()}, nil
}

// WriteSearchResults implements collector.RecordSink.
func (s *RecordStore) WriteSearchResults(ctx context.Context, runID string, records []collector.SearchResultRecord) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (run_id, title, description, link, rank, query) VALUES ($1,$2,$3,$4,$5,$6)`,
		s.tables.SearchResults,
	)
	return s.insertAll(ctx, "serp results", len(records), func(tx pgx.Tx, i int) error {
		rec := records[i]
		_, err := tx.Exec(ctx, query, runID, rec.Title, rec.Description, rec.Link, rec.Rank, rec.SourceQuery)
		return err
	})
}

// WriteContent implements collector.RecordSink. A URL already stored for the
// run is left untouched. Each row carries a whitespace-insensitive body
// fingerprint for matching syndicated copies.
func (s *RecordStore) WriteContent(ctx context.Context, runID string, records []collector.ContentRecord) error {
	query := fmt.Sprintf(`INSERT INTO %s (
	run_id, url, title, summary, publish_date, keywords, body_text, body_sha256, strategy_used, fetched_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (run_id, url) DO NOTHING`, s.tables.Content)
	return s.insertAll(ctx, "content records", len(records), func(tx pgx.Tx, i int) error {
		rec := records[i]
		keywords := rec.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		_, err := tx.Exec(ctx, query,
			runID,
			rec.URL,
			rec.Title,
			rec.Summary,
			rec.PublishDate,
			keywords,
			rec.BodyText,
			s.hasher.Body(rec.BodyText),
			rec.StrategyUsed,
			rec.FetchedAt,
		)
		return err
	})
}

// WriteFailures implements collector.RecordSink.
func (s *RecordStore) WriteFailures(ctx context.Context, runID string, records []collector.FailureRecord) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (run_id, url, error_category, message, ts) VALUES ($1,$2,$3,$4,$5)`,
		s.tables.Failures,
	)
	return s.insertAll(ctx, "failures", len(records), func(tx pgx.Tx, i int) error {
		rec := records[i]
		_, err := tx.Exec(ctx, query, runID, rec.URL, string(rec.Category), rec.Message, rec.Timestamp)
		return err
	})
}

func (s *RecordStore) insertAll(ctx context.Context, what string, n int, insert func(pgx.Tx, int) error) error {
	if n == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s: %w", what, err)
	}
	for i := 0; i < n; i++ {
		if err := insert(tx, i); err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				return fmt.Errorf("insert %s: %w (rollback: %v)", what, err, rbErr)
			}
			return fmt.Errorf("insert %s: %w", what, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", what, err)
	}
	return nil
}

// Close releases the pool.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
