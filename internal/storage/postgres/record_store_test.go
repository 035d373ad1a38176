package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/press-release-collector/internal/collector"
	"github.com/JakeFAU/press-release-collector/internal/hash/sha256"
)

func newMockTables(t *testing.T) Tables {
	t.Helper()
	tables, err := NewTables("")
	require.NoError(t, err)
	return tables
}

func TestNewTablesValidatesPrefix(t *testing.T) {
	t.Parallel()

	tables, err := NewTables("pr_")
	require.NoError(t, err)
	require.Equal(t, "pr_serp_results", tables.SearchResults)
	require.Equal(t, "pr_collector_runs", tables.Runs)

	_, err = NewTables("bad-prefix;")
	require.Error(t, err)
}

func TestEnsureSchemaRunsDDL(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tables := newMockTables(t)
	for range tables.Schema() {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	require.NoError(t, EnsureSchema(context.Background(), mock, tables))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteSearchResultsInsertsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStore(mock, newMockTables(t))
	require.NoError(t, err)

	title := "Q3 results"
	rank := 1
	records := []collector.SearchResultRecord{
		{Title: &title, Link: "https://x.test/a", Rank: &rank, SourceQuery: "q1"},
		{Link: "https://x.test/b", SourceQuery: "q1"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO serp_results").
		WithArgs("run-1", &title, (*string)(nil), "https://x.test/a", &rank, "q1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO serp_results").
		WithArgs("run-1", (*string)(nil), (*string)(nil), "https://x.test/b", (*int)(nil), "q1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.WriteSearchResults(context.Background(), "run-1", records))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteContentRollsBackOnError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStore(mock, newMockTables(t))
	require.NoError(t, err)

	fetched := time.Unix(1700000000, 0).UTC()
	bodyDigest := sha256.New().Body("body")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO content_records").
		WithArgs("run-1", "https://x.test/a", "A", "", (*time.Time)(nil), []string{}, "body", bodyDigest, "dom", fetched).
		WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	err = store.WriteContent(context.Background(), "run-1", []collector.ContentRecord{
		{URL: "https://x.test/a", Title: "A", BodyText: "body", StrategyUsed: "dom", FetchedAt: fetched},
	})
	require.ErrorContains(t, err, "insert content records")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteFailuresSkipsEmpty(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStore(mock, newMockTables(t))
	require.NoError(t, err)
	require.NoError(t, store.WriteFailures(context.Background(), "run-1", nil))

	ts := time.Unix(1700000000, 0).UTC()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scrape_failures").
		WithArgs("run-1", "https://x.test/b", "All Scrapers Failed", "dom: 404", ts).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	require.NoError(t, store.WriteFailures(context.Background(), "run-1", []collector.FailureRecord{
		{URL: "https://x.test/b", Category: collector.CategoryAllStrategiesFailed, Message: "dom: 404", Timestamp: ts},
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRecordStoreRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewRecordStore(nil, Tables{})
	require.Error(t, err)
}
