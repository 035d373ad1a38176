// Package postgres persists run records and run progress in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool and table naming.
type Config struct {
	DSN             string
	TablePrefix     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the stores use; pgxmock satisfies it.
type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Open parses cfg and connects a pgxpool.
func Open(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return p, nil
}

// Tables holds the validated, prefixed table names.
type Tables struct {
	SearchResults string
	Content       string
	Failures      string
	Runs          string
	RunFailures   string
}

// NewTables applies prefix to the default table names and validates them.
func NewTables(prefix string) (Tables, error) {
	t := Tables{
		SearchResults: prefix + "serp_results",
		Content:       prefix + "content_records",
		Failures:      prefix + "scrape_failures",
		Runs:          prefix + "collector_runs",
		RunFailures:   prefix + "run_failure_categories",
	}
	for _, name := range []string{t.SearchResults, t.Content, t.Failures, t.Runs, t.RunFailures} {
		if !validTableName.MatchString(name) {
			return Tables{}, fmt.Errorf("invalid table name %q", name)
		}
	}
	return t, nil
}

// Schema returns idempotent DDL for every table.
func (t Tables) Schema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT NOT NULL,
	title TEXT,
	description TEXT,
	link TEXT NOT NULL,
	rank INTEGER,
	query TEXT NOT NULL
)`, t.SearchResults),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT NOT NULL,
	url TEXT NOT NULL,
	title TEXT NOT NULL,
	summary TEXT NOT NULL,
	publish_date TIMESTAMPTZ,
	keywords TEXT[] NOT NULL,
	body_text TEXT NOT NULL,
	body_sha256 TEXT NOT NULL,
	strategy_used TEXT NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, url)
)`, t.Content),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT NOT NULL,
	url TEXT NOT NULL,
	error_category TEXT NOT NULL,
	message TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL
)`, t.Failures),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	phase TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	status TEXT NOT NULL,
	error_message TEXT,
	total INTEGER NOT NULL DEFAULT 0,
	done INTEGER NOT NULL DEFAULT 0,
	succeeded INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL
)`, t.Runs),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT NOT NULL,
	category TEXT NOT NULL,
	count BIGINT NOT NULL,
	last_update TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, category)
)`, t.RunFailures),
	}
}

// EnsureSchema creates any missing tables.
func EnsureSchema(ctx context.Context, p pool, t Tables) error {
	for _, ddl := range t.Schema() {
		if _, err := p.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
