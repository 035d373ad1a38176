// Package queries builds date-bounded SERP queries for newsroom sites.
package queries

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/press-release-collector/internal/collector"
)

// DateLayout is the accepted start/end date format.
const DateLayout = "2006-01-02"

// DefaultColumn is the reference-data column holding newsroom URLs.
const DefaultColumn = "newsroom_url"

const searchTemplate = "https://www.google.com/search?q=site:%s+before:%s+after:%s&gl=US&hl=en&brd_json=1"

// Generator turns newsroom URLs into Queries.
type Generator struct {
	logger *zap.Logger
}

// New constructs a Generator.
func New(logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{logger: logger}
}

// Generate returns one query per non-blank newsroom URL, in input order.
// Dates must be YYYY-MM-DD with start <= end.
func (g *Generator) Generate(newsrooms []string, start, end string) ([]collector.Query, error) {
	if err := ValidateRange(start, end); err != nil {
		return nil, err
	}
	out := make([]collector.Query, 0, len(newsrooms))
	skipped := 0
	for _, raw := range newsrooms {
		site := strings.TrimSpace(raw)
		if site == "" {
			skipped++
			continue
		}
		out = append(out, collector.NewQuery(fmt.Sprintf(searchTemplate, site, end, start)))
	}
	if skipped > 0 {
		g.logger.Warn("skipped blank newsroom urls", zap.Int("skipped", skipped))
	}
	g.logger.Info("generated search queries",
		zap.Int("newsrooms", len(newsrooms)),
		zap.Int("queries", len(out)),
		zap.String("start_date", start),
		zap.String("end_date", end),
	)
	return out, nil
}

// ValidateRange checks both dates parse and start is not after end.
func ValidateRange(start, end string) error {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return fmt.Errorf("start date %q: %w", start, collector.ErrInvalidInput)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return fmt.Errorf("end date %q: %w", end, collector.ErrInvalidInput)
	}
	if s.After(e) {
		return fmt.Errorf("start date %s is after end date %s: %w", start, end, collector.ErrInvalidInput)
	}
	return nil
}

// LoadNewsrooms reads column from a CSV with a header row. Empty cells are
// kept so Generate can report them.
func LoadNewsrooms(r io.Reader, column string) ([]string, error) {
	if column == "" {
		column = DefaultColumn
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("reference data is empty: %w", collector.ErrInvalidInput)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := -1
	for i, name := range header {
		if strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found: %w", column, collector.ErrInvalidInput)
	}

	var out []string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if idx < len(row) {
			out = append(out, row[idx])
		} else {
			out = append(out, "")
		}
	}
	return out, nil
}

// LoadNewsroomsFile opens path and calls LoadNewsrooms.
func LoadNewsroomsFile(path, column string) ([]string, error) {
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reference data: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file
	return LoadNewsrooms(f, column)
}
