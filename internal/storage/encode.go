package storage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/JakeFAU/press-release-collector/internal/collector"
)

// Content types for the encoded files.
const (
	ContentTypeCSV   = "text/csv"
	ContentTypeJSONL = "application/x-ndjson"
)

// SearchResultHeader is the column order of the SERP results file.
var SearchResultHeader = []string{"title", "description", "link", "rank", "query"}

// FailureHeader is the column order of the failure log.
var FailureHeader = []string{"url", "error_category", "message", "timestamp"}

// EncodeSearchResults renders records as CSV. Absent optional fields are
// written as empty cells.
func EncodeSearchResults(records []collector.SearchResultRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(SearchResultHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		rank := ""
		if rec.Rank != nil {
			rank = strconv.Itoa(*rec.Rank)
		}
		row := []string{
			collector.StringValue(rec.Title),
			collector.StringValue(rec.Description),
			rec.Link,
			rank,
			rec.SourceQuery,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeContent renders one JSON object per line.
func EncodeContent(records []collector.ContentRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		if rec.Keywords == nil {
			rec.Keywords = []string{}
		}
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("encode content %s: %w", rec.URL, err)
		}
	}
	return buf.Bytes(), nil
}

// EncodeFailures renders the failure log as CSV with RFC 3339 timestamps.
func EncodeFailures(records []collector.FailureRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(FailureHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		row := []string{rec.URL, string(rec.Category), rec.Message, rec.Timestamp.UTC().Format(time.RFC3339)}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
