package collector

import (
	"net/http"
	"time"
)

// Phase names which half of the engine produced a record or metric.
type Phase string

// Supported phases.
const (
	PhaseSERP    Phase = "serp"
	PhaseContent Phase = "content"
)

// Query is a fully formed search request plus its pagination cursor.
// Cursor is empty until the first page has been fetched.
type Query struct {
	Raw    string `json:"raw"`
	Cursor string `json:"cursor,omitempty"`
}

// NewQuery wraps a query URL produced by the query generator.
func NewQuery(raw string) Query {
	return Query{Raw: raw}
}

// CurrentURL returns the page URL that should be fetched next.
func (q Query) CurrentURL() string {
	if q.Cursor != "" {
		return q.Cursor
	}
	return q.Raw
}

// SearchResultRecord is one organic entry from a SERP page. Optional fields are
// nil when the upstream payload omitted them.
type SearchResultRecord struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Link        string  `json:"link"`
	Rank        *int    `json:"rank"`
	SourceQuery string  `json:"query"`
}

// ContentRecord is the article content produced by the first accepted
// extraction strategy for a URL.
type ContentRecord struct {
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	Summary      string     `json:"summary"`
	PublishDate  *time.Time `json:"publish_date,omitempty"`
	Keywords     []string   `json:"keywords"`
	BodyText     string     `json:"body_text"`
	StrategyUsed string     `json:"strategy_used"`
	FetchedAt    time.Time  `json:"fetched_at"`
}

// FetchAttempt describes one try of a page fetch or strategy. It is folded into
// metrics and never persisted.
type FetchAttempt struct {
	URL      string
	Step     string
	Attempt  int
	Category Category
	Duration time.Duration
}

// Succeeded reports whether the attempt completed without error.
func (a FetchAttempt) Succeeded() bool {
	return a.Category == ""
}

// FailureRecord is written when every retry and strategy for an item is
// exhausted.
type FailureRecord struct {
	URL       string    `json:"url"`
	Category  Category  `json:"error_category"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// StringValue returns the pointed-to string or "" for an absent field.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
