package serp

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/JakeFAU/press-release-collector/internal/collector"
)

// page is the subset of the structured SERP payload the walker reads.
type page struct {
	General struct {
		Query string `json:"query"`
	} `json:"general"`
	Organic    []organicEntry `json:"organic"`
	Pagination *struct {
		NextPageLink string `json:"next_page_link"`
	} `json:"pagination"`
}

type organicEntry struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Link        string          `json:"link"`
	Rank        json.RawMessage `json:"rank"`
}

func decodePage(body []byte) (page, error) {
	var p page
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&p); err != nil {
		return page{}, err
	}
	return p, nil
}

func (p page) nextLink() string {
	if p.Pagination == nil {
		return ""
	}
	return strings.TrimSpace(p.Pagination.NextPageLink)
}

// records converts organic entries. Entries without a link carry nothing to
// scrape and are skipped; other missing fields stay nil.
func (p page) records(fallbackQuery string) ([]collector.SearchResultRecord, int) {
	source := p.General.Query
	if source == "" {
		source = fallbackQuery
	}
	out := make([]collector.SearchResultRecord, 0, len(p.Organic))
	skipped := 0
	for _, entry := range p.Organic {
		link := strings.TrimSpace(entry.Link)
		if link == "" {
			skipped++
			continue
		}
		out = append(out, collector.SearchResultRecord{
			Title:       entry.Title,
			Description: entry.Description,
			Link:        link,
			Rank:        parseRank(entry.Rank),
			SourceQuery: source,
		})
	}
	return out, skipped
}

// parseRank accepts a JSON number or numeric string. Anything else is absent.
func parseRank(raw json.RawMessage) *int {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := strconv.Atoi(n.String()); err == nil {
			return &v
		}
		if f, err := n.Float64(); err == nil {
			v := int(f)
			return &v
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return &v
		}
	}
	return nil
}
