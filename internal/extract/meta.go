package extract

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

const (
	maxKeywords      = 10
	summarySentences = 3
	maxSummaryRunes  = 500
)

// pageMeta is the article metadata carried in the document head.
type pageMeta struct {
	Title       string
	Description string
	Keywords    []string
	Published   *time.Time
}

var publishedSelectors = []struct {
	selector string
	attr     string
}{
	{`meta[property="article:published_time"]`, "content"},
	{`meta[name="article:published_time"]`, "content"},
	{`meta[itemprop="datePublished"]`, "content"},
	{`[itemprop="datePublished"]`, "datetime"},
	{`meta[name="pubdate"]`, "content"},
	{`meta[name="publish-date"]`, "content"},
	{`meta[name="date"]`, "content"},
	{`meta[name="dc.date"]`, "content"},
	{`time[datetime]`, "datetime"},
}

func readMeta(doc *goquery.Document) pageMeta {
	m := pageMeta{
		Title:       firstNonEmpty(metaContent(doc, `meta[property="og:title"]`), normalizeSpace(doc.Find("title").First().Text())),
		Description: firstNonEmpty(metaContent(doc, `meta[name="description"]`), metaContent(doc, `meta[property="og:description"]`)),
	}
	if raw := metaContent(doc, `meta[name="keywords"]`); raw != "" {
		m.Keywords = splitKeywords(raw)
	}
	for _, candidate := range publishedSelectors {
		value, ok := doc.Find(candidate.selector).First().Attr(candidate.attr)
		if !ok {
			continue
		}
		if t, ok := parseDate(value); ok {
			m.Published = &t
			break
		}
	}
	return m
}

func metaContent(doc *goquery.Document, selector string) string {
	value, _ := doc.Find(selector).First().Attr("content")
	return normalizeSpace(value)
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func splitKeywords(raw string) []string {
	seen := map[string]bool{}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		kw := strings.ToLower(normalizeSpace(part))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

// frequentTerms picks the most frequent non-stopword terms of the body, ties
// broken by first appearance.
func frequentTerms(text string, n int) []string {
	counts := map[string]int{}
	first := map[string]int{}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	for i, w := range words {
		w = strings.Trim(w, "-")
		if len([]rune(w)) < 4 || stopwords[w] || isNumeric(w) {
			continue
		}
		if _, ok := first[w]; !ok {
			first[w] = i
		}
		counts[w]++
	}
	terms := make([]string, 0, len(counts))
	for w := range counts {
		terms = append(terms, w)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return first[terms[i]] < first[terms[j]]
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

// leadSentences returns the first few sentences of text, capped in length.
func leadSentences(text string, n int) string {
	text = normalizeSpace(text)
	count := 0
	end := len(text)
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(text) && text[i+1] != ' ' {
			continue
		}
		count++
		if count == n {
			end = i + 1
			break
		}
	}
	summary := text[:end]
	if runes := []rune(summary); len(runes) > maxSummaryRunes {
		summary = strings.TrimSpace(string(runes[:maxSummaryRunes])) + "..."
	}
	return summary
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '-' {
			return false
		}
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var stopwords = toSet(`about above after again against also among been before being below between
both could does doing down during each from further have having here hers herself himself
into itself just more most much must myself once only other ours ourselves over same should
some such than that their theirs them themselves then there these they this those through
under until very were what when where which while whom will with would your yours yourself
yourselves said says company today announced press release news page read click
including within across year years million billion percent new`)

func toSet(words string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(words) {
		out[w] = true
	}
	return out
}
