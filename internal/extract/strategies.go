package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/JakeFAU/press-release-collector/internal/collector"
)

// Strategy names, in default priority order.
const (
	StrategyDOM         = "dom"
	StrategyReadability = "readability"
	StrategyStealth     = "stealth"
	StrategyHeadless    = "headless"
)

// ParseFunc converts a fetched page into a record. It does not apply the
// quality gate; the chain does.
type ParseFunc func(pageURL string, body []byte) (collector.ContentRecord, error)

// FetchStrategy pairs a fetcher with a parser.
type FetchStrategy struct {
	name    string
	fetcher collector.Fetcher
	parse   ParseFunc
	headers http.Header
	render  *RenderDetector
}

// NewFetchStrategy builds a strategy named name.
func NewFetchStrategy(name string, fetcher collector.Fetcher, parse ParseFunc) *FetchStrategy {
	return &FetchStrategy{name: name, fetcher: fetcher, parse: parse}
}

// NewDOMStrategy reads paragraphs straight out of the served markup.
func NewDOMStrategy(fetcher collector.Fetcher) *FetchStrategy {
	return NewFetchStrategy(StrategyDOM, fetcher, ParseDOM)
}

// NewReadabilityStrategy runs Mozilla Readability over whatever fetcher
// delivers the page (plain HTTP, Chrome TLS, or a rendered DOM).
func NewReadabilityStrategy(name string, fetcher collector.Fetcher) *FetchStrategy {
	return NewFetchStrategy(name, fetcher, ParseReadability)
}

// WithHeaders sets extra request headers.
func (s *FetchStrategy) WithHeaders(h http.Header) *FetchStrategy {
	s.headers = h
	return s
}

// WithRenderDetector makes an empty extraction from a client-rendered page
// fail with a message saying so, instead of a bare length failure.
func (s *FetchStrategy) WithRenderDetector(d *RenderDetector) *FetchStrategy {
	s.render = d
	return s
}

// Name implements Strategy.
func (s *FetchStrategy) Name() string {
	return s.name
}

// Attempt implements Strategy.
func (s *FetchStrategy) Attempt(ctx context.Context, pageURL string) (collector.ContentRecord, error) {
	resp, err := s.fetcher.Fetch(ctx, collector.FetchRequest{URL: pageURL, Headers: s.headers})
	if err != nil {
		return collector.ContentRecord{}, err
	}
	base := resp.URL
	if base == "" {
		base = pageURL
	}
	rec, err := s.parse(base, resp.Body)
	if err != nil {
		return rec, err
	}
	if s.render != nil && strings.TrimSpace(rec.BodyText) == "" && s.render.ClientRendered(resp) {
		return collector.ContentRecord{}, fmt.Errorf("%w: page is rendered client-side", collector.ErrContentTooShort)
	}
	return rec, nil
}

// ParseDOM collects paragraph text from the article, main, or body element.
func ParseDOM(pageURL string, body []byte) (collector.ContentRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return collector.ContentRecord{}, collector.NewFetchError(collector.CategoryParseFailure, pageURL, 0, err)
	}
	meta := readMeta(doc)
	title := firstNonEmpty(meta.Title, normalizeSpace(doc.Find("h1").First().Text()))

	doc.Find("script,style,noscript,nav,header,footer,aside,form").Remove()
	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body")
	}
	var paragraphs []string
	root.Find("p").Each(func(_ int, s *goquery.Selection) {
		if text := normalizeSpace(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	text := strings.Join(paragraphs, "\n\n")
	if text == "" {
		text = VisibleText(body)
	}
	return buildRecord(pageURL, title, text, meta, ""), nil
}

// ParseReadability extracts the main article with go-readability.
func ParseReadability(pageURL string, body []byte) (collector.ContentRecord, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return collector.ContentRecord{}, collector.NewFetchError(collector.CategoryInvalidInput, pageURL, 0,
			fmt.Errorf("%w: %v", collector.ErrInvalidInput, err))
	}
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return collector.ContentRecord{}, collector.NewFetchError(collector.CategoryParseFailure, pageURL, 0, err)
	}
	var meta pageMeta
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		meta = readMeta(doc)
	}
	title := firstNonEmpty(article.Title, meta.Title, Title(body))
	return buildRecord(pageURL, title, normalizeParagraphs(article.TextContent), meta, article.Excerpt), nil
}

func buildRecord(pageURL, title, text string, meta pageMeta, excerpt string) collector.ContentRecord {
	keywords := meta.Keywords
	if len(keywords) == 0 {
		keywords = frequentTerms(text, maxKeywords)
	}
	return collector.ContentRecord{
		URL:         pageURL,
		Title:       title,
		Summary:     firstNonEmpty(meta.Description, normalizeSpace(excerpt), leadSentences(text, summarySentences)),
		PublishDate: meta.Published,
		Keywords:    keywords,
		BodyText:    text,
	}
}

func normalizeParagraphs(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = normalizeSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
