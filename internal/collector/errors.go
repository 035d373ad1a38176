package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Category classifies why an attempt or an item failed.
type Category string

// Failure categories. AllStrategiesFailed is the terminal category recorded
// when the extraction chain runs out of strategies for a URL.
const (
	CategoryTransientNetwork    Category = "TransientNetwork"
	CategoryRateLimited         Category = "RateLimited"
	CategoryClientRejected      Category = "ClientRejected"
	CategoryContentTooShort     Category = "ContentTooShort"
	CategoryParseFailure        Category = "ParseFailure"
	CategoryInvalidInput        Category = "InvalidInput"
	CategoryUnclassified        Category = "Unclassified"
	CategoryCanceled            Category = "Canceled"
	CategoryAllStrategiesFailed Category = "All Scrapers Failed"
)

// Retryable reports whether an attempt that failed with c may be tried again.
func (c Category) Retryable() bool {
	switch c {
	case CategoryTransientNetwork, CategoryRateLimited, CategoryParseFailure, CategoryUnclassified:
		return true
	default:
		return false
	}
}

// Sentinel errors shared across packages.
var (
	ErrContentTooShort     = errors.New("extracted content below quality threshold")
	ErrInvalidInput        = errors.New("invalid input")
	ErrNoStrategies        = errors.New("no extraction strategies configured")
	ErrAllStrategiesFailed = errors.New("all extraction strategies failed")
)

// FetchError is a categorized failure returned by fetchers, the SERP walker,
// and extraction strategies.
type FetchError struct {
	Category   Category
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: HTTP %d for %s: %v", e.Category, e.StatusCode, e.URL, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d for %s", e.Category, e.StatusCode, e.URL)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Category, e.URL, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Category, e.URL)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError builds a FetchError.
func NewFetchError(category Category, url string, status int, err error) *FetchError {
	return &FetchError{Category: category, URL: url, StatusCode: status, Err: err}
}

// CategoryForStatus maps an HTTP status code onto the failure taxonomy. It
// returns "" for non-error statuses.
func CategoryForStatus(code int) Category {
	switch {
	case code == http.StatusTooManyRequests:
		return CategoryRateLimited
	case code >= 400 && code < 500:
		return CategoryClientRejected
	case code >= 500:
		return CategoryTransientNetwork
	default:
		return ""
	}
}

// Classify maps any error onto a Category. Unknown errors are Unclassified.
func Classify(err error) Category {
	if err == nil {
		return ""
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) && fetchErr.Category != "" {
		return fetchErr.Category
	}
	switch {
	case errors.Is(err, ErrAllStrategiesFailed):
		return CategoryAllStrategiesFailed
	case errors.Is(err, ErrContentTooShort):
		return CategoryContentTooShort
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNoStrategies):
		return CategoryInvalidInput
	case errors.Is(err, context.Canceled):
		return CategoryCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTransientNetwork
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return CategoryParseFailure
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryTransientNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CategoryTransientNetwork
	}
	return CategoryUnclassified
}
