package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	t.Parallel()

	var syntaxErr error
	var v map[string]any
	syntaxErr = json.Unmarshal([]byte("<html>"), &v)

	cases := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, ""},
		{"fetch error", NewFetchError(CategoryRateLimited, "u", 429, nil), CategoryRateLimited},
		{"wrapped fetch error", fmt.Errorf("outer: %w", NewFetchError(CategoryClientRejected, "u", 404, nil)), CategoryClientRejected},
		{"too short", fmt.Errorf("dom: %w", ErrContentTooShort), CategoryContentTooShort},
		{"all failed", fmt.Errorf("chain: %w", ErrAllStrategiesFailed), CategoryAllStrategiesFailed},
		{"invalid", ErrInvalidInput, CategoryInvalidInput},
		{"canceled", context.Canceled, CategoryCanceled},
		{"deadline", context.DeadlineExceeded, CategoryTransientNetwork},
		{"json", syntaxErr, CategoryParseFailure},
		{"net", timeoutErr{}, CategoryTransientNetwork},
		{"other", errors.New("boom"), CategoryUnclassified},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestCategoryForStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, CategoryRateLimited, CategoryForStatus(429))
	require.Equal(t, CategoryClientRejected, CategoryForStatus(403))
	require.Equal(t, CategoryClientRejected, CategoryForStatus(404))
	require.Equal(t, CategoryTransientNetwork, CategoryForStatus(503))
	require.Equal(t, Category(""), CategoryForStatus(200))
}

func TestCategoryRetryable(t *testing.T) {
	t.Parallel()

	require.True(t, CategoryTransientNetwork.Retryable())
	require.True(t, CategoryRateLimited.Retryable())
	require.True(t, CategoryParseFailure.Retryable())
	require.True(t, CategoryUnclassified.Retryable())
	require.False(t, CategoryClientRejected.Retryable())
	require.False(t, CategoryContentTooShort.Retryable())
	require.False(t, CategoryInvalidInput.Retryable())
	require.False(t, CategoryCanceled.Retryable())
}

func TestFetchErrorMessage(t *testing.T) {
	t.Parallel()

	err := NewFetchError(CategoryClientRejected, "https://x.test/a", 404, nil)
	require.Equal(t, "ClientRejected: HTTP 404 for https://x.test/a", err.Error())

	wrapped := NewFetchError(CategoryTransientNetwork, "https://x.test/a", 0, errors.New("reset"))
	require.Equal(t, "TransientNetwork: https://x.test/a: reset", wrapped.Error())
	require.ErrorIs(t, wrapped, wrapped.Err)
}
