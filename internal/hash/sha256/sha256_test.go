package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)

	again, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestBodyIgnoresLayout(t *testing.T) {
	t.Parallel()

	h := New()
	require.Equal(t, h.Body("hello world"), h.Body("  hello\n\n\tworld "))
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", h.Body("hello\nworld"))
	require.NotEqual(t, h.Body("hello world"), h.Body("hello there"))
	require.Empty(t, h.Body(" \n\t"))
}
