package dedup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackerRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "processed_urls.txt")
	tracker, err := Open(path, nil)
	require.NoError(t, err)
	require.Equal(t, 0, tracker.Len())

	tracker.Mark("https://x.test/b", "https://x.test/a", "")
	require.True(t, tracker.IsProcessed("https://x.test/a"))
	require.NoError(t, tracker.Save())

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "https://x.test/a\nhttps://x.test/b\n", string(data))

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	require.Equal(t, 2, reopened.Len())

	fresh, skipped := reopened.Filter([]string{"https://x.test/c", "https://x.test/a", "https://x.test/d"})
	require.Equal(t, []string{"https://x.test/c", "https://x.test/d"}, fresh)
	require.Equal(t, 1, skipped)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(" ", nil)
	require.Error(t, err)
}

func TestUnique(t *testing.T) {
	t.Parallel()

	got := Unique([]string{"https://x.test/b", " https://x.test/a", "", "https://x.test/b", "https://x.test/a "})
	require.Equal(t, []string{"https://x.test/b", "https://x.test/a"}, got)
}
