package queries

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/press-release-collector/internal/collector"
)

func TestGenerateBuildsQueries(t *testing.T) {
	t.Parallel()

	qs, err := New(nil).Generate([]string{" https://news.acme.test ", "", "   ", "https://press.beta.test"}, "2025-12-29", "2026-01-01")
	require.NoError(t, err)
	require.Len(t, qs, 2)
	require.Equal(t,
		"https://www.google.com/search?q=site:https://news.acme.test+before:2026-01-01+after:2025-12-29&gl=US&hl=en&brd_json=1",
		qs[0].Raw)
	require.Empty(t, qs[0].Cursor)
	require.Contains(t, qs[1].Raw, "site:https://press.beta.test+")
}

func TestGenerateValidatesDates(t *testing.T) {
	t.Parallel()

	g := New(nil)
	for _, tc := range []struct{ start, end string }{
		{"2025-13-01", "2025-12-31"},
		{"2025-01-01", "01/02/2025"},
		{"2025-02-01", "2025-01-01"},
	} {
		_, err := g.Generate([]string{"https://x.test"}, tc.start, tc.end)
		require.ErrorIs(t, err, collector.ErrInvalidInput, "%s..%s", tc.start, tc.end)
	}

	qs, err := g.Generate([]string{"https://x.test"}, "2025-01-01", "2025-01-01")
	require.NoError(t, err)
	require.Len(t, qs, 1)
}

func TestLoadNewsrooms(t *testing.T) {
	t.Parallel()

	data := "\ufeffcompany,newsroom_url\nAcme,https://news.acme.test\nBeta,\nGamma\n"
	urls, err := LoadNewsrooms(strings.NewReader(data), "")
	require.NoError(t, err)
	require.Equal(t, []string{"https://news.acme.test", "", ""}, urls)

	_, err = LoadNewsrooms(strings.NewReader("company\nAcme\n"), "newsroom_url")
	require.ErrorIs(t, err, collector.ErrInvalidInput)

	_, err = LoadNewsrooms(strings.NewReader(""), "")
	require.ErrorIs(t, err, collector.ErrInvalidInput)
}

func TestLoadNewsroomsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reference_data.csv")
	require.NoError(t, os.WriteFile(path, []byte("newsroom_url\nhttps://a.test\n"), 0o600))
	urls, err := LoadNewsroomsFile(path, "newsroom_url")
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.test"}, urls)

	_, err = LoadNewsroomsFile(filepath.Join(t.TempDir(), "nope.csv"), "")
	require.Error(t, err)
}
