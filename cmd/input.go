package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/press-release-collector/internal/queries"
)

// linkColumn is the URL column of the search results CSV.
const linkColumn = "link"

// readURLs loads scrape targets. A .csv file is read by its link column, so
// the SERP output can be fed straight back in; anything else is one URL per
// line with # comments.
func readURLs(path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return queries.LoadNewsroomsFile(path, linkColumn)
	}
	// #nosec G304 -- path comes from the operator.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	return urls, nil
}
