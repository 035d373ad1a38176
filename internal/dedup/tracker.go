// Package dedup tracks processed URLs across runs and collapses duplicates
// within a run.
package dedup

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Tracker is a file-backed set of processed URLs. The file holds one URL per
// line, sorted.
type Tracker struct {
	path   string
	logger *zap.Logger

	mu   sync.RWMutex
	seen map[string]struct{}
}

// Open loads path if it exists; a missing file starts an empty history.
func Open(path string, logger *zap.Logger) (*Tracker, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("tracking file is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{path: path, logger: logger, seen: make(map[string]struct{})}

	// #nosec G304 -- path comes from operator configuration.
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("no processed url history", zap.String("file", path))
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open tracking file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			t.seen[line] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read tracking file: %w", err)
	}
	logger.Info("loaded processed urls", zap.String("file", path), zap.Int("count", len(t.seen)))
	return t, nil
}

// IsProcessed reports whether url was marked in this or an earlier run.
func (t *Tracker) IsProcessed(url string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.seen[url]
	return ok
}

// Mark records urls as processed.
func (t *Tracker) Mark(urls ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, u := range urls {
		if u != "" {
			t.seen[u] = struct{}{}
		}
	}
}

// Filter drops already-processed urls, keeping input order, and returns the
// number skipped.
func (t *Tracker) Filter(urls []string) ([]string, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := t.seen[u]; ok {
			continue
		}
		out = append(out, u)
	}
	skipped := len(urls) - len(out)
	if skipped > 0 {
		t.logger.Info("skipping already-processed urls", zap.Int("skipped", skipped), zap.Int("new", len(out)))
	}
	return out, skipped
}

// Len returns the number of tracked URLs.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.seen)
}

// Save rewrites the tracking file atomically.
func (t *Tracker) Save() error {
	t.mu.RLock()
	urls := make([]string, 0, len(t.seen))
	for u := range t.seen {
		urls = append(urls, u)
	}
	t.mu.RUnlock()
	sort.Strings(urls)

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create tracking dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".processed-*")
	if err != nil {
		return fmt.Errorf("create temp tracking file: %w", err)
	}
	w := bufio.NewWriter(tmp)
	for _, u := range urls {
		if _, err := w.WriteString(u + "\n"); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
			return fmt.Errorf("write tracking file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("flush tracking file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close tracking file: %w", err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace tracking file: %w", err)
	}
	t.logger.Info("saved processed urls", zap.String("file", t.path), zap.Int("count", len(urls)))
	return nil
}

// Unique collapses duplicate and blank entries; the first occurrence wins and
// input order is preserved.
func Unique(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
