package extract

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/JakeFAU/press-release-collector/internal/collector"
)

const defaultShellBytes = 2048

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// RenderDetector flags pages whose article is assembled by scripts in the
// browser. A static strategy that reads such a page gets an empty shell.
type RenderDetector struct {
	// ShellBytes is the body size under which a script-heavy page counts as a shell.
	ShellBytes int
}

// NewRenderDetector creates a detector. A zero threshold uses 2 KiB.
func NewRenderDetector(shellBytes int) *RenderDetector {
	if shellBytes <= 0 {
		shellBytes = defaultShellBytes
	}
	return &RenderDetector{ShellBytes: shellBytes}
}

// ClientRendered reports whether resp looks like a client-side rendered shell.
func (d *RenderDetector) ClientRendered(resp collector.FetchResponse) bool {
	if resp.StatusCode != 0 && resp.StatusCode != http.StatusOK {
		return false
	}
	body := resp.Body
	if len(body) == 0 {
		return true
	}
	if len(body) < d.ShellBytes && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh reports whether script elements cover a quarter or more
// of the document.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagEnd := strings.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			covered += total - start
			break
		}
		contentStart := start + tagEnd + 1
		next := total
		if end := strings.Index(lower[contentStart:], closeTag); end != -1 {
			next = contentStart + end + len(closeTag)
		}
		covered += next - start
		pos = next
	}
	return covered*100/total >= 25
}
