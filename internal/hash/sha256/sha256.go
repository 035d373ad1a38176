// Package sha256 fingerprints extracted article bodies so syndicated copies of
// one release can be matched across sites.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher computes hex SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Body digests an article body after collapsing whitespace, so the same text
// laid out by two templates yields one fingerprint. Empty bodies have no
// fingerprint.
func (h *Hasher) Body(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return ""
	}
	sum, _ := h.Hash([]byte(normalized))
	return sum
}
