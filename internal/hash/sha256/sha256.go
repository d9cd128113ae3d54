// Package sha256 digests page bodies for archive paths and URLs for cache keys.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements crawler.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashString digests s.
func (h *Hasher) HashString(s string) string {
	digest, _ := h.Hash([]byte(s))
	return digest
}
