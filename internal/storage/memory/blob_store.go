// Package memory provides in-memory stores for development and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// BlobStore keeps archived pages in memory and returns memory:// URIs.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// PutObject stores a copy of the content under path.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = byteData
	return "memory://" + path, nil
}

// Object returns the stored content for path.
func (s *BlobStore) Object(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

// Paths lists stored object paths in lexical order.
func (s *BlobStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for p := range s.data {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
