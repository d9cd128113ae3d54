// Package local archives pages on the local filesystem.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// Dir is the root directory of the archive.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// BlobStore writes artifacts below a root directory.
type BlobStore struct {
	dir string
}

// New creates the root directory if needed and checks that it is writable.
func New(cfg Config) (*BlobStore, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create archive directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat archive directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("archive path %s is not a directory", dir)
	}

	probe := filepath.Join(dir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("archive directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("remove write probe: %w", err)
	}
	return &BlobStore{dir: dir}, nil
}

// PutObject writes data below the root directory and returns a file:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	root := filepath.Clean(s.dir)
	fullPath := filepath.Clean(filepath.Join(root, path))
	if !strings.HasPrefix(fullPath, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes archive directory", path)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}

	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", fullPath, err)
	}
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %s: %w", fullPath, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", fullPath, err)
	}
	return "file://" + fullPath, nil
}
