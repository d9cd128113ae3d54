// Package gcs archives pages in Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the bucket and optional object prefix.
type Config struct {
	Bucket string
	Prefix string
}

// writerFunc opens an object writer; the storage client satisfies it in production.
type writerFunc func(ctx context.Context, bucket, object, contentType string) io.WriteCloser

// BlobStore writes artifacts to a configured GCS bucket.
type BlobStore struct {
	open   writerFunc
	bucket string
	prefix string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	return newBlobStore(func(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		if contentType != "" {
			w.ContentType = contentType
		}
		return w
	}, cfg)
}

func newBlobStore(open writerFunc, cfg Config) (*BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{open: open, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// PutObject uploads data to the configured bucket and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("path is required")
	}
	object := strings.TrimLeft(name, "/")
	if s.prefix != "" {
		object = path.Join(s.prefix, object)
	}
	writer := s.open(ctx, s.bucket, object, contentType)
	if _, err := io.Copy(writer, r); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}
