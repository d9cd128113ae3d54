package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the rendered markup plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// KeywordSource reads the keyword dimension together with the posting check.
type KeywordSource interface {
	ListKeywords(ctx context.Context) ([]KeywordRow, error)
}

// PostingSink appends the postings gathered for one keyword in a single
// transaction and returns the number of rows written.
type PostingSink interface {
	SavePostings(ctx context.Context, keyword SearchKeyword, postings []JobPosting) (int, error)
}

// RunLogSink appends one run log row.
type RunLogSink interface {
	SaveRunLog(ctx context.Context, entry RunLogEntry) error
}

// SchemaManager creates the store tables when they are absent.
type SchemaManager interface {
	EnsureSchema(ctx context.Context) error
}

// Store bundles every persistence capability the coordinator needs.
type Store interface {
	KeywordSource
	PostingSink
	RunLogSink
	SchemaManager
	Close()
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for cache keys and archive paths.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
