package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

// Store keeps keywords, postings and run logs in memory for development and
// tests. It mirrors the relational store's semantics.
type Store struct {
	mu       sync.RWMutex
	keywords []crawler.KeywordRow
	postings []crawler.JobPosting
	runs     []crawler.RunLogEntry
	dedupe   bool
	schema   bool
	closed   bool
}

// NewStore constructs a Store seeded with keywords (search id, text).
// When dedupe is set, postings whose job code is already stored are skipped.
func NewStore(dedupe bool, keywords ...crawler.KeywordRow) *Store {
	s := &Store{dedupe: dedupe}
	for _, kw := range keywords {
		s.keywords = append(s.keywords, crawler.KeywordRow{SearchID: kw.SearchID, Text: kw.Text})
	}
	return s
}

// AddKeyword appends a keyword row.
func (s *Store) AddKeyword(searchID int64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords = append(s.keywords, crawler.KeywordRow{SearchID: searchID, Text: text})
}

// EnsureSchema marks the schema as present.
func (s *Store) EnsureSchema(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("store closed")
	}
	s.schema = true
	return nil
}

// ListKeywords returns keywords in insertion order with the posting check
// matched on keyword text.
func (s *Store) ListKeywords(context.Context) ([]crawler.KeywordRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.New("store closed")
	}
	seen := make(map[string]bool, len(s.postings))
	for _, p := range s.postings {
		seen[p.SearchQuery] = true
	}
	out := make([]crawler.KeywordRow, len(s.keywords))
	for i, kw := range s.keywords {
		out[i] = crawler.KeywordRow{SearchID: kw.SearchID, Text: kw.Text, HasPostings: seen[kw.Text]}
	}
	return out, nil
}

// SavePostings appends postings atomically.
func (s *Store) SavePostings(_ context.Context, _ crawler.SearchKeyword, postings []crawler.JobPosting) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("store closed")
	}
	if !s.dedupe {
		s.postings = append(s.postings, postings...)
		return len(postings), nil
	}
	codes := make(map[string]bool, len(s.postings))
	for _, p := range s.postings {
		if p.JobCode != nil {
			codes[*p.JobCode] = true
		}
	}
	written := 0
	for _, p := range postings {
		if p.JobCode != nil {
			if codes[*p.JobCode] {
				continue
			}
			codes[*p.JobCode] = true
		}
		s.postings = append(s.postings, p)
		written++
	}
	return written, nil
}

// SaveRunLog appends one run log row.
func (s *Store) SaveRunLog(_ context.Context, entry crawler.RunLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("store closed")
	}
	s.runs = append(s.runs, entry)
	return nil
}

// Postings returns a copy of the stored postings.
func (s *Store) Postings() []crawler.JobPosting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crawler.JobPosting(nil), s.postings...)
}

// RunLogs returns a copy of the stored run log rows.
func (s *Store) RunLogs() []crawler.RunLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crawler.RunLogEntry(nil), s.runs...)
}

// SchemaReady reports whether EnsureSchema ran.
func (s *Store) SchemaReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schema
}

// Ping fails once the store is closed.
func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("memory store closed")
	}
	return nil
}

// Close marks the store closed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
