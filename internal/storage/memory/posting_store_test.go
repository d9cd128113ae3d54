package memory

import (
	"context"
	"testing"
	"time"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

func strPtr(s string) *string { return &s }

func TestStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore(false, crawler.KeywordRow{SearchID: 1, Text: "go"}, crawler.KeywordRow{SearchID: 2, Text: "rust"})
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if !store.SchemaReady() {
		t.Fatal("expected schema to be ready")
	}

	rows, err := store.ListKeywords(ctx)
	if err != nil {
		t.Fatalf("ListKeywords() error = %v", err)
	}
	if len(rows) != 2 || rows[0].HasPostings || rows[1].HasPostings {
		t.Fatalf("unexpected keyword rows: %+v", rows)
	}

	kw := crawler.SearchKeyword{Text: "go", SearchID: 1}
	postings := []crawler.JobPosting{
		{SearchQuery: "go", SearchID: 1, JobCode: strPtr("a")},
		{SearchQuery: "go", SearchID: 1, JobCode: strPtr("a")},
	}
	n, err := store.SavePostings(ctx, kw, postings)
	if err != nil || n != 2 {
		t.Fatalf("SavePostings() = %d, %v", n, err)
	}

	rows, err = store.ListKeywords(ctx)
	if err != nil {
		t.Fatalf("ListKeywords() error = %v", err)
	}
	if !rows[0].HasPostings || rows[1].HasPostings {
		t.Fatalf("posting check not matched on text: %+v", rows)
	}

	entry := crawler.RunLogEntry{RunID: "run-1", Start: time.Unix(0, 0), End: time.Unix(60, 0), Status: crawler.StatusSucceeded}
	if err := store.SaveRunLog(ctx, entry); err != nil {
		t.Fatalf("SaveRunLog() error = %v", err)
	}
	if got := store.RunLogs(); len(got) != 1 || got[0].RunID != "run-1" {
		t.Fatalf("unexpected run logs: %+v", got)
	}

	store.Close()
	if _, err := store.ListKeywords(ctx); err == nil {
		t.Fatal("expected error after Close")
	}
}

func TestStoreDedupeByJobCode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore(true)
	kw := crawler.SearchKeyword{Text: "go", SearchID: 1}
	first := []crawler.JobPosting{
		{SearchQuery: "go", JobCode: strPtr("a")},
		{SearchQuery: "go", JobCode: strPtr("b")},
		{SearchQuery: "go", JobCode: strPtr("a")},
		{SearchQuery: "go"},
	}
	n, err := store.SavePostings(ctx, kw, first)
	if err != nil || n != 3 {
		t.Fatalf("SavePostings() = %d, %v; want 3", n, err)
	}
	n, err = store.SavePostings(ctx, kw, []crawler.JobPosting{{SearchQuery: "go", JobCode: strPtr("b")}})
	if err != nil || n != 0 {
		t.Fatalf("SavePostings() = %d, %v; want 0", n, err)
	}
	if got := len(store.Postings()); got != 3 {
		t.Fatalf("expected 3 postings, got %d", got)
	}
}

func TestStorePingAfterClose(t *testing.T) {
	t.Parallel()

	s := NewStore(false)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	s.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected Ping to fail after Close")
	}
}
