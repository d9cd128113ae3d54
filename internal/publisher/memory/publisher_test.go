package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	report := crawler.RunReport{RunID: "run-7", Status: crawler.StatusSucceeded}
	id1, err := pub.Publish(context.Background(), "runs", report)
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "other", map[string]int{"n": 1})
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Topic != "runs" || msgs[0].Attributes["status"] != "succeeded" {
		t.Fatalf("run report not recorded correctly: %+v", msgs[0])
	}

	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	pub.FailWith(errors.New("unavailable"))
	if _, err := pub.Publish(context.Background(), "runs", "x"); err == nil {
		t.Fatal("expected publish error")
	}
	if len(pub.Messages()) != 0 {
		t.Fatal("failed publish must not be recorded")
	}
}
