package cache

import (
	"context"
	"testing"
	"time"

	"github.com/hyperifyio/seeker/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCacheURLIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	rc := &ResearchCache{Store: s}
	ctx := context.Background()

	first, err := rc.CacheURL(ctx, "https://example.com/x", "Title", "content", nil, false)
	if err != nil {
		t.Fatalf("cache url: %v", err)
	}
	second, err := rc.CacheURL(ctx, "https://example.com/x", "Other Title", "other content", nil, false)
	if err != nil {
		t.Fatalf("cache url again: %v", err)
	}
	if second.ID != first.ID || second.Title != "Title" {
		t.Fatalf("expected cache to win over the second call, got %+v", second)
	}
}

func TestCacheURLTriggersSummarization(t *testing.T) {
	s := openTestStore(t)
	summarized := make(chan string, 1)
	pool := NewSummaryWorkerPool(s, func(ctx context.Context, content string) (string, error) {
		summarized <- content
		return "a short summary", nil
	}, 2)
	pool.Start(context.Background())
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		pool.Shutdown(shutdownCtx)
	})

	rc := &ResearchCache{Store: s, Pool: pool}
	ctx := context.Background()

	row, err := rc.CacheURL(ctx, "https://example.com/y", "Title", "page content", nil, true)
	if err != nil {
		t.Fatalf("cache url: %v", err)
	}

	select {
	case got := <-summarized:
		if got != "page content" {
			t.Fatalf("expected summarizer to see the cached content, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for background summarization")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		summary, status, err := rc.GetSummary(ctx, "https://example.com/y")
		if err != nil {
			t.Fatalf("get summary: %v", err)
		}
		if status == store.SummaryCompleted {
			if summary != "a short summary" {
				t.Fatalf("unexpected summary: %q", summary)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("summary never completed, last status %q", status)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if row.SummaryStatus != store.SummaryPending {
		t.Fatalf("expected the row returned from CacheURL to reflect the pre-worker pending state, got %q", row.SummaryStatus)
	}
}

func TestShutdownReclaimsAbandonedSummaries(t *testing.T) {
	s := openTestStore(t)
	block := make(chan struct{})
	pool := NewSummaryWorkerPool(s, func(ctx context.Context, content string) (string, error) {
		<-block
		return "late", nil
	}, 1)
	pool.Start(context.Background())

	rc := &ResearchCache{Store: s, Pool: pool}
	ctx := context.Background()
	row, err := rc.CacheURL(ctx, "https://example.com/z", "Title", "content", nil, true)
	if err != nil {
		t.Fatalf("cache url: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := s.GetURLCacheByID(ctx, row.ID)
		if err != nil {
			t.Fatalf("get url cache: %v", err)
		}
		if got.SummaryStatus == store.SummaryProcessing {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker never started processing")
		}
		time.Sleep(5 * time.Millisecond)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- pool.Shutdown(shutdownCtx) }()

	// The fake summarizer ignores ctx cancellation (unlike a real HTTP-bound
	// one would), so unblock it directly once Shutdown's deadline has had a
	// chance to fire and reclaim the row.
	time.Sleep(50 * time.Millisecond)
	close(block)

	select {
	case err := <-shutdownErr:
		if err != nil {
			t.Fatalf("shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("shutdown never returned")
	}

	got, err := s.GetURLCacheByID(ctx, row.ID)
	if err != nil {
		t.Fatalf("get url cache after shutdown: %v", err)
	}
	if got.SummaryStatus != store.SummaryPending {
		t.Fatalf("expected abandoned summary reclaimed to pending, got %q", got.SummaryStatus)
	}
}
