package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pagewalker/internal/sink"
	"pagewalker/pkg/types"
)

func TestNewWorkerPoolRejectsBadBounds(t *testing.T) {
	if _, err := NewWorkerPool(0, 8); err == nil {
		t.Fatal("expected error for zero concurrency, got nil")
	}
	if _, err := NewWorkerPool(4, 0); err == nil {
		t.Fatal("expected error for zero queue size, got nil")
	}
}

func TestWorkerPoolRunsEveryCrawl(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, itemsPage("", "rec"))
	}))
	defer srv.Close()

	out := sink.NewMemory()
	crawls := make([]*Crawl, 0, 6)
	for i := 0; i < 6; i++ {
		crawls = append(crawls, newTestCrawl(t, fmt.Sprintf("%s/t/%d", srv.URL, i), out, CrawlOptions{
			Name: fmt.Sprintf("t%d", i),
		}))
	}

	pool, err := NewWorkerPool(3, 8)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}
	reports := pool.Run(context.Background(), crawls)

	if len(reports) != 6 {
		t.Fatalf("expected 6 reports, got %d", len(reports))
	}
	for _, report := range reports {
		if report.Outcome != types.CrawlDone {
			t.Fatalf("target %s: expected done, got %s", report.Target, report.Outcome)
		}
	}
	if got := len(out.Records()); got != 6 {
		t.Fatalf("expected 6 records total, got %d", got)
	}
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := active.Add(1)
		mu.Lock()
		if now > peak.Load() {
			peak.Store(now)
		}
		mu.Unlock()
		time.Sleep(30 * time.Millisecond)
		active.Add(-1)
		fmt.Fprint(w, itemsPage("", "rec"))
	}))
	defer srv.Close()

	out := sink.NewMemory()
	crawls := make([]*Crawl, 0, 8)
	for i := 0; i < 8; i++ {
		crawls = append(crawls, newTestCrawl(t, fmt.Sprintf("%s/t/%d", srv.URL, i), out, CrawlOptions{
			Name: fmt.Sprintf("t%d", i),
		}))
	}

	pool, err := NewWorkerPool(2, 8)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}
	reports := pool.Run(context.Background(), crawls)

	if len(reports) != 8 {
		t.Fatalf("expected 8 reports, got %d", len(reports))
	}
	if got := peak.Load(); got > 2 {
		t.Fatalf("expected at most 2 concurrent crawls, observed %d", got)
	}
}
