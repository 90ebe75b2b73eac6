package types

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Page represents a fetched document.
type Page struct {
	URL             *url.URL
	FinalURL        *url.URL
	Body            []byte
	ContentType     string
	StatusCode      int
	Headers         http.Header
	FetchedAt       time.Time
	Rendered        bool
	Attempts        int
	ResponseLatency time.Duration
}

// Record maps extracted field names to their values. Values are strings for
// text and attribute rules, and arbitrary decoded structures for nested JSON
// lookups.
type Record map[string]any

// FailureKind classifies why a fetch could not produce a usable page.
type FailureKind string

const (
	FailureTimeout          FailureKind = "timeout"
	FailureConnection       FailureKind = "connection_error"
	FailureHTTPStatus       FailureKind = "http_status"
	FailureTooManyRedirects FailureKind = "too_many_redirects"

	// FailureRobotsDisallowed and FailureExtraction are permanent
	// per-location conditions raised by the crawl loop, not the fetcher.
	FailureRobotsDisallowed FailureKind = "robots_disallowed"
	FailureExtraction       FailureKind = "extraction_error"
)

// FetchFailure is the typed error returned when a fetch is exhausted.
type FetchFailure struct {
	Kind       FailureKind
	StatusCode int
	Attempts   int
	Err        error
}

func (f *FetchFailure) Error() string {
	switch f.Kind {
	case FailureHTTPStatus:
		return fmt.Sprintf("fetch failed: http status %d after %d attempt(s)", f.StatusCode, f.Attempts)
	default:
		return fmt.Sprintf("fetch failed: %s after %d attempt(s): %v", f.Kind, f.Attempts, f.Err)
	}
}

func (f *FetchFailure) Unwrap() error {
	return f.Err
}

// Retryable reports whether the failure is worth another attempt. Only
// timeouts, connection errors, and the throttling statuses 429/503 qualify.
func (f *FetchFailure) Retryable() bool {
	switch f.Kind {
	case FailureTimeout, FailureConnection:
		return true
	case FailureHTTPStatus:
		return f.StatusCode == http.StatusTooManyRequests || f.StatusCode == http.StatusServiceUnavailable
	default:
		return false
	}
}

// DocKind is the Mode Selector's classification of a fetched document.
type DocKind string

const (
	KindHTML           DocKind = "html"
	KindJSON           DocKind = "json"
	KindNeedsRendering DocKind = "needs_rendering"
)

// CrawlOutcome names the terminal state of one crawl.
type CrawlOutcome string

const (
	CrawlDone   CrawlOutcome = "done"
	CrawlFailed CrawlOutcome = "failed"
)

// PageFailure records a page that could not contribute records. The crawl
// carries on (or stops) around it, but the gap stays visible in the report.
type PageFailure struct {
	Location string
	Kind     FailureKind
	Err      error
	At       time.Time
}

// CrawlReport summarises one finished crawl so callers can tell a clean
// finish from one with gaps.
type CrawlReport struct {
	Target         string
	Seed           string
	Outcome        CrawlOutcome
	PagesVisited   int
	RecordsEmitted int
	Failures       []PageFailure
	CycleDetected  bool
	PageCeilingHit bool
	Elapsed        time.Duration
}
