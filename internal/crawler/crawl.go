package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"pagewalker/internal/checkpoint"
	"pagewalker/internal/classify"
	"pagewalker/internal/extractor"
	"pagewalker/internal/fetcher"
	"pagewalker/internal/robots"
	"pagewalker/internal/sink"
	"pagewalker/pkg/types"
)

// loopState is the crawl loop's explicit state machine.
type loopState int

const (
	stateRunning loopState = iota
	statePaused
	stateDone
	stateFailed
)

// CrawlOptions configures one crawl over one paginated target.
type CrawlOptions struct {
	Name  string
	Seed  *url.URL
	Mode  string // auto, html, or json
	Rules extractor.RuleSet

	MaxPages       int
	MaxFailures    int
	FailureBackoff time.Duration
}

// crawlState is the mutable state of one crawl invocation. It is owned
// exclusively by its crawl for the duration of the run; nothing else holds a
// reference to it across cycles.
type crawlState struct {
	current             *url.URL
	visitedCount        int
	recordCount         int
	consecutiveFailures int
	visited             *visitedSet
}

// Crawl walks one paginated resource: fetch, extract, emit, resolve the next
// location, and repeat until a well-defined stop condition.
type Crawl struct {
	opts    CrawlOptions
	fetcher *fetcher.Composite
	limiter *HostLimiter
	robots  *robots.Agent
	sink    sink.Sink
	store   checkpoint.Store
	logger  *slog.Logger

	state    crawlState
	failures []types.PageFailure
	cycle    bool
	ceiling  bool
}

// NewCrawl assembles a crawl instance. The limiter may be shared across
// crawls; everything else is exclusive to this instance.
func NewCrawl(opts CrawlOptions, comp *fetcher.Composite, limiter *HostLimiter, agent *robots.Agent, out sink.Sink, store checkpoint.Store, logger *slog.Logger) (*Crawl, error) {
	if opts.Seed == nil || !opts.Seed.IsAbs() {
		return nil, errors.New("crawl requires an absolute seed location")
	}
	if opts.MaxPages <= 0 {
		return nil, errors.New("crawl requires a positive page ceiling")
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 3
	}
	if opts.FailureBackoff <= 0 {
		opts.FailureBackoff = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawl{
		opts:    opts,
		fetcher: comp,
		limiter: limiter,
		robots:  agent,
		sink:    out,
		store:   store,
		logger:  logger.With("target", opts.Name),
		state: crawlState{
			current: opts.Seed,
			visited: newVisitedSet(),
		},
	}, nil
}

// Run executes the crawl to a terminal state. Partial results already emitted
// to the sink are never discarded; the report accounts for them either way.
func (c *Crawl) Run(ctx context.Context) *types.CrawlReport {
	start := time.Now()
	c.resume(ctx)

	st := stateRunning
	for {
		switch st {
		case stateRunning:
			st = c.step(ctx)
		case statePaused:
			st = c.pause(ctx)
		case stateDone:
			c.clearCheckpoint(ctx)
			return c.report(types.CrawlDone, start)
		case stateFailed:
			return c.report(types.CrawlFailed, start)
		}
	}
}

// step performs one fetch-extract-emit cycle and returns the next state.
func (c *Crawl) step(ctx context.Context) loopState {
	if c.state.visitedCount >= c.opts.MaxPages {
		c.ceiling = true
		c.logger.Warn("page ceiling reached", "pages", c.state.visitedCount)
		return stateDone
	}

	current := c.state.current
	logger := c.logger.With("url", current.String(), "page", c.state.visitedCount+1)

	if err := c.limiter.Wait(ctx, current.Hostname()); err != nil {
		logger.Warn("politeness wait interrupted", "error", err)
		return stateFailed
	}

	if c.robots != nil && !c.robots.Allowed(ctx, current) {
		logger.Info("blocked by robots.txt")
		c.recordFailure(current, types.FailureRobotsDisallowed, errors.New("robots.txt disallows location"))
		return stateDone
	}

	page, err := c.fetch(ctx, current)
	if err != nil {
		if ctx.Err() != nil {
			return stateFailed
		}
		return c.handleFetchFailure(current, err, logger)
	}
	c.state.consecutiveFailures = 0

	result, err := c.extract(ctx, page, logger)
	if err != nil {
		// A document that defeats every rule is permanent for this
		// location; the records already emitted stay emitted.
		logger.Warn("extraction failed", "error", err)
		c.recordFailure(current, types.FailureExtraction, err)
		return stateDone
	}

	for _, rec := range result.Records {
		if err := c.sink.Emit(ctx, c.opts.Name, rec); err != nil {
			logger.Error("sink emit failed", "error", err)
			c.recordFailure(current, types.FailureExtraction, fmt.Errorf("emit record: %w", err))
			return stateFailed
		}
	}

	c.state.visited.Mark(current)
	// A redirected page is reachable under both spellings; mark the landing
	// location too so a later next-pointer at it closes the cycle.
	c.state.visited.Mark(page.FinalURL)
	c.state.visitedCount++
	c.state.recordCount += len(result.Records)

	logger.Info("page extracted", "records", len(result.Records), "next", result.Next != "")

	if result.Next == "" {
		// No pagination pointer is the normal termination signal.
		return stateDone
	}

	next, err := resolveNext(page, result.Next)
	if err != nil {
		logger.Warn("unusable next location", "raw", result.Next, "error", err)
		return stateDone
	}
	if c.state.visited.Seen(next) {
		c.cycle = true
		logger.Warn("next location already visited, stopping to avoid a pagination cycle", "next", next.String())
		return stateDone
	}

	c.state.current = next
	// Snapshot only after advancing: a resumed crawl must pick up at the
	// first page that has not contributed records yet, never re-emit one.
	c.saveCheckpoint(ctx)
	return stateRunning
}

// pause waits out the failure backoff before retrying the same location.
// Cancellation is checked here so a caller can abort promptly instead of
// waiting for the delay to elapse.
func (c *Crawl) pause(ctx context.Context) loopState {
	backoff := fetcher.Backoff(c.opts.FailureBackoff, c.state.consecutiveFailures-1)
	c.logger.Info("pausing before retry",
		"backoff", backoff.String(),
		"consecutive_failures", c.state.consecutiveFailures,
	)
	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return stateRunning
	case <-ctx.Done():
		return stateFailed
	}
}

func (c *Crawl) fetch(ctx context.Context, location *url.URL) (*types.Page, error) {
	if c.opts.Mode == "rendered" {
		return c.fetcher.Rendered(ctx, location)
	}
	return c.fetcher.Fetch(ctx, location)
}

// extract classifies the page, applies the rule set, and escalates through
// the rendering backend once when the heuristic suggests the content is
// injected client-side.
func (c *Crawl) extract(ctx context.Context, page *types.Page, logger *slog.Logger) (extractor.Result, error) {
	kind := c.classifyPage(page)

	result, err := extractor.Extract(page, kind, c.opts.Rules)
	if err != nil {
		return extractor.Result{}, err
	}

	needsRender := kind == types.KindNeedsRendering ||
		classify.NeedsRendering(kind, len(result.Records), c.opts.Rules.MinRecords)
	if !page.Rendered && c.fetcher.CanRender() && needsRender {
		logger.Info("document needs rendering, escalating to rendering backend",
			"kind", string(kind), "static_records", len(result.Records))
		rendered, renderErr := c.fetcher.Rendered(ctx, page.URL)
		if renderErr != nil {
			logger.Warn("rendering backend failed, keeping static result", "error", renderErr)
			return result, nil
		}
		renderedResult, renderErr := extractor.Extract(rendered, types.KindHTML, c.opts.Rules)
		if renderErr != nil {
			return result, nil
		}
		return renderedResult, nil
	}
	return result, nil
}

func (c *Crawl) classifyPage(page *types.Page) types.DocKind {
	switch c.opts.Mode {
	case "html":
		return types.KindHTML
	case "json":
		return types.KindJSON
	default:
		return classify.Classify(page)
	}
}

func (c *Crawl) handleFetchFailure(location *url.URL, err error, logger *slog.Logger) loopState {
	var failure *types.FetchFailure
	if !errors.As(err, &failure) {
		logger.Error("fetch failed", "error", err)
		c.recordFailure(location, types.FailureConnection, err)
		return stateFailed
	}

	if !failure.Retryable() {
		c.recordFailure(location, failure.Kind, failure)
		// Permanent for this location. One bad page must not void the
		// crawl, and without a discovered next location the walk ends here.
		logger.Warn("permanent failure for location", "kind", string(failure.Kind), "error", failure)
		return stateDone
	}

	c.state.consecutiveFailures++
	logger.Warn("transient failure, retries exhausted",
		"kind", string(failure.Kind),
		"consecutive_failures", c.state.consecutiveFailures,
	)
	if c.state.consecutiveFailures >= c.opts.MaxFailures {
		logger.Error("failure ceiling exceeded", "ceiling", c.opts.MaxFailures)
		c.recordFailure(location, failure.Kind, failure)
		return stateFailed
	}
	return statePaused
}

func (c *Crawl) recordFailure(location *url.URL, kind types.FailureKind, err error) {
	c.failures = append(c.failures, types.PageFailure{
		Location: location.String(),
		Kind:     kind,
		Err:      err,
		At:       time.Now(),
	})
}

func (c *Crawl) report(outcome types.CrawlOutcome, start time.Time) *types.CrawlReport {
	report := &types.CrawlReport{
		Target:         c.opts.Name,
		Seed:           c.opts.Seed.String(),
		Outcome:        outcome,
		PagesVisited:   c.state.visitedCount,
		RecordsEmitted: c.state.recordCount,
		Failures:       c.failures,
		CycleDetected:  c.cycle,
		PageCeilingHit: c.ceiling,
		Elapsed:        time.Since(start),
	}
	c.logger.Info("crawl finished",
		"outcome", string(outcome),
		"pages_visited", report.PagesVisited,
		"records_emitted", report.RecordsEmitted,
		"page_failures", len(report.Failures),
		"cycle_detected", report.CycleDetected,
		"elapsed", report.Elapsed.String(),
	)
	return report
}

func (c *Crawl) resume(ctx context.Context) {
	if c.store == nil {
		return
	}
	snap, ok, err := c.store.Load(ctx, c.opts.Name)
	if err != nil {
		c.logger.Warn("checkpoint load failed, starting from seed", "error", err)
		return
	}
	if !ok || snap.Current == "" {
		return
	}
	current, err := url.Parse(snap.Current)
	if err != nil || !current.IsAbs() {
		c.logger.Warn("checkpoint holds unusable location, starting from seed", "location", snap.Current)
		return
	}
	c.state.current = current
	c.state.visitedCount = snap.VisitedCount
	c.state.recordCount = snap.RecordCount
	c.state.visited.Restore(snap.Visited)
	c.logger.Info("resuming from checkpoint", "location", snap.Current, "pages_visited", snap.VisitedCount)
}

func (c *Crawl) saveCheckpoint(ctx context.Context) {
	if c.store == nil {
		return
	}
	snap := checkpoint.Snapshot{
		Target:       c.opts.Name,
		Current:      c.state.current.String(),
		VisitedCount: c.state.visitedCount,
		RecordCount:  c.state.recordCount,
		Visited:      c.state.visited.Keys(),
		UpdatedAt:    time.Now(),
	}
	if err := c.store.Save(ctx, snap); err != nil {
		c.logger.Warn("checkpoint save failed", "error", err)
	}
}

// clearCheckpoint drops the persisted snapshot once the crawl reaches Done so
// a later run of the same target starts fresh from its seed. A Failed crawl
// keeps its snapshot and a re-run resumes at the page that was failing.
func (c *Crawl) clearCheckpoint(ctx context.Context) {
	if c.store == nil {
		return
	}
	if err := c.store.Remove(ctx, c.opts.Name); err != nil {
		c.logger.Warn("checkpoint remove failed", "error", err)
	}
}

// resolveNext resolves a discovered next-location against the location it was
// found on. url.URL.Parse handles absolute replacement, root-relative paths,
// and same-directory relative paths; resolving an already-absolute location
// leaves it unchanged.
func resolveNext(page *types.Page, raw string) (*url.URL, error) {
	base := page.FinalURL
	if base == nil {
		base = page.URL
	}
	next, err := base.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("resolve next location: %w", err)
	}
	next.Fragment = ""
	scheme := strings.ToLower(next.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", next.Scheme)
	}
	return next, nil
}
