package crawler

import (
	"context"
	"errors"
	"sync"

	"pagewalker/pkg/types"
)

// WorkerPool runs independent crawls with bounded concurrency. Crawls share
// nothing through the pool except the queue itself; reports are collected in
// completion order.
type WorkerPool struct {
	concurrency int
	queue       chan *Crawl

	mu      sync.Mutex
	reports []*types.CrawlReport
}

// NewWorkerPool creates a pool with the given concurrency and queue size.
func NewWorkerPool(concurrency, queueSize int) (*WorkerPool, error) {
	if concurrency <= 0 || queueSize <= 0 {
		return nil, errors.New("worker pool requires positive concurrency and queue size")
	}
	return &WorkerPool{
		concurrency: concurrency,
		queue:       make(chan *Crawl, queueSize),
	}, nil
}

// Run executes every crawl and blocks until all of them reach a terminal
// state. On cancellation, in-flight crawls observe the context and finish
// Failed; crawls never started produce no report.
func (p *WorkerPool) Run(ctx context.Context, crawls []*Crawl) []*types.CrawlReport {
	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx)
		}()
	}

feed:
	for _, c := range crawls {
		select {
		case p.queue <- c:
		case <-ctx.Done():
			break feed
		}
	}
	close(p.queue)
	wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*types.CrawlReport, len(p.reports))
	copy(out, p.reports)
	return out
}

func (p *WorkerPool) worker(ctx context.Context) {
	for crawl := range p.queue {
		if ctx.Err() != nil {
			// Drain without starting anything new.
			continue
		}
		report := crawl.Run(ctx)
		p.mu.Lock()
		p.reports = append(p.reports, report)
		p.mu.Unlock()
	}
}
