package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"

	"pagewalker/internal/checkpoint"
	"pagewalker/internal/config"
	"pagewalker/internal/extractor"
	"pagewalker/internal/fetcher"
	"pagewalker/internal/robots"
	"pagewalker/internal/sink"
	"pagewalker/pkg/types"
)

// Engine runs one independent crawl per configured target on a worker pool.
// The crawls share nothing but the work queue and the host limiter.
type Engine struct {
	cfg     config.Config
	fetcher *fetcher.Composite
	limiter *HostLimiter
	robots  *robots.Agent
	sink    sink.Sink
	store   checkpoint.Store
	logger  *slog.Logger

	closers   []func() error
	closeOnce sync.Once
}

// NewEngine builds a scrape engine from configuration. Configuration errors
// are fatal: the crawl never starts on a bad config.
func NewEngine(cfg config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(fetcher.Options{
		UserAgent:    cfg.Fetch.UserAgent,
		Headers:      cfg.Fetch.Headers,
		Timeout:      cfg.Fetch.Timeout.Duration,
		MaxRetries:   cfg.Fetch.MaxRetries,
		RetryBackoff: cfg.Fetch.RetryBackoff.Duration,
		MaxRedirects: cfg.Fetch.MaxRedirects,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		ProxyURL:     cfg.Fetch.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("http fetcher: %w", err)
	}

	var renderer fetcher.Renderer
	if cfg.Rendering.Enabled {
		switch strings.ToLower(cfg.Rendering.Engine) {
		case "chromedp", "chrome":
			renderer = fetcher.NewChromedpRenderer(fetcher.RenderOptions{
				Timeout:            cfg.Rendering.Timeout.Duration,
				WaitForSelector:    cfg.Rendering.WaitForSelector,
				UserAgent:          cfg.Fetch.UserAgent,
				MaxBodyBytes:       cfg.Fetch.MaxBodyBytes,
				DisableHeadless:    cfg.Rendering.DisableHeadless,
				ConcurrentSessions: cfg.Rendering.ConcurrentSessions,
			}, logger)
		case "none":
			// Explicit opt-out even with the enabled flag toggled.
		default:
			return nil, fmt.Errorf("unsupported rendering engine %q", cfg.Rendering.Engine)
		}
	}

	out, err := sink.New(cfg.Sink)
	if err != nil {
		return nil, fmt.Errorf("sink: %w", err)
	}
	var closers []func() error
	closers = append(closers, out.Close)

	store, err := checkpoint.New(cfg.Checkpoint)
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("checkpoint store: %w", err)
	}
	if store != nil {
		closers = append(closers, store.Close)
	}

	limiter := NewHostLimiter(cfg.Crawl.PolitenessDelay.Duration, RateLimiterSettings{
		Requests: cfg.Crawl.RateLimit.Requests,
		Window:   cfg.Crawl.RateLimit.Window.Duration,
	})

	var agent *robots.Agent
	if cfg.Robots.Respect {
		agent = robots.NewAgent(cfg.Robots, httpFetcher.Client(), logger)
	}

	return &Engine{
		cfg:     cfg,
		fetcher: fetcher.NewComposite(httpFetcher, renderer),
		limiter: limiter,
		robots:  agent,
		sink:    out,
		store:   store,
		logger:  logger,
		closers: closers,
	}, nil
}

// Run crawls every configured target and blocks until all crawls reach a
// terminal state or the context is cancelled.
func (e *Engine) Run(ctx context.Context) ([]*types.CrawlReport, error) {
	defer e.Close()

	crawls, err := e.buildCrawls()
	if err != nil {
		return nil, err
	}
	pool, err := NewWorkerPool(e.cfg.Worker.Concurrency, e.cfg.Worker.QueueSize)
	if err != nil {
		return nil, err
	}

	reports := pool.Run(ctx, crawls)
	if ctx.Err() != nil {
		e.logger.Warn("context cancelled, shutting down")
		return reports, ctx.Err()
	}
	return reports, nil
}

// Close releases resources owned by the engine.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		for _, closer := range e.closers {
			if cerr := closer(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
	})
	return err
}

// Sink exposes the engine's sink, letting callers with a memory sink read
// back the collected records.
func (e *Engine) Sink() sink.Sink {
	return e.sink
}

func (e *Engine) buildCrawls() ([]*Crawl, error) {
	crawls := make([]*Crawl, 0, len(e.cfg.Targets))
	for _, target := range e.cfg.Targets {
		raw := target.Seed
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		seed, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse seed %q: %w", target.Seed, err)
		}
		if seed.Host == "" {
			return nil, fmt.Errorf("seed %q missing host", target.Seed)
		}

		crawl, err := NewCrawl(CrawlOptions{
			Name:           target.Name,
			Seed:           seed,
			Mode:           target.Mode,
			Rules:          extractor.FromTarget(target),
			MaxPages:       e.cfg.Crawl.MaxPages,
			MaxFailures:    e.cfg.Crawl.MaxFailures,
			FailureBackoff: e.cfg.Crawl.FailureBackoff.Duration,
		}, e.fetcher, e.limiter, e.robots, e.sink, e.store, e.logger)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", target.Name, err)
		}
		crawls = append(crawls, crawl)
	}
	return crawls, nil
}

func buildLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported log level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Structured {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler), nil
}
