package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pagewalker/internal/config"
	"pagewalker/internal/sink"
	"pagewalker/pkg/types"
)

func engineConfig(targets ...config.TargetConfig) config.Config {
	cfg := config.Default()
	cfg.Fetch.Timeout = config.DurationFrom(2 * time.Second)
	cfg.Fetch.MaxRetries = 0
	cfg.Fetch.RetryBackoff = config.DurationFrom(time.Millisecond)
	cfg.Crawl.PolitenessDelay = config.Duration{}
	cfg.Crawl.FailureBackoff = config.DurationFrom(time.Millisecond)
	cfg.Crawl.MaxFailures = 2
	cfg.Crawl.MaxPages = 10
	cfg.Robots.Respect = false
	cfg.Logging.Level = "error"
	cfg.Targets = targets
	return cfg
}

func listTarget(name, seed string) config.TargetConfig {
	return config.TargetConfig{
		Name: name,
		Seed: seed,
		Mode: "html",
		Fields: []config.FieldConfig{
			{Name: "title", Selector: ".title", Mode: "text", Required: true},
		},
		Container:  "div.item",
		Pagination: &config.PaginationConfig{Selector: "a.next"},
	}
}

func TestEngineRunsIndependentTargets(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/alpha", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, itemsPage("/alpha2", "a1"))
	})
	mux.HandleFunc("/alpha2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, itemsPage("", "a2"))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	mux.HandleFunc("/gamma", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, itemsPage("", "g1", "g2"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := engineConfig(
		listTarget("alpha", srv.URL+"/alpha"),
		listTarget("broken", srv.URL+"/broken"),
		listTarget("gamma", srv.URL+"/gamma"),
	)

	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer engine.Close()

	reports, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(reports))
	}

	byTarget := make(map[string]*types.CrawlReport, len(reports))
	for _, report := range reports {
		byTarget[report.Target] = report
	}

	// One failing target must not disturb the healthy ones.
	if got := byTarget["alpha"].RecordsEmitted; got != 2 {
		t.Fatalf("alpha: expected 2 records, got %d", got)
	}
	if got := byTarget["gamma"].RecordsEmitted; got != 2 {
		t.Fatalf("gamma: expected 2 records, got %d", got)
	}

	broken := byTarget["broken"]
	if broken.RecordsEmitted != 0 {
		t.Fatalf("broken: expected no records, got %d", broken.RecordsEmitted)
	}
	if len(broken.Failures) != 1 {
		t.Fatalf("broken: expected 1 failure, got %d", len(broken.Failures))
	}
	if broken.Failures[0].Kind != types.FailureHTTPStatus {
		t.Fatalf("broken: expected http_status failure, got %s", broken.Failures[0].Kind)
	}

	mem, ok := engine.Sink().(*sink.Memory)
	if !ok {
		t.Fatalf("expected memory sink, got %T", engine.Sink())
	}
	if got := len(mem.Records()); got != 4 {
		t.Fatalf("expected 4 records across targets, got %d", got)
	}
}

func TestEngineDefaultsSeedScheme(t *testing.T) {
	cfg := engineConfig(listTarget("bare", "example.com/list"))
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer engine.Close()

	crawls, err := engine.buildCrawls()
	if err != nil {
		t.Fatalf("buildCrawls: %v", err)
	}
	if len(crawls) != 1 {
		t.Fatalf("expected 1 crawl, got %d", len(crawls))
	}
	if got := crawls[0].opts.Seed.Scheme; got != "https" {
		t.Fatalf("expected https scheme default, got %q", got)
	}
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	cfg := engineConfig(listTarget("x", "example.com"))
	cfg.Fetch.UserAgent = ""
	if _, err := NewEngine(cfg); err == nil {
		t.Fatal("expected error for empty user agent, got nil")
	}

	cfg = engineConfig()
	if _, err := NewEngine(cfg); err == nil {
		t.Fatal("expected error for empty target list, got nil")
	}
}
