package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the full configuration required to initialise the scrape engine.
type Config struct {
	Fetch      FetchConfig      `yaml:"fetch"`
	Crawl      CrawlConfig      `yaml:"crawl"`
	Worker     WorkerConfig     `yaml:"worker"`
	Rendering  RenderingConfig  `yaml:"rendering"`
	Robots     RobotsConfig     `yaml:"robots"`
	Sink       SinkConfig       `yaml:"sink"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Logging    LoggingConfig    `yaml:"logging"`
	Targets    []TargetConfig   `yaml:"targets"`
}

// FetchConfig controls the HTTP fetcher: identification, timeouts, and the
// local retry policy for transient failures.
type FetchConfig struct {
	UserAgent    string            `yaml:"user_agent"`
	Headers      map[string]string `yaml:"headers"`
	Timeout      Duration          `yaml:"timeout"`
	MaxRetries   int               `yaml:"max_retries"`
	RetryBackoff Duration          `yaml:"retry_backoff"`
	MaxRedirects int               `yaml:"max_redirects"`
	MaxBodyBytes int64             `yaml:"max_body_bytes"`
	ProxyURL     string            `yaml:"proxy_url"`
}

// CrawlConfig controls pacing and termination of the crawl loop.
type CrawlConfig struct {
	PolitenessDelay Duration        `yaml:"politeness_delay"`
	FailureBackoff  Duration        `yaml:"failure_backoff"`
	MaxFailures     int             `yaml:"max_failures"`
	MaxPages        int             `yaml:"max_pages"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig applies a token bucket per host, shared across crawls.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// Enabled reports whether per-host rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}

// WorkerConfig controls concurrency across independent crawls.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
	QueueSize   int `yaml:"queue_size"`
}

// RenderingConfig controls the optional JavaScript rendering backend.
type RenderingConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Engine             string   `yaml:"engine"`
	Timeout            Duration `yaml:"timeout"`
	WaitForSelector    string   `yaml:"wait_for_selector"`
	ConcurrentSessions int      `yaml:"concurrent_sessions"`
	DisableHeadless    bool     `yaml:"disable_headless"`
}

// RobotsConfig configures robots.txt handling.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
	Overrides []string `yaml:"overrides"`
}

// SinkConfig selects where extracted records are delivered.
type SinkConfig struct {
	Kind    string   `yaml:"kind"`
	Path    string   `yaml:"path"`
	DSN     string   `yaml:"dsn"`
	Table   string   `yaml:"table"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// CheckpointConfig enables resumable crawls by persisting crawl state.
type CheckpointConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Backend   string   `yaml:"backend"`
	Path      string   `yaml:"path"`
	Addr      string   `yaml:"addr"`
	KeyPrefix string   `yaml:"key_prefix"`
	TTL       Duration `yaml:"ttl"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// TargetConfig declares one paginated resource to walk and the extraction
// rules to apply to each of its pages.
type TargetConfig struct {
	Name        string            `yaml:"name"`
	Seed        string            `yaml:"seed"`
	Mode        string            `yaml:"mode"`
	MinRecords  int               `yaml:"min_records"`
	Container   string            `yaml:"container"`
	RecordsPath string            `yaml:"records_path"`
	Fields      []FieldConfig     `yaml:"fields"`
	Pagination  *PaginationConfig `yaml:"pagination"`
}

// FieldConfig declares one named extraction rule.
type FieldConfig struct {
	Name     string `yaml:"name"`
	Selector string `yaml:"selector"`
	Mode     string `yaml:"mode"`
	Attr     string `yaml:"attr"`
	KeyPath  string `yaml:"key_path"`
	Required bool   `yaml:"required"`
}

// PaginationConfig declares how the next-page pointer is discovered.
type PaginationConfig struct {
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr"`
	KeyPath  string `yaml:"key_path"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Fetch: FetchConfig{
			UserAgent:    "pagewalker-bot/1.0",
			Headers:      map[string]string{},
			Timeout:      DurationFrom(10 * time.Second),
			MaxRetries:   2,
			RetryBackoff: DurationFrom(500 * time.Millisecond),
			MaxRedirects: 10,
			MaxBodyBytes: 6 * 1024 * 1024,
		},
		Crawl: CrawlConfig{
			PolitenessDelay: DurationFrom(250 * time.Millisecond),
			FailureBackoff:  DurationFrom(2 * time.Second),
			MaxFailures:     3,
			MaxPages:        1000,
		},
		Worker: WorkerConfig{
			Concurrency: 4,
			QueueSize:   64,
		},
		Rendering: RenderingConfig{
			Enabled:            false,
			Engine:             "chromedp",
			Timeout:            DurationFrom(15 * time.Second),
			ConcurrentSessions: 2,
		},
		Robots: RobotsConfig{
			Respect:   true,
			UserAgent: "pagewalker-bot/1.0",
			CacheTTL:  DurationFrom(6 * time.Hour),
			Overrides: []string{},
		},
		Sink: SinkConfig{
			Kind: "memory",
		},
		Checkpoint: CheckpointConfig{
			Enabled:   false,
			Backend:   "sqlite",
			KeyPrefix: "pagewalker:checkpoint:",
			TTL:       DurationFrom(24 * time.Hour),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces required invariants for the engine configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Fetch.UserAgent) == "" {
		return errors.New("fetch.user_agent must be set")
	}
	if c.Fetch.Timeout.IsZero() {
		return errors.New("fetch.timeout must be > 0")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0 (got %d)", c.Fetch.MaxRetries)
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch.max_body_bytes must be > 0 (got %d)", c.Fetch.MaxBodyBytes)
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0 (got %d)", c.Crawl.MaxPages)
	}
	if c.Crawl.MaxFailures <= 0 {
		return fmt.Errorf("crawl.max_failures must be > 0 (got %d)", c.Crawl.MaxFailures)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0 (got %d)", c.Worker.Concurrency)
	}
	if c.Worker.QueueSize <= 0 {
		return fmt.Errorf("worker.queue_size must be > 0 (got %d)", c.Worker.QueueSize)
	}
	if rl := c.Crawl.RateLimit; rl.Requests < 0 {
		return fmt.Errorf("crawl.rate_limit.requests must be >= 0 (got %d)", rl.Requests)
	}
	if c.Robots.Respect && strings.TrimSpace(c.Robots.UserAgent) == "" {
		return errors.New("robots.user_agent must be set")
	}
	if len(c.Targets) == 0 {
		return errors.New("at least one target must be configured")
	}
	names := make(map[string]struct{}, len(c.Targets))
	for i, target := range c.Targets {
		if err := target.validate(); err != nil {
			return fmt.Errorf("target %d (%s): %w", i, target.Name, err)
		}
		if _, dup := names[target.Name]; dup {
			return fmt.Errorf("duplicate target name %q", target.Name)
		}
		names[target.Name] = struct{}{}
	}
	if err := c.Sink.validate(); err != nil {
		return err
	}
	return c.Checkpoint.validate()
}

func (t TargetConfig) validate() error {
	if t.Name == "" {
		return errors.New("name is required")
	}
	if t.Seed == "" {
		return errors.New("seed is required")
	}
	switch t.Mode {
	case "", "auto", "html", "json", "rendered":
	default:
		return fmt.Errorf("unsupported mode %q", t.Mode)
	}
	if t.MinRecords < 0 {
		return fmt.Errorf("min_records must be >= 0 (got %d)", t.MinRecords)
	}
	if len(t.Fields) == 0 {
		return errors.New("at least one field rule is required")
	}
	for i, f := range t.Fields {
		if f.Name == "" {
			return fmt.Errorf("field %d has empty name", i)
		}
		switch f.Mode {
		case "", "text", "attr", "nested":
		default:
			return fmt.Errorf("field %s: unsupported mode %q", f.Name, f.Mode)
		}
		if f.Mode == "attr" && f.Attr == "" {
			return fmt.Errorf("field %s: attr mode requires attr", f.Name)
		}
	}
	if t.Pagination != nil && t.Pagination.Selector == "" && t.Pagination.KeyPath == "" {
		return errors.New("pagination requires a selector or key_path")
	}
	return nil
}

func (s SinkConfig) validate() error {
	switch s.Kind {
	case "", "memory":
	case "jsonl":
		if strings.TrimSpace(s.Path) == "" {
			return errors.New("sink.path must be set for jsonl sink")
		}
	case "postgres":
		if strings.TrimSpace(s.DSN) == "" {
			return errors.New("sink.dsn must be set for postgres sink")
		}
	case "kafka":
		if len(s.Brokers) == 0 || strings.TrimSpace(s.Topic) == "" {
			return errors.New("sink.brokers and sink.topic must be set for kafka sink")
		}
	default:
		return fmt.Errorf("unsupported sink kind %q", s.Kind)
	}
	return nil
}

func (c CheckpointConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Backend {
	case "sqlite":
		if strings.TrimSpace(c.Path) == "" {
			return errors.New("checkpoint.path must be set for sqlite backend")
		}
	case "redis":
		if strings.TrimSpace(c.Addr) == "" {
			return errors.New("checkpoint.addr must be set for redis backend")
		}
	default:
		return fmt.Errorf("unsupported checkpoint backend %q", c.Backend)
	}
	return nil
}

func (c *Config) normalise() {
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	c.Robots.UserAgent = strings.TrimSpace(c.Robots.UserAgent)
	c.Sink.Kind = strings.ToLower(strings.TrimSpace(c.Sink.Kind))
	c.Checkpoint.Backend = strings.ToLower(strings.TrimSpace(c.Checkpoint.Backend))

	for i := range c.Targets {
		t := &c.Targets[i]
		t.Name = strings.TrimSpace(t.Name)
		t.Seed = strings.TrimSpace(t.Seed)
		t.Mode = strings.ToLower(strings.TrimSpace(t.Mode))
		if t.Mode == "" {
			t.Mode = "auto"
		}
		for j := range t.Fields {
			f := &t.Fields[j]
			f.Name = strings.TrimSpace(f.Name)
			f.Mode = strings.ToLower(strings.TrimSpace(f.Mode))
			if f.Mode == "" {
				f.Mode = "text"
			}
		}
	}

	if len(c.Robots.Overrides) > 0 {
		c.Robots.Overrides = dedupeLower(c.Robots.Overrides)
	}
}

func dedupeLower(values []string) []string {
	unique := make(map[string]struct{}, len(values))
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := unique[v]; ok {
			continue
		}
		unique[v] = struct{}{}
		cleaned = append(cleaned, v)
	}
	sort.Strings(cleaned)
	return cleaned
}
