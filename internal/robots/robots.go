// Package robots answers "may this location be fetched" from cached
// robots.txt rules. Lookups fail open: an unreachable or malformed
// robots.txt never stalls a crawl.
package robots

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"pagewalker/internal/config"
)

// negativeTTL bounds how long a failed robots.txt lookup keeps its fail-open
// verdict before the host is asked again.
const negativeTTL = 5 * time.Minute

// Agent evaluates robots.txt rules per host. The user-agent group is resolved
// once when the rules are fetched and cached alongside them. Safe for
// concurrent use.
type Agent struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	respect   bool
	logger    *slog.Logger

	mu    sync.Mutex
	hosts map[string]hostRules
	skip  map[string]struct{}
}

// hostRules is one cached verdict source. A nil group means everything on the
// host is allowed, which covers a permissive robots.txt, a missing one, and a
// failed lookup alike.
type hostRules struct {
	group   *robotstxt.Group
	expires time.Time
}

// NewAgent constructs a robots agent from configuration. Hosts listed in the
// overrides are never consulted.
func NewAgent(cfg config.RobotsConfig, client *http.Client, logger *slog.Logger) *Agent {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	ttl := cfg.CacheTTL.Duration
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	skip := make(map[string]struct{}, len(cfg.Overrides))
	for _, host := range cfg.Overrides {
		host = strings.ToLower(strings.TrimSpace(host))
		if host != "" {
			skip[host] = struct{}{}
		}
	}

	return &Agent{
		client:    client,
		userAgent: cfg.UserAgent,
		ttl:       ttl,
		respect:   cfg.Respect,
		logger:    logger,
		hosts:     make(map[string]hostRules),
		skip:      skip,
	}
}

// Allowed reports whether the target location may be fetched.
func (a *Agent) Allowed(ctx context.Context, target *url.URL) bool {
	if target == nil || !target.IsAbs() {
		return false
	}
	if !a.respect {
		return true
	}
	if _, ok := a.skip[strings.ToLower(target.Hostname())]; ok {
		return true
	}

	group := a.group(ctx, target)
	if group == nil {
		return true
	}

	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return group.Test(path)
}

// group returns the cached user-agent group for the target's host, fetching
// robots.txt when the cache entry is absent or stale. Failed lookups are
// cached too, with a shorter lifetime, so a broken host is not asked for
// robots.txt on every single page.
func (a *Agent) group(ctx context.Context, target *url.URL) *robotstxt.Group {
	key := strings.ToLower(target.Host)
	now := time.Now()

	a.mu.Lock()
	entry, ok := a.hosts[key]
	a.mu.Unlock()
	if ok && now.Before(entry.expires) {
		return entry.group
	}

	group, err := a.fetchGroup(ctx, target)
	ttl := a.ttl
	if err != nil {
		group = nil
		ttl = negativeTTL
		a.logger.Debug("robots.txt unavailable, failing open", "host", key, "error", err)
	}

	a.mu.Lock()
	a.hosts[key] = hostRules{group: group, expires: now.Add(ttl)}
	a.mu.Unlock()
	return group
}

func (a *Agent) fetchGroup(ctx context.Context, target *url.URL) (*robotstxt.Group, error) {
	robotsURL := target.Scheme + "://" + target.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	// FromResponse encodes the standard status semantics: a 4xx means no
	// restrictions, a 5xx is an error (and we fail open on errors).
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	group := data.FindGroup(a.userAgent)
	if group == nil {
		group = data.FindGroup("*")
	}
	return group, nil
}
