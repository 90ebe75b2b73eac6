package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"pagewalker/pkg/types"
)

// Fetcher retrieves a single document for the crawl loop.
type Fetcher interface {
	Fetch(ctx context.Context, location *url.URL) (*types.Page, error)
}

// Options controls HTTP fetching behaviour. UserAgent is mandatory: requests
// without an identifying agent string are the most common cause of being
// blocked outright.
type Options struct {
	UserAgent    string
	Headers      map[string]string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	MaxRedirects int
	MaxBodyBytes int64
	ProxyURL     string
}

var errRedirectCeiling = errors.New("redirect ceiling reached")

// HTTPFetcher implements Fetcher via the Go http.Client with a bounded retry
// policy. Backoff between attempts is exponential: RetryBackoff doubled per
// retry. The total blocking time is capped by Timeout x (MaxRetries+1) plus
// the backoff sleeps, and every wait honours context cancellation.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	extraHeaders map[string]string
	timeout      time.Duration
	maxRetries   int
	retryBackoff time.Duration
	maxBodyBytes int64
}

// NewHTTPFetcher constructs an HTTP fetcher using the provided options.
func NewHTTPFetcher(opts Options) (*HTTPFetcher, error) {
	if strings.TrimSpace(opts.UserAgent) == "" {
		return nil, errors.New("fetcher requires a user agent")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 10
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 * 1024 * 1024 // 5MB cap
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if strings.TrimSpace(opts.ProxyURL) != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	maxRedirects := opts.MaxRedirects
	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errRedirectCeiling
			}
			return nil
		},
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &HTTPFetcher{
		client:       client,
		userAgent:    opts.UserAgent,
		extraHeaders: headers,
		timeout:      opts.Timeout,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		maxBodyBytes: opts.MaxBodyBytes,
	}, nil
}

// Fetch downloads a single location, retrying transient failures up to
// MaxRetries additional attempts. Non-retryable failures surface immediately
// as a *types.FetchFailure.
func (f *HTTPFetcher) Fetch(ctx context.Context, location *url.URL) (*types.Page, error) {
	if location == nil {
		return nil, errors.New("fetch location is nil")
	}

	var failure *types.FetchFailure
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(Backoff(f.retryBackoff, attempt-1))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		page, err := f.attempt(ctx, location)
		if err == nil {
			page.Attempts = attempt + 1
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !errors.As(err, &failure) {
			return nil, err
		}
		failure.Attempts = attempt + 1
		if !failure.Retryable() {
			return nil, failure
		}
	}
	return nil, failure
}

// maxBackoff bounds any retry or failure delay. Generous retry budgets stay
// legal in the config, so the doubling must never overflow into a zero or
// negative sleep.
const maxBackoff = time.Minute

// Backoff returns the delay before the given retry step: base, 2x base,
// 4x base, ... capped at maxBackoff.
func Backoff(base time.Duration, step int) time.Duration {
	d := base
	for i := 0; i < step; i++ {
		d <<= 1
		if d >= maxBackoff || d <= 0 {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func (f *HTTPFetcher) attempt(ctx context.Context, location *url.URL) (*types.Page, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, location.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("User-Agent", f.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")

	for k, v := range f.extraHeaders {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &types.FetchFailure{
			Kind:       types.FailureHTTPStatus,
			StatusCode: resp.StatusCode,
		}
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, &types.FetchFailure{Kind: types.FailureConnection, Err: err}
	}

	var finalURL *url.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	} else {
		finalURL = location
	}

	return &types.Page{
		URL:             location,
		FinalURL:        finalURL,
		Body:            body,
		ContentType:     resp.Header.Get("Content-Type"),
		StatusCode:      resp.StatusCode,
		Headers:         resp.Header.Clone(),
		FetchedAt:       time.Now(),
		ResponseLatency: time.Since(start),
	}, nil
}

func classifyTransportError(err error) *types.FetchFailure {
	if errors.Is(err, errRedirectCeiling) {
		return &types.FetchFailure{Kind: types.FailureTooManyRedirects, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &types.FetchFailure{Kind: types.FailureTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &types.FetchFailure{Kind: types.FailureTimeout, Err: err}
	}
	return &types.FetchFailure{Kind: types.FailureConnection, Err: err}
}

func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	limited := io.LimitReader(reader, f.maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", f.maxBodyBytes)
	}
	return body, nil
}

// Client exposes the underlying HTTP client for reuse (eg. robots.txt fetches).
func (f *HTTPFetcher) Client() *http.Client {
	if f == nil {
		return nil
	}
	return f.client
}
