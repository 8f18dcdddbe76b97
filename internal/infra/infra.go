// Package infra provides the HTTP Fetcher shared by every retriever: one
// timed GET with a fixed browser identification header, returning the body
// or a typed *FetchError. It never panics into the caller.
package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

// DefaultUserAgent is the browser identification sent with every request.
// NSE rejects requests without a browser-like user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 16 << 20

// FetchConfig holds the request timeout, identification header and the retry
// policy retrievers apply on top of single requests.
type FetchConfig struct {
	Timeout     time.Duration
	UserAgent   string
	MaxAttempts int
	RetryDelay  time.Duration
}

// DefaultFetchConfig returns the production policy: 10s timeout, 3 attempts,
// 5s between attempts.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Timeout:     10 * time.Second,
		UserAgent:   DefaultUserAgent,
		MaxAttempts: 3,
		RetryDelay:  5 * time.Second,
	}
}

// FailureKind classifies a failed request.
type FailureKind string

const (
	KindNetwork FailureKind = "network"
	KindTimeout FailureKind = "timeout"
	KindStatus  FailureKind = "status"
)

// FetchError is the typed outcome of a failed GET.
type FetchError struct {
	Kind       FailureKind
	URL        string
	StatusCode int    // set for KindStatus
	Status     string // set for KindStatus
	Body       string // first bytes of the error body, for KindStatus
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("GET %s: HTTP %d %s: %s", e.URL, e.StatusCode, e.Status, e.Body)
	case KindTimeout:
		return fmt.Sprintf("GET %s: timeout: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Observer is notified once per request with its outcome ("ok" or a
// FailureKind) and duration.
type Observer func(rawURL string, outcome string, elapsed time.Duration)

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the underlying client. The Fetcher still applies
// its own per-request timeout through the request context.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithSleep replaces the inter-attempt delay function, e.g. with a no-op in tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

// WithObserver registers a per-request callback, used for metrics.
func WithObserver(o Observer) Option {
	return func(f *Fetcher) { f.observe = o }
}

// Fetcher performs single timed GET requests. It holds no per-call state and
// is safe for concurrent use.
type Fetcher struct {
	cfg     FetchConfig
	client  *http.Client
	sleep   func(ctx context.Context, d time.Duration) error
	observe Observer
}

// NewFetcher creates a Fetcher. Zero fields in cfg fall back to DefaultFetchConfig,
// except RetryDelay, where zero is a valid "retry immediately" policy.
func NewFetcher(cfg FetchConfig, opts ...Option) *Fetcher {
	def := DefaultFetchConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}

	jar, _ := cookiejar.New(nil)
	f := &Fetcher{
		cfg:    cfg,
		client: &http.Client{Jar: jar},
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Policy returns the effective configuration.
func (f *Fetcher) Policy() FetchConfig { return f.cfg }

// Sleep waits for d or until ctx is done.
func (f *Fetcher) Sleep(ctx context.Context, d time.Duration) error {
	return f.sleep(ctx, d)
}

// Get performs exactly one GET. Default headers (identification, Accept,
// Accept-Language) are set first and may be overridden by headers. Any status
// outside 2xx is a *FetchError of KindStatus.
func (f *Fetcher) Get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	start := time.Now()
	body, err := f.get(ctx, rawURL, headers)
	if f.observe != nil {
		outcome := "ok"
		var fe *FetchError
		if errors.As(err, &fe) {
			outcome = string(fe.Kind)
		}
		f.observe(rawURL, outcome, time.Since(start))
	}
	return body, err
}

func (f *Fetcher) get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: rawURL, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, text/html, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: classify(err), URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &FetchError{
			Kind:       KindStatus,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       string(snippet),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Kind: classify(err), URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	return data, nil
}

// classify maps a client error to a FailureKind.
func classify(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
