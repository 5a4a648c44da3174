// Package open5e provides a small HTTP client for the Open5e reference API:
// plain GETs with bounded retries, the API root index, and pagination over
// listing endpoints.
package open5e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/tomescry/internal/observe"
)

const (
	// DefaultBaseURL is the public Open5e API root.
	DefaultBaseURL = "https://api.open5e.com/"

	// DefaultPageSize is the listing page size requested when the caller
	// does not specify one.
	DefaultPageSize = 200

	defaultTimeout = 30 * time.Second
	defaultRetries = 6
	defaultBackoff = 700 * time.Millisecond

	// statusErrorBodyLimit caps the body excerpt carried by a StatusError.
	statusErrorBodyLimit = 512
)

// StatusError reports a terminal non-success HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("open5e: GET %s returned status %d", e.URL, e.StatusCode)
}

// retryableStatus reports whether a status code is worth another attempt.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Client talks to the Open5e API. Requests are retried on 429 and 5xx
// gateway statuses as well as transport errors, with exponential backoff.
// All methods are safe for concurrent use.
type Client struct {
	base    string
	httpc   *http.Client
	retries int
	backoff time.Duration
	metrics *observe.Metrics
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (30 second timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpc = hc
		}
	}
}

// WithRetries sets the maximum number of attempts per request. The default
// is 6.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.retries = n
		}
	}
}

// WithBackoff sets the base backoff delay doubled on each retry. The
// default is 700ms.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoff = d
		}
	}
}

// WithMetrics sets the metrics instance used to record upstream requests.
// Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a [Client] for the given API root. An empty baseURL falls
// back to [DefaultBaseURL].
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		base:    baseURL,
		httpc:   &http.Client{Timeout: defaultTimeout},
		retries: defaultRetries,
		backoff: defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.base
}

// Get performs a GET against url and returns the response body. Transport
// errors and retryable statuses (429, 500, 502, 503, 504) are retried up
// to the configured attempt count; other non-success statuses fail
// immediately with a [StatusError].
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.backoff*(1<<(attempt-1))); err != nil {
				return nil, err
			}
		}
		body, retryable, err := c.do(ctx, url)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("open5e: GET %s: retries exhausted: %w", url, lastErr)
}

// do performs a single attempt. The second return value reports whether
// the failure is worth retrying.
func (c *Client) do(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("open5e: build request for %s: %w", url, err)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	c.metrics.UpstreamDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordUpstreamRequest(ctx, "transport_error")
		// Context cancellation is terminal, plain transport errors retry.
		return nil, ctx.Err() == nil, fmt.Errorf("open5e: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	c.metrics.RecordUpstreamRequest(ctx, strconv.Itoa(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, statusErrorBodyLimit))
		statusErr := &StatusError{URL: url, StatusCode: resp.StatusCode, Body: string(excerpt)}
		return nil, retryableStatus(resp.StatusCode), statusErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("open5e: read body of %s: %w", url, err)
	}
	return body, false, nil
}

// GetJSON performs a GET and decodes the JSON response body into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	body, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("open5e: decode body of %s: %w", url, err)
	}
	return nil
}

// Root returns the API index document mapping resource names to listing
// URLs.
func (c *Client) Root(ctx context.Context) (map[string]any, error) {
	var root map[string]any
	if err := c.GetJSON(ctx, c.base, &root); err != nil {
		return nil, err
	}
	return root, nil
}

// ListPage is one page of a paginated listing.
type ListPage struct {
	Count   int              `json:"count"`
	Next    string           `json:"next"`
	Results []map[string]any `json:"results"`
}

// ForEachItem walks the paginated listing starting at listURL, calling fn
// for every item in page order. The page size is requested on the first
// URL only; "next" links are followed verbatim, matching the upstream's
// own pagination parameters. A pageSize below 1 uses [DefaultPageSize].
// Returning an error from fn stops the walk.
func (c *Client) ForEachItem(ctx context.Context, listURL string, pageSize int, fn func(item map[string]any) error) error {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	url := withPageSize(listURL, pageSize)

	for url != "" {
		page, err := c.page(ctx, url)
		if err != nil {
			return err
		}
		for _, item := range page.Results {
			if err := fn(item); err != nil {
				return err
			}
		}
		url = page.Next
	}
	return nil
}

// page fetches and decodes one listing page. Endpoints that return a bare
// JSON array are treated as a single page.
func (c *Client) page(ctx context.Context, url string) (*ListPage, error) {
	body, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []map[string]any
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("open5e: decode listing %s: %w", url, err)
		}
		return &ListPage{Count: len(items), Results: items}, nil
	}

	var page ListPage
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, fmt.Errorf("open5e: decode listing %s: %w", url, err)
	}
	return &page, nil
}

// withPageSize appends a limit parameter unless the URL already carries
// query parameters.
func withPageSize(url string, pageSize int) string {
	if strings.Contains(url, "?") {
		return url
	}
	return url + "?limit=" + strconv.Itoa(pageSize)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
