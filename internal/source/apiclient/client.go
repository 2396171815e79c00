// Package apiclient holds the HTTP plumbing shared by media server adapters:
// per-request timeouts, outbound rate limiting and JSON decoding.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/shelfcheck/internal/apperr"
)

// UserAgent is sent with every backend request.
const UserAgent = "shelfcheck/1.0"

// HTTPDoer describes the HTTP client used by adapters.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options tunes a Client. Zero values select defaults.
type Options struct {
	// Timeout bounds each request. Default 10s.
	Timeout time.Duration
	// RequestsPerSecond caps outbound requests. Zero or negative disables the cap.
	RequestsPerSecond float64
	// CacheTTL is the lifetime of cached search results. Zero disables caching.
	CacheTTL time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient HTTPDoer
}

// Client issues JSON requests on behalf of one named source.
type Client struct {
	source  string
	doer    HTTPDoer
	timeout time.Duration
	limiter *rate.Limiter
}

// New builds a Client for the named source.
func New(source string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	doer := opts.HTTPClient
	if doer == nil {
		doer = &http.Client{}
	}
	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = max(1, int(opts.RequestsPerSecond))
	}
	return &Client{
		source:  source,
		doer:    doer,
		timeout: timeout,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// GetJSON performs GET baseURL+path?query with the given headers and decodes
// the JSON body into out. Failures are returned as *apperr.ConnectionError.
func (c *Client) GetJSON(ctx context.Context, op, baseURL, path string, query url.Values, header http.Header, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return c.fail(op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return c.fail(op, fmt.Errorf("build request: %w", err))
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.doer.Do(req)
	if err != nil {
		return c.fail(op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return c.fail(op, fmt.Errorf("unauthorized (status %d)", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return c.fail(op, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return c.fail(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) fail(op string, err error) error {
	return &apperr.ConnectionError{Source: c.source, Op: op, Err: err}
}
