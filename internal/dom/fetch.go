package dom

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPDoer describes the HTTP client used to fetch pages.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// maxPageSize caps how much of a page is parsed.
const maxPageSize = 8 << 20

// Fetch downloads and parses the page at url.
func Fetch(ctx context.Context, client HTTPDoer, url, userAgent string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dom: build request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dom: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("dom: fetch %s: status %d", url, resp.StatusCode)
	}
	doc, err := Parse(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("dom: parse %s: %w", url, err)
	}
	return doc, nil
}
