// Package scan runs the extraction pipeline once over a fetched or supplied
// page and reports what it found. It backs the scan endpoint, the scan_page
// tool and the scan command.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/shelfcheck/internal/apperr"
	"github.com/starford/shelfcheck/internal/dom"
	"github.com/starford/shelfcheck/internal/extraction"
	"github.com/starford/shelfcheck/internal/messaging"
	"github.com/starford/shelfcheck/internal/page"
)

var (
	// ErrUnsupportedSite is returned when no page adapter handles the host.
	ErrUnsupportedSite = errors.New("unsupported site")
	// ErrInvalidURL is returned for anything but an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url")
)

// Options tunes a Scanner. Zero values select defaults.
type Options struct {
	// Timeout bounds the page fetch. Default 15s.
	Timeout    time.Duration
	UserAgent  string
	HTTPClient dom.HTTPDoer
	Logger     *slog.Logger
}

// Report summarizes one scan.
type Report struct {
	URL      string               `json:"url,omitempty"`
	Host     string               `json:"host"`
	Site     string               `json:"site"`
	Stats    extraction.Stats     `json:"stats"`
	Outcomes []extraction.Outcome `json:"outcomes"`
}

// Found returns the outcomes with at least one matching source.
func (r Report) Found() []extraction.Outcome {
	var out []extraction.Outcome
	for _, o := range r.Outcomes {
		if o.Found {
			out = append(out, o)
		}
	}
	return out
}

// Scanner resolves a page adapter and runs one extraction pass.
type Scanner struct {
	pages  *page.Registry
	sender messaging.Sender
	opts   Options
}

// New creates a Scanner.
func New(pages *page.Registry, sender messaging.Sender, opts Options) *Scanner {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scanner{pages: pages, sender: sender, opts: opts}
}

// URL fetches rawURL and scans it.
func (s *Scanner) URL(ctx context.Context, rawURL string) (Report, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Report{}, fmt.Errorf("scan: %q: %w", rawURL, ErrInvalidURL)
	}
	site, err := s.adapter(u.Hostname())
	if err != nil {
		return Report{}, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	doc, err := dom.Fetch(fetchCtx, s.opts.HTTPClient, u.String(), s.opts.UserAgent)
	if err != nil {
		return Report{}, &apperr.ConnectionError{Source: u.Hostname(), Op: "fetch", Err: err}
	}

	rep, err := s.run(ctx, site, doc)
	rep.URL = u.String()
	rep.Host = u.Hostname()
	return rep, err
}

// HTML scans markup as if it were served by host. host may be a bare
// hostname or a URL.
func (s *Scanner) HTML(ctx context.Context, host, markup string) (Report, error) {
	host = hostname(host)
	site, err := s.adapter(host)
	if err != nil {
		return Report{}, err
	}
	doc, err := dom.ParseString(markup)
	if err != nil {
		return Report{}, fmt.Errorf("scan: parse: %w", err)
	}
	rep, err := s.run(ctx, site, doc)
	rep.Host = host
	return rep, err
}

// Sites lists the supported page adapters.
func (s *Scanner) Sites() []string {
	return s.pages.Names()
}

func (s *Scanner) adapter(host string) (page.Adapter, error) {
	site, ok := s.pages.Adapter(host)
	if !ok {
		return nil, fmt.Errorf("scan: %s: %w", host, ErrUnsupportedSite)
	}
	return site, nil
}

func (s *Scanner) run(ctx context.Context, site page.Adapter, doc *dom.Document) (Report, error) {
	p := extraction.New(doc, site, s.sender,
		extraction.WithRenderer(&extraction.CollectRenderer{}),
		extraction.WithLogger(s.opts.Logger),
	)
	err := p.Process(ctx)
	rep := Report{Site: site.Name(), Stats: p.Stats(), Outcomes: p.Outcomes()}
	if rep.Outcomes == nil {
		rep.Outcomes = []extraction.Outcome{}
	}
	s.opts.Logger.Info("page scanned",
		slog.String("site", rep.Site),
		slog.Int64("queried", rep.Stats.Queried),
		slog.Int64("matched", rep.Stats.Matched),
	)
	if err != nil {
		return rep, fmt.Errorf("scan: %w", err)
	}
	return rep, nil
}

func hostname(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil {
			return u.Hostname()
		}
	}
	return strings.ToLower(s)
}
