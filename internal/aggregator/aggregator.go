// Package aggregator fans a title query out to every active source and joins
// the per-source answers into one result.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/starford/shelfcheck/internal/registry"
	"github.com/starford/shelfcheck/internal/source"
)

// EventCompleted is published after every CheckAllSources call with at least
// one active source.
const EventCompleted = "check.completed"

// Query is one title lookup.
type Query struct {
	Title string `json:"title"`
	Year  *int   `json:"year,omitempty"`
}

// Match is one source's answer to a query.
type Match struct {
	SourceID   string        `json:"sourceId"`
	SourceName string        `json:"sourceName"`
	Found      bool          `json:"found"`
	Item       *source.Movie `json:"item,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Result holds one Match per source active at call time, in registry order.
type Result struct {
	Found   bool    `json:"found"`
	Results []Match `json:"results"`
}

// Matches returns the sources that located the title.
func (r Result) Matches() []Match {
	return lo.Filter(r.Results, func(m Match, _ int) bool { return m.Found })
}

// Sources yields the adapters to query.
type Sources interface {
	ActiveSources() []registry.Entry
}

// Notifier receives completion events. It must not block.
type Notifier func(kind string, data any)

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// WithNotifier sets the completion callback.
func WithNotifier(n Notifier) Option {
	return func(a *Aggregator) { a.notify = n }
}

// Aggregator queries all active sources concurrently.
type Aggregator struct {
	sources Sources
	logger  *slog.Logger
	notify  Notifier
}

// New creates an Aggregator over sources.
func New(sources Sources, opts ...Option) *Aggregator {
	a := &Aggregator{sources: sources, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CheckAllSources asks every active source for title and waits for all of
// them. A failing or panicking source yields a Match with Error set and
// never affects its siblings. There is no aggregate deadline; adapters
// bound their own I/O.
func (a *Aggregator) CheckAllSources(ctx context.Context, title string, year *int) Result {
	title = strings.TrimSpace(title)
	entries := a.sources.ActiveSources()
	if len(entries) == 0 || title == "" {
		return Result{Found: false, Results: []Match{}}
	}

	start := time.Now()
	results := make([]Match, len(entries))

	// Zero-value group: a failing source must not cancel the others.
	var g errgroup.Group
	for i, e := range entries {
		g.Go(func() error {
			results[i] = a.checkOne(ctx, e, title, year)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Results: results}
	failed := 0
	for _, m := range results {
		res.Found = res.Found || m.Found
		if m.Error != "" {
			failed++
		}
	}

	a.logger.Debug("check completed",
		slog.String("title", title),
		slog.Bool("found", res.Found),
		slog.Int("sources", len(results)),
		slog.Int("failed", failed),
		slog.Duration("took", time.Since(start)))
	if a.notify != nil {
		a.notify(EventCompleted, map[string]any{
			"title":   title,
			"year":    year,
			"found":   res.Found,
			"sources": len(results),
			"failed":  failed,
		})
	}
	return res
}

func (a *Aggregator) checkOne(ctx context.Context, e registry.Entry, title string, year *int) (m Match) {
	m = Match{SourceID: e.ID}
	defer func() {
		if p := recover(); p != nil {
			a.logger.Error("source panicked", slog.String("source", e.ID), slog.Any("panic", p))
			if m.SourceName == "" {
				m.SourceName = e.ID
			}
			m.Found, m.Item = false, nil
			m.Error = fmt.Sprintf("source panicked: %v", p)
		}
	}()
	m.SourceName = e.Adapter.Name()

	res, err := e.Adapter.CheckMovie(ctx, title, year)
	if err != nil {
		a.logger.Warn("source check failed", slog.String("source", e.ID), slog.String("error", err.Error()))
		m.Error = err.Error()
		return m
	}
	m.Found = res.Found && res.Movie != nil
	if m.Found {
		m.Item = res.Movie
	}
	return m
}
