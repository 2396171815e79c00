// Package extraction turns title cards on a page into availability queries
// and renders the answers back onto the page.
//
// Every element matched by the page adapter's selectors is marked with the
// Marker attribute on the pipeline goroutine before any query for it starts,
// so repeated scans and mutation notifications query it at most once.
// Queries run as tasks joined by Run or Process; their outcomes come back to
// the pipeline goroutine, which is the only place rendering happens.
package extraction

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/starford/shelfcheck/internal/aggregator"
	"github.com/starford/shelfcheck/internal/dom"
	"github.com/starford/shelfcheck/internal/messaging"
	"github.com/starford/shelfcheck/internal/page"
)

// Marker is the attribute set on every element the pipeline has seen.
const Marker = "data-shelfcheck"

const processed = "processed"

// Stats counts what the pipeline has done so far.
type Stats struct {
	Scanned int64 `json:"scanned"`
	Skipped int64 `json:"skipped"`
	Queried int64 `json:"queried"`
	Matched int64 `json:"matched"`
	Failed  int64 `json:"failed"`
}

// Outcome is the answer for one queried element.
type Outcome struct {
	Title   string             `json:"title"`
	Year    *int               `json:"year,omitempty"`
	Found   bool               `json:"found"`
	Sources []aggregator.Match `json:"sources,omitempty"`
	Error   string             `json:"error,omitempty"`
}

type target struct {
	node  *html.Node
	title string
	year  *int
}

type answer struct {
	target
	resp messaging.Response
	err  error
}

// Pipeline processes one document with one page adapter.
type Pipeline struct {
	doc      *dom.Document
	adapter  page.Adapter
	sender   messaging.Sender
	renderer Renderer
	logger   *slog.Logger

	scanned, skipped, queried, matched, failed atomic.Int64

	mu       sync.Mutex
	outcomes []Outcome
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRenderer sets the renderer. The default is BadgeRenderer.
func WithRenderer(r Renderer) Option {
	return func(p *Pipeline) { p.renderer = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a pipeline over doc.
func New(doc *dom.Document, adapter page.Adapter, sender messaging.Sender, opts ...Option) *Pipeline {
	p := &Pipeline{
		doc:      doc,
		adapter:  adapter,
		sender:   sender,
		renderer: BadgeRenderer{},
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run processes the current document and then every mutation batch until ctx
// is done. Outstanding tasks are cancelled and joined before Run returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	obs := p.doc.Observe()
	defer obs.Disconnect()

	var g errgroup.Group
	answers := make(chan answer)
	p.dispatch(ctx, &g, answers)

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return nil
		case <-obs.Ready():
			obs.Take()
			p.dispatch(ctx, &g, answers)
		case a := <-answers:
			p.apply(a)
		}
	}
}

// Process scans the document once and waits for every query it started.
func (p *Pipeline) Process(ctx context.Context) error {
	var g errgroup.Group
	answers := make(chan answer)
	for pending := p.dispatch(ctx, &g, answers); pending > 0; pending-- {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()
		case a := <-answers:
			p.apply(a)
		}
	}
	return g.Wait()
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Scanned: p.scanned.Load(),
		Skipped: p.skipped.Load(),
		Queried: p.queried.Load(),
		Matched: p.matched.Load(),
		Failed:  p.failed.Load(),
	}
}

// Outcomes returns the answers received so far, in arrival order.
func (p *Pipeline) Outcomes() []Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Outcome(nil), p.outcomes...)
}

func (p *Pipeline) dispatch(ctx context.Context, g *errgroup.Group, answers chan<- answer) int {
	targets := p.scan()
	for _, t := range targets {
		p.queried.Add(1)
		g.Go(func() error {
			resp, err := p.sender.Send(ctx, messaging.CheckMovie(t.title, t.year))
			select {
			case answers <- answer{target: t, resp: resp, err: err}:
			case <-ctx.Done():
			}
			return nil
		})
	}
	return len(targets)
}

// scan marks every unseen element and returns the ones worth querying.
func (p *Pipeline) scan() []target {
	var targets []target
	p.doc.Write(func(doc *goquery.Document) {
		for _, sel := range p.adapter.TargetSelectors() {
			doc.Find(sel).Each(func(_ int, el *goquery.Selection) {
				n := el.Get(0)
				if dom.HasAttr(n, Marker) {
					return
				}
				dom.SetAttr(n, Marker, processed)
				p.scanned.Add(1)

				if !p.adapter.ShouldProcessElement(el) {
					p.skipped.Add(1)
					return
				}
				title, ok := p.adapter.ExtractTitle(el)
				title = strings.TrimSpace(title)
				if !ok || title == "" {
					p.skipped.Add(1)
					return
				}
				targets = append(targets, target{node: n, title: title, year: p.adapter.ExtractYear(el)})
			})
		}
	})
	return targets
}

func (p *Pipeline) apply(a answer) {
	out := Outcome{Title: a.title, Year: a.year}
	switch {
	case a.err != nil:
		p.failed.Add(1)
		out.Error = a.err.Error()
		p.logger.Warn("check failed", slog.String("title", a.title), slog.String("error", out.Error))
	case !a.resp.Success:
		p.failed.Add(1)
		out.Error = a.resp.Error
		p.logger.Warn("check rejected", slog.String("title", a.title), slog.String("error", out.Error))
	default:
		out.Sources = lo.Filter(a.resp.Results, func(m aggregator.Match, _ int) bool { return m.Found })
		out.Found = len(out.Sources) > 0
	}
	p.record(out)

	if !out.Found {
		return
	}
	p.matched.Add(1)
	p.doc.Mutate(func(doc *goquery.Document) []*html.Node {
		el := doc.FindNodes(a.node)
		if el.Length() == 0 {
			// Element left the page while its query was in flight.
			return []*html.Node{}
		}
		anchor := p.adapter.BadgeParent(el)
		if anchor.Length() == 0 {
			return []*html.Node{}
		}
		p.renderer.Render(anchor, out.Sources)
		return anchor.Nodes
	})
	p.logger.Debug("title available",
		slog.String("title", a.title),
		slog.Int("sources", len(out.Sources)),
	)
}

func (p *Pipeline) record(o Outcome) {
	p.mu.Lock()
	p.outcomes = append(p.outcomes, o)
	p.mu.Unlock()
}
