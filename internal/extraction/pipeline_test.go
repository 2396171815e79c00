package extraction

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/starford/shelfcheck/internal/aggregator"
	"github.com/starford/shelfcheck/internal/dom"
	"github.com/starford/shelfcheck/internal/messaging"
	"github.com/starford/shelfcheck/internal/page"
	"github.com/starford/shelfcheck/internal/testutil"
)

type cardAdapter struct{ page.Base }

func (cardAdapter) Name() string              { return "cards" }
func (cardAdapter) CanHandle(string) bool     { return true }
func (cardAdapter) TargetSelectors() []string { return []string{".card"} }

func (cardAdapter) ExtractTitle(el *goquery.Selection) (string, bool) {
	return page.FirstText(el, ".title")
}

func (cardAdapter) ExtractYear(el *goquery.Selection) *int {
	return page.YearIn(el.AttrOr("data-year", ""))
}

func (cardAdapter) ShouldProcessElement(el *goquery.Selection) bool {
	return !el.HasClass("ad")
}

// fakeSender answers from a fixed set of available titles and counts calls.
type fakeSender struct {
	available map[string]bool
	err       error
	block     bool

	mu    sync.Mutex
	calls map[string]int
}

func newFakeSender(titles ...string) *fakeSender {
	s := &fakeSender{available: map[string]bool{}, calls: map[string]int{}}
	for _, t := range titles {
		s.available[t] = true
	}
	return s
}

func (s *fakeSender) Send(ctx context.Context, req messaging.Request) (messaging.Response, error) {
	s.mu.Lock()
	s.calls[req.Title]++
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return messaging.Response{}, ctx.Err()
	}
	if s.err != nil {
		return messaging.Response{}, s.err
	}
	found := s.available[req.Title]
	return messaging.Response{
		ID:      req.ID,
		Success: true,
		Found:   found,
		Results: []aggregator.Match{
			{SourceID: "jellyfin", SourceName: "Jellyfin", Found: found},
			{SourceID: "plex", SourceName: "Plex", Found: false},
		},
	}, nil
}

func (s *fakeSender) count(title string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[title]
}

func (s *fakeSender) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

const listing = `<html><body><div id="grid">
<div class="card" data-year="1999"><span class="title">The Matrix</span></div>
<div class="card"><span class="title">Unknown Film</span></div>
<div class="card ad"><span class="title">Sponsored</span></div>
<div class="card"><span class="title">  </span></div>
</div></body></html>`

func parse(t *testing.T, s string) *dom.Document {
	t.Helper()
	d, err := dom.ParseString(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestProcessRendersBadges(t *testing.T) {
	d := parse(t, listing)
	sender := newFakeSender("The Matrix")
	p := New(d, cardAdapter{}, sender, WithLogger(testutil.Logger()))

	if err := p.Process(context.Background()); err != nil {
		t.Fatalf("Process: %v", err)
	}

	want := Stats{Scanned: 4, Skipped: 2, Queried: 2, Matched: 1}
	if got := p.Stats(); got != want {
		t.Errorf("stats = %+v, want %+v", got, want)
	}
	if sender.count("Sponsored") != 0 {
		t.Error("ad element was queried")
	}

	out, _ := d.HTML()
	if n := strings.Count(out, BadgeClass); n != 1 {
		t.Errorf("badges = %d, want 1\n%s", n, out)
	}
	if n := strings.Count(out, Marker+`="processed"`); n != 4 {
		t.Errorf("marked elements = %d, want 4", n)
	}

	var badgeText string
	d.Read(func(doc *goquery.Document) {
		badgeText = doc.Find(".card[data-year] span." + BadgeClass).Text()
	})
	if badgeText != "Jellyfin" {
		t.Errorf("badge text = %q", badgeText)
	}

	outcomes := p.Outcomes()
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	for _, o := range outcomes {
		if o.Title == "The Matrix" && (!o.Found || o.Year == nil || *o.Year != 1999 || len(o.Sources) != 1) {
			t.Errorf("matrix outcome = %+v", o)
		}
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	d := parse(t, listing)
	sender := newFakeSender("The Matrix")
	p := New(d, cardAdapter{}, sender, WithRenderer(&CollectRenderer{}))

	for range 3 {
		if err := p.Process(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if n := sender.total(); n != 2 {
		t.Errorf("queries = %d, want 2", n)
	}
}

func TestProcessCountsFailures(t *testing.T) {
	d := parse(t, listing)
	sender := newFakeSender()
	sender.err = errors.New("channel closed")
	p := New(d, cardAdapter{}, sender, WithLogger(testutil.Logger()))

	if err := p.Process(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s := p.Stats(); s.Failed != 2 || s.Matched != 0 {
		t.Errorf("stats = %+v", s)
	}
	out, _ := d.HTML()
	if strings.Contains(out, BadgeClass) {
		t.Error("badge rendered for failed query")
	}
}

func TestRunQueriesEachElementOnce(t *testing.T) {
	d := parse(t, listing)
	sender := newFakeSender("The Matrix", "Arrival")
	renderer := &CollectRenderer{}
	p := New(d, cardAdapter{}, sender, WithRenderer(renderer), WithLogger(testutil.Logger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	testutil.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return len(renderer.Calls()) == 1
	}, "initial document not rendered")

	d.Mutate(func(doc *goquery.Document) []*html.Node {
		grid := doc.Find("#grid")
		grid.AppendHtml(`<div class="card" data-year="2016"><span class="title">Arrival</span></div>`)
		return grid.Nodes
	})
	// Unrelated mutations notify the observer again with the same element present.
	for range 3 {
		d.Mutate(func(doc *goquery.Document) []*html.Node { return nil })
	}

	testutil.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return len(renderer.Calls()) == 2
	}, "added element not rendered")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if sender.count("Arrival") != 1 || sender.count("The Matrix") != 1 {
		t.Errorf("calls = %v", sender.calls)
	}
	calls := renderer.Calls()
	if calls[1].Anchor != "Arrival" || len(calls[1].Sources) != 1 || calls[1].Sources[0] != "Jellyfin" {
		t.Errorf("second render = %+v", calls[1])
	}
}

func TestRunCancelJoinsTasks(t *testing.T) {
	d := parse(t, listing)
	sender := newFakeSender()
	sender.block = true
	p := New(d, cardAdapter{}, sender, WithLogger(testutil.Logger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	testutil.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return sender.total() == 2
	}, "tasks not started")
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not join its tasks")
	}
}

func TestProcessHonoursCancel(t *testing.T) {
	d := parse(t, listing)
	sender := newFakeSender()
	sender.block = true
	p := New(d, cardAdapter{}, sender)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Process(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v", err)
	}
}

func TestDetachedElementIsNotRendered(t *testing.T) {
	d := parse(t, `<div id="grid"><div class="card"><span class="title">The Matrix</span></div></div>`)
	release := make(chan struct{})
	sender := &gatedSender{inner: newFakeSender("The Matrix"), release: release, started: make(chan struct{})}
	renderer := &CollectRenderer{}
	p := New(d, cardAdapter{}, sender, WithRenderer(renderer))

	done := make(chan error, 1)
	go func() { done <- p.Process(context.Background()) }()

	<-sender.started
	d.Mutate(func(doc *goquery.Document) []*html.Node {
		doc.Find(".card").Remove()
		return nil
	})
	close(release)

	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if len(renderer.Calls()) != 0 {
		t.Errorf("rendered detached element: %+v", renderer.Calls())
	}
	if p.Stats().Matched != 1 {
		t.Errorf("stats = %+v", p.Stats())
	}
}

type gatedSender struct {
	inner   *fakeSender
	release chan struct{}
	once    sync.Once
	started chan struct{}
}

func (g *gatedSender) Send(ctx context.Context, req messaging.Request) (messaging.Response, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.inner.Send(ctx, req)
}
