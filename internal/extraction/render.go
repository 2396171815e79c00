package extraction

import (
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/starford/shelfcheck/internal/aggregator"
)

// Renderer draws an availability indicator at anchor. It is called with the
// document locked and may modify the tree.
type Renderer interface {
	Render(anchor *goquery.Selection, sources []aggregator.Match)
}

// BadgeClass is the class of the span appended by BadgeRenderer.
const BadgeClass = "shelfcheck-badge"

// BadgeRenderer appends a span listing the sources to the anchor. Rendering
// twice replaces the previous badge.
type BadgeRenderer struct{}

func (BadgeRenderer) Render(anchor *goquery.Selection, sources []aggregator.Match) {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.SourceName
	}
	label := strings.Join(names, ", ")

	anchor.ChildrenFiltered("span." + BadgeClass).Remove()
	badge := &html.Node{
		Type:     html.ElementNode,
		Data:     "span",
		DataAtom: atom.Span,
		Attr: []html.Attribute{
			{Key: "class", Val: BadgeClass},
			{Key: "title", Val: "Available in " + label},
		},
	}
	badge.AppendChild(&html.Node{Type: html.TextNode, Data: label})
	anchor.AppendNodes(badge)
}

// Rendered is one call seen by CollectRenderer.
type Rendered struct {
	Anchor  string
	Sources []string
}

// CollectRenderer records calls without touching the page.
type CollectRenderer struct {
	mu    sync.Mutex
	calls []Rendered
}

func (c *CollectRenderer) Render(anchor *goquery.Selection, sources []aggregator.Match) {
	r := Rendered{Anchor: strings.Join(strings.Fields(anchor.Text()), " ")}
	for _, s := range sources {
		r.Sources = append(r.Sources, s.SourceName)
	}
	c.mu.Lock()
	c.calls = append(c.calls, r)
	c.mu.Unlock()
}

// Calls returns the recorded calls.
func (c *CollectRenderer) Calls() []Rendered {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Rendered(nil), c.calls...)
}
