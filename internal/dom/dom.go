// Package dom holds a parsed HTML page that can change over time, with a
// mutation observer in the style of the browser API.
//
// Every read and write goes through the Document lock; observers are told
// which subtrees changed and coalesce notifications while their consumer is
// busy.
package dom

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Document is a goquery document guarded by a mutex.
type Document struct {
	mu  sync.Mutex
	doc *goquery.Document

	obsMu     sync.Mutex
	observers map[*Observer]struct{}
}

// Parse reads an HTML document from r.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return &Document{doc: doc, observers: make(map[*Observer]struct{})}, nil
}

// ParseString parses an HTML document from s.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Read runs fn with the document locked. fn must not modify the tree.
func (d *Document) Read(fn func(doc *goquery.Document)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.doc)
}

// Write runs fn with the document locked without notifying observers. It is
// meant for bookkeeping attributes that no observer cares about.
func (d *Document) Write(fn func(doc *goquery.Document)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.doc)
}

// Mutate runs fn with the document locked and then notifies observers of the
// nodes fn reports as changed. A nil result reports the whole document.
func (d *Document) Mutate(fn func(doc *goquery.Document) []*html.Node) {
	d.mu.Lock()
	changed := fn(d.doc)
	if changed == nil {
		changed = d.doc.Nodes
	}
	d.mu.Unlock()

	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	for o := range d.observers {
		o.enqueue(changed)
	}
}

// HTML renders the current document.
func (d *Document) HTML() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	for _, n := range d.doc.Nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// Observe registers a new observer. Call Disconnect when done.
func (d *Document) Observe() *Observer {
	o := &Observer{doc: d, ready: make(chan struct{}, 1)}
	d.obsMu.Lock()
	d.observers[o] = struct{}{}
	d.obsMu.Unlock()
	return o
}

// Observer receives batches of changed nodes.
type Observer struct {
	doc   *Document
	ready chan struct{}

	mu      sync.Mutex
	pending []*html.Node
}

func (o *Observer) enqueue(nodes []*html.Node) {
	o.mu.Lock()
	o.pending = append(o.pending, nodes...)
	o.mu.Unlock()
	select {
	case o.ready <- struct{}{}:
	default:
		// A wakeup is already pending; the batch grows instead.
	}
}

// Ready fires when at least one batch is pending.
func (o *Observer) Ready() <-chan struct{} {
	return o.ready
}

// Take returns and clears the pending batch.
func (o *Observer) Take() []*html.Node {
	o.mu.Lock()
	defer o.mu.Unlock()
	batch := o.pending
	o.pending = nil
	return batch
}

// Disconnect stops delivery to o.
func (o *Observer) Disconnect() {
	o.doc.obsMu.Lock()
	delete(o.doc.observers, o)
	o.doc.obsMu.Unlock()
}

// HasAttr reports whether n carries attribute key.
func HasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// SetAttr sets attribute key on n, replacing any previous value.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
