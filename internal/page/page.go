// Package page defines site adapters that know where titles live on a
// listing site's markup, and the registry that picks one per host.
package page

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Adapter extracts title cards from one site.
type Adapter interface {
	Name() string
	// CanHandle reports whether the adapter serves hostname.
	CanHandle(hostname string) bool
	// TargetSelectors lists CSS selectors for title cards. Sites use several
	// layouts (grid, list, detail) so more than one is common.
	TargetSelectors() []string
	// ExtractTitle returns the card's title, or false when it has none.
	ExtractTitle(el *goquery.Selection) (string, bool)
	// ExtractYear returns the release year when the card shows one.
	ExtractYear(el *goquery.Selection) *int
	// BadgeParent is where an indicator for el should be attached.
	BadgeParent(el *goquery.Selection) *goquery.Selection
	// ShouldProcessElement filters out cards such as ads.
	ShouldProcessElement(el *goquery.Selection) bool
}

// Base provides the optional Adapter methods. Embed it and override as
// needed.
type Base struct{}

func (Base) ExtractYear(*goquery.Selection) *int                  { return nil }
func (Base) BadgeParent(el *goquery.Selection) *goquery.Selection { return el }
func (Base) ShouldProcessElement(*goquery.Selection) bool         { return true }

// Hosts is a CanHandle helper matching any hostname containing one of the
// given domains.
type Hosts []string

// Match reports whether hostname contains one of h.
func (h Hosts) Match(hostname string) bool {
	hostname = strings.ToLower(hostname)
	for _, d := range h {
		if strings.Contains(hostname, d) {
			return true
		}
	}
	return false
}

// Registry resolves a host to the first registered adapter that handles it.
type Registry struct {
	mu       sync.RWMutex
	adapters []Adapter
}

// NewRegistry creates a registry holding adapters in order.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register appends a. Earlier registrations take precedence.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = append(r.adapters, a)
}

// Adapter returns the first adapter whose CanHandle accepts hostname.
func (r *Registry) Adapter(hostname string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.adapters {
		if a.CanHandle(hostname) {
			return a, true
		}
	}
	return nil, false
}

// Names lists registered adapters in precedence order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		names[i] = a.Name()
	}
	return names
}

var yearRx = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)

// Text returns the selection's text with whitespace collapsed.
func Text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// FirstText returns the collapsed text of the first selector that yields a
// non-empty value inside el.
func FirstText(el *goquery.Selection, selectors ...string) (string, bool) {
	for _, sel := range selectors {
		if t := Text(el.Find(sel).First()); t != "" {
			return t, true
		}
	}
	return "", false
}

// FirstAttr returns the first non-empty attribute value found on el itself
// or, for each selector, on its first match inside el.
func FirstAttr(el *goquery.Selection, attr string, selectors ...string) (string, bool) {
	if v := strings.TrimSpace(el.AttrOr(attr, "")); v != "" {
		return v, true
	}
	for _, sel := range selectors {
		if v := strings.TrimSpace(el.Find(sel).First().AttrOr(attr, "")); v != "" {
			return v, true
		}
	}
	return "", false
}

// YearIn returns the first plausible release year in s.
func YearIn(s string) *int {
	m := yearRx.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	y, _ := strconv.Atoi(m[1])
	return &y
}
