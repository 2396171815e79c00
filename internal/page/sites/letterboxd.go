package sites

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/starford/shelfcheck/internal/page"
)

// Letterboxd handles letterboxd.com posters. Film data lives in data
// attributes rather than visible text.
type Letterboxd struct{ page.Base }

func (Letterboxd) Name() string { return "Letterboxd" }

func (Letterboxd) CanHandle(hostname string) bool {
	return page.Hosts{"letterboxd.com"}.Match(hostname)
}

func (Letterboxd) TargetSelectors() []string {
	return []string{
		"div.film-poster",
		"[data-item-name]",
	}
}

func (Letterboxd) ExtractTitle(el *goquery.Selection) (string, bool) {
	if v, ok := page.FirstAttr(el, "data-film-name"); ok {
		return v, true
	}
	if v, ok := page.FirstAttr(el, "data-item-name"); ok {
		name, _ := splitNameYear(v)
		return name, name != ""
	}
	return page.FirstAttr(el, "alt", "img")
}

func (Letterboxd) ExtractYear(el *goquery.Selection) *int {
	if v, ok := page.FirstAttr(el, "data-film-release-year"); ok {
		if y, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return &y
		}
	}
	if v, ok := page.FirstAttr(el, "data-item-name"); ok {
		_, year := splitNameYear(v)
		return year
	}
	return nil
}

func (Letterboxd) BadgeParent(el *goquery.Selection) *goquery.Selection {
	if c := el.Closest(".poster-container"); c.Length() > 0 {
		return c
	}
	return el
}
