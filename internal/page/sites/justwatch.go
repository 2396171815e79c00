package sites

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/starford/shelfcheck/internal/page"
)

// JustWatch handles justwatch.com grids and list rows.
type JustWatch struct{ page.Base }

func (JustWatch) Name() string { return "JustWatch" }

func (JustWatch) CanHandle(hostname string) bool {
	return page.Hosts{"justwatch.com"}.Match(hostname)
}

func (JustWatch) TargetSelectors() []string {
	return []string{
		".title-list-grid__item",
		".title-list-row__row",
	}
}

func (JustWatch) ExtractTitle(el *goquery.Selection) (string, bool) {
	if h := el.Find(".title-list-row__column-header").First(); h.Length() > 0 {
		t := ownText(h, ".title-list-row__row-header-year")
		return t, t != ""
	}
	// Grid tiles only carry the title in the poster alt text.
	return page.FirstAttr(el, "alt", "img")
}

func (JustWatch) ExtractYear(el *goquery.Selection) *int {
	return page.YearIn(el.Find(".title-list-row__row-header-year").First().Text())
}

func (JustWatch) ShouldProcessElement(el *goquery.Selection) bool {
	return !el.HasClass("title-list-grid__item--ad")
}
