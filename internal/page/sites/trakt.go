package sites

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/starford/shelfcheck/internal/page"
)

// Trakt handles trakt.tv grids. Titles carry the year in a nested span.
type Trakt struct{ page.Base }

func (Trakt) Name() string { return "Trakt" }

func (Trakt) CanHandle(hostname string) bool {
	return page.Hosts{"trakt.tv"}.Match(hostname)
}

func (Trakt) TargetSelectors() []string {
	return []string{
		`.grid-item[data-type="movie"]`,
		`.grid-item[data-type="show"]`,
	}
}

func (Trakt) ExtractTitle(el *goquery.Selection) (string, bool) {
	h := el.Find(".titles h3").First()
	if h.Length() == 0 {
		return "", false
	}
	t := ownText(h, ".year")
	return t, t != ""
}

func (Trakt) ExtractYear(el *goquery.Selection) *int {
	return page.YearIn(el.Find(".titles .year").First().Text())
}

func (Trakt) BadgeParent(el *goquery.Selection) *goquery.Selection {
	if p := el.Find(".poster").First(); p.Length() > 0 {
		return p
	}
	return el
}
