package sites

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/starford/shelfcheck/internal/page"
)

// TMDB handles themoviedb.org discover grids, search results and title
// headers.
type TMDB struct{ page.Base }

func (TMDB) Name() string { return "TMDB" }

func (TMDB) CanHandle(hostname string) bool {
	return page.Hosts{"themoviedb.org"}.Match(hostname)
}

func (TMDB) TargetSelectors() []string {
	return []string{
		".card.style_1",
		".card.v4.tight",
		"section.header .title",
	}
}

func (TMDB) ExtractTitle(el *goquery.Selection) (string, bool) {
	return page.FirstText(el, "h2 a", "h2")
}

func (TMDB) ExtractYear(el *goquery.Selection) *int {
	if t, ok := page.FirstText(el, ".release_date", ".content p"); ok {
		return page.YearIn(t)
	}
	return nil
}

func (TMDB) BadgeParent(el *goquery.Selection) *goquery.Selection {
	if img := el.Find(".image").First(); img.Length() > 0 {
		return img
	}
	return el
}
