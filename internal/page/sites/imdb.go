package sites

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/starford/shelfcheck/internal/page"
)

// rankPrefix matches the "1. " numbering on chart and list pages.
var rankPrefix = regexp.MustCompile(`^\d+\.\s+`)

const heroSelector = `[data-testid="hero__pageTitle"]`

// IMDb handles imdb.com search results, charts, lists and title pages.
type IMDb struct{ page.Base }

func (IMDb) Name() string { return "IMDb" }

func (IMDb) CanHandle(hostname string) bool {
	return page.Hosts{"imdb.com"}.Match(hostname)
}

func (IMDb) TargetSelectors() []string {
	return []string{
		".ipc-metadata-list-summary-item",
		".ipc-poster-card",
		heroSelector,
	}
}

func (IMDb) ExtractTitle(el *goquery.Selection) (string, bool) {
	t, ok := page.FirstText(el, ".ipc-title__text", ".ipc-poster-card__title", ".hero__primary-text")
	if !ok {
		if t = page.Text(el); t == "" {
			return "", false
		}
	}
	t = rankPrefix.ReplaceAllString(t, "")
	return t, t != ""
}

func (IMDb) ExtractYear(el *goquery.Selection) *int {
	if t, ok := page.FirstText(el, ".cli-title-metadata-item", ".dli-title-metadata-item"); ok {
		return page.YearIn(t)
	}
	// Title pages keep the year in a sibling list next to the heading.
	if el.Is(heroSelector) {
		if t, ok := page.FirstText(el.Parent(), `a[href*="releaseinfo"]`); ok {
			return page.YearIn(t)
		}
	}
	return nil
}

func (IMDb) BadgeParent(el *goquery.Selection) *goquery.Selection {
	if t := el.Find(".ipc-title").First(); t.Length() > 0 {
		return t
	}
	return el
}

func (IMDb) ShouldProcessElement(el *goquery.Selection) bool {
	return el.Closest(`[data-testid*="sponsored"], .ipc-sponsored`).Length() == 0
}
