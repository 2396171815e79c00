// Package sites holds the page adapters for supported listing sites.
package sites

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/starford/shelfcheck/internal/page"
)

// Default returns a registry with every built-in site adapter.
func Default() *page.Registry {
	return page.NewRegistry(
		IMDb{},
		TMDB{},
		Letterboxd{},
		Trakt{},
		JustWatch{},
	)
}

var nameYearRx = regexp.MustCompile(`^(.+?)\s*\(((?:19|20)\d{2})\)\s*$`)

// splitNameYear splits "Inception (2010)" into its parts.
func splitNameYear(s string) (string, *int) {
	s = strings.TrimSpace(s)
	m := nameYearRx.FindStringSubmatch(s)
	if m == nil {
		return s, nil
	}
	y, _ := strconv.Atoi(m[2])
	return m[1], &y
}

// ownText returns the text of s without the text of children matching skip.
func ownText(s *goquery.Selection, skip string) string {
	c := s.Clone()
	c.Find(skip).Remove()
	return page.Text(c)
}
