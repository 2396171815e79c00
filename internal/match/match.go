// Package match decides whether a listed title corresponds to a library item.
//
// Titles match when, after trimming and case folding, they are equal or one
// contains the other. Years match when either is unknown or they differ by at
// most one. Both predicates are pure and total; an empty title is contained in
// everything, so callers must reject empty titles before matching.
package match

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/cases"
)

// YearTolerance is the largest accepted distance between two known years.
const YearTolerance = 1

// Normalize trims and case folds a title.
func Normalize(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Titles reports whether a and b name the same title. It is symmetric.
func Titles(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na)
}

// Years reports whether two optional years are compatible.
func Years(a, b *int) bool {
	if a == nil || b == nil {
		return true
	}
	d := *a - *b
	if d < 0 {
		d = -d
	}
	return d <= YearTolerance
}

// Movie combines Titles and Years.
func Movie(title string, year *int, candTitle string, candYear *int) bool {
	return Titles(title, candTitle) && Years(year, candYear)
}

// Best returns the candidate that matches title/year most closely, or false
// when none pass Movie. Ties on title distance are broken by year distance,
// then by input order.
func Best[T any](title string, year *int, candidates []T, fields func(T) (string, *int)) (T, bool) {
	var (
		best      T
		found     bool
		bestDist  int
		bestYearD int
	)
	want := Normalize(title)
	for _, c := range candidates {
		name, y := fields(c)
		if !Movie(title, year, name, y) {
			continue
		}
		dist := fuzzy.LevenshteinDistance(want, Normalize(name))
		yd := yearDistance(year, y)
		if !found || dist < bestDist || (dist == bestDist && yd < bestYearD) {
			best, found, bestDist, bestYearD = c, true, dist, yd
		}
	}
	return best, found
}

func yearDistance(a, b *int) int {
	if a == nil || b == nil {
		return YearTolerance + 1
	}
	d := *a - *b
	if d < 0 {
		return -d
	}
	return d
}
