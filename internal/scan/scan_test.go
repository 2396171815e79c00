package scan

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/starford/shelfcheck/internal/aggregator"
	"github.com/starford/shelfcheck/internal/apperr"
	"github.com/starford/shelfcheck/internal/messaging"
	"github.com/starford/shelfcheck/internal/page"
	"github.com/starford/shelfcheck/internal/page/sites"
	"github.com/starford/shelfcheck/internal/testutil"
)

type localSite struct{ page.Base }

func (localSite) Name() string              { return "local" }
func (localSite) CanHandle(h string) bool   { return h == "127.0.0.1" }
func (localSite) TargetSelectors() []string { return []string{"li"} }

func (localSite) ExtractTitle(el *goquery.Selection) (string, bool) {
	t := page.Text(el)
	return t, t != ""
}

type stubChecker struct{}

func (stubChecker) CheckAllSources(_ context.Context, title string, _ *int) aggregator.Result {
	found := title == "Inception"
	return aggregator.Result{Found: found, Results: []aggregator.Match{
		{SourceID: "plex", SourceName: "Plex", Found: found},
	}}
}

func sender() messaging.Sender {
	return messaging.NewLocal(messaging.NewHandler(stubChecker{}, testutil.Logger()))
}

func TestScanURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<ul><li>Inception</li><li>Tenet</li><li></li></ul>`))
	}))
	defer server.Close()

	s := New(page.NewRegistry(localSite{}), sender(), Options{HTTPClient: server.Client(), Logger: testutil.Logger()})
	rep, err := s.URL(context.Background(), server.URL+"/list")
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if rep.Site != "local" || rep.Host != "127.0.0.1" {
		t.Errorf("report = %+v", rep)
	}
	if rep.Stats.Scanned != 3 || rep.Stats.Queried != 2 || rep.Stats.Matched != 1 {
		t.Errorf("stats = %+v", rep.Stats)
	}
	found := rep.Found()
	if len(found) != 1 || found[0].Title != "Inception" {
		t.Errorf("found = %+v", found)
	}
}

func TestScanUnsupportedSite(t *testing.T) {
	s := New(sites.Default(), sender(), Options{Logger: testutil.Logger()})
	if _, err := s.URL(context.Background(), "https://example.com/movies"); !errors.Is(err, ErrUnsupportedSite) {
		t.Errorf("err = %v", err)
	}
	if _, err := s.URL(context.Background(), "ftp://imdb.com"); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("err = %v", err)
	}
}

func TestScanFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	s := New(page.NewRegistry(localSite{}), sender(), Options{HTTPClient: server.Client(), Logger: testutil.Logger()})
	if _, err := s.URL(context.Background(), server.URL); !errors.Is(err, apperr.ErrConnection) {
		t.Errorf("err = %v", err)
	}
}

func TestScanHTMLWithBuiltInSites(t *testing.T) {
	s := New(sites.Default(), sender(), Options{Logger: testutil.Logger()})
	markup := `<div class="film-poster" data-film-name="Inception" data-film-release-year="2010"><img alt="Inception"></div>`
	rep, err := s.HTML(context.Background(), "https://letterboxd.com/films/", markup)
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	if rep.Site != "Letterboxd" || rep.Host != "letterboxd.com" {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.Found()) != 1 {
		t.Errorf("outcomes = %+v", rep.Outcomes)
	}
}
