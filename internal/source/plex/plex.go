// Package plex checks a Plex Media Server for a title.
package plex

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/starford/shelfcheck/internal/apperr"
	"github.com/starford/shelfcheck/internal/cache"
	"github.com/starford/shelfcheck/internal/match"
	"github.com/starford/shelfcheck/internal/source"
	"github.com/starford/shelfcheck/internal/source/apiclient"
)

const product = "shelfcheck"

var errNotConfigured = errors.New("not configured")

// Credentials is the typed credential schema.
type Credentials struct {
	ServerURL string `json:"serverUrl"`
	Token     string `json:"token"`
}

type metadata struct {
	RatingKey string `json:"ratingKey"`
	Title     string `json:"title"`
	Year      *int   `json:"year"`
	Type      string `json:"type"`
}

type container struct {
	MediaContainer struct {
		Size     int        `json:"size"`
		Metadata []metadata `json:"Metadata"`
	} `json:"MediaContainer"`
}

// Adapter implements source.Adapter for Plex.
type Adapter struct {
	client   *apiclient.Client
	searches *cache.Loader[[]metadata]

	mu    sync.RWMutex
	creds *Credentials
}

var _ source.Adapter = (*Adapter)(nil)

// New creates an unconfigured Plex adapter.
func New(opts apiclient.Options) *Adapter {
	return &Adapter{
		client:   apiclient.New("Plex", opts),
		searches: cache.NewLoader[[]metadata](opts.CacheTTL),
	}
}

func (a *Adapter) Name() string      { return "Plex" }
func (a *Adapter) Kind() source.Kind { return source.KindAPI }

func (a *Adapter) RequiredFields() []source.Field {
	return []source.Field{
		{Key: "serverUrl", Label: "Server URL", Input: source.InputURL, Required: true},
		{Key: "token", Label: "Plex Token", Input: source.InputPassword, Required: true},
	}
}

func (a *Adapter) ValidateCredentials(c source.Credentials) source.Validation {
	creds, err := source.Decode[Credentials](c)
	if err != nil {
		return source.Invalid("Invalid credentials")
	}
	return validate(creds)
}

func validate(c Credentials) source.Validation {
	return source.Check(
		source.Rules(c.ServerURL, source.Required("Server URL"), source.HTTPURL("Invalid Server URL")),
		source.Rules(strings.TrimSpace(c.Token), source.Required("Plex Token")),
	)
}

func (a *Adapter) Configure(c source.Credentials) error {
	creds, err := source.Decode[Credentials](c)
	if err != nil {
		return &apperr.ConfigError{Source: a.Name(), Errors: []string{"Invalid credentials"}}
	}
	if v := validate(creds); !v.Valid {
		return &apperr.ConfigError{Source: a.Name(), Errors: v.Errors}
	}
	creds.ServerURL = source.NormalizeURL(creds.ServerURL)
	creds.Token = strings.TrimSpace(creds.Token)

	a.mu.Lock()
	a.creds = &creds
	a.mu.Unlock()
	a.searches.Invalidate()
	return nil
}

func (a *Adapter) current() *Credentials {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.creds
}

func header(c *Credentials) http.Header {
	return http.Header{
		"X-Plex-Token":   {c.Token},
		"X-Plex-Product": {product},
	}
}

func (a *Adapter) TestConnection(ctx context.Context) source.ConnectionResult {
	c := a.current()
	if c == nil {
		return source.ConnectionResult{Success: false, Error: errNotConfigured.Error()}
	}
	if err := a.client.GetJSON(ctx, "test connection", c.ServerURL, "/library/sections", nil, header(c), nil); err != nil {
		return source.ConnectionResult{Success: false, Error: err.Error()}
	}
	return source.ConnectionResult{Success: true}
}

func (a *Adapter) CheckMovie(ctx context.Context, title string, year *int) (source.CheckResult, error) {
	c := a.current()
	if c == nil {
		return source.CheckResult{}, &apperr.ConnectionError{Source: a.Name(), Op: "search", Err: errNotConfigured}
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return source.CheckResult{}, nil
	}

	items, err := a.searches.Get(match.Normalize(title), func() ([]metadata, error) {
		var resp container
		q := url.Values{"query": {title}}
		if err := a.client.GetJSON(ctx, "search", c.ServerURL, "/search", q, header(c), &resp); err != nil {
			return nil, err
		}
		return playable(resp.MediaContainer.Metadata), nil
	})
	if err != nil {
		return source.CheckResult{}, err
	}

	best, ok := match.Best(title, year, items, func(m metadata) (string, *int) {
		return m.Title, m.Year
	})
	if !ok {
		return source.CheckResult{}, nil
	}
	return source.CheckResult{
		Found: true,
		Movie: &source.Movie{ID: best.RatingKey, Name: best.Title, Year: best.Year},
	}, nil
}

// playable keeps movies and shows; search also returns people, episodes and
// collections.
func playable(in []metadata) []metadata {
	out := in[:0:0]
	for _, m := range in {
		if m.Type == "movie" || m.Type == "show" {
			out = append(out, m)
		}
	}
	return out
}
