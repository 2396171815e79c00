// Package jellyfin checks a Jellyfin or Emby server for a title.
//
// Both servers expose the same Items search API authenticated with the
// X-Emby-Token header, so one adapter serves either; only the display name
// differs.
package jellyfin

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

const tokenHeader = "X-Emby-Token"

var errNotConfigured = errors.New("not configured")

// Credentials is the typed credential schema.
type Credentials struct {
	ServerURL string `json:"serverUrl"`
	APIKey    string `json:"apiKey"`
	UserID    string `json:"userId,omitempty"`
}

type item struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	ProductionYear *int   `json:"ProductionYear"`
	Type           string `json:"Type"`
}

type itemsResponse struct {
	Items []item `json:"Items"`
}

type systemInfo struct {
	ServerName string `json:"ServerName"`
	Version    string `json:"Version"`
}

// Adapter implements source.Adapter for Jellyfin and Emby.
type Adapter struct {
	name     string
	client   *apiclient.Client
	searches *cache.Loader[[]item]

	mu    sync.RWMutex
	creds *Credentials
}

var _ source.Adapter = (*Adapter)(nil)

// New creates an unconfigured adapter with the given display name.
func New(name string, opts apiclient.Options) *Adapter {
	return &Adapter{
		name:     name,
		client:   apiclient.New(name, opts),
		searches: cache.NewLoader[[]item](opts.CacheTTL),
	}
}

func (a *Adapter) Name() string      { return a.name }
func (a *Adapter) Kind() source.Kind { return source.KindAPI }

func (a *Adapter) RequiredFields() []source.Field {
	return []source.Field{
		{Key: "serverUrl", Label: "Server URL", Input: source.InputURL, Required: true},
		{Key: "apiKey", Label: "API Key", Input: source.InputPassword, Required: true},
		{Key: "userId", Label: "User ID", Input: source.InputText, Required: false},
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
		source.Rules(strings.TrimSpace(c.APIKey), source.Required("API Key")),
	)
}

func (a *Adapter) Configure(c source.Credentials) error {
	creds, err := source.Decode[Credentials](c)
	if err != nil {
		return &apperr.ConfigError{Source: a.name, Errors: []string{"Invalid credentials"}}
	}
	if v := validate(creds); !v.Valid {
		return &apperr.ConfigError{Source: a.name, Errors: v.Errors}
	}
	creds.ServerURL = source.NormalizeURL(creds.ServerURL)
	creds.APIKey = strings.TrimSpace(creds.APIKey)
	creds.UserID = strings.TrimSpace(creds.UserID)

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

func (a *Adapter) header(c *Credentials) http.Header {
	return http.Header{tokenHeader: {c.APIKey}}
}

func (a *Adapter) TestConnection(ctx context.Context) source.ConnectionResult {
	c := a.current()
	if c == nil {
		return source.ConnectionResult{Success: false, Error: errNotConfigured.Error()}
	}
	var info systemInfo
	if err := a.client.GetJSON(ctx, "test connection", c.ServerURL, "/System/Info", nil, a.header(c), &info); err != nil {
		return source.ConnectionResult{Success: false, Error: err.Error()}
	}
	return source.ConnectionResult{Success: true}
}

func (a *Adapter) CheckMovie(ctx context.Context, title string, year *int) (source.CheckResult, error) {
	c := a.current()
	if c == nil {
		return source.CheckResult{}, &apperr.ConnectionError{Source: a.name, Op: "search", Err: errNotConfigured}
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return source.CheckResult{}, nil
	}

	items, err := a.searches.Get(match.Normalize(title), func() ([]item, error) {
		return a.search(ctx, c, title)
	})
	if err != nil {
		return source.CheckResult{}, err
	}

	best, ok := match.Best(title, year, items, func(i item) (string, *int) {
		return i.Name, i.ProductionYear
	})
	if !ok {
		return source.CheckResult{}, nil
	}
	return source.CheckResult{
		Found: true,
		Movie: &source.Movie{ID: best.ID, Name: best.Name, Year: best.ProductionYear},
	}, nil
}

func (a *Adapter) search(ctx context.Context, c *Credentials, title string) ([]item, error) {
	path := "/Items"
	if c.UserID != "" {
		path = "/Users/" + url.PathEscape(c.UserID) + "/Items"
	}
	q := url.Values{
		"searchTerm":       {title},
		"IncludeItemTypes": {"Movie,Series"},
		"Recursive":        {"true"},
		"Fields":           {"ProductionYear"},
		"Limit":            {"50"},
	}
	var resp itemsResponse
	if err := a.client.GetJSON(ctx, "search", c.ServerURL, path, q, a.header(c), &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}
