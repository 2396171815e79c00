package api

import (
	"github.com/starford/shelfcheck/internal/aggregator"
	"github.com/starford/shelfcheck/internal/registry"
	"github.com/starford/shelfcheck/internal/scan"
	"github.com/starford/shelfcheck/internal/source"
)

// MessageRequest is the request body for POST /messages.
type MessageRequest struct {
	ID    string `json:"id,omitempty" example:"5f0c4b1e-8d7a-4c0e-9a55-7b4b2d1c9e10"`
	Type  string `json:"type" example:"CHECK_MOVIE" validate:"required"`
	Title string `json:"title" example:"Inception" validate:"required"`
	Year  *int   `json:"year,omitempty" example:"2010"`
}

// MessageResponse answers a message.
type MessageResponse struct {
	ID      string             `json:"id,omitempty"`
	Success bool               `json:"success" validate:"required"`
	Found   bool               `json:"found" validate:"required"`
	Results []aggregator.Match `json:"results" validate:"required"`
	Error   string             `json:"error,omitempty" example:"unknown message type"`
}

// SourceStatus describes a registered source (aliased from the registry).
type SourceStatus = registry.Status

// SourceListResponse wraps the source listing.
type SourceListResponse struct {
	Sources []SourceStatus `json:"sources" validate:"required"`
}

// CredentialsRequest is the request body for saving or testing credentials.
type CredentialsRequest struct {
	Credentials source.Credentials `json:"credentials" validate:"required"`
}

// TestResponse is the outcome of a connection test (aliased from source).
type TestResponse = source.ConnectionResult

// ScanRequest is the request body for POST /scan. Either URL or HTML with
// Host must be set.
type ScanRequest struct {
	URL  string `json:"url,omitempty" example:"https://www.imdb.com/chart/top/"`
	HTML string `json:"html,omitempty"`
	Host string `json:"host,omitempty" example:"www.imdb.com"`
}

// ScanResponse is the scan report (aliased from the scanner).
type ScanResponse = scan.Report

// SiteListResponse lists supported page adapters.
type SiteListResponse struct {
	Sites []string `json:"sites" example:"IMDb,TMDB" validate:"required"`
}
