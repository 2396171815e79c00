package api

import (
	"context"

	"github.com/starford/shelfcheck/internal/apperr"
	"github.com/starford/shelfcheck/internal/messaging"
	"github.com/starford/shelfcheck/internal/registry"
	"github.com/starford/shelfcheck/internal/scan"
	"github.com/starford/shelfcheck/internal/source"
)

// Service coordinates the registry, the message handler and the scanner for
// the API layer.
type Service struct {
	reg     *registry.Registry
	msgs    *messaging.Handler
	scanner *scan.Scanner
}

// NewService creates a new API service. scanner may be nil, which disables
// page scans.
func NewService(reg *registry.Registry, msgs *messaging.Handler, scanner *scan.Scanner) *Service {
	return &Service{reg: reg, msgs: msgs, scanner: scanner}
}

// Sources lists every registered source.
func (s *Service) Sources() []registry.Status {
	return s.reg.Sources()
}

// Source returns one registered source.
func (s *Service) Source(id string) (registry.Status, error) {
	for _, st := range s.reg.Sources() {
		if st.ID == id {
			return st, nil
		}
	}
	return registry.Status{}, apperr.NotFound("source", id)
}

// Enable activates a source and returns its new status.
func (s *Service) Enable(ctx context.Context, id string) (registry.Status, error) {
	if err := s.reg.EnableSource(ctx, id); err != nil {
		return registry.Status{}, err
	}
	return s.Source(id)
}

// Disable deactivates a source and returns its new status.
func (s *Service) Disable(ctx context.Context, id string) (registry.Status, error) {
	if err := s.reg.DisableSource(ctx, id); err != nil {
		return registry.Status{}, err
	}
	return s.Source(id)
}

// SaveCredentials validates and stores credentials for a source.
func (s *Service) SaveCredentials(ctx context.Context, id string, creds source.Credentials) (registry.Status, error) {
	if err := s.reg.SaveCredentials(ctx, id, creds); err != nil {
		return registry.Status{}, err
	}
	return s.Source(id)
}

// DeleteCredentials removes stored credentials and deactivates the source.
func (s *Service) DeleteCredentials(ctx context.Context, id string) error {
	return s.reg.DeleteCredentials(ctx, id)
}

// TestSource probes a source, with creds when given.
func (s *Service) TestSource(ctx context.Context, id string, creds source.Credentials) (source.ConnectionResult, error) {
	return s.reg.TestSource(ctx, id, creds)
}

// Message answers one message-channel request.
func (s *Service) Message(ctx context.Context, req messaging.Request) messaging.Response {
	return s.msgs.Handle(ctx, req)
}

// Check asks every active source for title.
func (s *Service) Check(ctx context.Context, title string, year *int) messaging.Response {
	return s.msgs.Handle(ctx, messaging.CheckMovie(title, year))
}

// ScanURL fetches and scans a page.
func (s *Service) ScanURL(ctx context.Context, url string) (scan.Report, error) {
	if s.scanner == nil {
		return scan.Report{}, scan.ErrUnsupportedSite
	}
	return s.scanner.URL(ctx, url)
}

// ScanHTML scans supplied markup.
func (s *Service) ScanHTML(ctx context.Context, host, markup string) (scan.Report, error) {
	if s.scanner == nil {
		return scan.Report{}, scan.ErrUnsupportedSite
	}
	return s.scanner.HTML(ctx, host, markup)
}

// Sites lists the supported page adapters.
func (s *Service) Sites() []string {
	if s.scanner == nil {
		return []string{}
	}
	return s.scanner.Sites()
}
