package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Message channel.
	r.Post("/messages", h.PostMessage)
	r.Get("/check", h.Check)

	// Sources.
	r.Route("/sources", func(r chi.Router) {
		r.Get("/", h.ListSources)
		r.Get("/{id}", h.GetSource)
		r.Post("/{id}/enable", h.EnableSource)
		r.Post("/{id}/disable", h.DisableSource)
		r.Put("/{id}/credentials", h.PutCredentials)
		r.Delete("/{id}/credentials", h.DeleteCredentials)
		r.Post("/{id}/test", h.TestSource)
	})

	// Page scans.
	r.Post("/scan", h.Scan)
	r.Get("/sites", h.ListSites)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
