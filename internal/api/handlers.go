package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/starford/shelfcheck/internal/messaging"
	"github.com/starford/shelfcheck/internal/source"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// PostMessage handles POST /api/messages.
//
//	@Summary		Send a message to the background side
//	@Tags			messages
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MessageRequest	true	"Message"
//	@Success		200		{object}	MessageResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/messages [post]
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req messaging.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.ID == "" {
		req.ID = r.Header.Get("X-Request-Id")
	}
	if req.ID == "" {
		req.ID = middleware.GetReqID(r.Context())
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	writeJSON(w, http.StatusOK, h.svc.Message(r.Context(), req))
}

// Check handles GET /api/check.
//
//	@Summary		Check every active source for a title
//	@Tags			check
//	@Produce		json
//	@Param			title	query		string	true	"Title"
//	@Param			year	query		int		false	"Release year"
//	@Success		200		{object}	MessageResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/check [get]
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	title := strings.TrimSpace(q.Get("title"))
	if title == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'title' is required"))
		return
	}
	var year *int
	if raw := q.Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("year must be a number"))
			return
		}
		year = &y
	}
	writeJSON(w, http.StatusOK, h.svc.Check(r.Context(), title, year))
}

// ListSources handles GET /api/sources.
//
//	@Summary		List registered sources
//	@Tags			sources
//	@Produce		json
//	@Success		200	{object}	SourceListResponse
//	@Security		BearerAuth
//	@Router			/sources [get]
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SourceListResponse{Sources: h.svc.Sources()})
}

// GetSource handles GET /api/sources/{id}.
//
//	@Summary		Get a registered source
//	@Tags			sources
//	@Produce		json
//	@Param			id	path		string	true	"Source id"
//	@Success		200	{object}	SourceStatus
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources/{id} [get]
func (h *Handler) GetSource(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Source(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get source", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// EnableSource handles POST /api/sources/{id}/enable.
//
//	@Summary		Enable a source using its stored credentials
//	@Tags			sources
//	@Produce		json
//	@Param			id	path		string	true	"Source id"
//	@Success		200	{object}	SourceStatus
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources/{id}/enable [post]
func (h *Handler) EnableSource(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Enable(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "enable source", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// DisableSource handles POST /api/sources/{id}/disable.
//
//	@Summary		Disable a source
//	@Tags			sources
//	@Produce		json
//	@Param			id	path		string	true	"Source id"
//	@Success		200	{object}	SourceStatus
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources/{id}/disable [post]
func (h *Handler) DisableSource(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Disable(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "disable source", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// PutCredentials handles PUT /api/sources/{id}/credentials.
//
//	@Summary		Validate and store credentials for a source
//	@Tags			sources
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Source id"
//	@Param			body	body		CredentialsRequest	true	"Credentials"
//	@Success		200		{object}	SourceStatus
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources/{id}/credentials [put]
func (h *Handler) PutCredentials(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r, true)
	if !ok {
		return
	}
	st, err := h.svc.SaveCredentials(r.Context(), chi.URLParam(r, "id"), creds)
	if err != nil {
		writeError(w, "save credentials", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// DeleteCredentials handles DELETE /api/sources/{id}/credentials.
//
//	@Summary		Delete stored credentials and disable the source
//	@Tags			sources
//	@Param			id	path	string	true	"Source id"
//	@Success		204	"Credentials deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources/{id}/credentials [delete]
func (h *Handler) DeleteCredentials(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCredentials(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete credentials", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TestSource handles POST /api/sources/{id}/test.
//
//	@Summary		Test a source connection
//	@Description	Without a body the configured adapter is probed; with credentials a fresh adapter is.
//	@Tags			sources
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Source id"
//	@Param			body	body		CredentialsRequest	false	"Unsaved credentials"
//	@Success		200		{object}	TestResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources/{id}/test [post]
func (h *Handler) TestSource(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r, false)
	if !ok {
		return
	}
	res, err := h.svc.TestSource(r.Context(), chi.URLParam(r, "id"), creds)
	if err != nil {
		writeError(w, "test source", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Scan handles POST /api/scan.
//
//	@Summary		Scan a listing page for titles in the library
//	@Tags			scan
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ScanRequest	true	"Page URL, or HTML and host"
//	@Success		200		{object}	ScanResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/scan [post]
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	var (
		rep ScanResponse
		err error
	)
	switch {
	case req.URL != "":
		rep, err = h.svc.ScanURL(r.Context(), req.URL)
	case req.HTML != "" && req.Host != "":
		rep, err = h.svc.ScanHTML(r.Context(), req.Host, req.HTML)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("url, or html and host, are required"))
		return
	}
	if err != nil {
		writeError(w, "scan", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ListSites handles GET /api/sites.
//
//	@Summary		List supported listing sites
//	@Tags			scan
//	@Produce		json
//	@Success		200	{object}	SiteListResponse
//	@Security		BearerAuth
//	@Router			/sites [get]
func (h *Handler) ListSites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SiteListResponse{Sites: h.svc.Sites()})
}

// decodeCredentials reads a CredentialsRequest. An empty body is accepted
// when required is false and yields nil credentials.
func decodeCredentials(w http.ResponseWriter, r *http.Request, required bool) (source.Credentials, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req CredentialsRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	switch {
	case errors.Is(err, io.EOF) && !required:
		return nil, true
	case err != nil:
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return nil, false
	case required && req.Credentials == nil:
		writeJSON(w, http.StatusBadRequest, errorBody("credentials are required"))
		return nil, false
	}
	return req.Credentials, true
}
