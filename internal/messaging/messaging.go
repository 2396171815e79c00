// Package messaging carries CHECK_MOVIE requests from page processing to the
// aggregator. Local dispatches in-process; HTTPClient talks to a running
// server's /api/messages endpoint.
package messaging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/starford/shelfcheck/internal/aggregator"
)

// TypeCheckMovie asks every active source for a title.
const TypeCheckMovie = "CHECK_MOVIE"

// Request is a message sent to the background side.
type Request struct {
	ID    string `json:"id,omitempty"`
	Type  string `json:"type"`
	Title string `json:"title"`
	Year  *int   `json:"year,omitempty"`
}

// Response answers a Request.
type Response struct {
	ID      string             `json:"id,omitempty"`
	Success bool               `json:"success"`
	Found   bool               `json:"found"`
	Results []aggregator.Match `json:"results"`
	Error   string             `json:"error,omitempty"`
}

// Sender delivers a request and waits for its response.
type Sender interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// Checker is the aggregator side of the channel.
type Checker interface {
	CheckAllSources(ctx context.Context, title string, year *int) aggregator.Result
}

// Handler answers requests using a Checker.
type Handler struct {
	checker Checker
	logger  *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(checker Checker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{checker: checker, logger: logger}
}

// Handle answers req. Unknown message types yield an unsuccessful response.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	switch req.Type {
	case TypeCheckMovie:
		res := h.checker.CheckAllSources(ctx, req.Title, req.Year)
		return Response{ID: req.ID, Success: true, Found: res.Found, Results: res.Results}
	default:
		h.logger.Warn("unknown message type", slog.String("type", req.Type), slog.String("id", req.ID))
		return Response{ID: req.ID, Success: false, Results: []aggregator.Match{}, Error: "unknown message type"}
	}
}

// Local delivers requests to a Handler in-process.
type Local struct {
	handler *Handler
}

var _ Sender = (*Local)(nil)

// NewLocal creates an in-process Sender.
func NewLocal(h *Handler) *Local {
	return &Local{handler: h}
}

// Send stamps req with an id when it has none and handles it.
func (l *Local) Send(ctx context.Context, req Request) (Response, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	return l.handler.Handle(ctx, req), nil
}

// CheckMovie builds a CHECK_MOVIE request.
func CheckMovie(title string, year *int) Request {
	return Request{Type: TypeCheckMovie, Title: title, Year: year}
}
