package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// HTTPDoer describes the HTTP client used by HTTPClient.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient sends requests to a shelfcheck server.
type HTTPClient struct {
	baseURL string
	token   string
	doer    HTTPDoer
}

var _ Sender = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the server at baseURL. token may be
// empty when the server runs without auth.
func NewHTTPClient(baseURL, token string, doer HTTPDoer) *HTTPClient {
	if doer == nil {
		doer = &http.Client{}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), token: token, doer: doer}
}

// Send posts req to /api/messages.
func (c *HTTPClient) Send(ctx context.Context, req Request) (Response, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("messaging: encode: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/messages", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("messaging: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", req.ID)
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.doer.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("messaging: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Response{}, fmt.Errorf("messaging: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("messaging: decode: %w", err)
	}
	return out, nil
}
