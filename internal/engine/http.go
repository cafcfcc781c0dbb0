package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusError is returned for non-2xx engine responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("engine returned HTTP %d: %s", e.Code, e.Body)
}

// HTTPClient calls an engine exposed over HTTP.
type HTTPClient struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPClient creates a client; timeout <= 0 defaults to two minutes.
func NewHTTPClient(url, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPClient{url: url, token: token, client: &http.Client{Timeout: timeout}}
}

type httpReply struct {
	Reply
	Error string `json:"error,omitempty"`
}

func (c *HTTPClient) Respond(ctx context.Context, req Request) (Reply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Reply{}, fmt.Errorf("marshal engine request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("create engine request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Reply{}, fmt.Errorf("engine request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Reply{}, fmt.Errorf("read engine response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Reply{}, &StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	var out httpReply
	if err := json.Unmarshal(data, &out); err != nil {
		return Reply{}, fmt.Errorf("decode engine response: %w", err)
	}
	if out.Error != "" {
		return Reply{}, fmt.Errorf("engine error: %s", out.Error)
	}
	return out.Reply, nil
}
