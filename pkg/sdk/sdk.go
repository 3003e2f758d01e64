// Package sdk is a Go client for the chatbot API.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is returned when the backend answers with a non-2xx status
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[BACKEND]: backend '%s %s' failed: %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
}

// IsNotFound reports whether err is an APIError with status 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client wraps calls to the chatbot backend
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the backend at baseURL (e.g. http://localhost:8000)
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Chat sends a message, continuing sessionID when it is not empty
func (c *Client) Chat(ctx context.Context, sessionID, message string) (*ChatResponse, error) {
	req := ChatRequest{SessionID: sessionID, Message: message}

	var out ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/chat", req, &out); err != nil {
		return nil, err
	}

	if out.SessionID == "" {
		return nil, fmt.Errorf("no session id returned")
	}

	return &out, nil
}

// GetSession returns a session with its transcript
func (c *Client) GetSession(ctx context.Context, sessionID string) (*SessionResponse, error) {
	var out SessionResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession removes a session
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(sessionID), nil, nil)
}

// ListSessions returns every live session id
func (c *Client) ListSessions(ctx context.Context) (*ListSessionsResponse, error) {
	var out ListSessionsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/sessions", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// doJSON is a helper to perform JSON requests to the backend
func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any) error {
	// Create request body if input is provided
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(b)
	}

	// Create the request
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	// Perform the request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// On error, surface the backend's detail message when there is one
		b, _ := io.ReadAll(resp.Body)

		detail := strings.TrimSpace(string(b))
		var errResp ErrorResponse
		if json.Unmarshal(b, &errResp) == nil && errResp.Detail != "" {
			detail = errResp.Detail
		}

		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Detail: detail}
	}

	// If no output expected, return early
	if out == nil {
		return nil
	}

	// Decode the response body into the output struct
	return json.NewDecoder(resp.Body).Decode(out)
}
