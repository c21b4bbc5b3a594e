// Package mailtank is a client for the Mailtank email-marketing API.
//
// Every non-2xx/3xx response (and every response whose body cannot be
// decoded) surfaces as *Error carrying the HTTP status code, so callers
// can distinguish authorization failures (401/403), validation failures
// (400) and everything else.
package mailtank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const userAgent = "rsstank"

// Error is a structured Mailtank API error.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

// IsAuth reports whether the error means the key is not authorized.
// Callers are expected to disable the offending key.
func (e *Error) IsAuth() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
}

func newError(code int, body []byte) *Error {
	e := &Error{Code: code}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		e.Message = strings.TrimSpace(string(body))
		return e
	}

	if code == http.StatusBadRequest {
		// Validation errors: the whole body is the message
		e.Message = strings.TrimSpace(string(body))
		return e
	}

	if msg, ok := decoded["message"].(string); ok {
		e.Message = msg
	}
	return e
}

// Client talks to the Mailtank API on behalf of one access key.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client for the given API base URL and key token. A nil
// httpClient falls back to http.DefaultClient.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Auth-Token", c.token)

	slog.Debug("Mailtank request", "method", method, "url", u)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mailtank request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read mailtank response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, newError(resp.StatusCode, data)
	}

	return data, nil
}

// GetTags returns all project tags matching the mask prefix, aggregated
// across the API's pages. Mailtank counts pages from one.
func (c *Client) GetTags(ctx context.Context, mask string) ([]Tag, error) {
	var tags []Tag

	page := 1
	for {
		query := url.Values{}
		if mask != "" {
			query.Set("mask", mask)
		}
		query.Set("page", strconv.Itoa(page))

		data, err := c.do(ctx, http.MethodGet, "/tags", query, nil)
		if err != nil {
			return nil, err
		}

		var decoded tagsPage
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil, newError(http.StatusOK, data)
		}

		tags = append(tags, decoded.Objects...)

		if page >= decoded.PagesTotal {
			return tags, nil
		}
		page++
	}
}

// CreateMailing creates and enqueues a mailing from the given layout,
// template context and target.
func (c *Client) CreateMailing(ctx context.Context, layoutID string, mailingContext map[string]any, target Target, attachments []Attachment) (*Mailing, error) {
	body := map[string]any{
		"layout_id": layoutID,
		"context":   mailingContext,
		"target":    target,
	}
	if len(attachments) > 0 {
		body["attachments"] = attachments
	}

	data, err := c.do(ctx, http.MethodPost, "/mailings/", nil, body)
	if err != nil {
		return nil, err
	}

	var mailing Mailing
	if err := json.Unmarshal(data, &mailing); err != nil {
		return nil, newError(http.StatusOK, data)
	}

	return &mailing, nil
}
