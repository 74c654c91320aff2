// Package upload ships finished recordings to an AppMap collector service.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tjfontaine/callscope/internal/appmap"
	"github.com/tjfontaine/callscope/internal/core/domain"
	"github.com/tjfontaine/callscope/internal/telemetry"
)

const defaultBaseURL = "https://app.land"

// Option configures the client.
type Option func(*Client)

// WithBaseURL sets a custom collector base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is an HTTP client for the collector's appmap intake API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new collector client. An empty token sends
// unauthenticated requests, which most collectors reject.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:      token,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UploadResult is the collector's acknowledgement of a stored appmap.
type UploadResult struct {
	ID string `json:"id"`
}

// Upload sends one recording as an AppMap document.
func (c *Client) Upload(ctx context.Context, rec *domain.Recording) (*UploadResult, error) {
	body, err := appmap.Encode(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode recording: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/appmaps", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		telemetry.RecordUpload("error")
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		telemetry.RecordUpload("error")
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		telemetry.RecordUpload("error")
		return nil, fmt.Errorf("collector error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result UploadResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		telemetry.RecordUpload("error")
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	telemetry.RecordUpload("ok")
	c.logger.Debug("uploaded recording",
		"recording_id", rec.ID,
		"remote_id", result.ID,
	)
	return &result, nil
}
