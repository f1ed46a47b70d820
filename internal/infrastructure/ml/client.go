// Package ml talks to a self-hosted inference service.
package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/ports"
)

const maxSentences = 3

type summarizeRequest struct {
	Content      string `json:"content"`
	MaxSentences int    `json:"max_sentences"`
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

// Client sends documents to an external ML service for summarization.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.Summarizer = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Summarize requests a summary for the document text. Failures wrap
// domain.ErrSummarizerUnavailable.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	var resp summarizeResponse
	if err := c.post(ctx, "/summarize", summarizeRequest{Content: text, MaxSentences: maxSentences}, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrSummarizerUnavailable, err)
	}

	summary := strings.TrimSpace(resp.Summary)
	if summary == "" {
		return "", fmt.Errorf("%w: %w", domain.ErrSummarizerUnavailable, errors.New("empty summary"))
	}
	return summary, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
