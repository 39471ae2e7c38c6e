package render

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// readerResponse is the parsed reader API response.
type readerResponse struct {
	Code int        `json:"code"`
	Data readerData `json:"data"`
}

type readerData struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Option configures the HTTP renderer.
type Option func(*httpRenderer)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(r *httpRenderer) {
		r.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *httpRenderer) {
		r.http = hc
	}
}

type httpRenderer struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a renderer backed by a reader-style rendering API.
func NewClient(apiKey string, opts ...Option) Renderer {
	r := &httpRenderer{
		apiKey:  apiKey,
		baseURL: "https://r.jina.ai",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *httpRenderer) Render(ctx context.Context, targetURL string) (*Result, error) {
	reqURL := fmt.Sprintf("%s/%s", r.baseURL, targetURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "render: create request")
	}

	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Return-Format", "markdown")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "render: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return nil, eris.Wrap(err, "render: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("render: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var parsed readerResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "render: unmarshal response")
	}

	return &Result{
		Title:   parsed.Data.Title,
		Content: parsed.Data.Content,
	}, nil
}
