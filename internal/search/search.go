// Package search wraps the Exa web search API used to gather evidence
// for fact-checking.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/toorcn/checkmate/internal/resilience"
)

// Result is a single search hit with its retrieved content.
type Result struct {
	URL           string  `json:"url"`
	Title         string  `json:"title"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"publishedDate"`
	Author        string  `json:"author"`
	Text          string  `json:"text"`
	Summary       string  `json:"summary"`
}

// Document is retrieved page content for a known URL.
type Document struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Client talks to an Exa-compatible search API.
//
// The client is deliberately thin: it classifies vendor failures as
// *resilience.StatusError and leaves retry and breaker decisions to the
// caller so attempts are not multiplied.
type Client struct {
	apiKey     string
	baseURL    string
	numResults int
	client     *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a search client. numResults <= 0 defaults to 8.
func NewClient(apiKey, baseURL string, numResults int) *Client {
	if baseURL == "" {
		baseURL = "https://api.exa.ai"
	}
	if numResults <= 0 {
		numResults = 8
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		numResults: numResults,
		client:     &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(250*time.Millisecond), 2),
	}
}

// Available returns true if the search API key is configured.
func (c *Client) Available() bool {
	return c.apiKey != ""
}

type searchRequest struct {
	Query      string          `json:"query"`
	NumResults int             `json:"numResults"`
	Type       string          `json:"type"`
	Contents   contentsOptions `json:"contents"`
}

type contentsOptions struct {
	Text    bool `json:"text"`
	Summary bool `json:"summary"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// Search runs a web search for the query and returns scored results with
// retrieved text.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}

	body, err := json.Marshal(searchRequest{
		Query:      query,
		NumResults: c.numResults,
		Type:       "auto",
		Contents:   contentsOptions{Text: true, Summary: true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.do(ctx, "/search", body)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return resp.Results, nil
}

type contentsRequest struct {
	URLs []string `json:"urls"`
	Text bool     `json:"text"`
}

type contentsResponse struct {
	Results []Document `json:"results"`
}

// Contents retrieves page text for the given URLs.
func (c *Client) Contents(ctx context.Context, urls []string) ([]Document, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(contentsRequest{URLs: urls, Text: true})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.do(ctx, "/contents", body)
	if err != nil {
		return nil, err
	}

	var resp contentsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return resp.Results, nil
}

func (c *Client) do(ctx context.Context, path string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &resilience.StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}
