// Package sentiment wraps the tone-analysis API used to judge how
// emotionally charged a piece of content is.
package sentiment

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

// Scores is the per-label probability breakdown.
type Scores struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
	Mixed    float64 `json:"mixed"`
}

// Entity is a named entity found in the text.
type Entity struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// Analysis is the tone profile of a piece of content.
type Analysis struct {
	Overall            string   `json:"overall"` // positive, negative, neutral, mixed
	Scores             Scores   `json:"scores"`
	KeyPhrases         []string `json:"keyPhrases"`
	Entities           []Entity `json:"entities"`
	EmotionalIntensity float64  `json:"emotionalIntensity"` // [0,1]
	Flags              []string `json:"flags"`              // e.g. inflammatory, manipulative, factual
}

// HasFlag reports whether the analysis carries the given flag.
func (a *Analysis) HasFlag(flag string) bool {
	if a == nil {
		return false
	}
	for _, f := range a.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Client talks to the sentiment API. Thin by design: typed status errors
// out, retry left to the caller.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a sentiment client.
func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 2),
	}
}

// Available returns true if the sentiment service is configured.
func (c *Client) Available() bool {
	return c.baseURL != ""
}

type analyzeRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// Analyze returns the tone profile for the text. Language is a BCP-47
// hint and may be empty.
func (c *Client) Analyze(ctx context.Context, text, language string) (*Analysis, error) {
	if !c.Available() {
		return nil, fmt.Errorf("sentiment service not configured")
	}
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(analyzeRequest{Text: text, Language: language})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &resilience.StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var analysis Analysis
	if err := json.Unmarshal(respBody, &analysis); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	// Intensity is used in scoring arithmetic downstream; never trust the
	// vendor to keep it in range.
	if analysis.EmotionalIntensity < 0 {
		analysis.EmotionalIntensity = 0
	}
	if analysis.EmotionalIntensity > 1 {
		analysis.EmotionalIntensity = 1
	}

	return &analysis, nil
}
