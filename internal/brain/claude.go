package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/toorcn/checkmate/internal/logging"
	"github.com/toorcn/checkmate/internal/resilience"
)

const anthropicMessagesURL = "https://api.anthropic.com/v1/messages"

// ClaudeProvider implements the Provider interface for Anthropic's Claude
type ClaudeProvider struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewClaudeProvider creates a new Claude provider
func NewClaudeProvider(apiKey, model string) *ClaudeProvider {
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}
	return &ClaudeProvider{
		apiKey:   apiKey,
		model:    model,
		endpoint: anthropicMessagesURL,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		// Anthropic rate limits are generous but a verification can fan
		// out several prompts at once; pace them a little.
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}
}

// SetEndpoint overrides the messages endpoint. Used by tests.
func (c *ClaudeProvider) SetEndpoint(url string) {
	c.endpoint = url
}

func (c *ClaudeProvider) Name() string {
	return "claude"
}

func (c *ClaudeProvider) Available() bool {
	return c.apiKey != ""
}

func (c *ClaudeProvider) Generate(ctx context.Context, req Request) (Response, error) {
	if !c.Available() {
		logging.Warn("Claude provider not configured")
		return Response{}, fmt.Errorf("claude provider not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, err
	}

	logging.Debug("Claude API request starting", "model", c.model)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048 // Reasonable default for analysis tasks
	}

	// Build the request body
	body := map[string]interface{}{
		"model":      c.model,
		"max_tokens": maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": req.UserPrompt},
		},
	}

	if req.SystemPrompt != "" {
		body["system"] = req.SystemPrompt
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	// ForceJSON is prompt-driven for Claude; the API has no response_format.

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logging.Error("Claude API error", "status", resp.StatusCode, "body", string(respBody))
		return Response{}, &resilience.StatusError{Code: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content"`
		Model      string `json:"model"`
		StopReason string `json:"stop_reason"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		return Response{}, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.StopReason == "max_tokens" {
		logging.Warn("Claude response truncated due to max tokens",
			"model", result.Model,
			"max_tokens", maxTokens)
	}

	// Extract text content from all text blocks
	var textParts []string
	for _, block := range result.Content {
		if block.Type == "text" && block.Text != "" {
			textParts = append(textParts, block.Text)
		}
	}
	content := strings.Join(textParts, "\n\n")

	logging.Debug("Claude API response parsed",
		"stop_reason", result.StopReason,
		"content_blocks", len(result.Content),
		"content_length", len(content),
		"model", result.Model)

	return Response{
		Content:     content,
		Model:       result.Model,
		RawResponse: string(respBody),
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
