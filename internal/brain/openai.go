package brain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/toorcn/checkmate/internal/logging"
	"github.com/toorcn/checkmate/internal/resilience"
)

// OpenAIProvider implements the Provider interface for OpenAI chat models
type OpenAIProvider struct {
	apiKey string
	model  string
	client *openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = "gpt-4-turbo-preview"
	}
	p := &OpenAIProvider{
		apiKey: apiKey,
		model:  model,
	}
	if apiKey != "" {
		p.client = openai.NewClient(apiKey)
	}
	return p
}

// SetBaseURL rebuilds the client against a different API base. Used by tests.
func (p *OpenAIProvider) SetBaseURL(baseURL string) {
	cfg := openai.DefaultConfig(p.apiKey)
	cfg.BaseURL = baseURL
	p.client = openai.NewClientWithConfig(cfg)
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Available() bool {
	return p.apiKey != "" && p.client != nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (Response, error) {
	if !p.Available() {
		logging.Warn("OpenAI provider not configured")
		return Response{}, fmt.Errorf("openai provider not configured")
	}

	logging.Debug("OpenAI API request starting", "model", p.model)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	var messages []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}
	if req.ForceJSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
			logging.Error("OpenAI API error", "status", apiErr.HTTPStatusCode, "message", apiErr.Message)
			return Response{}, &resilience.StatusError{Code: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		return Response{}, fmt.Errorf("request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("empty response from model %s", p.model)
	}

	raw, _ := json.Marshal(resp)

	logging.Debug("OpenAI API response parsed",
		"model", resp.Model,
		"finish_reason", resp.Choices[0].FinishReason,
		"content_length", len(resp.Choices[0].Message.Content))

	return Response{
		Content:     resp.Choices[0].Message.Content,
		Model:       resp.Model,
		RawResponse: string(raw),
	}, nil
}
