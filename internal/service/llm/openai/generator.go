// Package openai implements llm.Generator on OpenAI chat completions.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ai-interview-voice-service/internal/service/llm"
)

const (
	completionsPath = "/chat/completions"
	defaultModel    = "gpt-4o-mini"
	maxTokens       = 250
	temperature     = 0.8
)

// Poster is the subset of *openai.Client the generator needs.
type Poster interface {
	PostJSON(ctx context.Context, path string, payload any) ([]byte, error)
}

// Generator implements llm.Generator.
type Generator struct {
	client Poster
	model  string
}

// New creates a chat completions generator. An empty model selects the default.
func New(client Poster, model string) *Generator {
	if model == "" {
		model = defaultModel
	}
	return &Generator{client: client, model: model}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message llm.Message `json:"message"`
	} `json:"choices"`
}

func (g *Generator) Generate(ctx context.Context, req llm.Request) (string, error) {
	messages := make([]llm.Message, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, req.History...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Input})

	data, err := g.client.PostJSON(ctx, completionsPath, chatRequest{
		Model:       g.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("openai decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", llm.ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

var _ llm.Generator = (*Generator)(nil)
