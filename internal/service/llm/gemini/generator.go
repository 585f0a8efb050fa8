// Package gemini implements llm.Generator on the Google Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"ai-interview-voice-service/internal/service/llm"
)

const (
	defaultModel     = "gemini-2.5-flash"
	defaultMaxTokens = 250
	defaultTemp      = 0.8
)

// contentGenerator is the subset of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator implements llm.Generator.
type Generator struct {
	models contentGenerator
	model  string
}

// Option configures a Generator.
type Option func(*Generator)

// WithModel sets the model ID.
func WithModel(model string) Option {
	return func(g *Generator) {
		if model != "" {
			g.model = model
		}
	}
}

// New creates a Gemini generator with the given API key.
func New(ctx context.Context, apiKey string, opts ...Option) (*Generator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	g := &Generator{models: client.Models, model: defaultModel}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

func (g *Generator) Generate(ctx context.Context, req llm.Request) (string, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, convertMessages(req), buildConfig(req))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

func buildConfig(req llm.Request) *genai.GenerateContentConfig {
	temp := float32(defaultTemp)
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: defaultMaxTokens,
		Temperature:     &temp,
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	return config
}

// convertMessages maps history plus the new input onto Gemini's user/model roles.
func convertMessages(req llm.Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, m := range req.History {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return append(contents, &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: req.Input}},
	})
}

var _ llm.Generator = (*Generator)(nil)
