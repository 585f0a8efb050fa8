// Package llm defines the response generator used by the conversation
// pipeline.
package llm

import (
	"context"
	"errors"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Message is one prior conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is everything a generator needs for one reply.
type Request struct {
	SystemPrompt string
	History      []Message
	Input        string
}

// Generator produces the interviewer's reply to the candidate's input.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}
