// Package mock provides a canned llm.Generator for local runs and tests.
package mock

import (
	"context"
	"sync"

	"ai-interview-voice-service/internal/service/llm"
)

// DefaultReplies are interviewer questions returned in order.
var DefaultReplies = []string{
	"Thanks for joining. Could you walk me through your most recent project?",
	"What was the hardest technical decision you made on that project?",
	"How did you measure whether the system was performing well?",
	"Describe how you would design a service that handles real-time audio.",
	"Thank you for your time. Do you have any questions for me?",
}

// Generator implements llm.Generator.
type Generator struct {
	// GenerateFunc overrides the canned behaviour when set.
	GenerateFunc func(ctx context.Context, req llm.Request) (string, error)

	mu       sync.Mutex
	replies  []string
	next     int
	requests []llm.Request
}

// New creates a mock generator. With no replies it uses DefaultReplies.
func New(replies ...string) *Generator {
	if len(replies) == 0 {
		replies = DefaultReplies
	}
	return &Generator{replies: replies}
}

func (g *Generator) Generate(ctx context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	fn := g.GenerateFunc
	if fn == nil {
		reply := g.replies[g.next%len(g.replies)]
		g.next++
		g.mu.Unlock()
		return reply, ctx.Err()
	}
	g.mu.Unlock()
	return fn(ctx, req)
}

// Requests returns a copy of every request received.
func (g *Generator) Requests() []llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]llm.Request, len(g.requests))
	copy(out, g.requests)
	return out
}

var _ llm.Generator = (*Generator)(nil)
