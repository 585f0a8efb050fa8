package pipeline

import (
	"sync"

	"ai-interview-voice-service/internal/service/llm"
)

// DefaultHistorySize keeps the last four exchanges.
const DefaultHistorySize = 8

// History is a bounded, concurrency-safe conversation log.
type History struct {
	mu   sync.Mutex
	max  int
	msgs []llm.Message
}

// NewHistory creates a history holding at most max messages. An odd max is
// rounded up so eviction always drops whole exchanges.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistorySize
	}
	max += max % 2
	return &History{max: max}
}

// Append records one completed exchange, evicting the oldest messages.
func (h *History) Append(userText, assistantText string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs,
		llm.Message{Role: llm.RoleUser, Content: userText},
		llm.Message{Role: llm.RoleAssistant, Content: assistantText},
	)
	if over := len(h.msgs) - h.max; over > 0 {
		h.msgs = append([]llm.Message(nil), h.msgs[over:]...)
	}
}

// Messages returns a copy of the retained messages, oldest first.
func (h *History) Messages() []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]llm.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Len returns the number of retained messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

// Reset forgets the conversation.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = nil
}
