// Package mock provides a tts.Synthesizer that returns silence.
package mock

import (
	"context"
	"sync"

	"ai-interview-voice-service/internal/service/tts"
)

// Synthesizer implements tts.Synthesizer for testing.
type Synthesizer struct {
	// SynthesizeFunc overrides the default silent output when set.
	SynthesizeFunc func(ctx context.Context, text string) ([]byte, error)

	mu    sync.Mutex
	texts []string
}

func New() *Synthesizer {
	return &Synthesizer{}
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	fn := s.SynthesizeFunc
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	clean := tts.CleanText(text)
	if clean == "" {
		return nil, tts.ErrEmptyText
	}
	// ~20ms of 24kHz PCM16 per character
	return make([]byte, len(clean)*960), ctx.Err()
}

// Texts returns every text passed to Synthesize.
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
