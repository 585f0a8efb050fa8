// Package mock provides a mock STT adapter for testing without cloud credentials.
// It cycles through canned candidate answers and records every call.
package mock

import (
	"context"
	"sync"

	"ai-interview-voice-service/internal/service/stt"
)

// DefaultTranscripts are sample candidate answers returned in order.
var DefaultTranscripts = []string{
	"Hi, I'm a backend engineer with five years of experience in Go",
	"I mostly work on distributed systems and event pipelines",
	"We used Kafka for ingestion and Postgres for storage",
	"I would start by profiling the hot path and adding metrics",
	"Thank you, I don't have any more questions",
}

// Adapter implements stt.Transcriber with canned responses.
type Adapter struct {
	// TranscribeFunc overrides the canned behaviour when set.
	TranscribeFunc func(ctx context.Context, audio []byte) (string, error)

	mu          sync.Mutex
	transcripts []string
	next        int
	calls       int
	lastAudio   []byte
}

// New creates a mock adapter. With no transcripts it uses DefaultTranscripts.
func New(transcripts ...string) *Adapter {
	if len(transcripts) == 0 {
		transcripts = DefaultTranscripts
	}
	return &Adapter{transcripts: transcripts}
}

func (a *Adapter) Transcribe(ctx context.Context, audio []byte) (string, error) {
	a.mu.Lock()
	a.calls++
	a.lastAudio = audio
	fn := a.TranscribeFunc
	if fn == nil {
		text := a.transcripts[a.next%len(a.transcripts)]
		a.next++
		a.mu.Unlock()
		return text, ctx.Err()
	}
	a.mu.Unlock()
	return fn(ctx, audio)
}

// Calls returns how many times Transcribe was invoked.
func (a *Adapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// LastAudio returns the audio passed to the most recent call.
func (a *Adapter) LastAudio() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastAudio
}

var _ stt.Transcriber = (*Adapter)(nil)
