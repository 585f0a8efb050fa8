// Package stt defines the interface for Speech-to-Text adapters.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when there is nothing to transcribe.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Transcriber turns one complete utterance into text.
//
// An empty transcript with a nil error means the provider heard nothing
// intelligible; callers treat it like a failure.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Func adapts a plain function to Transcriber.
type Func func(ctx context.Context, audio []byte) (string, error)

func (f Func) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return f(ctx, audio)
}

// IsWAV reports whether audio starts with a RIFF header.
func IsWAV(audio []byte) bool {
	return len(audio) >= 4 && string(audio[:4]) == "RIFF"
}
