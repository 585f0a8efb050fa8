// Package openai implements tts.Synthesizer on the OpenAI speech endpoint.
package openai

import (
	"context"
	"fmt"

	"ai-interview-voice-service/internal/service/tts"
)

const (
	speechPath   = "/audio/speech"
	ModelTTS1    = "tts-1"
	ModelTTS1HD  = "tts-1-hd"
	outputFormat = "mp3"
	speed        = 0.95
)

// Voice options.
const (
	VoiceAlloy   = "alloy"
	VoiceEcho    = "echo"
	VoiceFable   = "fable"
	VoiceOnyx    = "onyx"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)

var validVoices = map[string]bool{
	VoiceAlloy: true, VoiceEcho: true, VoiceFable: true,
	VoiceOnyx: true, VoiceNova: true, VoiceShimmer: true,
}

// Poster is the subset of *openai.Client the synthesizer needs.
type Poster interface {
	PostJSON(ctx context.Context, path string, payload any) ([]byte, error)
}

// Synthesizer implements tts.Synthesizer. Output is MP3.
type Synthesizer struct {
	client Poster
	model  string
	voice  string
}

// New creates a synthesizer. Unknown voices fall back to alloy.
func New(client Poster, model, voice string) *Synthesizer {
	if model == "" {
		model = ModelTTS1
	}
	if !validVoices[voice] {
		voice = VoiceAlloy
	}
	return &Synthesizer{client: client, model: model, voice: voice}
}

// Voice returns the configured voice.
func (s *Synthesizer) Voice() string {
	return s.voice
}

type speechRequest struct {
	Model          string  `json:"model"`
	Voice          string  `json:"voice"`
	Input          string  `json:"input"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	clean := tts.CleanText(text)
	if clean == "" {
		return nil, tts.ErrEmptyText
	}

	audio, err := s.client.PostJSON(ctx, speechPath, speechRequest{
		Model:          s.model,
		Voice:          s.voice,
		Input:          clean,
		ResponseFormat: outputFormat,
		Speed:          speed,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("openai speech: no audio returned")
	}
	return audio, nil
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
