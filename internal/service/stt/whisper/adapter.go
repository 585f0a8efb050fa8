// Package whisper transcribes utterances with the OpenAI Whisper API.
package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ai-interview-voice-service/internal/openai"
	"ai-interview-voice-service/internal/service/stt"
)

const (
	transcriptionsPath = "/audio/transcriptions"
	defaultModel       = "whisper-1"
)

// Poster is the subset of *openai.Client the adapter needs.
type Poster interface {
	PostMultipart(ctx context.Context, path string, fields map[string]string, file openai.FormFile) ([]byte, error)
}

// Adapter implements stt.Transcriber.
type Adapter struct {
	client   Poster
	model    string
	language string
}

// New creates a Whisper adapter. language is an ISO-639-1 code.
func New(client Poster, language string) *Adapter {
	if language == "" {
		language = "en"
	}
	// Whisper wants "en", not "en-US".
	if i := strings.IndexByte(language, '-'); i > 0 {
		language = language[:i]
	}
	return &Adapter{client: client, model: defaultModel, language: language}
}

func (a *Adapter) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", stt.ErrEmptyAudio
	}

	filename := "audio.mp3"
	if stt.IsWAV(audio) {
		filename = "audio.wav"
	}

	data, err := a.client.PostMultipart(ctx, transcriptionsPath, map[string]string{
		"model":       a.model,
		"language":    a.language,
		"temperature": "0",
	}, openai.FormFile{Field: "file", Filename: filename, Data: audio})
	if err != nil {
		return "", fmt.Errorf("whisper transcribe: %w", err)
	}

	var resp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("whisper decode response: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

var _ stt.Transcriber = (*Adapter)(nil)
