package app

import (
	"context"
	"fmt"
	"io"

	"ai-interview-voice-service/internal/config"
	"ai-interview-voice-service/internal/openai"
	"ai-interview-voice-service/internal/service/llm"
	"ai-interview-voice-service/internal/service/llm/gemini"
	llmmock "ai-interview-voice-service/internal/service/llm/mock"
	llmopenai "ai-interview-voice-service/internal/service/llm/openai"
	"ai-interview-voice-service/internal/service/stt"
	"ai-interview-voice-service/internal/service/stt/google"
	sttmock "ai-interview-voice-service/internal/service/stt/mock"
	"ai-interview-voice-service/internal/service/stt/whisper"
	"ai-interview-voice-service/internal/service/tts"
	ttsmock "ai-interview-voice-service/internal/service/tts/mock"
	ttsopenai "ai-interview-voice-service/internal/service/tts/openai"
)

// Provider names accepted in configuration.
const (
	ProviderMock    = "mock"
	ProviderGoogle  = "google"
	ProviderWhisper = "whisper"
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
	ProviderNone    = "none"
)

// newTranscriber selects the speech-to-text collaborator. The returned
// closer is nil when the provider holds no resources.
func newTranscriber(ctx context.Context, cfg config.STTConfig) (stt.Transcriber, io.Closer, error) {
	switch cfg.Provider {
	case ProviderMock, "":
		return sttmock.New(), nil, nil
	case ProviderGoogle:
		a, err := google.New(ctx, google.Config{
			LanguageCode:  cfg.LanguageCode,
			SampleRateHz:  int32(cfg.SampleRateHz),
			AudioEncoding: cfg.AudioEncoding,
			Punctuation:   true,
		})
		if err != nil {
			return nil, nil, err
		}
		return a, a, nil
	case ProviderWhisper:
		client, err := openai.New(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, nil, fmt.Errorf("whisper: %w", err)
		}
		return whisper.New(client, cfg.LanguageCode), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
	}
}

// newGenerator selects the response generator.
func newGenerator(ctx context.Context, cfg config.LLMConfig) (llm.Generator, error) {
	switch cfg.Provider {
	case ProviderMock, "":
		return llmmock.New(), nil
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini: GEMINI_API_KEY is not set")
		}
		return gemini.New(ctx, cfg.GeminiAPIKey, gemini.WithModel(cfg.Model))
	case ProviderOpenAI:
		client, err := openai.New(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("openai chat: %w", err)
		}
		return llmopenai.New(client, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// newSynthesizer selects speech synthesis. "none" yields a nil
// Synthesizer and text-only replies.
func newSynthesizer(cfg config.TTSConfig) (tts.Synthesizer, error) {
	switch cfg.Provider {
	case ProviderNone:
		return nil, nil
	case ProviderMock, "":
		return ttsmock.New(), nil
	case ProviderOpenAI:
		client, err := openai.New(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("openai tts: %w", err)
		}
		return ttsopenai.New(client, cfg.Model, cfg.Voice), nil
	default:
		return nil, fmt.Errorf("unknown TTS provider %q", cfg.Provider)
	}
}
