// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration is the full service configuration.
type Configuration struct {
	Service       ServiceConfig
	Observability ObservabilityConfig
	Audio         AudioConfig
	STT           STTConfig
	LLM           LLMConfig
	TTS           TTSConfig
	Relay         RelayConfig
	Kafka         KafkaConfig
}

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Principal      string
	HTTPPort       string
	GRPCPort       string
	Env            string
	AllowedOrigins []string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// AudioConfig holds buffering and pipeline settings for the conversation path.
type AudioConfig struct {
	MinUtteranceBytes int
	MaxBufferBytes    int64
	PipelineTimeout   time.Duration
	WriteTimeout      time.Duration
	HistorySize       int
}

// STTConfig selects and configures the transcription provider.
type STTConfig struct {
	Provider      string // mock, google, whisper
	LanguageCode  string
	SampleRateHz  int
	AudioEncoding string
	OpenAIAPIKey  string
}

// LLMConfig selects and configures the response generator.
type LLMConfig struct {
	Provider     string // mock, gemini, openai
	Model        string
	GeminiAPIKey string
	OpenAIAPIKey string
}

// TTSConfig selects and configures speech synthesis.
type TTSConfig struct {
	Provider     string // mock, openai, none
	Model        string
	Voice        string
	OpenAIAPIKey string
}

// RelayConfig configures the upstream realtime session service.
type RelayConfig struct {
	UpstreamURL      string
	Model            string
	APIKey           string
	HandshakeTimeout time.Duration
}

// KafkaConfig configures the event publisher.
type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	TopicTurn      string
	TopicGuardrail string
	Principal      string
}

// Load reads the configuration from the environment, falling back to
// defaults for unset or unparsable values.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-interview-voice")
	openAIKey := os.Getenv("OPENAI_API_KEY")

	return &Configuration{
		Service: ServiceConfig{
			Principal:      principal,
			HTTPPort:       envOrDefault("HTTP_PORT", "8001"),
			GRPCPort:       envOrDefault("GRPC_PORT", "50051"),
			Env:            envOrDefault("ENV", "prod"),
			AllowedOrigins: envOrDefaultList("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:3001"}),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
		Audio: AudioConfig{
			MinUtteranceBytes: envOrDefaultInt("AUDIO_MIN_UTTERANCE_BYTES", 100),
			MaxBufferBytes:    envOrDefaultInt64("AUDIO_MAX_BUFFER_BYTES", 10*1024*1024),
			PipelineTimeout:   envOrDefaultDuration("AUDIO_PIPELINE_TIMEOUT", 60*time.Second),
			WriteTimeout:      envOrDefaultDuration("AUDIO_WRITE_TIMEOUT", 10*time.Second),
			HistorySize:       envOrDefaultInt("AUDIO_HISTORY_SIZE", 8),
		},
		STT: STTConfig{
			Provider:      envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:  envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:  envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			AudioEncoding: envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			OpenAIAPIKey:  openAIKey,
		},
		LLM: LLMConfig{
			Provider:     envOrDefault("LLM_PROVIDER", "mock"),
			Model:        os.Getenv("LLM_MODEL"),
			GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
			OpenAIAPIKey: openAIKey,
		},
		TTS: TTSConfig{
			Provider:     envOrDefault("TTS_PROVIDER", "mock"),
			Model:        envOrDefault("TTS_MODEL", "tts-1"),
			Voice:        envOrDefault("TTS_VOICE", "alloy"),
			OpenAIAPIKey: openAIKey,
		},
		Relay: RelayConfig{
			UpstreamURL:      envOrDefault("RELAY_UPSTREAM_URL", "wss://api.openai.com/v1/realtime"),
			Model:            envOrDefault("RELAY_MODEL", "gpt-4o-realtime-preview"),
			APIKey:           openAIKey,
			HandshakeTimeout: envOrDefaultDuration("RELAY_HANDSHAKE_TIMEOUT", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:        envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:        envOrDefaultList("KAFKA_BROKERS", nil),
			TopicTurn:      envOrDefault("KAFKA_TOPIC_TURN", "interview.conversation.turn"),
			TopicGuardrail: envOrDefault("KAFKA_TOPIC_GUARDRAIL", "interview.guardrail.violation"),
			Principal:      envOrDefault("KAFKA_PRINCIPAL", principal),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
