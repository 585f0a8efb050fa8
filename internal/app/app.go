package app

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ai-interview-voice-service/internal/config"
	"ai-interview-voice-service/internal/events"
	"ai-interview-voice-service/internal/guardrail"
	"ai-interview-voice-service/internal/models"
	"ai-interview-voice-service/internal/observability/logging"
	"ai-interview-voice-service/internal/observability/metrics"
	"ai-interview-voice-service/internal/service/audio"
	"ai-interview-voice-service/internal/service/pipeline"
	"ai-interview-voice-service/internal/service/relay"
	"ai-interview-voice-service/internal/service/session"
)

const shutdownNotice = "Server shutting down"

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
	Metrics     *metrics.Metrics

	Registry     *session.Registry
	Conversation *audio.Handler
	Relay        *relay.Relay
	Dialer       *relay.Dialer
	Publisher    *events.Publisher

	// baseCtx outlives individual connections; pipeline runs and relay
	// sessions derive from it.
	baseCtx context.Context
	cancel  context.CancelFunc
	closers []io.Closer
	ready   atomic.Bool
}

// New constructs the Application and all of its collaborators from cfg.
func New(cfg *config.Configuration) (*Application, error) {
	logging.Init(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})

	baseCtx, cancel := context.WithCancel(context.Background())
	a := &Application{
		Cfg:     cfg,
		Metrics: metrics.DefaultMetrics,
		baseCtx: baseCtx,
		cancel:  cancel,
	}
	a.Logger = logging.WithComponent("application").With().
		Str("service", "ai-interview-voice-service").
		Logger()

	if err := a.wire(); err != nil {
		cancel()
		a.closeAll()
		return nil, err
	}

	a.Logger.Info().
		Str("sttProvider", cfg.STT.Provider).
		Str("llmProvider", cfg.LLM.Provider).
		Str("ttsProvider", cfg.TTS.Provider).
		Bool("kafkaEnabled", cfg.Kafka.Enabled).
		Msg("AI Interview voice service application created")
	return a, nil
}

func (a *Application) wire() error {
	cfg := a.Cfg

	transcriber, closer, err := newTranscriber(a.baseCtx, cfg.STT)
	if err != nil {
		return fmt.Errorf("stt: %w", err)
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	generator, err := newGenerator(a.baseCtx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	synth, err := newSynthesizer(cfg.TTS)
	if err != nil {
		return fmt.Errorf("tts: %w", err)
	}

	a.Publisher = events.New(&events.Config{
		Enabled:        cfg.Kafka.Enabled,
		Brokers:        cfg.Kafka.Brokers,
		TopicTurn:      cfg.Kafka.TopicTurn,
		TopicGuardrail: cfg.Kafka.TopicGuardrail,
		Principal:      cfg.Kafka.Principal,
	})
	a.closers = append(a.closers, a.Publisher)

	a.Registry = session.NewRegistry(session.Options{
		MaxBufferBytes: cfg.Audio.MaxBufferBytes,
		HistorySize:    cfg.Audio.HistorySize,
		WriteTimeout:   cfg.Audio.WriteTimeout,
	}, a.Metrics)

	orchestrator := pipeline.New(transcriber, generator, synth, pipeline.Config{
		MinUtteranceBytes: cfg.Audio.MinUtteranceBytes,
		SystemPrompt:      guardrail.Instructions(nil),
	}, a.Metrics)

	a.Conversation = audio.NewHandler(a.baseCtx, a.Registry, orchestrator, a.Publisher, audio.Config{
		PipelineTimeout: cfg.Audio.PipelineTimeout,
	}, a.Metrics)

	a.Dialer, err = relay.NewDialer(cfg.Relay)
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	if cfg.Relay.APIKey == "" {
		a.Logger.Warn().Msg("OPENAI_API_KEY not set, realtime relay will be rejected upstream")
	}
	a.Relay = relay.New(a.Dialer.Endpoint(), a.Publisher, a.Metrics)

	return nil
}

// BaseContext is cancelled on Shutdown.
func (a *Application) BaseContext() context.Context {
	return a.baseCtx
}

// Ready reports whether the service accepts new sessions.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("AI Interview voice service starting")

	return nil
}

// Shutdown stops accepting sessions, closes the live ones, waits for
// in-flight pipeline runs and relay sessions up to ctx's deadline and
// releases collaborators. Conversation and Relay refuse new work before
// they wait.
func (a *Application) Shutdown(ctx context.Context) {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().Int("activeSessions", a.Registry.Count()).Msg("AI Interview voice service shutting down")
	a.ready.Store(false)
	a.Registry.Broadcast(models.NewError(shutdownNotice))
	a.Registry.CloseAll()

	done := make(chan struct{})
	go func() {
		a.Relay.Close()
		a.Conversation.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		shutdownLogger.Warn().Msg("Timed out waiting for in-flight work")
	}

	a.cancel()
	a.closeAll()
}

func (a *Application) closeAll() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to close collaborator")
		}
	}
	a.closers = nil
}
