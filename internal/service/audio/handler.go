// Package audio drives one buffered conversation connection: it decodes
// client frames, feeds the voice-activity buffer and runs the pipeline for
// each completed utterance.
package audio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-interview-voice-service/internal/models"
	"ai-interview-voice-service/internal/observability/logging"
	"ai-interview-voice-service/internal/observability/metrics"
	"ai-interview-voice-service/internal/service/pipeline"
	"ai-interview-voice-service/internal/service/segment"
	"ai-interview-voice-service/internal/service/session"
)

const greetingMessage = "Connected to AI Interview Backend"

// Client-facing input error messages.
const (
	MsgInvalidJSON   = "Invalid JSON"
	MsgInvalidBase64 = "Invalid base64"
	MsgNoAudio       = "No audio data"
	MsgBusy          = "Already processing"
	MsgBufferLimit   = "Audio buffer limit exceeded"
)

// Processor runs one utterance through the AI pipeline.
type Processor interface {
	Process(ctx context.Context, utt segment.Utterance, hist *pipeline.History) pipeline.Result
}

// TurnPublisher receives one event per pipeline run.
type TurnPublisher interface {
	PublishTurn(ctx context.Context, key string, event any) error
}

// Reader is the read side of a client transport. *websocket.Conn satisfies it.
type Reader interface {
	ReadMessage() (messageType int, p []byte, err error)
}

// Config tunes the handler.
type Config struct {
	// PipelineTimeout bounds one pipeline run.
	PipelineTimeout time.Duration
}

// Handler serves buffered conversation sessions.
//
// Pipeline runs use the base context passed to NewHandler, not the
// connection's, so a disconnect does not abort an in-flight run; its
// result is delivered only if the session is still registered.
type Handler struct {
	registry  *session.Registry
	processor Processor
	publisher TurnPublisher
	cfg       Config
	metrics   *metrics.Metrics

	baseCtx context.Context

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewHandler creates a handler. publisher may be nil. A nil m uses
// metrics.DefaultMetrics.
func NewHandler(baseCtx context.Context, registry *session.Registry, processor Processor, publisher TurnPublisher, cfg Config, m *metrics.Metrics) *Handler {
	if cfg.PipelineTimeout <= 0 {
		cfg.PipelineTimeout = 60 * time.Second
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Handler{
		registry:  registry,
		processor: processor,
		publisher: publisher,
		cfg:       cfg,
		metrics:   m,
		baseCtx:   baseCtx,
	}
}

// Serve greets the client and reads frames until the transport fails or the
// client sends disconnect. The session is unregistered on return.
func (h *Handler) Serve(s *session.Session, r Reader) {
	logger := s.Logger()
	defer h.registry.Remove(s)

	h.deliver(s, models.Greeting{
		Type:      models.TypeGreeting,
		Status:    "ready",
		Message:   greetingMessage,
		SessionID: s.ID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})

	for {
		_, data, err := r.ReadMessage()
		if err != nil {
			logger.Info().Err(err).Msg("client transport closed")
			return
		}
		s.RecordInbound()
		if !h.HandleMessage(s, data) {
			logger.Info().Msg("client requested disconnect")
			return
		}
	}
}

// HandleMessage applies one inbound text frame. It returns false when the
// connection should be closed.
func (h *Handler) HandleMessage(s *session.Session, data []byte) bool {
	logger := s.Logger()

	msg, err := models.ParseClientMessage(data)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid JSON frame")
		h.sendError(s, MsgInvalidJSON)
		return true
	}

	switch msg.Type {
	case models.TypeAudioChunk:
		h.handleChunk(s, msg, logger)
	case models.TypeSendForProcessing, models.TypeLegacyProcessing:
		h.handleSingleShot(s, msg, logger)
	case models.TypePing:
		h.deliver(s, models.Pong{Type: models.TypePong})
	case models.TypeDisconnect:
		return false
	case models.TypeStartInterview:
		s.History.Reset()
		logger.Info().Msg("interview started")
	default:
		logger.Warn().Str("type", msg.Type).Msg("unknown message type")
		h.sendError(s, fmt.Sprintf("Unknown type: %s", msg.Type))
	}
	return true
}

func (h *Handler) handleChunk(s *session.Session, msg models.ClientMessage, logger zerolog.Logger) {
	var chunk []byte
	if msg.Data != "" {
		b, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			logger.Warn().Err(err).Msg("invalid base64 chunk")
			h.sendError(s, MsgInvalidBase64)
			return
		}
		chunk = b
	}
	h.metrics.RecordAudioReceived(len(chunk))

	res, err := s.Buffer.Feed(segment.Frame{Speaking: msg.IsSpeaking, Chunk: chunk})
	if errors.Is(err, segment.ErrBufferLimit) {
		h.metrics.RecordBufferLimitExceeded()
		logger.Warn().Int("chunkBytes", len(chunk)).Int("buffered", s.Buffer.Len()).Msg("buffer limit exceeded, chunk dropped")
		h.sendError(s, MsgBufferLimit)
	}

	switch res.Outcome {
	case segment.OutcomeFlushed:
		logger.Info().
			Str("utteranceId", res.Utterance.ID).
			Int("audioBytes", len(res.Utterance.Audio)).
			Msg("speech ended, processing utterance")
		h.startPipeline(s, res.Utterance)
	case segment.OutcomeDropped:
		h.metrics.RecordTriggerDropped()
		logger.Info().Int("buffered", res.Buffered).Msg("speech ended while processing, trigger dropped")
	}
}

func (h *Handler) handleSingleShot(s *session.Session, msg models.ClientMessage, logger zerolog.Logger) {
	if msg.Audio == "" {
		h.sendError(s, MsgNoAudio)
		return
	}
	audio, err := base64.StdEncoding.DecodeString(msg.Audio)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid base64 audio")
		h.sendError(s, MsgInvalidBase64)
		return
	}
	h.metrics.RecordAudioReceived(len(audio))

	utt, err := s.Buffer.Submit(audio)
	if err != nil {
		logger.Warn().Err(err).Msg("single-shot rejected")
		h.sendError(s, MsgBusy)
		return
	}
	logger.Info().
		Str("utteranceId", utt.ID).
		Int("audioBytes", len(audio)).
		Float64("duration", msg.Duration).
		Msg("single-shot utterance received")
	h.startPipeline(s, utt)
}

// startPipeline runs the utterance on its own goroutine. The buffer's
// processing flag is held until the result has been delivered. After Close
// the utterance is discarded and the flag released.
func (h *Handler) startPipeline(s *session.Session, utt segment.Utterance) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.Buffer.Done()
		logger := s.Logger()
		logger.Warn().Str("utteranceId", utt.ID).Msg("handler closed, utterance discarded")
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()

	h.metrics.RecordUtterance(string(utt.Mode))
	go func() {
		defer h.wg.Done()

		ctx, cancel := context.WithTimeout(h.baseCtx, h.cfg.PipelineTimeout)
		res := h.processor.Process(ctx, utt, s.History)
		cancel()

		h.deliverResult(s, res)
		s.Buffer.Done()
		h.publishTurn(utt, res)
	}()
}

// deliverResult writes to s only while it is the live session for its id,
// so a run that outlives a reconnect cannot reach the replacement.
func (h *Handler) deliverResult(s *session.Session, res pipeline.Result) {
	if res.Transcript != "" {
		if err := h.registry.DeliverTo(s, models.UserTranscript{Type: models.TypeUserTranscript, Text: res.Transcript}); err != nil {
			return
		}
	}
	if !res.Success {
		_ = h.registry.DeliverTo(s, models.NewError(res.Error))
		return
	}
	resp := models.AIResponse{Type: models.TypeAIResponse, Text: res.ResponseText}
	if res.ResponseAudio != nil {
		resp.Audio = base64.StdEncoding.EncodeToString(res.ResponseAudio)
	}
	_ = h.registry.DeliverTo(s, resp)
}

func (h *Handler) publishTurn(utt segment.Utterance, res pipeline.Result) {
	if h.publisher == nil {
		return
	}
	ev := models.TurnEvent{
		EventType:    models.EventTurnCompleted,
		SessionID:    utt.SessionID,
		UtteranceID:  utt.ID,
		Mode:         string(utt.Mode),
		Success:      res.Success,
		Transcript:   res.Transcript,
		ResponseText: res.ResponseText,
		HasAudio:     res.ResponseAudio != nil,
		AudioBytes:   len(utt.Audio),
		LatencyMs:    res.Latency.Milliseconds(),
		Timestamp:    time.Now().UnixMilli(),
	}
	if !res.Success {
		ev.EventType = models.EventTurnFailed
		ev.Error = res.Error
	}
	ctx, cancel := context.WithTimeout(h.baseCtx, 5*time.Second)
	defer cancel()
	if err := h.publisher.PublishTurn(ctx, utt.SessionID, ev); err != nil {
		logger := logging.WithUtterance(utt.SessionID, utt.ID)
		logger.Warn().Err(err).Msg("failed to publish turn event")
	}
}

// deliver writes to this connection only; a failed write ends the session.
func (h *Handler) deliver(s *session.Session, msg any) {
	if err := s.Send(msg); err != nil {
		h.metrics.RecordDeliveryFailure()
		logger := s.Logger()
		logger.Error().Err(err).Msg("write to client failed")
		h.registry.Remove(s)
	}
}

func (h *Handler) sendError(s *session.Session, text string) {
	h.deliver(s, models.NewError(text))
}

// Wait blocks until every in-flight pipeline run has finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// Close stops new pipeline runs and waits for the in-flight ones.
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.wg.Wait()
}
