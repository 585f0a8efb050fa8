// Package relay proxies the realtime session protocol between a browser
// client and the upstream realtime service, inspecting generated text
// against the interviewer guardrails on the way out.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-interview-voice-service/internal/guardrail"
	"ai-interview-voice-service/internal/models"
	"ai-interview-voice-service/internal/observability/logging"
	"ai-interview-voice-service/internal/observability/metrics"
)

// Frame directions, also used as metric labels.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

const (
	instructionsLogLimit = 200
	deltaLogLimit        = 50
	closeWriteTimeout    = time.Second
	publishTimeout       = 5 * time.Second

	// Close frame payloads are limited to 125 bytes, two of which hold the code.
	maxCloseReason = 123
)

// ErrClosed is returned for sessions started after Close.
var ErrClosed = errors.New("relay closed")

// Conn is one side of the relay. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// controlWriter is implemented by transports that can send close frames.
type controlWriter interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// UpstreamDialer opens the upstream side of a relay session.
type UpstreamDialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// GuardrailPublisher receives guardrail violation alerts.
type GuardrailPublisher interface {
	PublishGuardrail(ctx context.Context, key string, event any) error
}

// Relay forwards frames between client and upstream. One Relay serves
// any number of concurrent sessions.
type Relay struct {
	upstream  string
	publisher GuardrailPublisher
	metrics   *metrics.Metrics

	// ctx is cancelled by Close and ends every live session.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a Relay. upstream names the remote service in logs.
// publisher may be nil.
func New(upstream string, publisher GuardrailPublisher, m *metrics.Metrics) *Relay {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		upstream:  upstream,
		publisher: publisher,
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Serve dials upstream and relays until either side closes. When the dial
// fails the client is sent a close frame carrying the reason.
func (r *Relay) Serve(ctx context.Context, sessionID string, client Conn, dialer UpstreamDialer) error {
	logger := logging.WithRelay(sessionID, r.upstream)
	if !r.track() {
		logger.Warn().Msg("Relay closed, rejecting session")
		closeWithReason(client, websocket.CloseGoingAway, "server shutting down")
		client.Close()
		return ErrClosed
	}
	defer r.wg.Done()

	ctx, cancel := r.bind(ctx)
	defer cancel()

	upstream, err := dialer.Dial(ctx)
	if err != nil {
		r.metrics.RecordRelayDialError()
		logger.Error().Err(err).Msg("Failed to connect upstream")
		closeWithReason(client, websocket.CloseNormalClosure, fmt.Sprintf("Connection failed: %v", err))
		client.Close()
		return err
	}
	logger.Info().Msg("Connected upstream")

	return r.run(ctx, sessionID, client, upstream)
}

// Run forwards frames in both directions until one direction stops. The
// first loop to exit wins: both transports are closed, which unblocks the
// other loop, and Run returns once both loops have finished. Normal
// closure by either peer is reported as nil. After Close both transports
// are closed and ErrClosed is returned.
func (r *Relay) Run(ctx context.Context, sessionID string, client, upstream Conn) error {
	if !r.track() {
		client.Close()
		upstream.Close()
		return ErrClosed
	}
	defer r.wg.Done()

	ctx, cancel := r.bind(ctx)
	defer cancel()
	return r.run(ctx, sessionID, client, upstream)
}

func (r *Relay) run(ctx context.Context, sessionID string, client, upstream Conn) error {
	logger := logging.WithRelay(sessionID, r.upstream)
	started := time.Now()

	r.metrics.RecordRelayStart()
	defer r.metrics.RecordRelayEnd()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type exit struct {
		direction string
		err       error
	}
	done := make(chan exit, 2)

	go func() {
		done <- exit{DirectionInbound, r.pump(ctx, DirectionInbound, client, upstream, func(data []byte) {
			r.inspectInbound(logger, data)
		})}
	}()
	go func() {
		done <- exit{DirectionOutbound, r.pump(ctx, DirectionOutbound, upstream, client, func(data []byte) {
			r.inspectOutbound(ctx, sessionID, logger, data)
		})}
	}()

	var first exit
	pending := 2
	select {
	case first = <-done:
		pending--
	case <-ctx.Done():
		first = exit{err: ctx.Err()}
	}
	cancel()

	if first.direction == DirectionOutbound {
		closeWithReason(client, websocket.CloseNormalClosure, "upstream closed")
	}
	client.Close()
	upstream.Close()

	for ; pending > 0; pending-- {
		<-done
	}

	err := first.err
	if isNormalClose(err) {
		err = nil
	}

	event := logger.Info()
	if err != nil {
		event = logger.Warn().Err(err)
	}
	event.
		Str("exitedFirst", first.direction).
		Dur("duration", time.Since(started)).
		Msg("Relay session ended")

	return err
}

// Wait blocks until live sessions have ended and in-flight guardrail
// alerts have been published.
func (r *Relay) Wait() {
	r.wg.Wait()
}

// Close ends every live session, rejects new ones and waits for pending
// guardrail alerts.
func (r *Relay) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}

// track registers one unit of work unless the relay is closed.
func (r *Relay) track() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.wg.Add(1)
	return true
}

// bind derives a context that is also cancelled by Close.
func (r *Relay) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(r.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// pump copies frames from src to dst verbatim. inspect runs after each
// frame has been forwarded and never alters it.
func (r *Relay) pump(ctx context.Context, direction string, src, dst Conn, inspect func([]byte)) error {
	for {
		messageType, data, err := src.ReadMessage()
		if err != nil {
			return fmt.Errorf("%s read: %w", direction, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := dst.WriteMessage(messageType, data); err != nil {
			return fmt.Errorf("%s write: %w", direction, err)
		}
		r.metrics.RecordRelayFrame(direction)

		if messageType == websocket.TextMessage {
			inspect(data)
		}
	}
}

// protocolFrame holds the fields of a realtime frame that the relay reads.
type protocolFrame struct {
	Type    string          `json:"type"`
	Session json.RawMessage `json:"session,omitempty"`
	Audio   string          `json:"audio,omitempty"`

	Delta       string       `json:"delta,omitempty"`
	Text        string       `json:"text,omitempty"`
	Transcript  string       `json:"transcript,omitempty"`
	Part        *contentPart `json:"part,omitempty"`
	ContentPart *contentPart `json:"content_part,omitempty"`

	Response *struct {
		Status string `json:"status"`
	} `json:"response,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type contentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

func (r *Relay) inspectInbound(logger zerolog.Logger, data []byte) {
	var frame protocolFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		logger.Debug().Err(err).Msg("Inbound frame is not JSON")
		return
	}

	switch frame.Type {
	case "session.update":
		var session map[string]json.RawMessage
		if err := json.Unmarshal(frame.Session, &session); err != nil {
			logger.Warn().Err(err).Msg("session.update without session object")
			return
		}
		var instructions string
		if raw, ok := session["instructions"]; ok {
			_ = json.Unmarshal(raw, &instructions)
		}
		ok, missing := guardrail.ValidateInstructions(instructions)
		logger.Info().
			Str("instructions", truncate(instructions, instructionsLogLimit)).
			Int("instructionsLength", len(instructions)).
			Strs("sessionKeys", sortedKeys(session)).
			Bool("guardrailsPresent", ok).
			Strs("missingGuardrails", missing).
			Msg("Client sent session.update")
	case "input_audio_buffer.append":
		logger.Debug().Int("audioSize", len(frame.Audio)).Msg("Client sent audio")
	case "response.create", "conversation.item.create":
		logger.Info().Str("type", frame.Type).Msg("Client sent frame")
	default:
		logger.Debug().Str("type", frame.Type).Msg("Client sent frame")
	}
}

func (r *Relay) inspectOutbound(ctx context.Context, sessionID string, logger zerolog.Logger, data []byte) {
	var frame protocolFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		logger.Debug().Err(err).Msg("Outbound frame is not JSON")
		return
	}

	switch frame.Type {
	case "session.created", "session.updated":
		var session map[string]json.RawMessage
		_ = json.Unmarshal(frame.Session, &session)
		logger.Info().Str("type", frame.Type).Strs("sessionKeys", sortedKeys(session)).Msg("Upstream session event")
	case "response.done":
		status := ""
		if frame.Response != nil {
			status = frame.Response.Status
		}
		logger.Info().Str("status", status).Msg("Upstream response done")
	case "response.text.delta":
		logger.Debug().Str("delta", truncate(frame.Delta, deltaLogLimit)).Msg("Upstream text delta")
	case "error":
		msg := ""
		if frame.Error != nil {
			msg = frame.Error.Message
		}
		logger.Error().Str("upstreamError", msg).Msg("Upstream sent error")
	}

	if text, ok := completedText(frame); ok {
		r.checkGuardrails(ctx, sessionID, frame.Type, logger, text)
	}
}

// completedText extracts the text of frames that close a generated content unit.
func completedText(frame protocolFrame) (string, bool) {
	switch frame.Type {
	case "response.content_part.done":
		part := frame.Part
		if part == nil {
			part = frame.ContentPart
		}
		if part == nil {
			return "", false
		}
		switch part.Type {
		case "text":
			return part.Text, part.Text != ""
		case "audio":
			return part.Transcript, part.Transcript != ""
		}
	case "response.text.done":
		return frame.Text, frame.Text != ""
	case "response.audio_transcript.done":
		return frame.Transcript, frame.Transcript != ""
	}
	return "", false
}

func (r *Relay) checkGuardrails(ctx context.Context, sessionID, source string, logger zerolog.Logger, text string) {
	verdict := guardrail.Validate(text)
	r.metrics.RecordGuardrail(verdict.IsValid, string(verdict.Severity))
	if verdict.IsValid {
		return
	}

	logger.Warn().
		Str("source", source).
		Str("severity", string(verdict.Severity)).
		Strs("violations", verdict.Violations).
		Str("text", truncate(text, instructionsLogLimit)).
		Msg("Guardrail violation in generated text")

	if r.publisher == nil {
		return
	}

	event := models.GuardrailEvent{
		EventType:  models.EventGuardrailViolation,
		SessionID:  sessionID,
		Source:     source,
		Severity:   string(verdict.Severity),
		Violations: verdict.Violations,
		Text:       text,
		Timestamp:  time.Now().UnixMilli(),
	}

	// Called only from a tracked session, so the counter is already
	// non-zero and Add cannot race a Close that is waiting.
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := r.publisher.PublishGuardrail(pubCtx, sessionID, event); err != nil {
			logger.Error().Err(err).Msg("Failed to publish guardrail event")
		}
	}()
}

func closeWithReason(conn Conn, code int, reason string) {
	cw, ok := conn.(controlWriter)
	if !ok {
		return
	}
	if len(reason) > maxCloseReason {
		reason = truncateBytes(reason, maxCloseReason)
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = cw.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
}

func isNormalClose(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	switch closeErr.Code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
		return true
	}
	return false
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// truncateBytes shortens s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
