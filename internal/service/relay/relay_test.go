package relay

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"ai-interview-voice-service/internal/config"
	"ai-interview-voice-service/internal/models"
	"ai-interview-voice-service/internal/observability/metrics"
)

type frame struct {
	messageType int
	data        []byte
}

type fakeConn struct {
	inbound chan frame
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	written []frame
	control []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan frame, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.inbound:
		return f.messageType, f.data, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, frame{messageType, append([]byte(nil), data...)})
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.control = append([]byte(nil), data...)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) frames() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frame(nil), c.written...)
}

func (c *fakeConn) closeFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.control
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.GuardrailEvent
}

func (p *fakePublisher) PublishGuardrail(ctx context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.(models.GuardrailEvent))
	return nil
}

func (p *fakePublisher) published() []models.GuardrailEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.GuardrailEvent(nil), p.events...)
}

type fakeDialer struct {
	conn Conn
	err  error
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	return d.conn, d.err
}

func newTestRelay(pub GuardrailPublisher) *Relay {
	return New("test-upstream", pub, metrics.NewMetrics(prometheus.NewRegistry()))
}

func runAsync(r *Relay, client, upstream Conn) <-chan error {
	errc := make(chan error, 1)
	go func() {
		errc <- r.Run(context.Background(), "session-1", client, upstream)
	}()
	return errc
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRun_ForwardsFramesVerbatim(t *testing.T) {
	client, upstream := newFakeConn(), newFakeConn()
	r := newTestRelay(nil)
	errc := runAsync(r, client, upstream)

	inbound := []byte(`{"type":"input_audio_buffer.append","audio":"AAAA"}`)
	binary := []byte{0x00, 0x01, 0x02}
	outbound := []byte(`{"type":"response.text.delta","delta":"Hello"}`)

	client.inbound <- frame{websocket.TextMessage, inbound}
	client.inbound <- frame{websocket.BinaryMessage, binary}
	upstream.inbound <- frame{websocket.TextMessage, outbound}

	waitFor(t, func() bool { return len(upstream.frames()) == 2 && len(client.frames()) == 1 })

	up := upstream.frames()
	if up[0].messageType != websocket.TextMessage || string(up[0].data) != string(inbound) {
		t.Errorf("expected inbound text frame forwarded unchanged, got %d %q", up[0].messageType, up[0].data)
	}
	if up[1].messageType != websocket.BinaryMessage || string(up[1].data) != string(binary) {
		t.Errorf("expected binary frame forwarded unchanged, got %d %v", up[1].messageType, up[1].data)
	}
	down := client.frames()
	if string(down[0].data) != string(outbound) {
		t.Errorf("expected outbound frame forwarded unchanged, got %q", down[0].data)
	}

	client.Close()
	select {
	case err := <-errc:
		if err == nil {
			t.Error("expected read error after abrupt client close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after client close")
	}
}

func TestRun_ClientCloseReleasesUpstream(t *testing.T) {
	client, upstream := newFakeConn(), newFakeConn()
	errc := runAsync(newTestRelay(nil), client, upstream)

	client.Close()

	select {
	case <-errc:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after client close")
	}
	if !upstream.isClosed() {
		t.Error("expected upstream to be closed")
	}
	if client.closeFrame() != nil {
		t.Error("expected no close frame when the client left first")
	}
}

func TestRun_UpstreamCloseClosesClientWithFrame(t *testing.T) {
	client, upstream := newFakeConn(), newFakeConn()
	errc := runAsync(newTestRelay(nil), client, upstream)

	upstream.Close()

	select {
	case <-errc:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after upstream close")
	}
	if !client.isClosed() {
		t.Error("expected client to be closed")
	}
	if client.closeFrame() == nil {
		t.Error("expected a close frame sent to the client")
	}
}

func TestRun_ContextCancelStopsBothLoops(t *testing.T) {
	client, upstream := newFakeConn(), newFakeConn()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- newTestRelay(nil).Run(ctx, "session-1", client, upstream)
	}()

	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("expected nil error on cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !client.isClosed() || !upstream.isClosed() {
		t.Error("expected both transports closed")
	}
}

func TestRun_NormalClosureReportsNil(t *testing.T) {
	client := &closingConn{fakeConn: newFakeConn(), err: &websocket.CloseError{Code: websocket.CloseNormalClosure}}
	upstream := newFakeConn()

	err := newTestRelay(nil).Run(context.Background(), "session-1", client, upstream)
	if err != nil {
		t.Errorf("expected nil on normal closure, got %v", err)
	}
	if !upstream.isClosed() {
		t.Error("expected upstream closed")
	}
}

// closingConn fails its first read with err.
type closingConn struct {
	*fakeConn
	err error
}

func (c *closingConn) ReadMessage() (int, []byte, error) {
	return 0, nil, c.err
}

func TestRun_GuardrailViolationPublished(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		source  string
		publish bool
	}{
		{
			name:    "content part text",
			frame:   `{"type":"response.content_part.done","part":{"type":"text","text":"Hola! What is your age?"}}`,
			source:  "response.content_part.done",
			publish: true,
		},
		{
			name:    "audio transcript",
			frame:   `{"type":"response.audio_transcript.done","transcript":"Are you married? Do you have kids?"}`,
			source:  "response.audio_transcript.done",
			publish: true,
		},
		{
			name:    "clean text",
			frame:   `{"type":"response.text.done","text":"Can you describe a challenging project you worked on?"}`,
			publish: false,
		},
		{
			name:    "delta not inspected",
			frame:   `{"type":"response.text.delta","delta":"Hola"}`,
			publish: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, upstream := newFakeConn(), newFakeConn()
			pub := &fakePublisher{}
			r := newTestRelay(pub)
			errc := runAsync(r, client, upstream)

			upstream.inbound <- frame{websocket.TextMessage, []byte(tt.frame)}
			waitFor(t, func() bool { return len(client.frames()) == 1 })

			client.Close()
			<-errc
			r.Wait()

			if got := string(client.frames()[0].data); got != tt.frame {
				t.Errorf("expected frame forwarded unchanged, got %q", got)
			}

			events := pub.published()
			if !tt.publish {
				if len(events) != 0 {
					t.Errorf("expected no guardrail events, got %d", len(events))
				}
				return
			}
			if len(events) != 1 {
				t.Fatalf("expected 1 guardrail event, got %d", len(events))
			}
			if events[0].Severity != "critical" {
				t.Errorf("expected critical severity, got %s", events[0].Severity)
			}
			if events[0].Source != tt.source {
				t.Errorf("expected source %s, got %s", tt.source, events[0].Source)
			}
			if events[0].SessionID != "session-1" {
				t.Errorf("expected session id session-1, got %s", events[0].SessionID)
			}
		})
	}
}

func TestServe_DialFailureClosesClientWithReason(t *testing.T) {
	client := newFakeConn()
	dialErr := errors.New("boom")

	err := newTestRelay(nil).Serve(context.Background(), "session-1", client, &fakeDialer{err: dialErr})
	if !errors.Is(err, dialErr) {
		t.Errorf("expected dial error, got %v", err)
	}
	if !client.isClosed() {
		t.Error("expected client closed")
	}
	payload := client.closeFrame()
	if len(payload) < 2 {
		t.Fatal("expected close frame payload")
	}
	if reason := string(payload[2:]); reason != "Connection failed: boom" {
		t.Errorf("unexpected close reason %q", reason)
	}
}

func TestServe_RelaysAfterDial(t *testing.T) {
	client, upstream := newFakeConn(), newFakeConn()
	errc := make(chan error, 1)
	go func() {
		errc <- newTestRelay(nil).Serve(context.Background(), "session-1", client, &fakeDialer{conn: upstream})
	}()

	client.inbound <- frame{websocket.TextMessage, []byte(`{"type":"response.create"}`)}
	waitFor(t, func() bool { return len(upstream.frames()) == 1 })

	upstream.Close()
	select {
	case <-errc:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestCloseWithReason_Truncates(t *testing.T) {
	client := newFakeConn()
	closeWithReason(client, websocket.CloseNormalClosure, strings.Repeat("é", 100))

	payload := client.closeFrame()
	if len(payload) > 125 {
		t.Errorf("expected close payload within 125 bytes, got %d", len(payload))
	}
}

func TestCompletedText(t *testing.T) {
	tests := []struct {
		name  string
		frame protocolFrame
		want  string
		ok    bool
	}{
		{"text part", protocolFrame{Type: "response.content_part.done", Part: &contentPart{Type: "text", Text: "hi"}}, "hi", true},
		{"legacy content_part field", protocolFrame{Type: "response.content_part.done", ContentPart: &contentPart{Type: "text", Text: "hi"}}, "hi", true},
		{"audio part transcript", protocolFrame{Type: "response.content_part.done", Part: &contentPart{Type: "audio", Transcript: "spoken"}}, "spoken", true},
		{"missing part", protocolFrame{Type: "response.content_part.done"}, "", false},
		{"text done", protocolFrame{Type: "response.text.done", Text: "done"}, "done", true},
		{"empty text done", protocolFrame{Type: "response.text.done"}, "", false},
		{"other", protocolFrame{Type: "response.done"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := completedText(tt.frame)
			if got != tt.want || ok != tt.ok {
				t.Errorf("completedText() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestNewDialer(t *testing.T) {
	d, err := NewDialer(config.RelayConfig{
		UpstreamURL: "wss://api.openai.com/v1/realtime",
		Model:       "gpt-4o-realtime-preview",
		APIKey:      "sk-test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Endpoint() != "wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview" {
		t.Errorf("unexpected endpoint %s", d.Endpoint())
	}
	h := d.Header()
	if h.Get("Authorization") != "Bearer sk-test" {
		t.Errorf("unexpected authorization header %q", h.Get("Authorization"))
	}
	if h.Get("OpenAI-Beta") != "realtime=v1" {
		t.Errorf("unexpected OpenAI-Beta header %q", h.Get("OpenAI-Beta"))
	}
	if d.dialer.HandshakeTimeout != 10*time.Second {
		t.Errorf("expected default handshake timeout 10s, got %v", d.dialer.HandshakeTimeout)
	}
}

func TestDial_WrapsError(t *testing.T) {
	d, err := NewDialer(config.RelayConfig{UpstreamURL: "ws://127.0.0.1:1/realtime", HandshakeTimeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := d.Dial(context.Background()); !errors.Is(err, ErrUpstreamDial) {
		t.Errorf("expected ErrUpstreamDial, got %v", err)
	}
}

func TestClose_EndsLiveSessions(t *testing.T) {
	client, upstream := newFakeConn(), newFakeConn()
	r := newTestRelay(nil)
	errc := runAsync(r, client, upstream)

	client.inbound <- frame{websocket.TextMessage, []byte(`{"type":"response.create"}`)}
	waitFor(t, func() bool { return len(upstream.frames()) == 1 })

	closed := make(chan struct{})
	go func() {
		r.Close()
		close(closed)
	}()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("expected nil error on close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	if !client.isClosed() || !upstream.isClosed() {
		t.Error("expected both transports closed")
	}
}

func TestClose_RejectsNewSessions(t *testing.T) {
	r := newTestRelay(nil)
	r.Close()

	t.Run("run", func(t *testing.T) {
		client, upstream := newFakeConn(), newFakeConn()
		if err := r.Run(context.Background(), "session-1", client, upstream); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
		if !client.isClosed() || !upstream.isClosed() {
			t.Error("expected both transports closed")
		}
	})

	t.Run("serve", func(t *testing.T) {
		client, upstream := newFakeConn(), newFakeConn()
		err := r.Serve(context.Background(), "session-2", client, &fakeDialer{conn: upstream})
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
		if !client.isClosed() {
			t.Error("expected client closed")
		}
		if upstream.isClosed() {
			t.Error("expected upstream never dialed")
		}
	})
}

func TestClose_WaitsForGuardrailAlerts(t *testing.T) {
	client, upstream := newFakeConn(), newFakeConn()
	pub := &blockingPublisher{release: make(chan struct{})}
	r := newTestRelay(pub)
	runAsync(r, client, upstream)

	upstream.inbound <- frame{websocket.TextMessage, []byte(`{"type":"response.text.done","text":"Hola! What is your age?"}`)}
	waitFor(t, func() bool { return pub.started.Load() })

	closed := make(chan struct{})
	go func() {
		r.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned before the alert was published")
	case <-time.After(50 * time.Millisecond):
	}

	close(pub.release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the alert was published")
	}
}

// blockingPublisher holds each publish until release is closed.
type blockingPublisher struct {
	started atomic.Bool
	release chan struct{}
}

func (p *blockingPublisher) PublishGuardrail(ctx context.Context, key string, event any) error {
	p.started.Store(true)
	<-p.release
	return nil
}
