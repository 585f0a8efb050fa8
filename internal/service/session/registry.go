// Package session tracks live client connections and their per-connection
// conversation state.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-interview-voice-service/internal/observability/logging"
	"ai-interview-voice-service/internal/observability/metrics"
	"ai-interview-voice-service/internal/service/pipeline"
	"ai-interview-voice-service/internal/service/segment"
)

var (
	// ErrNotFound is returned for ids with no live session.
	ErrNotFound = errors.New("session not found")
	// ErrDeliveryFailed wraps transport write failures.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// Conn is the write side of a client transport. *websocket.Conn satisfies it.
type Conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Options configures sessions created by a Registry.
type Options struct {
	MaxBufferBytes int64
	HistorySize    int
	WriteTimeout   time.Duration
}

// Session is one connected client.
type Session struct {
	ID        string
	CreatedAt time.Time

	Buffer  *segment.Buffer
	History *pipeline.History

	conn         Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
	closeOnce    sync.Once

	lastActivity atomic.Int64
	messagesIn   atomic.Int64
	messagesOut  atomic.Int64
	totalOut     *atomic.Int64

	logger zerolog.Logger
}

// Send JSON-encodes msg and writes it as one text frame. Writes are
// serialized so concurrent senders never interleave frames.
func (s *Session) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	s.messagesOut.Add(1)
	if s.totalOut != nil {
		s.totalOut.Add(1)
	}
	s.Touch()
	return nil
}

// Touch records client or server activity.
func (s *Session) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// RecordInbound counts one frame received from the client.
func (s *Session) RecordInbound() {
	s.messagesIn.Add(1)
	s.Touch()
}

// LastActivity returns the time of the last frame in either direction.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// MessagesIn returns the number of frames received.
func (s *Session) MessagesIn() int64 { return s.messagesIn.Load() }

// MessagesOut returns the number of frames delivered.
func (s *Session) MessagesOut() int64 { return s.messagesOut.Load() }

// Logger returns the session-scoped logger.
func (s *Session) Logger() zerolog.Logger { return s.logger }

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.Buffer.Reset()
		_ = s.conn.Close()
	})
}

// ClientStats is the per-session part of Stats.
type ClientStats struct {
	ClientID     string `json:"client_id"`
	ConnectedFor int64  `json:"connected_for"`
	MessageCount int64  `json:"message_count"`
	LastActivity int64  `json:"last_activity"`
	IsProcessing bool   `json:"is_processing"`
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	ActiveConnections int           `json:"active_connections"`
	TotalMessages     int64         `json:"total_messages"`
	Clients           []ClientStats `json:"clients"`
}

// Registry maps session ids to live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     Options
	metrics  *metrics.Metrics
	total    atomic.Int64
}

// NewRegistry creates an empty registry. A nil m uses metrics.DefaultMetrics.
func NewRegistry(opts Options, m *metrics.Metrics) *Registry {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Registry{
		sessions: make(map[string]*Session),
		opts:     opts,
		metrics:  m,
	}
}

// Register creates a session for conn. An empty id gets a generated one.
// A live session with the same id is replaced and closed.
func (r *Registry) Register(id string, conn Conn) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	s := &Session{
		ID:           id,
		CreatedAt:    time.Now(),
		Buffer:       segment.NewBuffer(id, r.opts.MaxBufferBytes),
		History:      pipeline.NewHistory(r.opts.HistorySize),
		conn:         conn,
		writeTimeout: r.opts.WriteTimeout,
		totalOut:     &r.total,
		logger:       logging.WithSession(id),
	}
	s.Touch()

	r.mu.Lock()
	old := r.sessions[id]
	r.sessions[id] = s
	count := len(r.sessions)
	r.mu.Unlock()

	if old != nil {
		old.close()
		r.recordEnd(old)
		s.logger.Warn().Msg("replaced existing session with same id")
	}
	r.metrics.RecordSessionStart()
	s.logger.Info().Int("active", count).Msg("session registered")
	return s
}

// Lookup returns the live session for id.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Deliver sends msg to the session with the given id. On write failure the
// session is unregistered and the wrapped ErrDeliveryFailed is returned;
// callers log it and carry on.
func (r *Registry) Deliver(id string, msg any) error {
	s, ok := r.Lookup(id)
	if !ok {
		return ErrNotFound
	}
	return r.send(s, msg)
}

// DeliverTo sends msg to s only while s is still the live session for its
// id. A session that was unregistered or replaced by a reconnect gets
// ErrNotFound.
func (r *Registry) DeliverTo(s *Session, msg any) error {
	r.mu.RLock()
	live := r.sessions[s.ID] == s
	r.mu.RUnlock()
	if !live {
		return ErrNotFound
	}
	return r.send(s, msg)
}

func (r *Registry) send(s *Session, msg any) error {
	if err := s.Send(msg); err != nil {
		r.metrics.RecordDeliveryFailure()
		s.logger.Error().Err(err).Msg("delivery failed, dropping session")
		if errors.Is(err, ErrDeliveryFailed) {
			r.Remove(s)
		}
		return err
	}
	return nil
}

// Broadcast delivers msg to every live session.
func (r *Registry) Broadcast(msg any) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		_ = r.Deliver(id, msg)
	}
}

// Unregister removes and closes the session for id. Idempotent.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if ok {
		r.finish(s, count)
	}
}

// Remove unregisters s only if it is still the live session for its id, so
// a stale connection cannot evict its replacement.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	cur, ok := r.sessions[s.ID]
	if ok && cur == s {
		delete(r.sessions, s.ID)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if ok && cur == s {
		r.finish(s, count)
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stats returns a snapshot for the stats endpoint, ordered by client id.
func (r *Registry) Stats() Stats {
	now := time.Now()

	r.mu.RLock()
	clients := make([]ClientStats, 0, len(r.sessions))
	for id, s := range r.sessions {
		clients = append(clients, ClientStats{
			ClientID:     id,
			ConnectedFor: int64(now.Sub(s.CreatedAt).Seconds()),
			MessageCount: s.MessagesOut(),
			LastActivity: int64(now.Sub(s.LastActivity()).Seconds()),
			IsProcessing: s.Buffer.IsProcessing(),
		})
	}
	r.mu.RUnlock()

	sort.Slice(clients, func(i, j int) bool { return clients[i].ClientID < clients[j].ClientID })
	return Stats{
		ActiveConnections: len(clients),
		TotalMessages:     r.total.Load(),
		Clients:           clients,
	}
}

// CloseAll closes every session. Used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		r.finish(s, 0)
	}
}

func (r *Registry) finish(s *Session, remaining int) {
	s.close()
	r.recordEnd(s)
	s.logger.Info().
		Int("active", remaining).
		Int64("messagesIn", s.MessagesIn()).
		Int64("messagesOut", s.MessagesOut()).
		Msg("session unregistered")
}

func (r *Registry) recordEnd(s *Session) {
	r.metrics.RecordSessionEnd(time.Since(s.CreatedAt).Seconds())
}
