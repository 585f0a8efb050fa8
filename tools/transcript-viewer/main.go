// Transcript Viewer - live view of interview turns and guardrail alerts.
// Consumes from Kafka topics and displays via WebSocket to browser
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
)

// ViewerEvent is the union of turn and guardrail events as published by the
// voice service.
type ViewerEvent struct {
	EventType    string   `json:"eventType"`
	SessionID    string   `json:"sessionId"`
	UtteranceID  string   `json:"utteranceId,omitempty"`
	Mode         string   `json:"mode,omitempty"`
	Success      bool     `json:"success,omitempty"`
	Transcript   string   `json:"transcript,omitempty"`
	ResponseText string   `json:"responseText,omitempty"`
	Error        string   `json:"error,omitempty"`
	LatencyMs    int64    `json:"latencyMs,omitempty"`
	Source       string   `json:"source,omitempty"`
	Severity     string   `json:"severity,omitempty"`
	Violations   []string `json:"violations,omitempty"`
	Text         string   `json:"text,omitempty"`
	Timestamp    int64    `json:"timestamp"`
}

// summary returns the text shown in the log line for an event.
func (e ViewerEvent) summary() string {
	switch {
	case e.Severity != "":
		return e.Severity + ": " + strings.Join(e.Violations, "; ")
	case e.Error != "":
		return e.Error
	default:
		return e.Transcript + " -> " + e.ResponseText
	}
}

// Hub manages WebSocket connections
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan ViewerEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan ViewerEvent, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Printf("Client connected. Total: %d", n)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			log.Printf("Client disconnected. Total: %d", n)

		case event := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(event); err != nil {
					log.Printf("Write error: %v", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
}

func wsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}
		hub.register <- conn

		// Keep connection alive, handle disconnects
		go func() {
			defer func() {
				hub.unregister <- conn
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					break
				}
			}
		}()
	}
}

func consumeKafka(ctx context.Context, hub *Hub, brokers, topic string) {
	// Use partition reader without consumer group (works better through port-forward)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   strings.Split(brokers, ","),
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-1*time.Hour)); err != nil {
		log.Printf("Failed to seek %s: %v", topic, err)
	}

	log.Printf("Consuming from Kafka topic: %s partition 0 (last hour)", topic)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Kafka read error on %s: %v", topic, err)
			time.Sleep(time.Second)
			continue
		}

		var event ViewerEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Printf("JSON unmarshal error: %v", err)
			continue
		}

		log.Printf("Received %s for %s: %s", event.EventType, event.SessionID, truncate(event.summary(), 60))
		select {
		case hub.broadcast <- event:
		case <-ctx.Done():
			return
		}
	}
}

const indexHTML = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>Interview events</title>
<style>
body { font-family: sans-serif; margin: 2em; }
li { margin: .4em 0; }
.guardrail { color: #b00020; }
.failed { color: #888; }
</style>
</head>
<body>
<h1>Interview events</h1>
<ul id="events"></ul>
<script>
const list = document.getElementById("events");
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (m) => {
  const e = JSON.parse(m.data);
  const li = document.createElement("li");
  if (e.severity) {
    li.className = "guardrail";
    li.textContent = "[" + e.sessionId + "] " + e.severity + ": " + (e.violations || []).join("; ") + " | " + e.text;
  } else if (!e.success) {
    li.className = "failed";
    li.textContent = "[" + e.sessionId + "] failed: " + e.error;
  } else {
    li.textContent = "[" + e.sessionId + "] " + e.transcript + " -> " + e.responseText + " (" + e.latencyMs + " ms)";
  }
  list.prepend(li);
};
</script>
</body>
</html>
`

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicTurn := flag.String("topic-turn", "interview.conversation.turn", "Conversation turn topic")
	topicGuardrail := flag.String("topic-guardrail", "interview.guardrail.violation", "Guardrail violation topic")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newHub()
	go hub.run(ctx)

	// Start Kafka consumers
	go consumeKafka(ctx, hub, *brokers, *topicTurn)
	go consumeKafka(ctx, hub, *brokers, *topicGuardrail)

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(indexHTML))
	})

	// WebSocket endpoint
	http.HandleFunc("/ws", wsHandler(hub))

	log.Printf("Transcript Viewer starting on http://localhost:%s", *port)
	log.Printf("   Kafka brokers: %s", *brokers)
	log.Printf("   Topics: %s, %s", *topicTurn, *topicGuardrail)

	if err := http.ListenAndServe(":"+*port, nil); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
