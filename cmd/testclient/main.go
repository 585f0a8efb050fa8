package main

import (
	"encoding/base64"
	"flag"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type serverMessage struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Text    string `json:"text"`
	Audio   string `json:"audio"`
	Error   string `json:"error"`
}

func main() {
	serverAddr := flag.String("server", "localhost:8001", "HTTP server address")
	audioFile := flag.String("audio", "", "Audio file to send in one send_for_processing frame (default: 1s of silence)")
	flag.Parse()

	audio := make([]byte, 32000)
	if *audioFile != "" {
		data, err := os.ReadFile(*audioFile)
		if err != nil {
			log.Fatalf("failed to read audio: %v", err)
		}
		audio = data
	}

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws/testclient-" + time.Now().Format("150405")}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Println("Connected to server")
	expect(conn, "greeting")

	log.Println("Sending ping")
	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		log.Fatalf("failed to send ping: %v", err)
	}
	expect(conn, "pong")

	log.Printf("Sending %d bytes for processing", len(audio))
	if err := conn.WriteJSON(map[string]any{
		"type":  "send_for_processing",
		"audio": base64.StdEncoding.EncodeToString(audio),
	}); err != nil {
		log.Fatalf("failed to send audio: %v", err)
	}

	for {
		msg := read(conn, 60*time.Second)
		if msg.Type == "ai_response" || msg.Type == "error" {
			break
		}
	}

	_ = conn.WriteJSON(map[string]string{"type": "disconnect"})
	log.Println("Done")
}

func read(conn *websocket.Conn, timeout time.Duration) serverMessage {
	conn.SetReadDeadline(time.Now().Add(timeout))
	var msg serverMessage
	if err := conn.ReadJSON(&msg); err != nil {
		log.Fatalf("failed to read: %v", err)
	}
	switch msg.Type {
	case "ai_response":
		log.Printf("Received ai_response: %q (audio=%d base64 chars)", msg.Text, len(msg.Audio))
	case "error":
		log.Printf("Received error: %s", msg.Error)
	default:
		log.Printf("Received %s: %s%s", msg.Type, msg.Message, msg.Text)
	}
	return msg
}

func expect(conn *websocket.Conn, msgType string) {
	if msg := read(conn, 10*time.Second); msg.Type != msgType {
		log.Fatalf("expected %s, got %s", msgType, msg.Type)
	}
}
