package main

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

const chunkIntervalMs = 100

type serverMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Audio   string `json:"audio"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16-bit PCM)")
	serverAddr := flag.String("server", "localhost:8001", "HTTP server address")
	clientID := flag.String("client", "audioclient-"+time.Now().Format("150405"), "Client ID")
	utteranceMs := flag.Int("utterance-ms", 0, "Split the file into utterances of this length (0 = one utterance)")
	timeout := flag.Duration("timeout", 60*time.Second, "Time to wait for each reply")
	flag.Parse()

	// Open audio file
	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	// Read and validate WAV header
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 { // PCM
		log.Fatal("Only PCM format supported")
	}

	bytesPerSecond := int(sampleRate) * int(numChannels) * int(bitsPerSample) / 8
	chunkSize := bytesPerSecond * chunkIntervalMs / 1000
	chunksPerUtterance := 0
	if *utteranceMs > 0 {
		chunksPerUtterance = max(1, *utteranceMs/chunkIntervalMs)
	}

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws/" + *clientID}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	log.Printf("Connected to %s", u.String())

	replies := make(chan serverMessage, 16)
	go readLoop(conn, replies)

	send := func(data []byte, speaking bool) {
		msg := map[string]any{
			"type":       "audio_chunk",
			"data":       base64.StdEncoding.EncodeToString(data),
			"isSpeaking": speaking,
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Fatalf("Failed to send chunk: %v", err)
		}
	}

	// Stream audio in chunks
	audioChunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum, utterances int
	startTime := time.Now()

	for {
		n, err := f.Read(audioChunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}

		chunkNum++
		totalBytes += int64(n)
		send(audioChunk[:n], true)

		if chunksPerUtterance > 0 && chunkNum%chunksPerUtterance == 0 {
			send(nil, false)
			utterances++
			awaitReply(replies, *timeout)
		}

		if chunkNum%10 == 0 {
			log.Printf("Sent chunk %d (%d bytes total)", chunkNum, totalBytes)
		}

		// Simulate real-time streaming
		time.Sleep(chunkIntervalMs * time.Millisecond)
	}

	if chunksPerUtterance == 0 || chunkNum%chunksPerUtterance != 0 {
		send(nil, false)
		utterances++
		awaitReply(replies, *timeout)
	}

	log.Printf("Finished streaming: %d chunks, %d bytes, %d utterances in %v",
		chunkNum, totalBytes, utterances, time.Since(startTime))

	_ = conn.WriteJSON(map[string]string{"type": "disconnect"})
}

// readLoop prints every server message and forwards the terminal ones.
func readLoop(conn *websocket.Conn, replies chan<- serverMessage) {
	defer close(replies)
	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			log.Printf("Connection closed: %v", err)
			return
		}
		switch msg.Type {
		case "greeting":
			log.Printf("Server ready: %s", msg.Message)
		case "user_transcript":
			log.Printf("You said: %q", msg.Text)
		case "ai_response":
			audio, _ := base64.StdEncoding.DecodeString(msg.Audio)
			log.Printf("Interviewer: %q (%d audio bytes)", msg.Text, len(audio))
			replies <- msg
		case "error":
			log.Printf("Error: %s", msg.Error)
			replies <- msg
		default:
			raw, _ := json.Marshal(msg)
			log.Printf("Message: %s", raw)
		}
	}
}

func awaitReply(replies <-chan serverMessage, timeout time.Duration) {
	select {
	case _, ok := <-replies:
		if !ok {
			log.Fatal("Connection closed before reply")
		}
	case <-time.After(timeout):
		log.Printf("Timed out after %v waiting for reply", timeout)
	}
}
