// Package models defines the websocket wire messages and published events.
package models

import "encoding/json"

// Inbound message types sent by the browser client.
const (
	TypeAudioChunk        = "audio_chunk"
	TypeSendForProcessing = "send_for_processing"
	TypeLegacyProcessing  = "send_for_AI_processing"
	TypePing              = "ping"
	TypeDisconnect        = "disconnect"
	TypeStartInterview    = "start_interview"
)

// Outbound message types sent to the browser client.
const (
	TypeGreeting       = "greeting"
	TypeUserTranscript = "user_transcript"
	TypeAIResponse     = "ai_response"
	TypeError          = "error"
	TypePong           = "pong"
)

// ClientMessage is the union of all inbound message fields.
// Unused fields are left zero for a given type.
type ClientMessage struct {
	Type       string  `json:"type"`
	Data       string  `json:"data,omitempty"`
	IsSpeaking bool    `json:"isSpeaking,omitempty"`
	Audio      string  `json:"audio,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
}

// ParseClientMessage decodes one inbound text frame.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}

// Greeting is sent once after a client connects.
type Greeting struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	Timestamp string `json:"timestamp"`
}

// UserTranscript carries the transcription of the client's utterance.
type UserTranscript struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AIResponse carries the generated reply and, when synthesis succeeded,
// base64 encoded audio.
type AIResponse struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Audio string `json:"audio,omitempty"`
}

// ErrorMessage reports an input or stage error to the client.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Pong answers a ping.
type Pong struct {
	Type string `json:"type"`
}

// NewError builds an error frame.
func NewError(msg string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Error: msg}
}
