package models

// TurnEvent is published after every pipeline run.
type TurnEvent struct {
	EventType    string `json:"eventType"`
	SessionID    string `json:"sessionId"`
	UtteranceID  string `json:"utteranceId"`
	Mode         string `json:"mode"`
	Success      bool   `json:"success"`
	Transcript   string `json:"transcript,omitempty"`
	ResponseText string `json:"responseText,omitempty"`
	HasAudio     bool   `json:"hasAudio"`
	Error        string `json:"error,omitempty"`
	AudioBytes   int    `json:"audioBytes"`
	LatencyMs    int64  `json:"latencyMs"`
	Timestamp    int64  `json:"timestamp"`
}

// GuardrailEvent is published when generated text fails validation.
type GuardrailEvent struct {
	EventType  string   `json:"eventType"`
	SessionID  string   `json:"sessionId"`
	Source     string   `json:"source"`
	Severity   string   `json:"severity"`
	Violations []string `json:"violations"`
	Text       string   `json:"text"`
	Timestamp  int64    `json:"timestamp"`
}

// Event type names.
const (
	EventTurnCompleted      = "conversation.turn.completed"
	EventTurnFailed         = "conversation.turn.failed"
	EventGuardrailViolation = "guardrail.violation"
)
