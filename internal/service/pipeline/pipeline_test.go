package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"ai-interview-voice-service/internal/observability/metrics"
	"ai-interview-voice-service/internal/service/llm"
	llmmock "ai-interview-voice-service/internal/service/llm/mock"
	"ai-interview-voice-service/internal/service/segment"
	sttmock "ai-interview-voice-service/internal/service/stt/mock"
	ttsmock "ai-interview-voice-service/internal/service/tts/mock"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *sttmock.Adapter, *llmmock.Generator, *ttsmock.Synthesizer) {
	t.Helper()
	s := sttmock.New("I have built payment systems in Go")
	g := llmmock.New("What was the hardest part?")
	y := ttsmock.New()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	return New(s, g, y, Config{SystemPrompt: "interviewer"}, m), s, g, y
}

func utterance(n int) segment.Utterance {
	return segment.Utterance{ID: "sess-1-utt-1", SessionID: "sess-1", Audio: bytes.Repeat([]byte{1}, n)}
}

func TestProcess_Success(t *testing.T) {
	o, s, g, _ := newTestOrchestrator(t)
	hist := NewHistory(8)

	res := o.Process(context.Background(), utterance(2048), hist)

	if !res.Success {
		t.Fatalf("expected success, got %q (%v)", res.Error, res.Err)
	}
	if res.Transcript != "I have built payment systems in Go" {
		t.Errorf("unexpected transcript %q", res.Transcript)
	}
	if res.ResponseText != "What was the hardest part?" {
		t.Errorf("unexpected reply %q", res.ResponseText)
	}
	if len(res.ResponseAudio) == 0 {
		t.Error("expected synthesized audio")
	}
	if s.Calls() != 1 {
		t.Errorf("expected 1 transcribe call, got %d", s.Calls())
	}
	reqs := g.Requests()
	if len(reqs) != 1 || reqs[0].SystemPrompt != "interviewer" || reqs[0].Input != res.Transcript {
		t.Errorf("unexpected generate request %+v", reqs)
	}
	if hist.Len() != 2 {
		t.Errorf("expected exchange appended to history, got %d messages", hist.Len())
	}
}

func TestProcess_TooShortSkipsTranscriber(t *testing.T) {
	o, s, _, _ := newTestOrchestrator(t)

	res := o.Process(context.Background(), utterance(50), NewHistory(8))

	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Error, "insufficient length") || !strings.Contains(res.Error, "50 bytes") {
		t.Errorf("unexpected error message %q", res.Error)
	}
	if !errors.Is(res.Err, ErrTooShort) {
		t.Errorf("expected ErrTooShort, got %v", res.Err)
	}
	if s.Calls() != 0 {
		t.Errorf("expected transcriber not to be called, got %d calls", s.Calls())
	}
}

func TestProcess_EmptyTranscript(t *testing.T) {
	tests := []struct {
		name string
		fn   func(ctx context.Context, audio []byte) (string, error)
	}{
		{"whitespace", func(ctx context.Context, audio []byte) (string, error) { return "   ", nil }},
		{"error", func(ctx context.Context, audio []byte) (string, error) { return "", errors.New("unavailable") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, s, g, _ := newTestOrchestrator(t)
			s.TranscribeFunc = tt.fn

			res := o.Process(context.Background(), utterance(200), nil)

			if res.Success {
				t.Fatal("expected failure")
			}
			if res.Error != MsgTranscribeFailed {
				t.Errorf("expected %q, got %q", MsgTranscribeFailed, res.Error)
			}
			if len(g.Requests()) != 0 {
				t.Error("expected generator not to be called")
			}
		})
	}
}

func TestProcess_EmptyGeneration(t *testing.T) {
	o, _, g, y := newTestOrchestrator(t)
	g.GenerateFunc = func(ctx context.Context, req llm.Request) (string, error) {
		return "", nil
	}
	hist := NewHistory(8)

	res := o.Process(context.Background(), utterance(200), hist)

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error != MsgGenerateFailed {
		t.Errorf("expected %q, got %q", MsgGenerateFailed, res.Error)
	}
	if res.Transcript == "" {
		t.Error("expected transcript to be populated")
	}
	if len(y.Texts()) != 0 {
		t.Error("expected synthesizer not to be called")
	}
	if hist.Len() != 0 {
		t.Error("expected history untouched on failure")
	}
}

func TestProcess_SynthesisFailureIsNotFatal(t *testing.T) {
	o, _, _, y := newTestOrchestrator(t)
	y.SynthesizeFunc = func(ctx context.Context, text string) ([]byte, error) {
		return nil, errors.New("tts down")
	}

	res := o.Process(context.Background(), utterance(200), nil)

	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if res.ResponseAudio != nil {
		t.Error("expected nil audio")
	}
	if res.ResponseText == "" {
		t.Error("expected reply text")
	}
}

func TestProcess_NilSynthesizer(t *testing.T) {
	o := New(sttmock.New(), llmmock.New(), nil, Config{}, metrics.NewMetrics(prometheus.NewRegistry()))

	res := o.Process(context.Background(), utterance(200), nil)
	if !res.Success || res.ResponseAudio != nil {
		t.Errorf("expected text-only success, got %+v", res)
	}
}

func TestProcess_PassesHistory(t *testing.T) {
	o, _, g, _ := newTestOrchestrator(t)
	hist := NewHistory(8)

	o.Process(context.Background(), utterance(200), hist)
	o.Process(context.Background(), utterance(200), hist)

	reqs := g.Requests()
	if len(reqs[0].History) != 0 {
		t.Errorf("expected empty history on first turn, got %d", len(reqs[0].History))
	}
	if len(reqs[1].History) != 2 {
		t.Errorf("expected previous exchange on second turn, got %d", len(reqs[1].History))
	}
}

func TestHistory_Bounded(t *testing.T) {
	h := NewHistory(4)
	for i := 0; i < 5; i++ {
		h.Append("q", "a")
	}
	h.Append("last question", "last answer")

	msgs := h.Messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[3].Content != "last answer" || msgs[3].Role != llm.RoleAssistant {
		t.Errorf("expected newest last, got %+v", msgs[3])
	}
	if msgs[2].Role != llm.RoleUser {
		t.Errorf("expected user message before assistant, got %s", msgs[2].Role)
	}

	h.Reset()
	if h.Len() != 0 {
		t.Error("expected empty history after reset")
	}
}

func TestHistory_DefaultSize(t *testing.T) {
	h := NewHistory(0)
	for i := 0; i < 10; i++ {
		h.Append("q", "a")
	}
	if h.Len() != DefaultHistorySize {
		t.Errorf("expected %d messages, got %d", DefaultHistorySize, h.Len())
	}
}

func TestHistory_OddSizeKeepsWholeExchanges(t *testing.T) {
	tests := []struct {
		max  int
		want int
	}{
		{max: 1, want: 2},
		{max: 3, want: 4},
		{max: 5, want: 6},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("max=%d", tt.max), func(t *testing.T) {
			h := NewHistory(tt.max)
			for i := 0; i < 5; i++ {
				h.Append(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
			}

			msgs := h.Messages()
			if len(msgs) != tt.want {
				t.Fatalf("expected %d messages, got %d", tt.want, len(msgs))
			}
			for i, msg := range msgs {
				wantRole := llm.RoleUser
				if i%2 == 1 {
					wantRole = llm.RoleAssistant
				}
				if msg.Role != wantRole {
					t.Errorf("message %d: expected role %s, got %s", i, wantRole, msg.Role)
				}
			}
			if msgs[len(msgs)-1].Content != "a4" {
				t.Errorf("expected newest answer last, got %q", msgs[len(msgs)-1].Content)
			}
		})
	}
}
