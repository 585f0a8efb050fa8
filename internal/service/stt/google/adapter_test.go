package google

import (
	"context"
	"errors"
	"testing"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	gax "github.com/googleapis/gax-go/v2"

	"ai-interview-voice-service/internal/service/stt"
)

type fakeRecognizer struct {
	resp   *speechpb.RecognizeResponse
	err    error
	last   *speechpb.RecognizeRequest
	closed bool
}

func (f *fakeRecognizer) Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error) {
	f.last = req
	return f.resp, f.err
}

func (f *fakeRecognizer) Close() error {
	f.closed = true
	return nil
}

func result(texts ...string) *speechpb.SpeechRecognitionResult {
	r := &speechpb.SpeechRecognitionResult{}
	for _, t := range texts {
		r.Alternatives = append(r.Alternatives, &speechpb.SpeechRecognitionAlternative{Transcript: t})
	}
	return r
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.LanguageCode)
	}
	if cfg.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.SampleRateHz)
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.AudioEncoding)
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"linear16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"AMR", speechpb.RecognitionConfig_AMR},
		{"AMR_WB", speechpb.RecognitionConfig_AMR_WB},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"SPEEX_WITH_HEADER_BYTE", speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE},
		{"webm_opus", speechpb.RecognitionConfig_WEBM_OPUS},
		{"UNKNOWN", speechpb.RecognitionConfig_LINEAR16}, // fallback
		{"", speechpb.RecognitionConfig_LINEAR16},        // fallback
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTranscribe_JoinsResults(t *testing.T) {
	fake := &fakeRecognizer{resp: &speechpb.RecognizeResponse{
		Results: []*speechpb.SpeechRecognitionResult{
			result("I have five years", "I have"),
			result(),
			result(" of Go experience "),
		},
	}}
	a := &Adapter{client: fake, cfg: DefaultConfig()}

	got, err := a.Transcribe(context.Background(), []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "I have five years of Go experience" {
		t.Errorf("unexpected transcript %q", got)
	}

	cfg := fake.last.GetConfig()
	if cfg.GetSampleRateHertz() != 16000 {
		t.Errorf("expected sample rate on raw audio, got %d", cfg.GetSampleRateHertz())
	}
	if cfg.GetLanguageCode() != "en-US" {
		t.Errorf("expected en-US, got %s", cfg.GetLanguageCode())
	}
}

func TestTranscribe_WAVOmitsSampleRate(t *testing.T) {
	fake := &fakeRecognizer{resp: &speechpb.RecognizeResponse{}}
	a := &Adapter{client: fake, cfg: DefaultConfig()}

	if _, err := a.Transcribe(context.Background(), []byte("RIFF....WAVE")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.last.GetConfig().GetSampleRateHertz() != 0 {
		t.Error("expected sample rate to be read from the WAV header")
	}
}

func TestTranscribe_Errors(t *testing.T) {
	a := &Adapter{client: &fakeRecognizer{}, cfg: DefaultConfig()}
	if _, err := a.Transcribe(context.Background(), nil); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Errorf("expected ErrEmptyAudio, got %v", err)
	}

	boom := errors.New("unavailable")
	a = &Adapter{client: &fakeRecognizer{err: boom}, cfg: DefaultConfig()}
	if _, err := a.Transcribe(context.Background(), []byte{1}); !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestClose(t *testing.T) {
	fake := &fakeRecognizer{}
	a := &Adapter{client: fake}
	if err := a.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fake.closed {
		t.Error("expected client to be closed")
	}
}
