// Package pipeline runs one utterance through transcription, reply
// generation and speech synthesis.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ai-interview-voice-service/internal/observability/logging"
	"ai-interview-voice-service/internal/observability/metrics"
	"ai-interview-voice-service/internal/service/llm"
	"ai-interview-voice-service/internal/service/segment"
	"ai-interview-voice-service/internal/service/stt"
	"ai-interview-voice-service/internal/service/tts"
)

// MinUtteranceBytes is the shortest utterance worth transcribing.
const MinUtteranceBytes = 100

// Stage names used in logs and metrics.
const (
	StageTranscribe = "transcribe"
	StageGenerate   = "generate"
	StageSynthesize = "synthesize"
)

// Client-facing failure messages.
const (
	MsgTooShort          = "Audio too short"
	MsgTranscribeFailed  = "Failed to transcribe audio"
	MsgGenerateFailed    = "Failed to generate AI response"
	msgInsufficientAudio = "insufficient length"
)

var (
	ErrTooShort         = errors.New("audio too short")
	ErrTranscribeFailed = errors.New("transcription failed")
	ErrGenerateFailed   = errors.New("generation failed")
)

// Result is the outcome of one Process call.
type Result struct {
	Success       bool
	Transcript    string
	ResponseText  string
	ResponseAudio []byte
	// Error is the client-facing message when Success is false.
	Error string
	// Err is the underlying cause when Success is false.
	Err     error
	Latency time.Duration
}

// Config tunes the orchestrator.
type Config struct {
	MinUtteranceBytes int
	SystemPrompt      string
}

// Orchestrator wires the three collaborators. Synth may be nil, in which
// case replies are text only.
type Orchestrator struct {
	stt     stt.Transcriber
	llm     llm.Generator
	synth   tts.Synthesizer
	cfg     Config
	metrics *metrics.Metrics
}

// New creates an orchestrator. A nil m uses metrics.DefaultMetrics.
func New(transcriber stt.Transcriber, generator llm.Generator, synth tts.Synthesizer, cfg Config, m *metrics.Metrics) *Orchestrator {
	if cfg.MinUtteranceBytes <= 0 {
		cfg.MinUtteranceBytes = MinUtteranceBytes
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Orchestrator{stt: transcriber, llm: generator, synth: synth, cfg: cfg, metrics: m}
}

// Process runs the stages in order without retries. Failure of
// transcription or generation ends the run; synthesis failure only drops
// the audio. On success the exchange is appended to hist.
func (o *Orchestrator) Process(ctx context.Context, utt segment.Utterance, hist *History) Result {
	start := time.Now()
	logger := logging.WithUtterance(utt.SessionID, utt.ID)

	res := o.run(ctx, utt, hist, logger)
	res.Latency = time.Since(start)
	o.metrics.RecordPipelineRun(res.Success, res.Latency.Seconds())

	if res.Success {
		logger.Info().
			Int("audioBytes", len(utt.Audio)).
			Bool("hasAudio", res.ResponseAudio != nil).
			Dur("latency", res.Latency).
			Msg("pipeline complete")
	} else {
		logger.Warn().
			Err(res.Err).
			Int("audioBytes", len(utt.Audio)).
			Str("reason", res.Error).
			Msg("pipeline failed")
	}
	return res
}

func (o *Orchestrator) run(ctx context.Context, utt segment.Utterance, hist *History, logger zerolog.Logger) Result {
	if len(utt.Audio) < o.cfg.MinUtteranceBytes {
		return Result{
			Error: fmt.Sprintf("%s: %s (%d bytes)", MsgTooShort, msgInsufficientAudio, len(utt.Audio)),
			Err:   ErrTooShort,
		}
	}

	logger.Debug().Int("audioBytes", len(utt.Audio)).Msg("transcribing")
	t0 := time.Now()
	transcript, err := o.stt.Transcribe(ctx, utt.Audio)
	transcript = strings.TrimSpace(transcript)
	if err == nil && transcript == "" {
		err = ErrTranscribeFailed
	}
	o.metrics.RecordStage(StageTranscribe, err, time.Since(t0).Seconds())
	if err != nil {
		return Result{Error: MsgTranscribeFailed, Err: fmt.Errorf("%s: %w", StageTranscribe, err)}
	}
	logger.Info().Str("transcript", transcript).Msg("transcribed")

	var history []llm.Message
	if hist != nil {
		history = hist.Messages()
	}
	t0 = time.Now()
	reply, err := o.llm.Generate(ctx, llm.Request{
		SystemPrompt: o.cfg.SystemPrompt,
		History:      history,
		Input:        transcript,
	})
	reply = strings.TrimSpace(reply)
	if err == nil && reply == "" {
		err = ErrGenerateFailed
	}
	o.metrics.RecordStage(StageGenerate, err, time.Since(t0).Seconds())
	if err != nil {
		return Result{Transcript: transcript, Error: MsgGenerateFailed, Err: fmt.Errorf("%s: %w", StageGenerate, err)}
	}

	res := Result{Success: true, Transcript: transcript, ResponseText: reply}

	if o.synth != nil {
		t0 = time.Now()
		audio, err := o.synth.Synthesize(ctx, reply)
		if err == nil && len(audio) == 0 {
			err = tts.ErrEmptyText
		}
		o.metrics.RecordStage(StageSynthesize, err, time.Since(t0).Seconds())
		if err != nil {
			logger.Warn().Err(err).Msg("synthesis failed, sending text only")
		} else {
			res.ResponseAudio = audio
		}
	}

	if hist != nil {
		hist.Append(transcript, reply)
	}
	return res
}
