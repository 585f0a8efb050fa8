// Package segment turns a stream of audio frames into utterances using the
// client's speaking flag.
package segment

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the observable state of a Buffer.
type State int

const (
	// StateIdle - not speaking, nothing in flight.
	StateIdle State = iota
	// StateSpeaking - last frame had the speaking flag set.
	StateSpeaking
	// StateProcessing - an utterance is in the pipeline.
	// Triggers are dropped until Done is called.
	StateProcessing
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSpeaking:
		return "SPEAKING"
	case StateProcessing:
		return "PROCESSING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Mode says how an utterance was cut.
type Mode string

const (
	ModeEdge       Mode = "edge"
	ModeSingleShot Mode = "single_shot"
)

var (
	// ErrBusy is returned by Submit while an utterance is being processed.
	ErrBusy = errors.New("already processing")
	// ErrBufferLimit is returned when a chunk would grow the accumulator past its cap.
	ErrBufferLimit = errors.New("audio buffer limit exceeded")
)

// Frame is one inbound audio chunk with the client's voice-activity flag.
type Frame struct {
	Speaking bool
	Chunk    []byte
}

// Utterance is a drained accumulator handed to the pipeline.
type Utterance struct {
	ID        string
	SessionID string
	Audio     []byte
	Mode      Mode
	CutAt     time.Time
}

// Outcome is what Feed did with a frame.
type Outcome int

const (
	// OutcomeBuffered - frame accepted, no utterance boundary.
	OutcomeBuffered Outcome = iota
	// OutcomeFlushed - speaking ended, Result.Utterance must be processed
	// and Done called afterwards.
	OutcomeFlushed
	// OutcomeDropped - speaking ended while processing; the trigger was
	// discarded and the audio stays buffered.
	OutcomeDropped
)

// Result is returned by Feed.
type Result struct {
	Outcome   Outcome
	Utterance Utterance
	Buffered  int
}

// Buffer is the per-session voice-activity state machine. Safe for
// concurrent use.
//
// Transitions on (previous speaking, current speaking):
//
//	true  -> false : flush, unless processing (then dropped)
//	false -> false : nothing
//	true  -> true  : nothing
//	false -> true  : nothing
//
// Non-empty chunks are appended regardless of the flag.
type Buffer struct {
	mu           sync.Mutex
	sessionId    string
	ids          *Generator
	maxBytes     int64
	audio        []byte
	prevSpeaking bool
	processing   bool
}

// NewBuffer creates an idle buffer. maxBytes <= 0 disables the size cap.
func NewBuffer(sessionId string, maxBytes int64) *Buffer {
	return &Buffer{
		sessionId: sessionId,
		ids:       New(),
		maxBytes:  maxBytes,
	}
}

// SessionId returns the owning session id.
func (b *Buffer) SessionId() string {
	return b.sessionId
}

// State returns the current state.
func (b *Buffer) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.processing:
		return StateProcessing
	case b.prevSpeaking:
		return StateSpeaking
	default:
		return StateIdle
	}
}

// IsProcessing reports whether an utterance is in flight.
func (b *Buffer) IsProcessing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.processing
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.audio)
}

// Feed applies one frame. When the chunk would exceed the size cap it is
// not appended and ErrBufferLimit is returned, but the speaking edge is
// still evaluated so the returned Result is valid either way.
func (b *Buffer) Feed(f Frame) (Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if len(f.Chunk) > 0 {
		if b.maxBytes > 0 && int64(len(b.audio)+len(f.Chunk)) > b.maxBytes {
			err = ErrBufferLimit
		} else {
			b.audio = append(b.audio, f.Chunk...)
		}
	}

	edge := b.prevSpeaking && !f.Speaking
	b.prevSpeaking = f.Speaking

	if !edge {
		return Result{Outcome: OutcomeBuffered, Buffered: len(b.audio)}, err
	}
	if b.processing {
		return Result{Outcome: OutcomeDropped, Buffered: len(b.audio)}, err
	}

	utt := b.drainLocked(ModeEdge)
	return Result{Outcome: OutcomeFlushed, Utterance: utt}, err
}

// Submit starts processing of a complete utterance supplied by the client,
// bypassing the accumulator. Returns ErrBusy while processing.
func (b *Buffer) Submit(audio []byte) (Utterance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.processing {
		return Utterance{}, ErrBusy
	}
	b.processing = true
	return Utterance{
		ID:        b.ids.Next(b.sessionId),
		SessionID: b.sessionId,
		Audio:     audio,
		Mode:      ModeSingleShot,
		CutAt:     time.Now(),
	}, nil
}

// Done clears the processing flag. Idempotent.
func (b *Buffer) Done() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.processing = false
}

// Reset discards buffered audio and the speaking flag. The processing flag
// is left alone; an in-flight run still owns it.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.audio = nil
	b.prevSpeaking = false
}

func (b *Buffer) drainLocked(mode Mode) Utterance {
	audio := b.audio
	b.audio = nil
	b.processing = true
	return Utterance{
		ID:        b.ids.Next(b.sessionId),
		SessionID: b.sessionId,
		Audio:     audio,
		Mode:      mode,
		CutAt:     time.Now(),
	}
}
