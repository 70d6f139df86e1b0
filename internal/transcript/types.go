// Package transcript persists closed conversation turns: each turn's audio is
// wrapped in a WAV container, uploaded to object storage, transcribed, and
// recorded as a durable message row.
package transcript

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSpeaker marks a turn whose speaker tag is not one of the known
// values. This is a data-integrity error: the turn is rejected rather than
// persisted with a wrong attribution.
var ErrInvalidSpeaker = errors.New("invalid speaker")

// Speaker attributes a turn to one side of the conversation.
type Speaker string

const (
	// SpeakerUser marks audio captured from the microphone.
	SpeakerUser Speaker = "USER"

	// SpeakerSystem marks synthesized audio received from the live session.
	SpeakerSystem Speaker = "SYSTEM"
)

// Valid reports whether s is a recognised speaker tag.
func (s Speaker) Valid() bool {
	return s == SpeakerUser || s == SpeakerSystem
}

// Turn is one contiguous utterance attributed to a single speaker, closed by
// the segmenter (USER) or by the session's turn-complete signal (SYSTEM).
// The speaker tag is fixed at creation and never changes.
type Turn struct {
	Speaker    Speaker
	PCM        []byte
	SampleRate int
	Channels   int
}

// Duration returns the playback duration of the turn's audio.
func (t Turn) Duration() time.Duration {
	if t.SampleRate <= 0 || t.Channels <= 0 {
		return 0
	}
	samples := len(t.PCM) / (2 * t.Channels)
	return time.Duration(samples) * time.Second / time.Duration(t.SampleRate)
}

// Record is the persisted form of a closed turn. Immutable after creation;
// owned by the durable store, not by the in-memory pipeline.
type Record struct {
	// ID is the generated identifier; it doubles as the audio object's base name.
	ID string

	// AudioURL is the public URL of the uploaded WAV object.
	AudioURL string

	// Transcript is the recognised text, possibly empty.
	Transcript string

	// Speaker is the turn's speaker tag.
	Speaker Speaker

	// CreatedAt is set by the store on insert.
	CreatedAt time.Time
}

// Validate checks record invariants prior to insert.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("transcript: record id is required")
	}
	if !r.Speaker.Valid() {
		return fmt.Errorf("transcript: speaker %q: %w", r.Speaker, ErrInvalidSpeaker)
	}
	return nil
}
