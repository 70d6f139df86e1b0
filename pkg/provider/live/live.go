// Package live defines the bidirectional speech session abstraction: a
// long-lived connection that accepts streamed audio, image and text input and
// emits synthesized audio, text and turn boundary events. Implementations
// live in sub-packages named after their vendor.
package live

import "context"

// EventType discriminates the events a session emits.
type EventType int

const (
	// EventAudio carries a chunk of synthesized PCM in Event.Audio.
	EventAudio EventType = iota
	// EventText carries a text part of the model's turn in Event.Text.
	EventText
	// EventTurnComplete marks the end of the model's current response.
	EventTurnComplete
	// EventInterrupted signals the model abandoned its current response
	// because new user input arrived.
	EventInterrupted
)

// String returns a log-friendly name for the event type.
func (t EventType) String() string {
	switch t {
	case EventAudio:
		return "audio"
	case EventText:
		return "text"
	case EventTurnComplete:
		return "turn_complete"
	case EventInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Event is one message emitted by a session.
type Event struct {
	Type  EventType
	Audio []byte
	Text  string
}

// OutboundMessage is one unit of input for the model. Construct values with
// AudioChunk, ImageChunk or TextTurn; the zero value is invalid.
type OutboundMessage struct {
	audio []byte
	image struct {
		mimeType string
		data     string
	}
	text string
	kind outboundKind
}

type outboundKind int

const (
	outboundInvalid outboundKind = iota
	outboundAudio
	outboundImage
	outboundText
)

// AudioChunk wraps raw 16 kHz s16le mono PCM for streaming to the model.
func AudioChunk(pcm []byte) OutboundMessage {
	return OutboundMessage{audio: pcm, kind: outboundAudio}
}

// ImageChunk wraps an already base64-encoded image for streaming to the model.
func ImageChunk(mimeType, base64Data string) OutboundMessage {
	m := OutboundMessage{kind: outboundImage}
	m.image.mimeType = mimeType
	m.image.data = base64Data
	return m
}

// TextTurn wraps a complete user text turn. Sending one asks the model to
// respond immediately.
func TextTurn(text string) OutboundMessage {
	return OutboundMessage{text: text, kind: outboundText}
}

// IsAudio reports whether the message was built with AudioChunk.
func (m OutboundMessage) IsAudio() bool { return m.kind == outboundAudio }

// AudioData returns the raw PCM of an audio message.
func (m OutboundMessage) AudioData() []byte { return m.audio }

// IsImage reports whether the message was built with ImageChunk.
func (m OutboundMessage) IsImage() bool { return m.kind == outboundImage }

// ImageData returns the MIME type and base64 payload of an image message.
func (m OutboundMessage) ImageData() (mimeType, base64Data string) {
	return m.image.mimeType, m.image.data
}

// IsText reports whether the message was built with TextTurn.
func (m OutboundMessage) IsText() bool { return m.kind == outboundText }

// TextData returns the text of a text message.
func (m OutboundMessage) TextData() string { return m.text }

// SessionConfig carries the per-session parameters passed to Connect.
type SessionConfig struct {
	// Voice selects a provider voice by name. Empty uses the provider default.
	Voice string
	// Instructions is the system prompt for the session.
	Instructions string
}

// SessionHandle is a live connection to the model.
type SessionHandle interface {
	// Send delivers one outbound message. It returns an error once the
	// session is closed or the transport has failed.
	Send(msg OutboundMessage) error

	// Events returns the channel on which the model's output arrives. The
	// channel is closed when the session terminates.
	Events() <-chan Event

	// Err returns the first error that caused the session to terminate, or
	// nil after a clean close.
	Err() error

	// Close terminates the session and releases all resources. Idempotent.
	Close() error
}

// Provider creates live sessions.
type Provider interface {
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
