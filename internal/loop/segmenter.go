package loop

import (
	"time"

	"github.com/tsubasakt/kaiwa/internal/transcript"
	"github.com/tsubasakt/kaiwa/pkg/audio"
)

// Segmentation defaults. The amplitude threshold separates speech from room
// noise on a cheap electret microphone; the timeout is how long the user may
// pause before the turn is considered finished.
const (
	DefaultVoiceThreshold = 500.0
	DefaultSilenceTimeout = 3 * time.Second
	DefaultMinTurnBytes   = 3200
)

// Segmenter accumulates microphone frames into user turns. A turn opens on
// the first voiced frame and closes once more than the silence timeout of
// consecutive silent audio has accumulated. Frames arriving before the turn
// opens are dropped; once open, every frame is buffered so pauses inside an
// utterance survive into the archived audio.
//
// Segmenter is not safe for concurrent use. The capture worker owns it.
type Segmenter struct {
	threshold    float64
	timeout      time.Duration
	minTurnBytes int

	buf        []byte
	silence    time.Duration
	sampleRate int
	channels   int
	open       bool
}

// SegmenterOption configures a Segmenter.
type SegmenterOption func(*Segmenter)

// WithVoiceThreshold overrides the mean-absolute-amplitude threshold above
// which a frame counts as voiced.
func WithVoiceThreshold(threshold float64) SegmenterOption {
	return func(s *Segmenter) { s.threshold = threshold }
}

// WithSilenceTimeout overrides how much trailing silence closes a turn.
func WithSilenceTimeout(timeout time.Duration) SegmenterOption {
	return func(s *Segmenter) { s.timeout = timeout }
}

// WithMinTurnBytes overrides the minimum buffered size. A closed turn whose
// size does not exceed it is discarded as noise.
func WithMinTurnBytes(n int) SegmenterOption {
	return func(s *Segmenter) { s.minTurnBytes = n }
}

// NewSegmenter creates a Segmenter with the given options applied over the
// package defaults.
func NewSegmenter(opts ...SegmenterOption) *Segmenter {
	s := &Segmenter{
		threshold:    DefaultVoiceThreshold,
		timeout:      DefaultSilenceTimeout,
		minTurnBytes: DefaultMinTurnBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Push feeds one captured frame. It returns a completed turn when this frame
// closed one, nil otherwise.
func (s *Segmenter) Push(frame audio.AudioFrame) *transcript.Turn {
	voiced := audio.MeanAbsAmplitude(frame.Data) > s.threshold

	if !s.open {
		if !voiced {
			return nil
		}
		s.open = true
		s.silence = 0
		s.sampleRate = frame.SampleRate
		s.channels = frame.Channels
	}

	s.buf = append(s.buf, frame.Data...)
	if voiced {
		s.silence = 0
		return nil
	}

	s.silence += frame.Duration()
	if s.silence > s.timeout {
		return s.close()
	}
	return nil
}

// Flush force-closes the current turn, returning it when it clears the
// minimum size. It returns nil when no turn is open. Safe to call repeatedly.
func (s *Segmenter) Flush() *transcript.Turn {
	if !s.open {
		return nil
	}
	return s.close()
}

// Discard drops any partially accumulated turn without emitting it.
func (s *Segmenter) Discard() {
	s.buf = nil
	s.silence = 0
	s.open = false
}

func (s *Segmenter) close() *transcript.Turn {
	buf := s.buf
	sampleRate, channels := s.sampleRate, s.channels
	s.Discard()

	// Turns must strictly exceed the minimum; a buffer of exactly the
	// threshold is still noise.
	if len(buf) <= s.minTurnBytes {
		return nil
	}
	return &transcript.Turn{
		Speaker:    transcript.SpeakerUser,
		PCM:        buf,
		SampleRate: sampleRate,
		Channels:   channels,
	}
}
