// Package audio defines the PCM frame types and pure signal helpers shared by
// the kaiwa pipeline: capture, voice-activity segmentation, playback, and the
// WAV container used for durable storage.
//
// All PCM in this package is 16-bit signed little-endian. Channel count and
// sample rate travel with each frame rather than being ambient state.
package audio

import "time"

// SampleWidth is the byte width of one sample. The whole pipeline is 16-bit.
const SampleWidth = 2

// FrameSource identifies where an AudioFrame originated.
type FrameSource int

const (
	// SourceMic marks frames captured from the local microphone.
	SourceMic FrameSource = iota

	// SourceRemote marks synthesized frames received from the live session.
	SourceRemote
)

// String returns the human-readable name of the frame source.
func (s FrameSource) String() string {
	switch s {
	case SourceMic:
		return "MIC"
	case SourceRemote:
		return "REMOTE"
	default:
		return "UNKNOWN"
	}
}

// AudioFrame is a single fixed-size block of PCM flowing through the pipeline.
// Frames are immutable once captured: stages read Data but never modify it.
type AudioFrame struct {
	// Data is raw little-endian int16 PCM.
	Data []byte

	// SampleRate in Hz (send rate for mic frames, receive rate for remote).
	SampleRate int

	// Channels is the channel count. The pipeline runs mono throughout.
	Channels int

	// Source tags the frame's origin.
	Source FrameSource

	// Timestamp marks when the frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback duration of the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / (SampleWidth * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
