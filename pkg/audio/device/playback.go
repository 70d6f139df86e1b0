package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// DefaultPlaybackRate matches the sample rate of audio streamed back by the
// conversation session.
const DefaultPlaybackRate = 24000

const playbackFramesPerBuffer = 1024

// PlaybackStream writes PCM to the default output device.
type PlaybackStream struct {
	stream *portaudio.Stream
	buf    []int16
}

// OpenPlayback opens the default output device at the given rate. A zero rate
// uses the package default.
func OpenPlayback(sampleRate int) (*PlaybackStream, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultPlaybackRate
	}

	buf := make([]int16, playbackFramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), playbackFramesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("device: open playback stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("device: start playback stream: %w", err)
	}
	return &PlaybackStream{stream: stream, buf: buf}, nil
}

// Write plays the PCM chunk, blocking until the device has consumed it. The
// final partial buffer is zero-padded. Output underflows are tolerated; they
// show up as a brief glitch, not data loss.
func (p *PlaybackStream) Write(ctx context.Context, pcm []byte) error {
	chunk := len(p.buf) * 2
	for off := 0; off < len(pcm); off += chunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := off + chunk
		if end > len(pcm) {
			end = len(pcm)
		}
		bytesToSamples(pcm[off:end], p.buf)
		if err := p.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("device: write playback stream: %w", err)
		}
	}
	return nil
}

// Close stops and releases the stream.
func (p *PlaybackStream) Close() error {
	if err := p.stream.Close(); err != nil {
		return fmt.Errorf("device: close playback stream: %w", err)
	}
	return nil
}
