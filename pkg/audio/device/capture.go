package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/tsubasakt/kaiwa/pkg/audio"
)

// Capture defaults matching the conversation loop's expectations: 100 ms
// frames of 16 kHz mono PCM.
const (
	DefaultCaptureRate = 16000
	DefaultFrameLen    = 100 * time.Millisecond
)

// CaptureStream reads fixed-duration frames from the default input device.
type CaptureStream struct {
	stream     *portaudio.Stream
	buf        []int16
	sampleRate int
	frameLen   time.Duration
	elapsed    time.Duration
}

// OpenCapture opens the default input device at the given rate, reading
// frameLen of audio per call. Zero values use the package defaults.
func OpenCapture(sampleRate int, frameLen time.Duration) (*CaptureStream, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultCaptureRate
	}
	if frameLen <= 0 {
		frameLen = DefaultFrameLen
	}

	framesPerBuffer := int(time.Duration(sampleRate) * frameLen / time.Second)
	buf := make([]int16, framesPerBuffer)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("device: open capture stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("device: start capture stream: %w", err)
	}
	return &CaptureStream{
		stream:     stream,
		buf:        buf,
		sampleRate: sampleRate,
		frameLen:   frameLen,
	}, nil
}

// ReadFrame blocks until one frame of audio is available and returns it as an
// AudioFrame stamped with the cumulative capture time. An input overflow
// means the host dropped samples while we were busy; the partial frame is
// still returned.
func (c *CaptureStream) ReadFrame(ctx context.Context) (audio.AudioFrame, error) {
	if err := ctx.Err(); err != nil {
		return audio.AudioFrame{}, err
	}

	if err := c.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return audio.AudioFrame{}, fmt.Errorf("device: read capture stream: %w", err)
	}

	frame := audio.AudioFrame{
		Data:       samplesToBytes(c.buf),
		SampleRate: c.sampleRate,
		Channels:   1,
		Source:     audio.SourceMic,
		Timestamp:  c.elapsed,
	}
	c.elapsed += c.frameLen
	return frame, nil
}

// Close stops and releases the stream.
func (c *CaptureStream) Close() error {
	if err := c.stream.Close(); err != nil {
		return fmt.Errorf("device: close capture stream: %w", err)
	}
	return nil
}
