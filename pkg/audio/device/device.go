// Package device wraps PortAudio streams for microphone capture and speaker
// playback. Callers must pair Initialize with Terminate around all stream
// use; both are process-wide.
package device

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Initialize prepares the PortAudio host API. Call once at startup.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("device: initialize portaudio: %w", err)
	}
	return nil
}

// Terminate releases the PortAudio host API. Call once at shutdown, after all
// streams are closed.
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("device: terminate portaudio: %w", err)
	}
	return nil
}

func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

func bytesToSamples(pcm []byte, dst []int16) {
	for i := range dst {
		dst[i] = 0
	}
	n := len(pcm) / 2
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
	}
}
