// Package tts defines the text-to-speech provider abstraction used for the
// spoken startup greeting. Implementations live in sub-packages named after
// their vendor.
package tts

import "context"

// Synthesizer renders text into 16-bit little-endian mono PCM.
type Synthesizer interface {
	// Synthesize returns the rendered PCM and its sample rate.
	Synthesize(ctx context.Context, text string) (pcm []byte, sampleRate int, err error)
}
