package audio

import (
	"encoding/binary"
	"math"
)

// MeanAbsAmplitude returns the mean absolute amplitude of a 16-bit signed
// little-endian PCM buffer, expressed in PCM sample units (0–32768). Returns 0
// for buffers shorter than one sample. Any trailing odd byte is ignored.
//
// This is the measure the voice-activity segmenter thresholds on; it is cheap
// enough to run synchronously on every 100 ms frame.
func MeanAbsAmplitude(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		sum += math.Abs(float64(sample))
	}
	return sum / float64(n)
}

// IsSilence reports whether every byte in the buffer is zero. The receive
// path uses this to suppress system turns that contain no audible content.
func IsSilence(pcm []byte) bool {
	for _, b := range pcm {
		if b != 0 {
			return false
		}
	}
	return true
}
