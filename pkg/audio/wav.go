package audio

import (
	"encoding/binary"
	"fmt"
)

const wavHeaderSize = 44

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container. The returned byte slice is suitable for direct upload
// to object storage or submission to a speech recognizer.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := SampleWidth * 8
	byteRate := sampleRate * channels * SampleWidth
	blockAlign := channels * SampleWidth
	dataSize := len(pcm)

	buf := make([]byte, wavHeaderSize+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))        // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// DecodeWAV parses a RIFF/WAV container produced by EncodeWAV and returns the
// raw PCM payload along with its sample rate and channel count. Only
// uncompressed 16-bit PCM is supported.
func DecodeWAV(wav []byte) (pcm []byte, sampleRate, channels int, err error) {
	if len(wav) < wavHeaderSize {
		return nil, 0, 0, fmt.Errorf("audio: wav too short: %d bytes", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("audio: not a RIFF/WAVE container")
	}
	if string(wav[12:16]) != "fmt " {
		return nil, 0, 0, fmt.Errorf("audio: missing fmt chunk")
	}
	if format := binary.LittleEndian.Uint16(wav[20:22]); format != 1 {
		return nil, 0, 0, fmt.Errorf("audio: unsupported wav format %d (want PCM)", format)
	}
	if bps := binary.LittleEndian.Uint16(wav[34:36]); bps != SampleWidth*8 {
		return nil, 0, 0, fmt.Errorf("audio: unsupported sample width %d bits", bps)
	}

	channels = int(binary.LittleEndian.Uint16(wav[22:24]))
	sampleRate = int(binary.LittleEndian.Uint32(wav[24:28]))

	if string(wav[36:40]) != "data" {
		return nil, 0, 0, fmt.Errorf("audio: missing data chunk")
	}
	dataSize := int(binary.LittleEndian.Uint32(wav[40:44]))
	if wavHeaderSize+dataSize > len(wav) {
		return nil, 0, 0, fmt.Errorf("audio: data chunk size %d exceeds container", dataSize)
	}

	return wav[wavHeaderSize : wavHeaderSize+dataSize], sampleRate, channels, nil
}
