// Package stt defines the speech-to-text provider abstraction. Implementations
// live in sub-packages named after their vendor.
package stt

import "context"

// Request describes one recognition job. Exactly one of Content or StorageURI
// must be set: Content holds raw 16-bit little-endian mono PCM, StorageURI
// points at a WAV object already uploaded to the provider's storage.
type Request struct {
	Content      []byte
	StorageURI   string
	SampleRate   int
	LanguageCode string
}

// Recognizer transcribes a single utterance.
type Recognizer interface {
	// Recognize returns the transcript for the request audio. An empty
	// transcript with a nil error means the provider recognized no speech.
	Recognize(ctx context.Context, req Request) (string, error)
}
