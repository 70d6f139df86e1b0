// Package google implements the tts.Synthesizer interface on top of the
// Google Cloud Text-to-Speech v1 REST API.
package google

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"

	"github.com/tsubasakt/kaiwa/pkg/audio"
	"github.com/tsubasakt/kaiwa/pkg/provider/tts"
)

const defaultLanguage = "ja-JP"

// Synthesizer renders text with Cloud Text-to-Speech.
type Synthesizer struct {
	svc      *texttospeech.Service
	language string
	voice    string
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithLanguage overrides the default ja-JP language code.
func WithLanguage(code string) Option {
	return func(s *Synthesizer) {
		s.language = code
	}
}

// WithVoice selects a specific voice name instead of the language default.
func WithVoice(name string) Option {
	return func(s *Synthesizer) {
		s.voice = name
	}
}

// NewSynthesizer builds a synthesizer using the given client options.
func NewSynthesizer(ctx context.Context, clientOpts []option.ClientOption, opts ...Option) (*Synthesizer, error) {
	svc, err := texttospeech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("tts/google: create texttospeech service: %w", err)
	}
	s := &Synthesizer{svc: svc, language: defaultLanguage}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Synthesize implements tts.Synthesizer. LINEAR16 responses arrive as a WAV
// container, so the header is stripped before returning raw PCM.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, int, error) {
	resp, err := s.svc.Text.Synthesize(&texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: s.language,
			Name:         s.voice,
		},
		AudioConfig: &texttospeech.AudioConfig{AudioEncoding: "LINEAR16"},
	}).Context(ctx).Do()
	if err != nil {
		return nil, 0, fmt.Errorf("tts/google: synthesize: %w", err)
	}

	wav, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, 0, fmt.Errorf("tts/google: decode audio content: %w", err)
	}

	pcm, rate, channels, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, 0, fmt.Errorf("tts/google: parse synthesized wav: %w", err)
	}
	if channels != 1 {
		return nil, 0, fmt.Errorf("tts/google: expected mono audio, got %d channels", channels)
	}
	return pcm, rate, nil
}
