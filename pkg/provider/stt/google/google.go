// Package google implements the stt.Recognizer interface on top of the Google
// Cloud Speech-to-Text v1 REST API.
package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	speech "google.golang.org/api/speech/v1"
	"google.golang.org/api/option"

	"github.com/tsubasakt/kaiwa/pkg/provider/stt"
)

// Recognizer transcribes PCM utterances with Cloud Speech-to-Text.
type Recognizer struct {
	svc *speech.Service
}

var _ stt.Recognizer = (*Recognizer)(nil)

// NewRecognizer builds a recognizer using the given client options. Pass the
// options from gcp.ClientOptions so the recognizer shares credentials with the
// other Google services.
func NewRecognizer(ctx context.Context, opts ...option.ClientOption) (*Recognizer, error) {
	svc, err := speech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("stt/google: create speech service: %w", err)
	}
	return &Recognizer{svc: svc}, nil
}

// Recognize implements stt.Recognizer. It runs synchronous recognition, which
// Cloud Speech limits to roughly one minute of audio. Turns segmented by the
// conversation loop stay well under that.
func (r *Recognizer) Recognize(ctx context.Context, req stt.Request) (string, error) {
	if req.Content == nil && req.StorageURI == "" {
		return "", fmt.Errorf("stt/google: request has neither content nor storage URI")
	}

	audio := &speech.RecognitionAudio{}
	if req.StorageURI != "" {
		audio.Uri = req.StorageURI
	} else {
		audio.Content = base64.StdEncoding.EncodeToString(req.Content)
	}

	resp, err := r.svc.Speech.Recognize(&speech.RecognizeRequest{
		Config: &speech.RecognitionConfig{
			Encoding:        "LINEAR16",
			SampleRateHertz: int64(req.SampleRate),
			LanguageCode:    req.LanguageCode,
		},
		Audio: audio,
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("stt/google: recognize: %w", err)
	}

	var sb strings.Builder
	for _, res := range resp.Results {
		if len(res.Alternatives) == 0 {
			continue
		}
		sb.WriteString(res.Alternatives[0].Transcript)
	}
	return sb.String(), nil
}
