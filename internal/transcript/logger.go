package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tsubasakt/kaiwa/internal/observe"
	"github.com/tsubasakt/kaiwa/pkg/audio"
	"github.com/tsubasakt/kaiwa/pkg/provider/stt"
	"github.com/tsubasakt/kaiwa/pkg/storage"
)

const defaultLanguage = "ja-JP"

// Logger turns closed conversation turns into durable transcript records.
//
// For each turn it wraps the PCM in a WAV container, uploads the object under
// a fresh UUID, asks the recognizer for a transcript of the stored object, and
// inserts a [Record]. Turns are independent: a failure on one turn never
// affects the next.
type Logger struct {
	store      Store
	objects    storage.ObjectStore
	recognizer stt.Recognizer
	language   string
	metrics    *observe.Metrics
}

// Option configures a [Logger].
type Option func(*Logger)

// WithLanguage sets the BCP-47 language tag passed to the recognizer.
// The default is "ja-JP".
func WithLanguage(tag string) Option {
	return func(l *Logger) { l.language = tag }
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Logger) { l.metrics = m }
}

// NewLogger creates a Logger writing records to store, audio objects to
// objects, and requesting transcripts from recognizer.
func NewLogger(store Store, objects storage.ObjectStore, recognizer stt.Recognizer, opts ...Option) *Logger {
	l := &Logger{
		store:      store,
		objects:    objects,
		recognizer: recognizer,
		language:   defaultLanguage,
		metrics:    observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogTurn persists a single closed turn. An invalid speaker tag is reported
// as an error wrapping [ErrInvalidSpeaker] before any upload happens; upload,
// recognition, and insert failures are returned to the caller, which is
// expected to log them and continue with the next turn.
func (l *Logger) LogTurn(ctx context.Context, t Turn) error {
	if !t.Speaker.Valid() {
		return fmt.Errorf("transcript: speaker %q: %w", t.Speaker, ErrInvalidSpeaker)
	}

	id := uuid.NewString()
	name := id + ".wav"
	wav := audio.EncodeWAV(t.PCM, t.SampleRate, t.Channels)

	start := time.Now()
	if err := l.objects.Upload(ctx, name, wav, "audio/wav"); err != nil {
		return fmt.Errorf("transcript: upload %s: %w", name, err)
	}
	l.metrics.UploadDuration.Record(ctx, time.Since(start).Seconds())

	start = time.Now()
	text, err := l.recognizer.Recognize(ctx, stt.Request{
		StorageURI:   l.objects.URI(name),
		SampleRate:   t.SampleRate,
		LanguageCode: l.language,
	})
	if err != nil {
		return fmt.Errorf("transcript: recognize %s: %w", name, err)
	}
	l.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())

	rec := &Record{
		ID:         id,
		AudioURL:   l.objects.PublicURL(name),
		Transcript: text,
		Speaker:    t.Speaker,
	}
	if err := l.store.Create(ctx, rec); err != nil {
		return fmt.Errorf("transcript: record %s: %w", id, err)
	}

	slog.Info("transcript recorded",
		"id", id,
		"speaker", t.Speaker,
		"duration", t.Duration(),
		"chars", len(text),
	)
	return nil
}
