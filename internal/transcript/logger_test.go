package transcript_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/tsubasakt/kaiwa/internal/observe"
	"github.com/tsubasakt/kaiwa/internal/transcript"
	"github.com/tsubasakt/kaiwa/pkg/audio"
	"github.com/tsubasakt/kaiwa/pkg/provider/stt"
)

// ── Fakes ─────────────────────────────────────────────────────────────────────

type memStore struct {
	mu      sync.Mutex
	records []*transcript.Record
	err     error
}

func (s *memStore) Create(_ context.Context, rec *transcript.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memStore) FindFirst(_ context.Context, f transcript.Filter) (*transcript.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if f.ID != "" && rec.ID != f.ID {
			continue
		}
		if f.Speaker != "" && rec.Speaker != f.Speaker {
			continue
		}
		return rec, nil
	}
	return nil, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type memObjects struct {
	mu           sync.Mutex
	uploads      map[string][]byte
	contentTypes map[string]string
	err          error
}

func newMemObjects() *memObjects {
	return &memObjects{
		uploads:      map[string][]byte{},
		contentTypes: map[string]string{},
	}
}

func (o *memObjects) Upload(_ context.Context, name string, data []byte, contentType string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.uploads[name] = data
	o.contentTypes[name] = contentType
	return nil
}

func (o *memObjects) Download(_ context.Context, name string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.uploads[name]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (o *memObjects) PublicURL(name string) string { return "https://objects.test/" + name }
func (o *memObjects) URI(name string) string       { return "mem://bucket/" + name }

func (o *memObjects) names() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for name := range o.uploads {
		out = append(out, name)
	}
	return out
}

type fakeRecognizer struct {
	mu       sync.Mutex
	requests []stt.Request
	text     string
	err      error
}

func (r *fakeRecognizer) Recognize(_ context.Context, req stt.Request) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return r.text, r.err
}

func (r *fakeRecognizer) lastRequest() stt.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.requests) == 0 {
		return stt.Request{}
	}
	return r.requests[len(r.requests)-1]
}

func userTurn() transcript.Turn {
	return transcript.Turn{
		Speaker:    transcript.SpeakerUser,
		PCM:        []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06},
		SampleRate: 16000,
		Channels:   1,
	}
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestLogger_PersistsTurn(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	objects := newMemObjects()
	recognizer := &fakeRecognizer{text: "こんにちは"}
	logger := transcript.NewLogger(store, objects, recognizer)

	turn := userTurn()
	if err := logger.LogTurn(context.Background(), turn); err != nil {
		t.Fatalf("LogTurn: %v", err)
	}

	names := objects.names()
	if len(names) != 1 {
		t.Fatalf("uploaded %d objects; want 1", len(names))
	}
	name := names[0]
	if !strings.HasSuffix(name, ".wav") {
		t.Errorf("object name = %q; want a .wav suffix", name)
	}
	id := strings.TrimSuffix(name, ".wav")
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("object base name %q is not a UUID: %v", id, err)
	}
	if ct := objects.contentTypes[name]; ct != "audio/wav" {
		t.Errorf("content type = %q; want audio/wav", ct)
	}

	// The stored object is a WAV wrapping the turn's exact PCM.
	pcm, rate, channels, err := audio.DecodeWAV(objects.uploads[name])
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if string(pcm) != string(turn.PCM) || rate != turn.SampleRate || channels != turn.Channels {
		t.Errorf("stored audio = %d bytes @ %d Hz / %d ch; want %d bytes @ %d Hz / %d ch",
			len(pcm), rate, channels, len(turn.PCM), turn.SampleRate, turn.Channels)
	}

	// The recognizer was pointed at the stored object, not inline bytes.
	req := recognizer.lastRequest()
	if req.StorageURI != objects.URI(name) {
		t.Errorf("recognize URI = %q; want %q", req.StorageURI, objects.URI(name))
	}
	if req.SampleRate != turn.SampleRate {
		t.Errorf("recognize sample rate = %d; want %d", req.SampleRate, turn.SampleRate)
	}
	if req.LanguageCode != "ja-JP" {
		t.Errorf("language = %q; want the ja-JP default", req.LanguageCode)
	}

	rec, err := store.FindFirst(context.Background(), transcript.Filter{ID: id})
	if err != nil || rec == nil {
		t.Fatalf("FindFirst(%q) = (%v, %v); want a record", id, rec, err)
	}
	if rec.Speaker != transcript.SpeakerUser {
		t.Errorf("record speaker = %q; want %q", rec.Speaker, transcript.SpeakerUser)
	}
	if rec.Transcript != "こんにちは" {
		t.Errorf("record transcript = %q; want the recognizer output", rec.Transcript)
	}
	if rec.AudioURL != objects.PublicURL(name) {
		t.Errorf("record audio URL = %q; want %q", rec.AudioURL, objects.PublicURL(name))
	}
}

func TestLogger_LanguageOption(t *testing.T) {
	t.Parallel()

	recognizer := &fakeRecognizer{}
	logger := transcript.NewLogger(&memStore{}, newMemObjects(), recognizer,
		transcript.WithLanguage("en-US"))

	if err := logger.LogTurn(context.Background(), userTurn()); err != nil {
		t.Fatalf("LogTurn: %v", err)
	}
	if got := recognizer.lastRequest().LanguageCode; got != "en-US" {
		t.Errorf("language = %q; want en-US", got)
	}
}

func TestLogger_InvalidSpeakerRejected(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	objects := newMemObjects()
	logger := transcript.NewLogger(store, objects, &fakeRecognizer{})

	bad := userTurn()
	bad.Speaker = "BOT"
	err := logger.LogTurn(context.Background(), bad)
	if !errors.Is(err, transcript.ErrInvalidSpeaker) {
		t.Fatalf("LogTurn with speaker BOT = %v; want ErrInvalidSpeaker", err)
	}

	// Rejection happens before any side effect.
	if n := len(objects.names()); n != 0 {
		t.Errorf("uploaded %d objects for a rejected turn; want 0", n)
	}
	if n := store.count(); n != 0 {
		t.Errorf("created %d records for a rejected turn; want 0", n)
	}

	// The next valid turn is unaffected.
	if err := logger.LogTurn(context.Background(), userTurn()); err != nil {
		t.Fatalf("LogTurn after rejection: %v", err)
	}
	if n := store.count(); n != 1 {
		t.Errorf("created %d records; want 1", n)
	}
}

func TestLogger_UploadFailureLeavesNoRecord(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	objects := newMemObjects()
	objects.err = errors.New("bucket unreachable")
	logger := transcript.NewLogger(store, objects, &fakeRecognizer{})

	if err := logger.LogTurn(context.Background(), userTurn()); err == nil {
		t.Fatal("LogTurn with a failing upload should error")
	}
	if n := store.count(); n != 0 {
		t.Errorf("created %d records after a failed upload; want 0", n)
	}

	// Failures are per-turn: once the store recovers the next turn lands.
	objects.err = nil
	if err := logger.LogTurn(context.Background(), userTurn()); err != nil {
		t.Fatalf("LogTurn after recovery: %v", err)
	}
	if n := store.count(); n != 1 {
		t.Errorf("created %d records; want 1", n)
	}
}

func TestLogger_RecognizeFailureLeavesNoRecord(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	recognizer := &fakeRecognizer{err: errors.New("speech api quota exceeded")}
	logger := transcript.NewLogger(store, newMemObjects(), recognizer)

	if err := logger.LogTurn(context.Background(), userTurn()); err == nil {
		t.Fatal("LogTurn with a failing recognizer should error")
	}
	if n := store.count(); n != 0 {
		t.Errorf("created %d records after a failed transcription; want 0", n)
	}
}

func TestLogger_RecordsStageLatencies(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	logger := transcript.NewLogger(&memStore{}, newMemObjects(), &fakeRecognizer{},
		transcript.WithMetrics(metrics))
	if err := logger.LogTurn(context.Background(), userTurn()); err != nil {
		t.Fatalf("LogTurn: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, name := range []string{"kaiwa.upload.duration", "kaiwa.transcription.duration"} {
		hist, ok := findHistogram(rm, name)
		if !ok {
			t.Errorf("metric %q was not recorded", name)
			continue
		}
		if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
			t.Errorf("metric %q has unexpected data points: %+v", name, hist.DataPoints)
		}
	}
}

func findHistogram(rm metricdata.ResourceMetrics, name string) (metricdata.Histogram[float64], bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if hist, ok := m.Data.(metricdata.Histogram[float64]); ok {
				return hist, true
			}
		}
	}
	return metricdata.Histogram[float64]{}, false
}
