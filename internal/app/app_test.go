package app_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tsubasakt/kaiwa/internal/app"
	"github.com/tsubasakt/kaiwa/internal/config"
	"github.com/tsubasakt/kaiwa/pkg/audio"
	"github.com/tsubasakt/kaiwa/pkg/provider/live"
)

// ── Fakes ─────────────────────────────────────────────────────────────────────

type fakeSessionHandle struct {
	events chan live.Event
	mu     sync.Mutex
	closed bool
}

func (s *fakeSessionHandle) Send(live.OutboundMessage) error { return nil }
func (s *fakeSessionHandle) Events() <-chan live.Event       { return s.events }
func (s *fakeSessionHandle) Err() error                      { return nil }

func (s *fakeSessionHandle) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

type fakeProvider struct {
	mu        sync.Mutex
	lastCfg   live.SessionConfig
	connected bool
}

func (p *fakeProvider) Connect(_ context.Context, cfg live.SessionConfig) (live.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastCfg = cfg
	p.connected = true
	return &fakeSessionHandle{events: make(chan live.Event, 1)}, nil
}

type blockingMic struct{}

func (blockingMic) ReadFrame(ctx context.Context) (audio.AudioFrame, error) {
	<-ctx.Done()
	return audio.AudioFrame{}, ctx.Err()
}

type recordingSpeaker struct {
	mu      sync.Mutex
	written [][]byte
}

func (s *recordingSpeaker) Write(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, pcm)
	return nil
}

type fakeTTS struct {
	pcm  []byte
	rate int
}

func (t *fakeTTS) Synthesize(context.Context, string) ([]byte, int, error) {
	return t.pcm, t.rate, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Session.APIKey = "test"
	config.ApplyDefaults(cfg)
	return cfg
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestNew_RequiresLiveProvider(t *testing.T) {
	t.Parallel()

	_, err := app.New(context.Background(), testConfig(), &app.Providers{})
	if err == nil {
		t.Fatal("New without a live provider should fail")
	}
}

func TestRun_ConnectsWithConfiguredSession(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Agent.Instructions = "You are a companion robot."
	cfg.Session.Voice = "Aoede"

	provider := &fakeProvider{}
	a, err := app.New(context.Background(), cfg, &app.Providers{Live: provider},
		app.WithFrameReader(blockingMic{}),
		app.WithPlayer(&recordingSpeaker{}),
		app.WithInput(strings.NewReader("q\n")),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to finish after quit")
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	if !provider.connected {
		t.Fatal("Run never connected the session")
	}
	if provider.lastCfg.Voice != "Aoede" {
		t.Errorf("session voice = %q; want Aoede", provider.lastCfg.Voice)
	}
	if provider.lastCfg.Instructions != "You are a companion robot." {
		t.Errorf("session instructions = %q", provider.lastCfg.Instructions)
	}
}

func TestRun_SpeaksGreetingBeforeSession(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Agent.Greeting = "こんにちは"

	speaker := &recordingSpeaker{}
	greetingPCM := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	a, err := app.New(context.Background(), cfg, &app.Providers{
		Live: &fakeProvider{},
		TTS:  &fakeTTS{pcm: greetingPCM, rate: cfg.Audio.PlaybackRate},
	},
		app.WithFrameReader(blockingMic{}),
		app.WithPlayer(speaker),
		app.WithInput(strings.NewReader("q\n")),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}

	speaker.mu.Lock()
	defer speaker.mu.Unlock()
	if len(speaker.written) == 0 {
		t.Fatal("greeting was never played")
	}
	if string(speaker.written[0]) != string(greetingPCM) {
		t.Errorf("greeting PCM = %v; want %v", speaker.written[0], greetingPCM)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(), &app.Providers{Live: &fakeProvider{}},
		app.WithFrameReader(blockingMic{}),
		app.WithPlayer(&recordingSpeaker{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
