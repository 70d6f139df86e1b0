// Package app wires all kaiwa subsystems into a running agent.
//
// The App struct owns the full lifecycle: New opens the audio devices and the
// optional camera, Run speaks the greeting, connects the live session and
// drives the conversation loop, and Shutdown tears everything down in order.
//
// For testing, inject fake devices via functional options (WithFrameReader,
// WithPlayer, etc.). When an option is not provided, New opens the real
// hardware.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tsubasakt/kaiwa/internal/config"
	"github.com/tsubasakt/kaiwa/internal/health"
	"github.com/tsubasakt/kaiwa/internal/loop"
	"github.com/tsubasakt/kaiwa/internal/transcript"
	"github.com/tsubasakt/kaiwa/pkg/audio"
	"github.com/tsubasakt/kaiwa/pkg/audio/device"
	"github.com/tsubasakt/kaiwa/pkg/camera"
	"github.com/tsubasakt/kaiwa/pkg/provider/live"
	"github.com/tsubasakt/kaiwa/pkg/provider/stt"
	"github.com/tsubasakt/kaiwa/pkg/provider/tts"
	"github.com/tsubasakt/kaiwa/pkg/storage"
)

// Providers holds one interface value per provider slot. Live is required;
// nil for the rest means the matching feature is disabled. Populated by
// main.go from the config.
type Providers struct {
	Live       live.Provider
	TTS        tts.Synthesizer
	Recognizer stt.Recognizer
	Objects    storage.ObjectStore
	Store      transcript.Store
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	mic     loop.FrameReader
	speaker loop.Player
	cam     camera.Source
	input   io.Reader
	logger  *transcript.Logger

	checkers  []health.Checker
	healthSrv *http.Server

	session live.SessionHandle

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithFrameReader injects a microphone source instead of opening PortAudio.
func WithFrameReader(r loop.FrameReader) Option {
	return func(a *App) { a.mic = r }
}

// WithPlayer injects a speaker sink instead of opening PortAudio.
func WithPlayer(p loop.Player) Option {
	return func(a *App) { a.speaker = p }
}

// WithCameraSource injects a camera instead of probing a real device.
func WithCameraSource(s camera.Source) Option {
	return func(a *App) { a.cam = s }
}

// WithInput injects the command stream instead of os.Stdin.
func WithInput(r io.Reader) Option {
	return func(a *App) { a.input = r }
}

// WithHealthCheckers adds readiness checks to the HTTP surface.
func WithHealthCheckers(checkers ...health.Checker) Option {
	return func(a *App) { a.checkers = append(a.checkers, checkers...) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go. Use Option functions to inject test doubles for any
// device.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Live == nil {
		return nil, fmt.Errorf("app: live provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initDevices(); err != nil {
		return nil, fmt.Errorf("app: init audio devices: %w", err)
	}
	a.initCamera()
	a.initTranscript()
	a.initHealth()

	return a, nil
}

// initDevices opens the PortAudio capture and playback streams unless fakes
// were injected.
func (a *App) initDevices() error {
	if a.mic != nil && a.speaker != nil {
		return nil
	}

	if err := device.Initialize(); err != nil {
		return err
	}
	a.closers = append(a.closers, device.Terminate)

	if a.mic == nil {
		capture, err := device.OpenCapture(a.cfg.Audio.CaptureRate, a.cfg.Audio.FrameLength.Std())
		if err != nil {
			return err
		}
		a.mic = capture
		a.closers = append(a.closers, capture.Close)
	}
	if a.speaker == nil {
		playback, err := device.OpenPlayback(a.cfg.Audio.PlaybackRate)
		if err != nil {
			return err
		}
		a.speaker = playback
		a.closers = append(a.closers, playback.Close)
	}
	return nil
}

// initCamera probes the camera when enabled. A missing camera is not fatal;
// the agent runs voice-only.
func (a *App) initCamera() {
	if a.cam != nil || !a.cfg.Camera.Enabled {
		return
	}

	src, err := camera.Probe(camera.Config{
		DevicePath: a.cfg.Camera.Device,
		MaxWidth:   a.cfg.Camera.MaxWidth,
		MaxHeight:  a.cfg.Camera.MaxHeight,
	})
	if err != nil {
		slog.Warn("camera unavailable, running voice-only", "error", err)
		return
	}
	a.cam = src
	a.closers = append(a.closers, src.Close)
}

// initTranscript builds the turn logger when the full persistence stack is
// configured.
func (a *App) initTranscript() {
	p := a.providers
	if p.Store == nil || p.Objects == nil || p.Recognizer == nil {
		slog.Info("transcript persistence disabled")
		return
	}
	a.logger = transcript.NewLogger(p.Store, p.Objects, p.Recognizer,
		transcript.WithLanguage(a.cfg.Agent.Language))
}

// initHealth prepares the HTTP probe server when an address is configured.
func (a *App) initHealth() {
	if a.cfg.Agent.HealthAddr == "" {
		return
	}

	checkers := []health.Checker{
		{Name: "session", Check: func(context.Context) error {
			if a.session == nil {
				return errors.New("not connected")
			}
			if err := a.session.Err(); err != nil {
				return err
			}
			return nil
		}},
	}
	if a.cfg.Camera.Enabled {
		// The agent keeps running voice-only without a camera, so a missing
		// one only degrades readiness.
		checkers = append(checkers, health.Checker{
			Name:     "camera",
			Optional: true,
			Check: func(context.Context) error {
				if a.cam == nil {
					return errors.New("no capture device")
				}
				return nil
			},
		})
	}
	checkers = append(checkers, a.checkers...)

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	a.healthSrv = &http.Server{
		Addr:              a.cfg.Agent.HealthAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run speaks the greeting, connects the live session, and drives the
// conversation loop until ctx is cancelled or the user quits.
func (a *App) Run(ctx context.Context) error {
	if err := a.speakGreeting(ctx); err != nil {
		// A failed greeting should not stop the conversation.
		slog.Warn("greeting failed", "error", err)
	}

	session, err := a.providers.Live.Connect(ctx, live.SessionConfig{
		Voice:        a.cfg.Session.Voice,
		Instructions: a.cfg.Agent.Instructions,
	})
	if err != nil {
		return fmt.Errorf("app: connect session: %w", err)
	}
	a.session = session
	defer session.Close()

	l, err := loop.New(loop.Config{
		Session:           session,
		Mic:               a.mic,
		Speaker:           a.speaker,
		Camera:            a.cam,
		Logger:            a.turnLogger(),
		Input:             a.input,
		FrameInterval:     a.cfg.Camera.FrameInterval.Std(),
		ReceiveSampleRate: a.cfg.Audio.PlaybackRate,
		SegmenterOptions: []loop.SegmenterOption{
			loop.WithVoiceThreshold(a.cfg.Audio.VoiceThreshold),
			loop.WithSilenceTimeout(a.cfg.Audio.SilenceTimeout.Std()),
			loop.WithMinTurnBytes(a.cfg.Audio.MinTurnBytes),
		},
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.Run(ctx) })
	if a.healthSrv != nil {
		g.Go(func() error { return a.serveHealth(ctx) })
	}
	return g.Wait()
}

// turnLogger adapts the optional transcript logger to the loop's interface
// without handing it a typed nil.
func (a *App) turnLogger() loop.TurnLogger {
	if a.logger == nil {
		return nil
	}
	return a.logger
}

// speakGreeting synthesizes and plays the configured greeting, resampling it
// to the playback rate.
func (a *App) speakGreeting(ctx context.Context) error {
	if a.cfg.Agent.Greeting == "" || a.providers.TTS == nil {
		return nil
	}

	pcm, rate, err := a.providers.TTS.Synthesize(ctx, a.cfg.Agent.Greeting)
	if err != nil {
		return fmt.Errorf("synthesize greeting: %w", err)
	}
	if rate != a.cfg.Audio.PlaybackRate {
		pcm = audio.ResampleMono16(pcm, rate, a.cfg.Audio.PlaybackRate)
	}
	if err := a.speaker.Write(ctx, pcm); err != nil {
		return fmt.Errorf("play greeting: %w", err)
	}
	slog.Info("greeting spoken", "text", a.cfg.Agent.Greeting)
	return nil
}

// serveHealth runs the probe server until ctx is cancelled.
func (a *App) serveHealth(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.healthSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.healthSrv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: health server: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse initialisation order.
// Idempotent.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if a.session != nil {
			if err := a.session.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
