// Command kaiwa is the main entry point for the kaiwa voice-and-vision agent.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tsubasakt/kaiwa/internal/app"
	"github.com/tsubasakt/kaiwa/internal/config"
	"github.com/tsubasakt/kaiwa/internal/health"
	"github.com/tsubasakt/kaiwa/internal/observe"
	"github.com/tsubasakt/kaiwa/internal/transcript"
	"github.com/tsubasakt/kaiwa/pkg/gcp"
	geminilive "github.com/tsubasakt/kaiwa/pkg/provider/live/gemini"
	sttgoogle "github.com/tsubasakt/kaiwa/pkg/provider/stt/google"
	ttsgoogle "github.com/tsubasakt/kaiwa/pkg/provider/tts/google"
	"github.com/tsubasakt/kaiwa/pkg/storage/gcs"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "kaiwa: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "kaiwa: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Agent.LogLevel)
	slog.SetDefault(logger)

	slog.Info("kaiwa starting",
		"version", version,
		"config", *configPath,
		"language", cfg.Agent.Language,
		"camera", cfg.Camera.Enabled,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics ───────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	providers, checkers, cleanup, err := buildProviders(ctx, cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer cleanup()

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, providers, app.WithHealthCheckers(checkers...))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("agent ready — speak, type a message, or type 'q' to quit")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildProviders instantiates the live session provider and, when configured,
// the Google Cloud services backing the greeting and the transcript pipeline.
// The returned cleanup releases the database pool.
func buildProviders(ctx context.Context, cfg *config.Config) (*app.Providers, []health.Checker, func(), error) {
	ps := &app.Providers{}
	var checkers []health.Checker
	cleanup := func() {}

	// Live session.
	var liveOpts []geminilive.Option
	if cfg.Session.Model != "" {
		liveOpts = append(liveOpts, geminilive.WithModel(cfg.Session.Model))
	}
	if cfg.Session.BaseURL != "" {
		liveOpts = append(liveOpts, geminilive.WithBaseURL(cfg.Session.BaseURL))
	}
	ps.Live = geminilive.New(cfg.Session.APIKey, liveOpts...)

	// Google Cloud credentials, shared by TTS, STT and storage.
	clientOpts, err := gcp.ClientOptions(ctx, cfg.Google.CredentialsFile)
	if err != nil {
		return nil, nil, nil, err
	}

	// Greeting synthesis.
	if cfg.Agent.Greeting != "" {
		synth, err := ttsgoogle.NewSynthesizer(ctx, clientOpts,
			ttsgoogle.WithLanguage(cfg.Agent.Language))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create synthesizer: %w", err)
		}
		ps.TTS = synth
		slog.Info("provider created", "kind", "tts", "name", "google")
	}

	// Transcript persistence stack.
	if cfg.Database.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		cleanup = pool.Close

		store := transcript.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("migrate transcript store: %w", err)
		}
		ps.Store = store
		checkers = append(checkers, health.Checker{Name: "database", Check: pool.Ping})
		slog.Info("provider created", "kind", "store", "name", "postgres")

		objects, err := gcs.NewStore(ctx, cfg.Google.Bucket, clientOpts...)
		if err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("create object store: %w", err)
		}
		ps.Objects = objects
		slog.Info("provider created", "kind", "storage", "name", "gcs", "bucket", cfg.Google.Bucket)

		recognizer, err := sttgoogle.NewRecognizer(ctx, clientOpts...)
		if err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("create recognizer: %w", err)
		}
		ps.Recognizer = recognizer
		slog.Info("provider created", "kind", "stt", "name", "google")
	}

	return ps, checkers, cleanup, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
