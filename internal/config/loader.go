package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults] for fields left at their zero value.
const (
	DefaultLanguage       = "ja-JP"
	DefaultCaptureRate    = 16000
	DefaultPlaybackRate   = 24000
	DefaultFrameLength    = 100 * time.Millisecond
	DefaultVoiceThreshold = 500.0
	DefaultSilenceTimeout = 3 * time.Second
	DefaultMinTurnBytes   = 3200
	DefaultFrameInterval  = 2 * time.Second
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Agent.LogLevel == "" {
		cfg.Agent.LogLevel = LogInfo
	}
	if cfg.Agent.Language == "" {
		cfg.Agent.Language = DefaultLanguage
	}
	if cfg.Audio.CaptureRate <= 0 {
		cfg.Audio.CaptureRate = DefaultCaptureRate
	}
	if cfg.Audio.PlaybackRate <= 0 {
		cfg.Audio.PlaybackRate = DefaultPlaybackRate
	}
	if cfg.Audio.FrameLength <= 0 {
		cfg.Audio.FrameLength = Duration(DefaultFrameLength)
	}
	if cfg.Audio.VoiceThreshold <= 0 {
		cfg.Audio.VoiceThreshold = DefaultVoiceThreshold
	}
	if cfg.Audio.SilenceTimeout <= 0 {
		cfg.Audio.SilenceTimeout = Duration(DefaultSilenceTimeout)
	}
	if cfg.Audio.MinTurnBytes <= 0 {
		cfg.Audio.MinTurnBytes = DefaultMinTurnBytes
	}
	if cfg.Camera.FrameInterval <= 0 {
		cfg.Camera.FrameInterval = Duration(DefaultFrameInterval)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Agent.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("agent.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Agent.LogLevel))
	}

	if cfg.Session.APIKey == "" {
		errs = append(errs, errors.New("session.api_key is required"))
	}

	if fl := cfg.Audio.FrameLength.Std(); fl < 10*time.Millisecond || fl > time.Second {
		errs = append(errs, fmt.Errorf("audio.frame_length %v is out of range [10ms, 1s]", fl))
	}
	if cfg.Audio.SilenceTimeout < cfg.Audio.FrameLength {
		errs = append(errs, fmt.Errorf("audio.silence_timeout %v must be at least one frame (%v)", cfg.Audio.SilenceTimeout.Std(), cfg.Audio.FrameLength.Std()))
	}

	// Transcript persistence needs the full Google stack: audio is archived
	// to Cloud Storage and transcribed from there.
	if cfg.Database.PostgresDSN != "" && cfg.Google.Bucket == "" {
		errs = append(errs, errors.New("google.bucket is required when database.postgres_dsn is set"))
	}

	if cfg.Database.PostgresDSN == "" {
		slog.Warn("database.postgres_dsn is empty; conversation turns will not be persisted")
	}
	if cfg.Agent.Greeting != "" && cfg.Google.CredentialsFile == "" {
		slog.Warn("agent.greeting is set without google.credentials_file; synthesis will rely on application default credentials")
	}

	return errors.Join(errs...)
}
