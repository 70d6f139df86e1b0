// Package observe provides application-wide observability primitives for
// kaiwa: OpenTelemetry metrics and the Prometheus exporter bridge that makes
// them scrapeable via the standard /metrics endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all kaiwa metrics.
const meterName = "github.com/tsubasakt/kaiwa"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TurnDuration tracks the audio length of completed turns in seconds.
	// Use with attribute.String("speaker", ...).
	TurnDuration metric.Float64Histogram

	// TranscriptionDuration tracks speech-to-text transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// UploadDuration tracks audio archive upload latency.
	UploadDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts completed conversation turns. Use with attributes:
	//   attribute.String("speaker", ...)
	Turns metric.Int64Counter

	// FramesCaptured counts microphone frames read, including frames
	// discarded while the assistant is speaking. Use with attribute:
	//   attribute.String("outcome", "sent"|"discarded")
	FramesCaptured metric.Int64Counter

	// CameraFrames counts camera frames sent to the session.
	CameraFrames metric.Int64Counter

	// Interruptions counts responses the assistant abandoned because the
	// user started speaking over them.
	Interruptions metric.Int64Counter

	// --- Error counters ---

	// PipelineErrors counts recoverable pipeline failures. Use with
	// attributes: attribute.String("stage", ...)
	PipelineErrors metric.Int64Counter

	// --- Gauges ---

	// PlaybackBacklog tracks queued playback chunks awaiting the speaker.
	PlaybackBacklog metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// turnBuckets covers typical utterance lengths.
var turnBuckets = []float64{
	0.5, 1, 2, 4, 8, 15, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("kaiwa.turn.duration",
		metric.WithDescription("Audio length of completed turns by speaker."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(turnBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("kaiwa.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UploadDuration, err = m.Float64Histogram("kaiwa.upload.duration",
		metric.WithDescription("Latency of audio archive uploads."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("kaiwa.turns",
		metric.WithDescription("Total completed conversation turns by speaker."),
	); err != nil {
		return nil, err
	}
	if met.FramesCaptured, err = m.Int64Counter("kaiwa.frames.captured",
		metric.WithDescription("Total microphone frames read by outcome."),
	); err != nil {
		return nil, err
	}
	if met.CameraFrames, err = m.Int64Counter("kaiwa.camera.frames",
		metric.WithDescription("Total camera frames sent to the session."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("kaiwa.interruptions",
		metric.WithDescription("Total assistant responses abandoned due to barge-in."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.PipelineErrors, err = m.Int64Counter("kaiwa.pipeline.errors",
		metric.WithDescription("Total recoverable pipeline failures by stage."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.PlaybackBacklog, err = m.Int64UpDownCounter("kaiwa.playback.backlog",
		metric.WithDescription("Queued playback chunks awaiting the speaker."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordTurn records one completed turn with its audio length.
func (m *Metrics) RecordTurn(ctx context.Context, speaker string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("speaker", speaker))
	m.Turns.Add(ctx, 1, attrs)
	m.TurnDuration.Record(ctx, seconds, attrs)
}

// RecordFrame records one microphone frame read with its outcome.
func (m *Metrics) RecordFrame(ctx context.Context, outcome string) {
	m.FramesCaptured.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordPipelineError records one recoverable failure in the named stage.
func (m *Metrics) RecordPipelineError(ctx context.Context, stage string) {
	m.PipelineErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
