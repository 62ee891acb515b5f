// Package observe provides application-wide observability primitives for
// voxscribe: OpenTelemetry metrics, an HTTP middleware, and the Prometheus
// exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxscribe metrics.
const meterName = "github.com/voxscribe/voxscribe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Histograms ---

	// SegmentDuration tracks the audio length of finalized segments.
	// Use with attribute.String("reason", ...).
	SegmentDuration metric.Float64Histogram

	// TranscribeDuration tracks transcription request latency.
	// Use with attribute.String("backend", ...).
	TranscribeDuration metric.Float64Histogram

	// CorrectDuration tracks transcript correction latency.
	CorrectDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// SegmentsFinalized counts finalized segments by reason
	// (duration-threshold, safety-net, silence-timeout, disconnect).
	SegmentsFinalized metric.Int64Counter

	// SegmentsDropped counts segments discarded before transcription.
	// Use with attribute.String("cause", ...): "too_short", "queue_full",
	// "downstream".
	SegmentsDropped metric.Int64Counter

	// FramesDropped counts inbound audio frames dropped because a
	// speaker's ingest queue was full.
	FramesDropped metric.Int64Counter

	// TimerEvents counts silence-timer lifecycle transitions. Use with
	// attribute.String("event", ...): "armed", "cancelled", "fired". For
	// any healthy run, armed equals cancelled + fired + currently-armed —
	// a growing imbalance indicates leaked timers.
	TimerEvents metric.Int64Counter

	// TranscribeErrors counts failed transcription requests by backend.
	TranscribeErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSpeakers tracks the number of speakers with a live session
	// (buffered audio or an armed timer).
	ActiveSpeakers metric.Int64UpDownCounter
}

// segmentBuckets defines histogram bucket boundaries (in seconds) for
// segment audio lengths: anything from a clipped word to the safety-net cap.
var segmentBuckets = []float64{
	0.25, 0.5, 1, 2, 3, 5, 8, 10, 15,
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// request latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SegmentDuration, err = m.Float64Histogram("voxscribe.segment.duration",
		metric.WithDescription("Audio length of finalized utterance segments."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(segmentBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscribeDuration, err = m.Float64Histogram("voxscribe.transcribe.duration",
		metric.WithDescription("Latency of transcription requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CorrectDuration, err = m.Float64Histogram("voxscribe.correct.duration",
		metric.WithDescription("Latency of transcript correction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxscribe.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SegmentsFinalized, err = m.Int64Counter("voxscribe.segments.finalized",
		metric.WithDescription("Total finalized segments by finalize reason."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsDropped, err = m.Int64Counter("voxscribe.segments.dropped",
		metric.WithDescription("Total segments discarded before transcription, by cause."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("voxscribe.frames.dropped",
		metric.WithDescription("Total inbound frames dropped due to a full speaker queue."),
	); err != nil {
		return nil, err
	}
	if met.TimerEvents, err = m.Int64Counter("voxscribe.timer.events",
		metric.WithDescription("Silence-timer lifecycle transitions by event."),
	); err != nil {
		return nil, err
	}
	if met.TranscribeErrors, err = m.Int64Counter("voxscribe.transcribe.errors",
		metric.WithDescription("Total failed transcription requests by backend."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSpeakers, err = m.Int64UpDownCounter("voxscribe.active_speakers",
		metric.WithDescription("Number of speakers with a live accumulation session."),
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSegment records one finalized segment: the finalized counter and the
// duration histogram, both tagged with the finalize reason.
func (m *Metrics) RecordSegment(ctx context.Context, reason string, audioLen time.Duration) {
	attrs := metric.WithAttributes(attribute.String("reason", reason))
	m.SegmentsFinalized.Add(ctx, 1, attrs)
	m.SegmentDuration.Record(ctx, audioLen.Seconds(), attrs)
}

// RecordSegmentDropped increments the dropped-segment counter with the given cause.
func (m *Metrics) RecordSegmentDropped(ctx context.Context, cause string) {
	m.SegmentsDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", cause)))
}

// RecordTimerEvent increments the timer-event counter for one lifecycle transition.
func (m *Metrics) RecordTimerEvent(ctx context.Context, event string) {
	m.TimerEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

// RecordTranscribe records the latency and outcome of one transcription request.
func (m *Metrics) RecordTranscribe(ctx context.Context, backend string, d time.Duration, err error) {
	m.TranscribeDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("backend", backend)))
	if err != nil {
		m.TranscribeErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("backend", backend)))
	}
}
