// Package observe provides application-wide observability primitives for
// beepwatch: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all beepwatch metrics.
const meterName = "github.com/MrWong99/beepwatch"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Stream pipeline ---

	// FramesProcessed counts audio frames fed through the segmenter. Use
	// with attribute: attribute.String("decision", "speech"|"silence")
	FramesProcessed metric.Int64Counter

	// UtteranceDuration tracks the duration of flushed clips in seconds.
	UtteranceDuration metric.Float64Histogram

	// UtterancesDiscarded counts clips discarded for being below the
	// minimum length.
	UtterancesDiscarded metric.Int64Counter

	// ClassifyDuration tracks clip classification latency.
	ClassifyDuration metric.Float64Histogram

	// Detections counts classification outcomes. Use with attribute:
	//   attribute.String("label", ...)
	Detections metric.Int64Counter

	// --- Call control ---

	// CallActions counts speak/hangup dispatches. Use with attributes:
	//   attribute.String("action", ...), attribute.String("status", "ok"|"error")
	CallActions metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks the number of live audio stream connections.
	ActiveStreams metric.Int64UpDownCounter

	// ActiveConversations tracks conversations with recorded legs.
	ActiveConversations metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for stream-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesProcessed, err = m.Int64Counter("beepwatch.frames.processed",
		metric.WithDescription("Audio frames fed through the segmenter."),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("beepwatch.utterance.duration",
		metric.WithDescription("Duration of flushed utterance clips."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UtterancesDiscarded, err = m.Int64Counter("beepwatch.utterances.discarded",
		metric.WithDescription("Clips discarded below the minimum length."),
	); err != nil {
		return nil, err
	}
	if met.ClassifyDuration, err = m.Float64Histogram("beepwatch.classify.duration",
		metric.WithDescription("Latency of clip classification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Detections, err = m.Int64Counter("beepwatch.detections",
		metric.WithDescription("Classification outcomes by label."),
	); err != nil {
		return nil, err
	}
	if met.CallActions, err = m.Int64Counter("beepwatch.calls.actions",
		metric.WithDescription("Call-control actions dispatched."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("beepwatch.streams.active",
		metric.WithDescription("Live audio stream connections."),
	); err != nil {
		return nil, err
	}
	if met.ActiveConversations, err = m.Int64UpDownCounter("beepwatch.conversations.active",
		metric.WithDescription("Conversations with recorded legs."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("beepwatch.http.request.duration",
		metric.WithDescription("HTTP request processing time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics holds the lazily created package-level Metrics instance.
var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// from the global meter provider on first use. Instrument creation errors
// are silently ignored here; use [NewMetrics] directly when errors matter.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			m = &Metrics{}
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// RecordDetection increments the detection counter for label, guarding
// against a partially initialised Metrics value.
func (m *Metrics) RecordDetection(ctx context.Context, label string) {
	if m == nil || m.Detections == nil {
		return
	}
	m.Detections.Add(ctx, 1, metric.WithAttributes(attribute.String("label", label)))
}

// RecordCallAction increments the call-action counter for the given action
// and outcome.
func (m *Metrics) RecordCallAction(ctx context.Context, action string, err error) {
	if m == nil || m.CallActions == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.CallActions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("status", status),
	))
}

// RecordUtterance records the duration of a flushed clip in seconds.
func (m *Metrics) RecordUtterance(ctx context.Context, seconds float64) {
	if m == nil || m.UtteranceDuration == nil {
		return
	}
	m.UtteranceDuration.Record(ctx, seconds)
}

// RecordClassifyLatency records how long one clip classification took.
func (m *Metrics) RecordClassifyLatency(ctx context.Context, seconds float64) {
	if m == nil || m.ClassifyDuration == nil {
		return
	}
	m.ClassifyDuration.Record(ctx, seconds)
}

// RecordDiscard increments the discarded-clip counter with a reason.
func (m *Metrics) RecordDiscard(ctx context.Context, reason string) {
	if m == nil || m.UtterancesDiscarded == nil {
		return
	}
	m.UtterancesDiscarded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// AddActiveStreams moves the live-stream gauge by delta.
func (m *Metrics) AddActiveStreams(ctx context.Context, delta int64) {
	if m == nil || m.ActiveStreams == nil {
		return
	}
	m.ActiveStreams.Add(ctx, delta)
}

// AddActiveConversations moves the bound-conversation gauge by delta.
func (m *Metrics) AddActiveConversations(ctx context.Context, delta int64) {
	if m == nil || m.ActiveConversations == nil {
		return
	}
	m.ActiveConversations.Add(ctx, delta)
}

// RecordFrame increments the frame counter with the VAD decision.
func (m *Metrics) RecordFrame(ctx context.Context, speech bool) {
	if m == nil || m.FramesProcessed == nil {
		return
	}
	decision := "silence"
	if speech {
		decision = "speech"
	}
	m.FramesProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
}
