// Package observe provides application-wide observability primitives for
// intervox: OpenTelemetry metrics, distributed tracing, structured logging,
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all intervox metrics.
const meterName = "github.com/intervox/intervox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks how long handling one candidate utterance takes,
	// from receipt to decision.
	TurnDuration metric.Float64Histogram

	// LLMDuration tracks language-model call latency (follow-up generation
	// and narrative synthesis).
	LLMDuration metric.Float64Histogram

	// FinalizeDuration tracks end-of-session finalization latency.
	FinalizeDuration metric.Float64Histogram

	// --- Score distributions ---

	// QualityScore records the per-turn quality verdict score (0-100).
	QualityScore metric.Int64Histogram

	// ConfidenceScore records the per-turn confidence score (0-100).
	ConfidenceScore metric.Int64Histogram

	// --- Counters ---

	// Turns counts accepted turns. Use with attribute:
	//   attribute.String("phase", ...)
	Turns metric.Int64Counter

	// DroppedUtterances counts utterances rejected by the turn guards.
	DroppedUtterances metric.Int64Counter

	// FillerWords counts detected filler-word occurrences.
	FillerWords metric.Int64Counter

	// ReportDeliveries counts report persistence and upload outcomes. Use
	// with attributes:
	//   attribute.String("sink", ...), attribute.String("status", ...)
	ReportDeliveries metric.Int64Counter

	// ProviderErrors counts language-model provider errors. Use with
	// attribute: attribute.String("operation", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of interview sessions in flight.
	ActiveSessions metric.Int64UpDownCounter

	// LiveSubscribers tracks connected live-metrics websocket clients.
	LiveSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// turn handling and model-call latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// scoreBuckets defines bucket boundaries for the 0-100 score histograms.
var scoreBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("intervox.turn.duration",
		metric.WithDescription("Latency of handling one candidate utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("intervox.llm.duration",
		metric.WithDescription("Latency of language-model calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FinalizeDuration, err = m.Float64Histogram("intervox.finalize.duration",
		metric.WithDescription("Latency of end-of-session finalization."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Score distributions.
	if met.QualityScore, err = m.Int64Histogram("intervox.score.quality",
		metric.WithDescription("Distribution of per-turn quality scores."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ConfidenceScore, err = m.Int64Histogram("intervox.score.confidence",
		metric.WithDescription("Distribution of per-turn confidence scores."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("intervox.turns",
		metric.WithDescription("Total accepted turns by phase."),
	); err != nil {
		return nil, err
	}
	if met.DroppedUtterances, err = m.Int64Counter("intervox.utterances.dropped",
		metric.WithDescription("Total utterances rejected by turn guards."),
	); err != nil {
		return nil, err
	}
	if met.FillerWords, err = m.Int64Counter("intervox.filler_words",
		metric.WithDescription("Total detected filler-word occurrences."),
	); err != nil {
		return nil, err
	}
	if met.ReportDeliveries, err = m.Int64Counter("intervox.report.deliveries",
		metric.WithDescription("Total report persistence and upload outcomes by sink and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("intervox.provider.errors",
		metric.WithDescription("Total language-model provider errors by operation."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("intervox.active_sessions",
		metric.WithDescription("Number of interview sessions in flight."),
	); err != nil {
		return nil, err
	}
	if met.LiveSubscribers, err = m.Int64UpDownCounter("intervox.live_subscribers",
		metric.WithDescription("Number of connected live-metrics websocket clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("intervox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// RecordTurn records one accepted turn with its score distributions.
func (m *Metrics) RecordTurn(ctx context.Context, phase string, quality, confidence int) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("phase", phase)),
	)
	m.QualityScore.Record(ctx, int64(quality))
	m.ConfidenceScore.Record(ctx, int64(confidence))
}

// RecordReportDelivery records a persistence or upload outcome.
func (m *Metrics) RecordReportDelivery(ctx context.Context, sink, status string) {
	m.ReportDeliveries.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("sink", sink),
			attribute.String("status", status),
		),
	)
}

// RecordLLMCall records the latency of one language-model call.
func (m *Metrics) RecordLLMCall(ctx context.Context, operation string, elapsed time.Duration) {
	m.LLMDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("operation", operation)),
	)
}

// RecordProviderError records a language-model provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, operation string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("operation", operation)),
	)
}
