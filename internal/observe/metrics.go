// Package observe provides observability primitives for the screening
// service: OpenTelemetry metrics, structured logging setup, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is set up by [InitProvider] so that metrics are scraped
// via the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/watchgate/watchgate"

// Metrics holds all OpenTelemetry metric instruments for the service.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per screening stage ---

	// ScreenDuration tracks end-to-end screening call latency.
	ScreenDuration metric.Float64Histogram

	// EmbedDuration tracks query-embedding latency.
	EmbedDuration metric.Float64Histogram

	// RetrieveDuration tracks candidate retrieval latency (both legs).
	RetrieveDuration metric.Float64Histogram

	// --- Counters ---

	// Decisions counts screening decisions. Use with attribute:
	//   attribute.String("decision", ...)
	Decisions metric.Int64Counter

	// Candidates counts retrieved candidates. Use with attribute:
	//   attribute.String("leg", "lexical"|"vector")
	Candidates metric.Int64Counter

	// IngestDropped counts snapshot records dropped during ingestion.
	IngestDropped metric.Int64Counter

	// EmbeddingErrors counts failed embedding calls by operation.
	EmbeddingErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries in seconds. Screening
// calls are dominated by one embedding round-trip plus two store queries.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ScreenDuration, err = m.Float64Histogram("watchgate.screen.duration",
		metric.WithDescription("End-to-end latency of one screening call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbedDuration, err = m.Float64Histogram("watchgate.embed.duration",
		metric.WithDescription("Latency of embedding the query name."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrieveDuration, err = m.Float64Histogram("watchgate.retrieve.duration",
		metric.WithDescription("Latency of candidate retrieval."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Decisions, err = m.Int64Counter("watchgate.screen.decisions",
		metric.WithDescription("Total screening decisions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Candidates, err = m.Int64Counter("watchgate.retrieve.candidates",
		metric.WithDescription("Total retrieved candidates by retrieval leg."),
	); err != nil {
		return nil, err
	}
	if met.IngestDropped, err = m.Int64Counter("watchgate.ingest.dropped",
		metric.WithDescription("Total snapshot records dropped during ingestion."),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingErrors, err = m.Int64Counter("watchgate.embed.errors",
		metric.WithDescription("Total failed embedding calls by operation."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("watchgate.http.request.duration",
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

// RecordDecision records one screening decision.
func (m *Metrics) RecordDecision(ctx context.Context, decision string) {
	m.Decisions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("decision", decision)),
	)
}

// RecordCandidates records n candidates returned by one retrieval leg.
func (m *Metrics) RecordCandidates(ctx context.Context, leg string, n int) {
	m.Candidates.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("leg", leg)),
	)
}

// RecordIngestDropped records one snapshot record dropped during ingestion.
func (m *Metrics) RecordIngestDropped(ctx context.Context, reason string) {
	m.IngestDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordEmbeddingError records one failed embedding call.
func (m *Metrics) RecordEmbeddingError(ctx context.Context, op string) {
	m.EmbeddingErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("op", op)),
	)
}
