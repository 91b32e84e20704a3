// Package observe provides application-wide observability primitives for
// intervox: OpenTelemetry metrics, tracing helpers, and structured logging.
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

// meterName is the instrumentation scope name used for all intervox metrics.
const meterName = "github.com/intervox/intervox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// ActiveAgents tracks the number of interview agents currently running.
	ActiveAgents metric.Int64UpDownCounter

	// Utterances counts committed transcript utterances. Use with attribute:
	//   attribute.String("role", ...)
	Utterances metric.Int64Counter

	// SnapshotFailures counts failed transcript snapshot writes.
	SnapshotFailures metric.Int64Counter

	// ReportsGenerated counts committed final reports. Use with attribute:
	//   attribute.String("generated_by", ...)
	ReportsGenerated metric.Int64Counter

	// AgentSessionDuration tracks how long an agent ran, from dispatch to
	// exit.
	AgentSessionDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for HTTP
// handler latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// sessionBuckets covers agent lifetimes, which run seconds to tens of
// minutes.
var sessionBuckets = []float64{
	1, 5, 15, 60, 120, 300, 600, 1200, 1800, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.HTTPRequestDuration, err = m.Float64Histogram("intervox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveAgents, err = m.Int64UpDownCounter("intervox.active_agents",
		metric.WithDescription("Number of interview agents currently running."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("intervox.utterances",
		metric.WithDescription("Total committed transcript utterances by role."),
	); err != nil {
		return nil, err
	}
	if met.SnapshotFailures, err = m.Int64Counter("intervox.snapshot.failures",
		metric.WithDescription("Total failed transcript snapshot writes."),
	); err != nil {
		return nil, err
	}
	if met.ReportsGenerated, err = m.Int64Counter("intervox.reports.generated",
		metric.WithDescription("Total committed final reports by generation path."),
	); err != nil {
		return nil, err
	}
	if met.AgentSessionDuration, err = m.Float64Histogram("intervox.agent.session.duration",
		metric.WithDescription("Agent lifetime from dispatch to exit."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
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

// RecordHTTPRequest records one handled HTTP request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, elapsed time.Duration) {
	m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		),
	)
}

// RecordUtterance records one committed transcript utterance.
func (m *Metrics) RecordUtterance(ctx context.Context, role string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("role", role)),
	)
}

// RecordReport records one committed final report.
func (m *Metrics) RecordReport(ctx context.Context, generatedBy string) {
	m.ReportsGenerated.Add(ctx, 1,
		metric.WithAttributes(attribute.String("generated_by", generatedBy)),
	)
}
