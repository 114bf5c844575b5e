// Package observe provides application-wide observability primitives for
// phonospell: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all phonospell metrics.
const meterName = "github.com/MrWong99/phonospell"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// CorrectDuration tracks end-to-end latency of one sentence correction.
	// Use with attribute.String("path", "cache"|"gate"|"model"|"no_backend").
	CorrectDuration metric.Float64Histogram

	// ModelDuration tracks latency of the model call, including retries.
	ModelDuration metric.Float64Histogram

	// --- Counters ---

	// CacheHits counts corrections resolved from the cache.
	CacheHits metric.Int64Counter

	// ModelCalls counts model invocations. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	ModelCalls metric.Int64Counter

	// GateSkips counts sentences for which the model call was skipped
	// because the cache already fixed enough of them.
	GateSkips metric.Int64Counter

	// GuardVetoes counts edits refused because the original is protected.
	// Use with attribute.String("stage", "cache"|"model").
	GuardVetoes metric.Int64Counter

	// ModelFailures counts failed model calls by kind (transport, timeout,
	// status, canceled).
	ModelFailures metric.Int64Counter

	// DroppedCandidates counts model pairs that were not applied. Use with
	// attribute.String("reason", "no_match"|"implausible").
	DroppedCandidates metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveLiveSessions tracks the number of open live-correction
	// WebSocket sessions.
	ActiveLiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time, labelled with
	// method, route pattern (path) and status class (2xx, 4xx, 5xx).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Cache-only
// corrections finish in microseconds; local models take seconds.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CorrectDuration, err = m.Float64Histogram("phonospell.correct.duration",
		metric.WithDescription("Latency of one sentence correction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ModelDuration, err = m.Float64Histogram("phonospell.model.duration",
		metric.WithDescription("Latency of the spelling model call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CacheHits, err = m.Int64Counter("phonospell.cache.hits",
		metric.WithDescription("Total corrections resolved from the cache."),
	); err != nil {
		return nil, err
	}
	if met.ModelCalls, err = m.Int64Counter("phonospell.model.calls",
		metric.WithDescription("Total model calls by status."),
	); err != nil {
		return nil, err
	}
	if met.GateSkips, err = m.Int64Counter("phonospell.gate.skips",
		metric.WithDescription("Total sentences that skipped the model after the cache stage."),
	); err != nil {
		return nil, err
	}
	if met.GuardVetoes, err = m.Int64Counter("phonospell.guard.vetoes",
		metric.WithDescription("Total edits refused because the original word is protected."),
	); err != nil {
		return nil, err
	}
	if met.ModelFailures, err = m.Int64Counter("phonospell.model.failures",
		metric.WithDescription("Total failed model calls by kind."),
	); err != nil {
		return nil, err
	}
	if met.DroppedCandidates, err = m.Int64Counter("phonospell.model.dropped_candidates",
		metric.WithDescription("Total model suggestions not applied, by reason."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("phonospell.provider.requests",
		metric.WithDescription("Total provider API requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("phonospell.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveLiveSessions, err = m.Int64UpDownCounter("phonospell.live.active_sessions",
		metric.WithDescription("Number of open live-correction sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("phonospell.http.request.duration",
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

// RecordModelCall records one model call with its outcome and latency in
// seconds.
func (m *Metrics) RecordModelCall(ctx context.Context, status string, seconds float64) {
	m.ModelCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.ModelDuration.Record(ctx, seconds)
}

// RecordModelFailure records a failed model call of the given kind.
func (m *Metrics) RecordModelFailure(ctx context.Context, kind string) {
	m.ModelFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordGuardVeto records an edit refused at stage ("cache" or "model").
func (m *Metrics) RecordGuardVeto(ctx context.Context, stage string) {
	m.GuardVetoes.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordDroppedCandidate records a model suggestion that was not applied.
func (m *Metrics) RecordDroppedCandidate(ctx context.Context, reason string) {
	m.DroppedCandidates.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
