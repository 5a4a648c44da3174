// Package observe provides application-wide observability primitives for
// Tomescry: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all Tomescry metrics.
const meterName = "github.com/MrWong99/tomescry"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ModelDuration tracks LLM completion latency.
	ModelDuration metric.Float64Histogram

	// ToolDuration tracks tool dispatch latency.
	ToolDuration metric.Float64Histogram

	// UpstreamDuration tracks reference-API request latency.
	UpstreamDuration metric.Float64Histogram

	// --- Counters ---

	// ModelCalls counts LLM completions. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ModelCalls metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// ResolveLookups counts resolver outcomes. Use with attributes:
	//   attribute.String("type", ...), attribute.String("tier", ...)
	// where tier is one of "store", "snapshot", "name_index", or "miss".
	ResolveLookups metric.Int64Counter

	// CacheLookups counts detail-cache lookups. Use with attributes:
	//   attribute.String("type", ...), attribute.String("status", ...)
	// where status is "hit" or "miss".
	CacheLookups metric.Int64Counter

	// UpstreamRequests counts reference-API requests. Use with attribute:
	//   attribute.String("status", ...)
	UpstreamRequests metric.Int64Counter

	// ConversationOutcomes counts finished conversations. Use with attribute:
	//   attribute.String("outcome", ...) — "answer", "budget_exhausted" or
	//   "error".
	ConversationOutcomes metric.Int64Counter

	// --- Histograms over counts ---

	// ConversationSteps tracks model invocations used per conversation.
	ConversationSteps metric.Int64Histogram

	// --- Gauges ---

	// ActiveConversations tracks the number of in-flight conversations.
	ActiveConversations metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// both sub-second tool dispatch and multi-second LLM completions.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ModelDuration, err = m.Float64Histogram("tomescry.model.duration",
		metric.WithDescription("Latency of LLM completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("tomescry.tool.duration",
		metric.WithDescription("Latency of tool dispatch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UpstreamDuration, err = m.Float64Histogram("tomescry.upstream.duration",
		metric.WithDescription("Latency of reference-API requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ModelCalls, err = m.Int64Counter("tomescry.model.calls",
		metric.WithDescription("Total LLM completions by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("tomescry.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ResolveLookups, err = m.Int64Counter("tomescry.resolve.lookups",
		metric.WithDescription("Total resolver lookups by resource type and winning tier."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("tomescry.cache.lookups",
		metric.WithDescription("Total detail-cache lookups by resource type and hit status."),
	); err != nil {
		return nil, err
	}
	if met.UpstreamRequests, err = m.Int64Counter("tomescry.upstream.requests",
		metric.WithDescription("Total reference-API requests by status."),
	); err != nil {
		return nil, err
	}
	if met.ConversationOutcomes, err = m.Int64Counter("tomescry.conversation.outcomes",
		metric.WithDescription("Total finished conversations by outcome."),
	); err != nil {
		return nil, err
	}

	// Step histogram.
	if met.ConversationSteps, err = m.Int64Histogram("tomescry.conversation.steps",
		metric.WithDescription("Model invocations used per conversation."),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5, 6, 8, 10),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveConversations, err = m.Int64UpDownCounter("tomescry.active_conversations",
		metric.WithDescription("Number of in-flight conversations."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("tomescry.http.request.duration",
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

// RecordModelCall is a convenience method that records a model call counter
// increment with the standard attribute set.
func (m *Metrics) RecordModelCall(ctx context.Context, provider, status string) {
	m.ModelCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordResolveLookup is a convenience method that records a resolver lookup
// counter increment with the winning tier.
func (m *Metrics) RecordResolveLookup(ctx context.Context, resourceType, tier string) {
	m.ResolveLookups.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("type", resourceType),
			attribute.String("tier", tier),
		),
	)
}

// RecordCacheLookup is a convenience method that records a detail-cache
// lookup counter increment.
func (m *Metrics) RecordCacheLookup(ctx context.Context, resourceType, status string) {
	m.CacheLookups.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("type", resourceType),
			attribute.String("status", status),
		),
	)
}

// RecordUpstreamRequest is a convenience method that records a reference-API
// request counter increment.
func (m *Metrics) RecordUpstreamRequest(ctx context.Context, status string) {
	m.UpstreamRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordConversationOutcome is a convenience method that records a finished
// conversation with its outcome.
func (m *Metrics) RecordConversationOutcome(ctx context.Context, outcome string) {
	m.ConversationOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}
