// Package observe provides application-wide observability primitives for
// voicetrie: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all voicetrie metrics.
const meterName = "github.com/MrWong99/voicetrie"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// RebuildDuration tracks how long a full trie rebuild takes.
	RebuildDuration metric.Float64Histogram

	// TraversalDuration tracks a single match attempt against the trie.
	TraversalDuration metric.Float64Histogram

	// DispatchDuration tracks end-to-end handling of one utterance.
	DispatchDuration metric.Float64Histogram

	// --- Counters ---

	// CompileErrors counts phrases rejected by the compiler. Use with attribute:
	//   attribute.String("command_id", ...)
	CompileErrors metric.Int64Counter

	// Matches counts matched commands. Use with attribute:
	//   attribute.String("command_id", ...)
	Matches metric.Int64Counter

	// Misses counts utterances in which no command matched.
	Misses metric.Int64Counter

	// ActivationErrors counts failed activators. Use with attribute:
	//   attribute.String("command_id", ...)
	ActivationErrors metric.Int64Counter

	// --- Gauges ---

	// TrieNodes reports the node count of the published trie.
	TrieNodes metric.Int64Gauge

	// TrieCommands reports the number of commands in the published trie.
	TrieCommands metric.Int64Gauge

	// ActiveStreams tracks the number of open WebSocket utterance streams.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("route", ...), attribute.String("outcome", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Matching
// is in-memory, so the interesting range sits well below a millisecond.
var latencyBuckets = []float64{
	0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RebuildDuration, err = m.Float64Histogram("voicetrie.trie.rebuild.duration",
		metric.WithDescription("Latency of a full command trie rebuild."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TraversalDuration, err = m.Float64Histogram("voicetrie.trie.traversal.duration",
		metric.WithDescription("Latency of a single trie traversal."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DispatchDuration, err = m.Float64Histogram("voicetrie.dispatch.duration",
		metric.WithDescription("Latency of dispatching one utterance, activators included."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CompileErrors, err = m.Int64Counter("voicetrie.compile.errors",
		metric.WithDescription("Total invocation phrases rejected by the compiler."),
	); err != nil {
		return nil, err
	}
	if met.Matches, err = m.Int64Counter("voicetrie.dispatch.matches",
		metric.WithDescription("Total matched commands by command ID."),
	); err != nil {
		return nil, err
	}
	if met.Misses, err = m.Int64Counter("voicetrie.dispatch.misses",
		metric.WithDescription("Total utterances in which no command matched."),
	); err != nil {
		return nil, err
	}
	if met.ActivationErrors, err = m.Int64Counter("voicetrie.dispatch.activation_errors",
		metric.WithDescription("Total activator failures by command ID."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.TrieNodes, err = m.Int64Gauge("voicetrie.trie.nodes",
		metric.WithDescription("Number of nodes in the published command trie."),
	); err != nil {
		return nil, err
	}
	if met.TrieCommands, err = m.Int64Gauge("voicetrie.trie.commands",
		metric.WithDescription("Number of commands in the published command trie."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("voicetrie.active_streams",
		metric.WithDescription("Number of open WebSocket utterance streams."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voicetrie.http.request.duration",
		metric.WithDescription("HTTP request latency by route and dispatch outcome."),
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

// RecordCompileError records one rejected phrase of commandID.
func (m *Metrics) RecordCompileError(ctx context.Context, commandID string) {
	m.CompileErrors.Add(ctx, 1,
		metric.WithAttributes(Attr(KeyCommandID, commandID)),
	)
}

// RecordMatch records one matched command.
func (m *Metrics) RecordMatch(ctx context.Context, commandID string) {
	m.Matches.Add(ctx, 1,
		metric.WithAttributes(Attr(KeyCommandID, commandID)),
	)
}

// RecordActivationError records one failed activator run.
func (m *Metrics) RecordActivationError(ctx context.Context, commandID string) {
	m.ActivationErrors.Add(ctx, 1,
		metric.WithAttributes(Attr(KeyCommandID, commandID)),
	)
}

// RecordTrieSize publishes the shape of a freshly swapped trie.
func (m *Metrics) RecordTrieSize(ctx context.Context, nodes, commands int) {
	m.TrieNodes.Record(ctx, int64(nodes))
	m.TrieCommands.Record(ctx, int64(commands))
}
