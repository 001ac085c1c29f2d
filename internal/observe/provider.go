package observe

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// ProviderConfig configures the OpenTelemetry SDK providers.
type ProviderConfig struct {
	// ServiceName is reported in telemetry. Default: "voicetrie".
	ServiceName string

	// ServiceVersion is reported in telemetry.
	ServiceVersion string

	// Registerer receives the metric collectors scraped on /metrics.
	// Default: [prometheus.DefaultRegisterer].
	Registerer prometheus.Registerer

	// TraceExporter receives finished spans. When nil spans are recorded but
	// not exported.
	TraceExporter sdktrace.SpanExporter
}

// Providers are the SDK providers created by [InitProvider].
type Providers struct {
	Meter  *sdkmetric.MeterProvider
	Tracer *sdktrace.TracerProvider
}

// Shutdown flushes and closes both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	return errors.Join(p.Meter.Shutdown(ctx), p.Tracer.Shutdown(ctx))
}

// NewProviders builds the meter provider, bridged to Prometheus, and the
// tracer provider without registering them globally.
func NewProviders(cfg ProviderConfig) (*Providers, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "voicetrie"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	var expOpts []promexporter.Option
	if cfg.Registerer != nil {
		expOpts = append(expOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	promExp, err := promexporter.New(expOpts...)
	if err != nil {
		return nil, err
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	return &Providers{
		Meter:  sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(promExp)),
		Tracer: sdktrace.NewTracerProvider(tpOpts...),
	}, nil
}

// InitProvider creates the providers, registers them and the W3C trace
// context propagator globally, and returns their shutdown function. Call it
// before the first [DefaultMetrics] call so the default instruments bind to
// the Prometheus-backed provider.
func InitProvider(_ context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	p, err := NewProviders(cfg)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(p.Meter)
	otel.SetTracerProvider(p.Tracer)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return p.Shutdown, nil
}
