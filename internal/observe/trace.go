package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/voicetrie"

// Attribute keys shared by spans, metrics and log records.
const (
	KeyCommandID = "command_id"
	KeySource    = "source"
)

// StartSpan starts a span on the global tracer provider. The caller must end
// it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// StartCommandSpan starts a span for running the activator of one command.
func StartCommandSpan(ctx context.Context, commandID, source string) (context.Context, trace.Span) {
	return StartSpan(ctx, "activate "+commandID,
		trace.WithAttributes(
			attribute.String(KeyCommandID, commandID),
			attribute.String(KeySource, source),
		),
	)
}

// CorrelationID is the trace id of the span in ctx, or "" without one.
// Ingress echoes it to clients so a dispatch can be found in the logs.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns base with trace_id and span_id from ctx attached. A nil
// base means [slog.Default].
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return base
	}
	return base.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}

// CommandLogger is [Logger] with the command id and its source attached.
func CommandLogger(ctx context.Context, base *slog.Logger, commandID, source string) *slog.Logger {
	l := Logger(ctx, base).With(KeyCommandID, commandID)
	if source != "" {
		l = l.With(KeySource, source)
	}
	return l
}
