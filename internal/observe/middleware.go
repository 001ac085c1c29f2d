package observe

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// Outcome labels of an HTTP request, derived from the utterances it carried.
const (
	OutcomeNone    = "none"
	OutcomeMatched = "matched"
	OutcomeMissed  = "missed"
)

// unrouted labels requests no mux pattern claimed, so probing clients cannot
// grow the route label set.
const unrouted = "unrouted"

// dispatchTally counts the utterances dispatched while serving one request.
// A stream connection adds to it once per message.
type dispatchTally struct {
	utterances atomic.Int64
	matches    atomic.Int64
	unmatched  atomic.Int64
}

func (t *dispatchTally) outcome() string {
	switch {
	case t.utterances.Load() == 0:
		return OutcomeNone
	case t.matches.Load() > 0:
		return OutcomeMatched
	default:
		return OutcomeMissed
	}
}

type tallyKey struct{}

// RecordUtterance attributes one dispatched utterance to the HTTP request
// carried by ctx. It does nothing outside [Middleware].
func RecordUtterance(ctx context.Context, matches, unmatched int) {
	t, ok := ctx.Value(tallyKey{}).(*dispatchTally)
	if !ok {
		return
	}
	t.utterances.Add(1)
	t.matches.Add(int64(matches))
	t.unmatched.Add(int64(unmatched))
}

// statusRecorder captures the status code written by the route handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the wrapped writer to [http.ResponseController].
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the stream upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

// Middleware traces every request to the ingress, health and metrics routes.
//
// The span joins an incoming W3C trace and its trace id is echoed as
// X-Correlation-ID. Once the route handler returns, the request duration is
// recorded by mux pattern and dispatch outcome, and the span carries the
// utterance, match and unmatched-word counts the handler reported through
// [RecordUtterance]. For GET /v1/stream that covers the whole connection.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			tally := &dispatchTally{}
			r = r.WithContext(context.WithValue(ctx, tallyKey{}, tally))
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			// The mux fills in the pattern while serving.
			route := unrouted
			if r.Pattern != "" {
				route = r.Pattern
				span.SetName("HTTP " + route)
				span.SetAttributes(semconv.HTTPRoute(route))
			}
			outcome := tally.outcome()
			elapsed := time.Since(start)

			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(
					attribute.String("route", route),
					attribute.String("outcome", outcome),
				),
			)
			span.SetAttributes(
				semconv.HTTPResponseStatusCode(rec.statusCode),
				attribute.String("voicetrie.outcome", outcome),
				attribute.Int64("voicetrie.utterances", tally.utterances.Load()),
				attribute.Int64("voicetrie.matches", tally.matches.Load()),
				attribute.Int64("voicetrie.unmatched", tally.unmatched.Load()),
			)

			slog.LogAttrs(ctx, slog.LevelDebug, "observe: request completed",
				slog.String("trace_id", cid),
				slog.String("route", route),
				slog.String("outcome", outcome),
				slog.Int64("utterances", tally.utterances.Load()),
				slog.Int("status", rec.statusCode),
				slog.Duration("duration", elapsed),
			)
		})
	}
}
