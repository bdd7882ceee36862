package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"retailsales/internal/infrastructure"
)

// retailQueryAttrs are the dataset query parameters copied onto server spans
var retailQueryAttrs = []string{"from", "to", "adjusted", "table", "view"}

// OTelMiddleware opens a server span per request and records the HTTP
// business metrics.
type OTelMiddleware struct {
	tracer  trace.Tracer
	metrics *infrastructure.BusinessMetrics
}

// NewOTelMiddleware builds the middleware. A nil metrics set is created on
// providers.Meter.
func NewOTelMiddleware(providers *infrastructure.OTelProviders, metrics *infrastructure.BusinessMetrics) (*OTelMiddleware, error) {
	if metrics == nil {
		var err error
		if metrics, err = infrastructure.CreateBusinessMetrics(providers.Meter); err != nil {
			return nil, err
		}
	}

	tracer := providers.Tracer
	if tracer == nil {
		tracer = otel.Tracer(infrastructure.MeterName)
	}
	return &OTelMiddleware{tracer: tracer, metrics: metrics}, nil
}

// Handler wraps next in a server span named after the chi route pattern
func (m *OTelMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(r.Method),
			semconv.ServerAddressKey.String(r.Host),
			semconv.ClientAddressKey.String(GetRealIP(r)),
			semconv.UserAgentOriginalKey.String(r.UserAgent()),
		}
		q := r.URL.Query()
		for _, name := range retailQueryAttrs {
			if v := q.Get(name); v != "" {
				attrs = append(attrs, attribute.String("retail."+name, v))
			}
		}

		ctx, span := m.tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...))
		defer span.End()

		if id := infrastructure.TraceIDFromContext(ctx); id != "" {
			ctx = infrastructure.WithTraceID(ctx, id)
		}
		r = r.WithContext(ctx)

		m.metrics.HTTPActiveRequests.Add(ctx, 1)
		defer m.metrics.HTTPActiveRequests.Add(ctx, -1)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)

		labels := metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", route),
			attribute.Int("status_code", status),
		)
		m.metrics.HTTPRequestsTotal.Add(ctx, 1, labels)
		m.metrics.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), labels)

		span.SetName(fmt.Sprintf("%s %s", r.Method, route))
		span.SetAttributes(
			semconv.HTTPRouteKey.String(route),
			semconv.HTTPResponseStatusCodeKey.Int(status),
			semconv.HTTPResponseBodySizeKey.Int(ww.BytesWritten()),
			attribute.Bool("retail.download", ww.Header().Get("Content-Disposition") != ""),
		)
		if status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}

// routePattern keeps metric cardinality bounded: table names stay in the
// {table} placeholder instead of the raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// WebSocketTraceMiddleware opens a span around the notification socket
// upgrade. It does not wrap the writer, so http.Hijacker survives.
func WebSocketTraceMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	tracer := otel.Tracer(infrastructure.MeterName + "/websocket")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			ctx, span := tracer.Start(r.Context(), "websocket.upgrade",
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRouteKey.String(r.URL.Path),
					attribute.String("websocket.origin", origin),
				))
			defer span.End()

			logger.DebugContext(ctx, "notification socket upgrade", slog.String("origin", origin))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
