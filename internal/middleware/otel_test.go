package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"retailsales/internal/infrastructure"
	"retailsales/internal/shared/testutil"
)

func newRecordingMiddleware(t *testing.T) (*OTelMiddleware, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })

	m, err := NewOTelMiddleware(&infrastructure.OTelProviders{Tracer: tp.Tracer("test")}, nil)
	require.NoError(t, err)
	return m, recorder
}

func spanAttr(s sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range s.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestOTelMiddleware_NamesSpanAfterRoute(t *testing.T) {
	m, recorder := newRecordingMiddleware(t)

	var traceID string
	r := chi.NewRouter()
	r.Use(m.Handler)
	r.Get("/api/retail/tables/{table}/csv", func(w http.ResponseWriter, r *http.Request) {
		traceID = infrastructure.GetTraceID(r.Context())
		w.Header().Set("Content-Disposition", `attachment; filename="Retail_Sales.csv"`)
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/retail/tables/Retail%20Sales/csv?from=2020&adjusted=no", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, traceID, 32)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "GET /api/retail/tables/{table}/csv", s.Name())
	assert.Equal(t, traceID, s.SpanContext().TraceID().String())

	v, ok := spanAttr(s, "retail.from")
	require.True(t, ok)
	assert.Equal(t, "2020", v.AsString())
	v, ok = spanAttr(s, "retail.download")
	require.True(t, ok)
	assert.True(t, v.AsBool())
	_, ok = spanAttr(s, "retail.to")
	assert.False(t, ok)
}

func TestOTelMiddleware_ServerErrorMarksSpan(t *testing.T) {
	m, recorder := newRecordingMiddleware(t)

	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/retail/view", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

type hijackRecorder struct {
	*httptest.ResponseRecorder
}

func (hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return nil, nil, errors.New("hijack not supported in tests")
}

func TestWebSocketTraceMiddleware(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)

	called := false
	h := WebSocketTraceMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, called = w.(http.Hijacker)
	}))

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "http://localhost:8080")
	h.ServeHTTP(hijackRecorder{httptest.NewRecorder()}, r)

	assert.True(t, called, "writer must stay hijackable")
	assert.True(t, logs.ContainsMessage("notification socket upgrade"))
}
