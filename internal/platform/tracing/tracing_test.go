package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("TRACING_EXPORTER", "")
	t.Setenv("TRACING_SAMPLE_RATE", "")

	cfg, err := ConfigFromEnv("plugins-api")
	require.NoError(t, err)
	require.Equal(t, ExporterNone, cfg.Exporter)
	require.Equal(t, defaultOTLPEndpoint, cfg.OTLPEndpoint)
	require.Equal(t, 1.0, cfg.SampleRate)
	require.False(t, cfg.Enabled())
}

func TestConfigFromEnv_Invalid(t *testing.T) {
	t.Setenv("TRACING_EXPORTER", "zipkin")
	_, err := ConfigFromEnv("plugins-api")
	require.Error(t, err)

	t.Setenv("TRACING_EXPORTER", "OTLP")
	t.Setenv("TRACING_SAMPLE_RATE", "1.5")
	_, err = ConfigFromEnv("plugins-api")
	require.Error(t, err)

	t.Setenv("TRACING_SAMPLE_RATE", "abc")
	_, err = ConfigFromEnv("plugins-api")
	require.Error(t, err)
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Exporter: ExporterNone, ServiceName: "test"})
	require.NoError(t, err)
	require.False(t, provider.Enabled())

	_, span := provider.Tracer().Start(context.Background(), "noop")
	require.False(t, span.SpanContext().IsValid(), "disabled tracer should not record")
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_Stdout(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Exporter: ExporterStdout, ServiceName: "test", SampleRate: 1})
	require.NoError(t, err)
	require.True(t, provider.Enabled())

	_, span := provider.Tracer().Start(context.Background(), "sample")
	require.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func newRecorder() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	recorder := tracetest.NewSpanRecorder()
	return recorder, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestMiddleware_NamesSpanAfterRoute(t *testing.T) {
	recorder, tp := newRecorder()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /templates/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := Middleware(tp.Tracer("test"), mux)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/templates/abc", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "GET /templates/{id}", spans[0].Name())

	status, ok := attrValue(spans[0].Attributes(), AttrHTTPStatus)
	require.True(t, ok)
	require.Equal(t, int64(http.StatusNotFound), status.AsInt64())
	require.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestMiddleware_MarksServerErrors(t *testing.T) {
	recorder, tp := newRecorder()
	handler := Middleware(tp.Tracer("test"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/templates", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "POST /templates", spans[0].Name())
	require.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestMiddleware_NilTracerPassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := Middleware(nil, next)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
