package main

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/univer-labs/plugins-api/internal/platform/auditlog"
	"github.com/univer-labs/plugins-api/internal/platform/auth"
)

func newChain(t *testing.T, roles []string) (http.Handler, *captureAppender, *tracetest.SpanRecorder) {
	t.Helper()
	s := newTestServer(t)
	logger := slog.New(slog.DiscardHandler)

	mux := http.NewServeMux()
	s.api.register(mux)

	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })

	var authenticator auth.Authenticator
	if roles != nil {
		authenticator = auth.NewDevAuthenticator(auth.DevConfig{Subject: "alice", Roles: roles})
	}
	handler := buildHandler(logger, mux, chainConfig{
		Authenticator: authenticator,
		Audit:         auditlog.NewRecorder(s.audit, logger, serviceName),
		Tracer:        tp.Tracer("test"),
		CORSOrigins:   []string{"*"},
	})
	return handler, s.audit, spans
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChain_AuthDisabledAllowsWrites(t *testing.T) {
	h, audit, _ := newChain(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/templates", strings.NewReader(`{"name":"a","category":"b","content":1}`))
	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, []string{"template.create"}, audit.actions())
	require.Equal(t, "anonymous", audit.events[0].Actor)
}

func TestChain_ViewerCannotWrite(t *testing.T) {
	h, audit, _ := newChain(t, []string{auth.RoleViewer})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/templates", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/templates", strings.NewReader(`{"name":"a","category":"b","content":1}`))
	rec = serve(h, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), `"error":"forbidden"`)
	require.Equal(t, []string{"auth.forbidden"}, audit.actions())
	require.Equal(t, "alice", audit.events[0].Actor)
}

func TestChain_EditorWritesAsIdentity(t *testing.T) {
	h, audit, _ := newChain(t, []string{auth.RoleEditor})

	req := httptest.NewRequest(http.MethodPost, "/templates", strings.NewReader(`{"name":"a","category":"b","content":1}`))
	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, []string{"template.create"}, audit.actions())
	require.Equal(t, "alice", audit.events[0].Actor)
}

func TestChain_PreflightSkipsAuth(t *testing.T) {
	h, audit, _ := newChain(t, []string{auth.RoleViewer})

	req := httptest.NewRequest(http.MethodOptions, "/templates/abc", nil)
	req.Header.Set("Origin", "https://sheets.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := serve(h, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://sheets.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
	require.Empty(t, audit.actions())
}

func TestChain_SpansNamedByRoute(t *testing.T) {
	h, _, spans := newChain(t, []string{auth.RoleEditor})

	rec := serve(h, httptest.NewRequest(http.MethodDelete, "/templates/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var names []string
	for _, s := range spans.Ended() {
		names = append(names, s.Name())
	}
	require.Contains(t, names, "DELETE /templates/{id}")
}
