package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobCollectors(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	jobs.RecordExecution(true, true)
	require.NoError(t, jobs.Track("compound:tick").End(nil))

	body := scrape(t, metrics)
	require.Contains(t, body, `ledger_compound_executions_total{outcome="success",trigger="automatic"} 1`)
	require.Contains(t, body, `ledger_jobs_total{job="compound:tick",status="success"} 1`)
	require.Contains(t, body, "go_goroutines")
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/journals/{id}")

	req := httptest.NewRequest(http.MethodGet, "/journals/7", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.True(t, strings.Contains(body, `ledger_http_requests_total{code="418",route="/journals/{id}"} 1`), body)
	require.Contains(t, body, `ledger_http_request_duration_seconds_bucket{route="/journals/{id}"`)
}

func TestNilMetricsPassThrough(t *testing.T) {
	var m *Metrics
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	rr := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
