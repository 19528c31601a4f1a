package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesSettlementOutcomes(t *testing.T) {
	metrics := NewMetrics()
	metrics.Jobs().ObserveOutcome("PAYABLE_AGENCY", "CREATED")
	_ = metrics.Jobs().Track("settlement:batch").End(nil)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	require.Contains(t, body, `crossbridge_settlement_outcomes_total{kind="PAYABLE_AGENCY",status="CREATED"} 1`)
	require.Contains(t, body, `crossbridge_jobs_total{result="ok",task="settlement:batch"} 1`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := metricsRR.Body.String()
	require.Contains(t, body, `crossbridge_http_requests_total{code="418",route="/test"} 1`)
	require.Contains(t, body, `crossbridge_http_request_duration_seconds_bucket{route="/test"`)
	require.Contains(t, body, "crossbridge_http_requests_in_flight 0")
	require.Contains(t, body, "go_goroutines")
}

func TestMetricsMiddlewareDefaultsStatusAndRoute(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rr.Body.String(), `crossbridge_http_requests_total{code="200",route="unmatched"} 1`)
}

func TestRegistriesAreIndependent(t *testing.T) {
	require.NotPanics(t, func() {
		a, b := NewMetrics(), NewMetrics()
		a.Jobs().ObserveOutcome("PAYABLE_SUPPLIER", "FAILED")
		b.Jobs().ObserveOutcome("PAYABLE_SUPPLIER", "FAILED")
	})
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	require.Nil(t, m.Jobs())
	m.Jobs().ObserveOutcome("x", "y")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
