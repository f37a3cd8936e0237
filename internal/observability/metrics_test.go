package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.JobFinished("ledger:verify", nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, "fieldops_jobs_total") {
		t.Fatalf("expected body to contain fieldops_jobs_total, got: %s", body)
	}
	if !strings.Contains(body, "fieldops_ledger_drift_total 0") {
		t.Fatalf("expected drift counter to start at zero, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "fieldops_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "fieldops_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestLedgerMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.LedgerMovement("ticket_created")
	metrics.LedgerMovement("ticket_created")
	metrics.LedgerDrift(3)
	metrics.LedgerDrift(0)
	metrics.TicketGenerated()
	metrics.JobFinished("ledger:verify", errors.New("boom"))

	body := scrape(t, metrics)
	for _, want := range []string{
		`fieldops_ledger_movements_total{reason="ticket_created"} 2`,
		`fieldops_ledger_drift_total 3`,
		`fieldops_tickets_generated_total 1`,
		`fieldops_jobs_total{status="failure",task="ledger:verify"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics, got: %s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.LedgerMovement("x")
	metrics.LedgerDrift(1)
	metrics.TicketGenerated()
	metrics.JobFinished("x", nil)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil metrics, got %d", rr.Code)
	}
}
