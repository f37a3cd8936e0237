package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the API and the worker.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	ledgerMovements  *prometheus.CounterVec
	ledgerDrift      prometheus.Counter
	ticketsGenerated prometheus.Counter
	jobsTotal        *prometheus.CounterVec
}

// NewMetrics initialises the registry and every metric.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldops_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldops_http_request_duration_seconds",
		Help:    "HTTP request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldops_ledger_movements_total",
		Help: "Sub-agreement balance movements by reason.",
	}, []string{"reason"})
	drift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fieldops_ledger_drift_total",
		Help: "Sub-agreements found with a balance that disagrees with the ledger journal.",
	})
	generated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fieldops_tickets_generated_total",
		Help: "Service tickets generated from daily service logs.",
	})
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldops_jobs_total",
		Help: "Background job executions by task type and outcome.",
	}, []string{"task", "status"})
	registry.MustRegister(requests, duration, movements, drift, generated, jobs)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		ledgerMovements:  movements,
		ledgerDrift:      drift,
		ticketsGenerated: generated,
		jobsTotal:        jobs,
	}
}

// Handler returns the http.Handler serving /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// LedgerMovement counts one applied balance movement.
func (m *Metrics) LedgerMovement(reason string) {
	if m == nil {
		return
	}
	m.ledgerMovements.WithLabelValues(reason).Inc()
}

// LedgerDrift counts agreements found out of balance.
func (m *Metrics) LedgerDrift(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ledgerDrift.Add(float64(n))
}

// TicketGenerated counts one generated ticket.
func (m *Metrics) TicketGenerated() {
	if m == nil {
		return
	}
	m.ticketsGenerated.Inc()
}

// JobFinished counts one job execution.
func (m *Metrics) JobFinished(task string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.jobsTotal.WithLabelValues(task, status).Inc()
}

// Registerer exposes the registry for custom metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
