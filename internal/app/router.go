package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/petrofield/fieldops/internal/agreements"
	"github.com/petrofield/fieldops/internal/auth"
	"github.com/petrofield/fieldops/internal/clients"
	"github.com/petrofield/fieldops/internal/dailylogs"
	"github.com/petrofield/fieldops/internal/documents"
	"github.com/petrofield/fieldops/internal/issues"
	"github.com/petrofield/fieldops/internal/observability"
	"github.com/petrofield/fieldops/internal/rbac"
	"github.com/petrofield/fieldops/internal/tickets"
	"github.com/petrofield/fieldops/internal/users"
	"github.com/petrofield/fieldops/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	// Health reports readiness of backing services; nil means always healthy.
	Health func(r *http.Request) error

	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	ClientsHandler     *clients.Handler
	AgreementsHandler  *agreements.Handler
	DailyLogsHandler   *dailylogs.Handler
	TicketsHandler     *tickets.Handler
	IssuesHandler      *issues.Handler
	DocumentsHandler   *documents.Handler
	PermissionsHandler *rbac.PermissionsHandler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with the portal defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Health != nil {
			if err := params.Health(r); err != nil {
				if params.Logger != nil {
					params.Logger.Warn("health check failed", slog.Any("error", err))
				}
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler == nil {
		return r
	}
	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(params.AuthHandler.Middleware())

		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.ClientsHandler != nil {
			r.Route("/clients", params.ClientsHandler.MountRoutes)
		}
		if params.AgreementsHandler != nil {
			r.Route("/sub-agreements", params.AgreementsHandler.MountAgreementRoutes)
			r.Route("/call-out-jobs", params.AgreementsHandler.MountCallOutRoutes)
		}
		if params.DailyLogsHandler != nil {
			r.Route("/daily-logs", params.DailyLogsHandler.MountRoutes)
		}
		if params.TicketsHandler != nil {
			r.Route("/service-tickets", params.TicketsHandler.MountRoutes)
		}
		if params.IssuesHandler != nil {
			r.Route("/ticket-issues", params.IssuesHandler.MountRoutes)
		}
		if params.DocumentsHandler != nil {
			r.Route("/documents", params.DocumentsHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
