package dailylogs

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/rbac"
	"github.com/petrofield/fieldops/internal/shared"
)

// Handler exposes /daily-logs.
type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler constructs the handler.
func NewHandler(service *Service, logger *slog.Logger, guard rbac.Middleware) *Handler {
	return &Handler{service: service, logger: logger, validator: httpx.NewValidator(), rbac: guard}
}

// MountRoutes registers daily log routes.
func (h *Handler) MountRoutes(r chi.Router) {
	view := h.rbac.RequireAny(shared.PermLogsView)
	edit := h.rbac.RequireAny(shared.PermLogsEdit)

	r.With(view).Get("/", h.list)
	r.With(view).Get("/available", h.available)
	r.With(view).Get("/{id}", h.show)
	r.With(edit).Post("/", h.create)
	r.With(edit).Put("/{id}", h.update)
	r.With(edit).Delete("/{id}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	clientID, err := httpx.QueryID(r, "client_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	page, err := h.service.List(r.Context(), ListLogsRequest{
		ListParams: shared.ParseListParams(r.URL.Query()),
		ClientID:   clientID,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, page, "")
}

func (h *Handler) available(w http.ResponseWriter, r *http.Request) {
	clientID, err := httpx.QueryID(r, "client_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	logs, err := h.service.Available(r.Context(), clientID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, logs, "")
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	view, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, view, "")
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req LogRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	view, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, view, "Daily service log created successfully.")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req LogRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	view, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, view, "Daily service log updated successfully.")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.NoContent(w, "Daily service log deleted successfully.")
}
