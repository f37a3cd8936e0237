package clients

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/rbac"
	"github.com/petrofield/fieldops/internal/shared"
)

// Handler exposes /clients.
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

// MountRoutes registers client routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermClientsView)).Get("/", h.list)
	r.With(h.rbac.RequireAny(shared.PermClientsView)).Get("/{id}", h.show)
	r.With(h.rbac.RequireAny(shared.PermClientsEdit)).Post("/", h.create)
	r.With(h.rbac.RequireAny(shared.PermClientsEdit)).Put("/{id}", h.update)
	r.With(h.rbac.RequireAny(shared.PermClientsEdit)).Delete("/{id}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.List(r.Context(), ListClientsRequest{ListParams: shared.ParseListParams(r.URL.Query())})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, page, "")
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	client, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, client, "")
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	client, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, client, "Client created successfully.")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req UpdateClientRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	client, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, client, "Client updated successfully.")
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
	httpx.NoContent(w, "Client deleted successfully.")
}
