package issues

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/rbac"
	"github.com/petrofield/fieldops/internal/shared"
)

// Handler exposes /ticket-issues.
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

// MountRoutes registers ticket issue routes.
func (h *Handler) MountRoutes(r chi.Router) {
	view := h.rbac.RequireAny(shared.PermIssuesView)
	edit := h.rbac.RequireAny(shared.PermIssuesEdit)

	r.With(view).Get("/", h.list)
	r.With(view).Get("/{id}", h.show)
	r.With(edit).Post("/", h.create)
	r.With(edit).Put("/{id}", h.update)
	r.With(edit).Delete("/{id}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ticketID, err := httpx.QueryID(r, "ticket_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	status := Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		httpx.RespondError(w, h.logger, httpx.NewValidationError("status", "The selected status is invalid."))
		return
	}
	page, err := h.service.List(r.Context(), ListIssuesRequest{
		ListParams: shared.ParseListParams(r.URL.Query()),
		TicketID:   ticketID,
		Status:     status,
	})
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
	issue, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, issue, "")
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateIssueRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	issue, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, issue, "Ticket issue created successfully.")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req UpdateIssueRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	issue, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, issue, "Ticket issue updated successfully.")
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
	httpx.NoContent(w, "Ticket issue deleted successfully.")
}
