package agreements

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/rbac"
	"github.com/petrofield/fieldops/internal/shared"
)

// Handler exposes /sub-agreements and /call-out-jobs.
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

// MountAgreementRoutes registers /sub-agreements routes.
func (h *Handler) MountAgreementRoutes(r chi.Router) {
	view := h.rbac.RequireAny(shared.PermAgreementsView)
	edit := h.rbac.RequireAny(shared.PermAgreementsEdit)

	r.With(view).Get("/", h.listAgreements)
	r.With(view).Get("/{id}", h.showAgreement)
	r.With(h.rbac.RequireAll(shared.PermAgreementsView, shared.PermLedgerView)).Get("/{id}/ledger", h.agreementLedger)
	r.With(edit).Post("/", h.createAgreement)
	r.With(edit).Put("/{id}", h.updateAgreement)
	r.With(edit).Delete("/{id}", h.deleteAgreement)
}

// MountCallOutRoutes registers /call-out-jobs routes.
func (h *Handler) MountCallOutRoutes(r chi.Router) {
	view := h.rbac.RequireAny(shared.PermAgreementsView)
	edit := h.rbac.RequireAny(shared.PermAgreementsEdit)

	r.With(view).Get("/", h.listCallOuts)
	r.With(view).Get("/{id}", h.showCallOut)
	r.With(edit).Post("/", h.createCallOut)
	r.With(edit).Put("/{id}", h.updateCallOut)
	r.With(edit).Delete("/{id}", h.deleteCallOut)
}

func (h *Handler) listAgreements(w http.ResponseWriter, r *http.Request) {
	clientID, err := httpx.QueryID(r, "client_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	page, err := h.service.ListAgreements(r.Context(), ListAgreementsRequest{
		ListParams: shared.ParseListParams(r.URL.Query()),
		ClientID:   clientID,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, page, "")
}

func (h *Handler) showAgreement(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	agreement, err := h.service.GetAgreement(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, agreement, "")
}

func (h *Handler) agreementLedger(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	view, err := h.service.Ledger(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, view, "")
}

func (h *Handler) createAgreement(w http.ResponseWriter, r *http.Request) {
	var req CreateAgreementRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	agreement, err := h.service.CreateAgreement(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, agreement, "Sub-agreement created successfully.")
}

func (h *Handler) updateAgreement(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req UpdateAgreementRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	agreement, err := h.service.UpdateAgreement(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, agreement, "Sub-agreement updated successfully.")
}

func (h *Handler) deleteAgreement(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.DeleteAgreement(r.Context(), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.NoContent(w, "Sub-agreement deleted successfully.")
}

func (h *Handler) listCallOuts(w http.ResponseWriter, r *http.Request) {
	clientID, err := httpx.QueryID(r, "client_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	page, err := h.service.ListCallOuts(r.Context(), ListCallOutsRequest{
		ListParams: shared.ParseListParams(r.URL.Query()),
		ClientID:   clientID,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, page, "")
}

func (h *Handler) showCallOut(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	job, err := h.service.GetCallOut(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, job, "")
}

func (h *Handler) createCallOut(w http.ResponseWriter, r *http.Request) {
	var req CreateCallOutRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	job, err := h.service.CreateCallOut(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, job, "Call-out job created successfully.")
}

func (h *Handler) updateCallOut(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req UpdateCallOutRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	job, err := h.service.UpdateCallOut(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, job, "Call-out job updated successfully.")
}

func (h *Handler) deleteCallOut(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.DeleteCallOut(r.Context(), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.NoContent(w, "Call-out job deleted successfully.")
}
