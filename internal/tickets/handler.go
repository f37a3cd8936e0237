package tickets

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/petrofield/fieldops/internal/billing"
	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/rbac"
	"github.com/petrofield/fieldops/internal/shared"
)

// IdempotencyHeader carries the client supplied key for create and generate.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes /service-tickets.
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

// MountRoutes registers service ticket routes.
func (h *Handler) MountRoutes(r chi.Router) {
	view := h.rbac.RequireAny(shared.PermTicketsView)
	edit := h.rbac.RequireAny(shared.PermTicketsEdit)
	generate := h.rbac.RequireAny(shared.PermTicketsGenerate)

	r.With(view).Get("/", h.list)
	r.With(view).Get("/{id}", h.show)
	r.With(view).Get("/{id}/pdf", h.pdf)
	r.With(edit).Post("/", h.create)
	r.With(edit).Put("/{id}", h.update)
	r.With(edit).Patch("/{id}/status", h.status)
	r.With(edit).Delete("/{id}", h.delete)
	r.With(generate).Post("/generate/preview", h.preview)
	r.With(generate).Post("/generate", h.generate)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	req := ListTicketsRequest{
		ListParams: shared.ParseListParams(r.URL.Query()),
		Status:     billing.TicketStatus(r.URL.Query().Get("status")),
	}
	verr := &httpx.ValidationError{}
	for name, target := range map[string]*string{
		"client_id":        &req.ClientID,
		"sub_agreement_id": &req.SubAgreementID,
		"call_out_job_id":  &req.CallOutJobID,
	} {
		id, err := httpx.QueryID(r, name)
		if err != nil {
			verr.Add(name, "The "+name+" must be a valid identifier.")
			continue
		}
		*target = id
	}
	if req.Status != "" && !req.Status.Valid() {
		verr.Add("status", "The selected status is invalid.")
	}
	if err := verr.Err(); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	page, err := h.service.List(r.Context(), req)
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
	ticket, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, ticket, "")
}

func (h *Handler) pdf(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	data, filename, err := h.service.PDF(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateTicketRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	ticket, err := h.service.Create(r.Context(), req, r.Header.Get(IdempotencyHeader))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, ticket, "Service ticket created successfully.")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req UpdateTicketRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	ticket, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, ticket, "Service ticket updated successfully.")
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req StatusRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	ticket, err := h.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, ticket, "Service ticket status updated successfully.")
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
	httpx.NoContent(w, "Service ticket deleted successfully.")
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	preview, err := h.service.Preview(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, preview, "")
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	ticket, err := h.service.Generate(r.Context(), req, r.Header.Get(IdempotencyHeader))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, ticket, "Service ticket generated successfully.")
}
