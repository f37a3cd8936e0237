package documents

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/rbac"
	"github.com/petrofield/fieldops/internal/shared"
)

// Handler exposes /documents.
type Handler struct {
	service *Service
	logger  *slog.Logger
	rbac    rbac.Middleware
}

// NewHandler constructs the handler.
func NewHandler(service *Service, logger *slog.Logger, guard rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger, rbac: guard}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	view := h.rbac.RequireAny(shared.PermDocumentsView)
	edit := h.rbac.RequireAny(shared.PermDocumentsEdit)

	r.With(view).Get("/", h.list)
	r.With(view).Get("/{id}", h.show)
	r.With(view).Get("/{id}/download", h.download)
	r.With(edit).Post("/", h.upload)
	r.With(edit).Delete("/{id}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	clientID, err := httpx.QueryID(r, "client_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	page, err := h.service.List(r.Context(), ListDocumentsRequest{
		ListParams: shared.ParseListParams(r.URL.Query()),
		ClientID:   clientID,
		Category:   r.URL.Query().Get("category"),
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
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, doc, "")
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.service.MaxSize()+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.RespondError(w, h.logger, httpx.NewValidationError("file", "The file is too large."))
			return
		}
		httpx.RespondError(w, h.logger, httpx.NewValidationError("file", "The file field is required."))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.RespondError(w, h.logger, httpx.NewValidationError("file", "The file field is required."))
		return
	}
	defer file.Close()

	var clientID *string
	if raw := r.FormValue("client_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, h.logger, httpx.NewValidationError("client_id", "The client_id must be a valid identifier."))
			return
		}
		value := id.String()
		clientID = &value
	}

	doc, err := h.service.Upload(r.Context(), Upload{
		Name:        r.FormValue("name"),
		Category:    r.FormValue("category"),
		ClientID:    clientID,
		Filename:    header.Filename,
		ContentType: partContentType(header),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, doc, "Document uploaded successfully.")
}

func partContentType(header *multipart.FileHeader) string {
	return header.Header.Get("Content-Type")
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	doc, body, err := h.service.Open(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Name}))
	w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("document download interrupted", slog.String("document_id", id), slog.Any("error", err))
	}
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
	httpx.NoContent(w, "Document deleted successfully.")
}
