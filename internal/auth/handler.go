package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger       *slog.Logger
	service      *Service
	validator    *validator.Validate
	loginLimit   int
	authenticate func(http.Handler) http.Handler
}

// NewHandler constructs a Handler instance. loginPerMinute bounds login
// attempts per client IP.
func NewHandler(logger *slog.Logger, service *Service, loginPerMinute int) *Handler {
	if loginPerMinute <= 0 {
		loginPerMinute = 10
	}
	return &Handler{
		logger:       logger,
		service:      service,
		validator:    httpx.NewValidator(),
		loginLimit:   loginPerMinute,
		authenticate: Authenticate(service, logger),
	}
}

// Middleware returns the bearer authentication middleware.
func (h *Handler) Middleware() func(http.Handler) http.Handler {
	return h.authenticate
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.LimitByIP(h.loginLimit, time.Minute)).Post("/login", h.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)
		r.Post("/logout", h.handleLogout)
		r.Get("/me", h.handleMe)
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Fail(w, http.StatusUnauthorized, "Invalid email or password.", nil)
			return
		}
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("user logged in", slog.String("user_id", session.User.ID))
	httpx.OK(w, http.StatusOK, session, "Login successful.")
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if err := h.service.Logout(r.Context(), principal); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.NoContent(w, "Logged out.")
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Me(r.Context(), shared.PrincipalFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, user, "")
}
