package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require(normalizePermissions(perms), hasAnyPermission)
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require(normalizePermissions(perms), hasAllPermissions)
}

func (m Middleware) require(required []string, check func(granted, required []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondError(w, m.Logger, httpx.ErrUnauthorized)
				return
			}
			if check(m.Service.EffectivePermissions(principal.Role), required) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("rbac denied",
					slog.String("user_id", principal.UserID),
					slog.String("role", string(principal.Role)),
					slog.String("path", r.URL.Path))
			}
			httpx.RespondError(w, m.Logger, httpx.ErrForbidden)
		})
	}
}

func normalize(p string) string {
	return strings.TrimSpace(strings.ToLower(p))
}

func hasAnyPermission(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[normalize(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[normalize(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
