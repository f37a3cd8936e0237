package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/shared"
)

// Authenticate requires a valid bearer token and stores its principal in the
// request context.
func Authenticate(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				httpx.RespondError(w, logger, ErrMissingToken)
				return
			}
			principal, err := service.Verify(r.Context(), raw)
			if err != nil {
				if logger != nil && !isUnauthorized(err) {
					logger.Error("verify token", slog.Any("error", err))
				}
				httpx.RespondError(w, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func isUnauthorized(err error) bool {
	return httpx.StatusFor(err) == http.StatusUnauthorized
}
