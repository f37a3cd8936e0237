package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrofield/fieldops/internal/auth"
	"github.com/petrofield/fieldops/internal/clients"
	"github.com/petrofield/fieldops/internal/observability"
	"github.com/petrofield/fieldops/internal/rbac"
	"github.com/petrofield/fieldops/internal/shared"
	_ "github.com/petrofield/fieldops/testing"
)

type noUsers struct{}

func (noUsers) FindByEmail(context.Context, string) (*auth.User, error) {
	return nil, shared.ErrInvalidCredentials
}
func (noUsers) FindByID(context.Context, string) (*auth.User, error) {
	return nil, shared.ErrInvalidCredentials
}
func (noUsers) TouchLogin(context.Context, string, time.Time) error { return nil }

func testRouter(t *testing.T, health func(*http.Request) error) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := auth.NewTokenIssuer("router-test-secret-with-enough-entropy", time.Hour, "fieldops")
	authService := auth.NewService(noUsers{}, tokens, nil, logger)
	guard := rbac.Middleware{Service: rbac.NewService(), Logger: logger}
	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{RateLimitPerMinute: 1000},
		Metrics:        observability.NewMetrics(),
		Health:         health,
		AuthHandler:    auth.NewHandler(logger, authService, 10),
		ClientsHandler: clients.NewHandler(nil, logger, guard),
	})
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(t, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestHealthzDegraded(t *testing.T) {
	rec := httptest.NewRecorder()
	router := testRouter(t, func(*http.Request) error { return errors.New("redis down") })
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(t, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clients", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := testRouter(t, nil)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fieldops_http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/clients", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	testRouter(t, nil).ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
