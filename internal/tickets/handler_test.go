package tickets

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrofield/fieldops/internal/billing"
	"github.com/petrofield/fieldops/internal/rbac"
	"github.com/petrofield/fieldops/internal/shared"
)

func newRouter(f *fixture) chi.Router {
	h := NewHandler(f.svc, nil, rbac.Middleware{Service: rbac.NewService()})
	r := chi.NewRouter()
	r.Route("/service-tickets", h.MountRoutes)
	return r
}

func serve(r chi.Router, role shared.Role, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), &shared.Principal{UserID: uuid.NewString(), Role: role}))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerGenerateRequiresPermission(t *testing.T) {
	f := newFixture(t, Options{})
	logID := f.log(f.clientID, nil, "1-2")
	r := newRouter(f)
	body := map[string]any{"client_id": f.clientID, "log_ids": []string{logID}}

	rec := serve(r, shared.RoleUser, http.MethodPost, "/service-tickets/generate", body, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(r, shared.RoleManager, http.MethodPost, "/service-tickets/generate", body, map[string]string{IdempotencyHeader: "abc"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var envelope struct {
		Success bool                  `json:"success"`
		Data    billing.ServiceTicket `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, "1000.00", envelope.Data.Amount.StringFixed(2))
	assert.Equal(t, []string{logID}, envelope.Data.RelatedLogIDs)

	rec = serve(r, shared.RoleManager, http.MethodPost, "/service-tickets/generate", body, map[string]string{IdempotencyHeader: "abc"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), envelope.Data.ID)
}

func TestHandlerGenerateValidatesBody(t *testing.T) {
	f := newFixture(t, Options{})
	r := newRouter(f)

	rec := serve(r, shared.RoleAdmin, http.MethodPost, "/service-tickets/generate", map[string]any{"client_id": f.clientID, "log_ids": []string{}}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "log_ids")
}

func TestHandlerCreateRequiresAmount(t *testing.T) {
	f := newFixture(t, Options{})
	r := newRouter(f)
	body := map[string]any{"ticket_number": "ST-100", "client_id": f.clientID, "date": "2024-03-12"}

	rec := serve(r, shared.RoleManager, http.MethodPost, "/service-tickets", body, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"amount"`)
	assert.Empty(t, f.repo.tickets)

	body["amount"] = "0"
	rec = serve(r, shared.RoleManager, http.MethodPost, "/service-tickets", body, nil)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHandlerUpdateRejectsMalformedLink(t *testing.T) {
	f := newFixture(t, Options{})
	ticket := f.create(t, nil, 50)
	r := newRouter(f)

	rec := serve(r, shared.RoleManager, http.MethodPut, "/service-tickets/"+ticket.ID, map[string]any{"sub_agreement_id": "abc"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "sub_agreement_id")
}

func TestHandlerStatusAndNotFound(t *testing.T) {
	f := newFixture(t, Options{})
	ticket := f.create(t, nil, 50)
	r := newRouter(f)

	rec := serve(r, shared.RoleManager, http.MethodPatch, "/service-tickets/"+ticket.ID+"/status", map[string]any{"status": "Delivered"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, billing.TicketDelivered, f.repo.tickets[ticket.ID].Status)

	rec = serve(r, shared.RoleManager, http.MethodGet, "/service-tickets/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(r, shared.RoleUser, http.MethodDelete, "/service-tickets/"+ticket.ID, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerListRejectsBadFilter(t *testing.T) {
	f := newFixture(t, Options{})
	r := newRouter(f)

	rec := serve(r, shared.RoleUser, http.MethodGet, "/service-tickets?client_id=nope", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = serve(r, shared.RoleUser, http.MethodGet, "/service-tickets?status=Delivered", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerPDF(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.agreement(f.clientID, 10000)
	logID := f.log(f.clientID, &a, "1-4")
	ticket, err := f.svc.Generate(context.Background(), GenerateRequest{ClientID: f.clientID, LogIDs: []string{logID}, TicketNumber: "ST-PDF-1"}, "")
	require.NoError(t, err)

	rec := serve(newRouter(f), shared.RoleUser, http.MethodGet, "/service-tickets/"+ticket.ID+"/pdf", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "service-ticket-ST-PDF-1.pdf")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}
