package issues

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/rbac"
	"github.com/petrofield/fieldops/internal/shared"
)

type memRepo struct {
	tickets map[string]bool
	issues  map[string]Issue
}

func newMemRepo(tickets ...string) *memRepo {
	m := &memRepo{tickets: map[string]bool{}, issues: map[string]Issue{}}
	for _, t := range tickets {
		m.tickets[t] = true
	}
	return m
}

func (m *memRepo) List(ctx context.Context, req ListIssuesRequest) ([]Issue, int, error) {
	var out []Issue
	for _, i := range m.issues {
		if req.TicketID != "" && i.TicketID != req.TicketID {
			continue
		}
		out = append(out, i)
	}
	return out, len(out), nil
}

func (m *memRepo) Get(ctx context.Context, id string) (*Issue, error) {
	i, ok := m.issues[id]
	if !ok {
		return nil, fmt.Errorf("ticket issue: %w", httpx.ErrNotFound)
	}
	return &i, nil
}

func (m *memRepo) Create(ctx context.Context, issue Issue) (string, error) {
	if !m.tickets[issue.TicketID] {
		return "", ErrUnknownTicket
	}
	issue.ID = uuid.NewString()
	m.issues[issue.ID] = issue
	return issue.ID, nil
}

func (m *memRepo) Update(ctx context.Context, id string, updates map[string]any) error {
	i, ok := m.issues[id]
	if !ok {
		return fmt.Errorf("ticket issue: %w", httpx.ErrNotFound)
	}
	if v, ok := updates["status"]; ok {
		i.Status = Status(v.(string))
	}
	if v, ok := updates["remarks"]; ok {
		i.Remarks = v.(string)
	}
	if v, ok := updates["description"]; ok {
		i.Description = v.(string)
	}
	m.issues[id] = i
	return nil
}

func (m *memRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.issues[id]; !ok {
		return fmt.Errorf("ticket issue: %w", httpx.ErrNotFound)
	}
	delete(m.issues, id)
	return nil
}

func TestCreateDefaults(t *testing.T) {
	ticketID := uuid.NewString()
	svc := NewService(newMemRepo(ticketID), nil)
	svc.now = func() time.Time { return time.Date(2024, time.May, 3, 15, 4, 0, 0, time.Local) }

	issue, err := svc.Create(context.Background(), CreateIssueRequest{TicketID: ticketID, Description: "  Missing signature  "})
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, issue.Status)
	assert.Equal(t, "Missing signature", issue.Description)
	assert.Equal(t, "2024-05-03", issue.DateReported.Format(time.DateOnly))
}

func TestCreateRequiresExistingTicket(t *testing.T) {
	svc := NewService(newMemRepo(), nil)
	_, err := svc.Create(context.Background(), CreateIssueRequest{TicketID: uuid.NewString(), Description: "x"})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestUpdateStatus(t *testing.T) {
	ticketID := uuid.NewString()
	svc := NewService(newMemRepo(ticketID), nil)
	issue, err := svc.Create(context.Background(), CreateIssueRequest{TicketID: ticketID, Description: "Wrong well"})
	require.NoError(t, err)

	resolved := StatusResolved
	remarks := "Corrected by field office"
	updated, err := svc.Update(context.Background(), issue.ID, UpdateIssueRequest{Status: &resolved, Remarks: &remarks})
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, updated.Status)
	assert.Equal(t, remarks, updated.Remarks)

	bogus := Status("Escalated")
	_, err = svc.Update(context.Background(), issue.ID, UpdateIssueRequest{Status: &bogus})
	require.ErrorIs(t, err, httpx.ErrValidation)

	require.NoError(t, svc.Delete(context.Background(), issue.ID))
	require.ErrorIs(t, svc.Delete(context.Background(), issue.ID), httpx.ErrNotFound)
}

func TestHandlerCreateValidatesStatus(t *testing.T) {
	ticketID := uuid.NewString()
	h := NewHandler(NewService(newMemRepo(ticketID), nil), nil, rbac.Middleware{Service: rbac.NewService()})
	r := chi.NewRouter()
	r.Route("/ticket-issues", h.MountRoutes)

	do := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/ticket-issues", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), &shared.Principal{UserID: uuid.NewString(), Role: shared.RoleUser}))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := do(`{"ticket_id":"` + ticketID + `","description":"Late delivery","status":"Lost"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "status")

	rec = do(`{"ticket_id":"` + ticketID + `","description":"Late delivery","status":"In Progress"}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}
