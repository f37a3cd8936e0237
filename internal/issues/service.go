package issues

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/petrofield/fieldops/internal/dayrange"
	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/shared"
)

// Service implements ticket issue rules.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// List returns a page of issues.
func (s *Service) List(ctx context.Context, req ListIssuesRequest) (shared.Page[Issue], error) {
	items, total, err := s.repo.List(ctx, req)
	if err != nil {
		return shared.Page[Issue]{}, err
	}
	return shared.NewPage(items, req.ListParams, total), nil
}

// Get returns one issue.
func (s *Service) Get(ctx context.Context, id string) (*Issue, error) {
	return s.repo.Get(ctx, id)
}

// Create records an issue against an existing ticket. Status defaults to
// Open and the report date to today.
func (s *Service) Create(ctx context.Context, req CreateIssueRequest) (*Issue, error) {
	issue := Issue{
		TicketID:    req.TicketID,
		Description: strings.TrimSpace(req.Description),
		Status:      req.Status,
		Remarks:     strings.TrimSpace(req.Remarks),
	}
	if issue.Status == "" {
		issue.Status = StatusOpen
	}
	if !issue.Status.Valid() {
		return nil, httpx.NewValidationError("status", "The selected status is invalid.")
	}
	date, err := s.reportDate(req.DateReported)
	if err != nil {
		return nil, err
	}
	issue.DateReported = date

	id, err := s.repo.Create(ctx, issue)
	if err != nil {
		return nil, err
	}
	s.logger.Info("ticket issue reported", slog.String("issue_id", id), slog.String("ticket_id", issue.TicketID))
	return s.repo.Get(ctx, id)
}

// Update edits an issue.
func (s *Service) Update(ctx context.Context, id string, req UpdateIssueRequest) (*Issue, error) {
	updates := make(map[string]any)
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, httpx.NewValidationError("status", "The selected status is invalid.")
		}
		updates["status"] = string(*req.Status)
	}
	if req.Remarks != nil {
		updates["remarks"] = strings.TrimSpace(*req.Remarks)
	}
	if req.DateReported != nil {
		date, err := s.reportDate(*req.DateReported)
		if err != nil {
			return nil, err
		}
		updates["date_reported"] = date
	}
	if len(updates) == 0 {
		return s.repo.Get(ctx, id)
	}
	if err := s.repo.Update(ctx, id, updates); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes an issue.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) reportDate(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		now := s.now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local), nil
	}
	date, err := dayrange.ParseDate(raw)
	if err != nil {
		return time.Time{}, httpx.NewValidationError("date_reported", "The date reported is not a valid date.")
	}
	return date, nil
}
