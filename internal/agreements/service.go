package agreements

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/petrofield/fieldops/internal/billing"
	"github.com/petrofield/fieldops/internal/dayrange"
	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/shared"
)

// Service implements sub-agreement and call-out job rules.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs the service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ListAgreements returns a page of sub-agreements.
func (s *Service) ListAgreements(ctx context.Context, req ListAgreementsRequest) (shared.Page[billing.SubAgreement], error) {
	items, total, err := s.repo.ListAgreements(ctx, req)
	if err != nil {
		return shared.Page[billing.SubAgreement]{}, err
	}
	return shared.NewPage(items, req.ListParams, total), nil
}

// GetAgreement returns one sub-agreement.
func (s *Service) GetAgreement(ctx context.Context, id string) (*billing.SubAgreement, error) {
	return s.repo.GetAgreement(ctx, id)
}

// CreateAgreement stores a new sub-agreement with balance equal to amount.
func (s *Service) CreateAgreement(ctx context.Context, req CreateAgreementRequest) (*billing.SubAgreement, error) {
	start, end, err := dateSpan(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	if req.Amount.IsNegative() {
		return nil, httpx.NewValidationError("amount", "The amount must be greater than or equal to 0.")
	}
	id, err := s.repo.CreateAgreement(ctx, billing.SubAgreement{
		ClientID:  req.ClientID,
		Name:      strings.TrimSpace(req.Name),
		Amount:    req.Amount.Round(2),
		StartDate: start,
		EndDate:   end,
		FileID:    req.FileID,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("sub-agreement created", slog.String("agreement_id", id), slog.String("amount", req.Amount.StringFixed(2)))
	return s.repo.GetAgreement(ctx, id)
}

// UpdateAgreement edits descriptive fields. The amount is fixed at creation
// and the balance only moves through ticket reconciliation.
func (s *Service) UpdateAgreement(ctx context.Context, id string, req UpdateAgreementRequest) (*billing.SubAgreement, error) {
	verr := &httpx.ValidationError{}
	if req.Amount != nil {
		verr.Add("amount", "The amount cannot be changed after creation.")
	}
	if req.Balance != nil {
		verr.Add("balance", "The balance is maintained by service tickets and cannot be set directly.")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	current, err := s.repo.GetAgreement(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.FileID != nil {
		updates["file_id"] = *req.FileID
	}
	if req.StartDate != nil || req.EndDate != nil {
		startRaw := current.StartDate.Format(time.DateOnly)
		endRaw := current.EndDate.Format(time.DateOnly)
		if req.StartDate != nil {
			startRaw = *req.StartDate
		}
		if req.EndDate != nil {
			endRaw = *req.EndDate
		}
		start, end, err := dateSpan(startRaw, endRaw)
		if err != nil {
			return nil, err
		}
		updates["start_date"] = start
		updates["end_date"] = end
	}
	if len(updates) > 0 {
		if err := s.repo.UpdateAgreement(ctx, id, updates); err != nil {
			return nil, err
		}
	}
	return s.repo.GetAgreement(ctx, id)
}

// DeleteAgreement removes an agreement no ticket bills against.
func (s *Service) DeleteAgreement(ctx context.Context, id string) error {
	if err := s.repo.DeleteAgreement(ctx, id); err != nil {
		return err
	}
	s.logger.Info("sub-agreement deleted", slog.String("agreement_id", id), slog.String("actor_id", shared.ActorID(ctx)))
	return nil
}

// Ledger returns the journal of an agreement with its reconciliation status.
func (s *Service) Ledger(ctx context.Context, id string) (*LedgerView, error) {
	agreement, err := s.repo.GetAgreement(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.LedgerEntries(ctx, id)
	if err != nil {
		return nil, err
	}
	view := NewLedgerView(*agreement, entries)
	return &view, nil
}

// Verify compares stored balances with amount plus journal. An empty
// agreementID checks every agreement. With repair set, drifted balances are
// rewritten to the journal value under a row lock.
func (s *Service) Verify(ctx context.Context, agreementID string, repair bool) ([]Drift, error) {
	totals, err := s.repo.JournalTotals(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	if agreementID != "" && len(totals) == 0 {
		return nil, fmt.Errorf("sub-agreement %s: %w", agreementID, httpx.ErrNotFound)
	}

	var drifts []Drift
	for _, t := range totals {
		drift, ok := detectDrift(t)
		if !ok {
			continue
		}
		if repair {
			repaired, err := s.repair(ctx, t.Agreement.ID)
			if err != nil {
				return drifts, err
			}
			drift.Repaired = repaired
		}
		s.logger.Warn("ledger drift detected",
			slog.String("agreement_id", drift.AgreementID),
			slog.String("balance", drift.Balance.StringFixed(2)),
			slog.String("expected", drift.Expected.StringFixed(2)),
			slog.Bool("repaired", drift.Repaired))
		drifts = append(drifts, drift)
	}
	return drifts, nil
}

func detectDrift(t JournalTotal) (Drift, bool) {
	expected := t.Agreement.Amount.Add(t.Sum)
	if expected.Equal(t.Agreement.Balance) {
		return Drift{}, false
	}
	return Drift{AgreementID: t.Agreement.ID, Balance: t.Agreement.Balance, Expected: expected}, true
}

func (s *Service) repair(ctx context.Context, id string) (bool, error) {
	repaired := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.LockAgreement(ctx, id); err != nil {
			return err
		}
		totals, err := tx.JournalTotals(ctx, id)
		if err != nil || len(totals) == 0 {
			return err
		}
		drift, ok := detectDrift(totals[0])
		if !ok {
			return nil
		}
		repaired = true
		return tx.SetBalance(ctx, id, drift.Expected)
	})
	return repaired, err
}

// ResolveLink looks id up as a sub-agreement first, then as a call-out job.
func (s *Service) ResolveLink(ctx context.Context, id string) (billing.LinkedJob, error) {
	agreement, err := s.repo.GetAgreement(ctx, id)
	if err == nil {
		return billing.AgreementLink(*agreement), nil
	}
	if !errors.Is(err, httpx.ErrNotFound) {
		return billing.LinkedJob{}, err
	}
	job, err := s.repo.GetCallOut(ctx, id)
	if err != nil {
		return billing.LinkedJob{}, err
	}
	return billing.CallOutLink(*job), nil
}

// ListCallOuts returns a page of call-out jobs.
func (s *Service) ListCallOuts(ctx context.Context, req ListCallOutsRequest) (shared.Page[billing.CallOutJob], error) {
	items, total, err := s.repo.ListCallOuts(ctx, req)
	if err != nil {
		return shared.Page[billing.CallOutJob]{}, err
	}
	return shared.NewPage(items, req.ListParams, total), nil
}

// GetCallOut returns one call-out job.
func (s *Service) GetCallOut(ctx context.Context, id string) (*billing.CallOutJob, error) {
	return s.repo.GetCallOut(ctx, id)
}

// CreateCallOut stores a new call-out job.
func (s *Service) CreateCallOut(ctx context.Context, req CreateCallOutRequest) (*billing.CallOutJob, error) {
	start, end, err := dateSpan(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	id, err := s.repo.CreateCallOut(ctx, billing.CallOutJob{
		ClientID:        req.ClientID,
		JobName:         strings.TrimSpace(req.JobName),
		WorkOrderNumber: strings.TrimSpace(req.WorkOrderNumber),
		Description:     req.Description,
		Priority:        req.Priority,
		Status:          req.Status,
		StartDate:       start,
		EndDate:         end,
		Documents:       req.Documents,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("call-out job created", slog.String("call_out_job_id", id))
	return s.repo.GetCallOut(ctx, id)
}

// UpdateCallOut edits a call-out job.
func (s *Service) UpdateCallOut(ctx context.Context, id string, req UpdateCallOutRequest) (*billing.CallOutJob, error) {
	current, err := s.repo.GetCallOut(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := make(map[string]any)
	if req.JobName != nil {
		updates["job_name"] = strings.TrimSpace(*req.JobName)
	}
	if req.WorkOrderNumber != nil {
		updates["work_order_number"] = strings.TrimSpace(*req.WorkOrderNumber)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Priority != nil {
		updates["priority"] = *req.Priority
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.Documents != nil {
		updates["documents"] = append([]string{}, (*req.Documents)...)
	}
	if req.StartDate != nil || req.EndDate != nil {
		startRaw := current.StartDate.Format(time.DateOnly)
		endRaw := current.EndDate.Format(time.DateOnly)
		if req.StartDate != nil {
			startRaw = *req.StartDate
		}
		if req.EndDate != nil {
			endRaw = *req.EndDate
		}
		start, end, err := dateSpan(startRaw, endRaw)
		if err != nil {
			return nil, err
		}
		updates["start_date"] = start
		updates["end_date"] = end
	}
	if len(updates) > 0 {
		if err := s.repo.UpdateCallOut(ctx, id, updates); err != nil {
			return nil, err
		}
	}
	return s.repo.GetCallOut(ctx, id)
}

// DeleteCallOut removes a call-out job no ticket references.
func (s *Service) DeleteCallOut(ctx context.Context, id string) error {
	if err := s.repo.DeleteCallOut(ctx, id); err != nil {
		return err
	}
	s.logger.Info("call-out job deleted", slog.String("call_out_job_id", id), slog.String("actor_id", shared.ActorID(ctx)))
	return nil
}

func dateSpan(startRaw, endRaw string) (time.Time, time.Time, error) {
	verr := &httpx.ValidationError{}
	start, err := dayrange.ParseDate(startRaw)
	if err != nil {
		verr.Add("start_date", "The start date is not a valid date.")
	}
	end, err := dayrange.ParseDate(endRaw)
	if err != nil {
		verr.Add("end_date", "The end date is not a valid date.")
	}
	if verr.Empty() && end.Before(start) {
		verr.Add("end_date", "The end date must be a date after or equal to start date.")
	}
	if err := verr.Err(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
