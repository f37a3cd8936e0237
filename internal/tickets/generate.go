package tickets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/petrofield/fieldops/internal/billing"
	"github.com/petrofield/fieldops/internal/dayrange"
	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/shared"
)

// Preview computes what Generate would produce without writing anything.
func (s *Service) Preview(ctx context.Context, req GenerateRequest) (*Preview, error) {
	ids := uniqueIDs(req.LogIDs)

	var logs []billing.DailyServiceLog
	var consumed map[string]string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		logs, err = s.repo.LoadLogs(gctx, ids, false)
		return err
	})
	g.Go(func() error {
		var err error
		consumed, err = s.repo.ConsumedLogs(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := checkSelection(req.ClientID, ids, logs); err != nil {
		return nil, err
	}

	gen := s.aggregator.Compute(logs)
	preview := &Preview{
		Generation: gen,
		LogIDs:     ids,
		Rates: RatesView{
			PersonnelDay: s.opts.Rates.PersonnelDay,
			EquipmentDay: s.opts.Rates.EquipmentDay,
		},
	}
	if len(consumed) > 0 {
		preview.Unavailable = consumed
	}
	job, err := s.generationLink(ctx, req, gen)
	if err != nil {
		return nil, err
	}
	preview.LinkedJob = job
	return preview, nil
}

// Generate builds one ticket from a selection of unconsumed logs of a
// client. The amount comes from the configured day rates. Without an
// explicit link the ticket inherits the job all selected logs share.
func (s *Service) Generate(ctx context.Context, req GenerateRequest, idempotencyKey string) (*billing.ServiceTicket, error) {
	ids := uniqueIDs(req.LogIDs)
	status := defaultStatus(req.Status)
	if !status.Valid() {
		return nil, translate(billing.ErrInvalidStatus)
	}

	release, err := s.locker.Acquire(ctx, shared.GenerationLockKey(req.ClientID), s.opts.LockTTL)
	if err != nil {
		if errors.Is(err, shared.ErrLockHeld) {
			return nil, ErrGenerationInProgress
		}
		return nil, err
	}
	defer release()

	var ticket billing.ServiceTicket
	var moves []billing.Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := s.claim(ctx, tx, idempotencyKey, moduleGenerate); err != nil {
			return err
		}
		logs, err := tx.LoadLogs(ctx, ids, true)
		if err != nil {
			return err
		}
		if err := checkSelection(req.ClientID, ids, logs); err != nil {
			return err
		}
		consumed, err := tx.ConsumedLogs(ctx, ids)
		if err != nil {
			return err
		}
		if len(consumed) > 0 {
			return ErrLogAlreadyConsumed
		}

		gen := s.aggregator.Compute(logs)
		ticket, err = s.draft(ctx, req, gen, status)
		if err != nil {
			return err
		}
		ticket.RelatedLogIDs = ids

		id, err := tx.Insert(ctx, ticket)
		if err != nil {
			return err
		}
		ticket.ID = id
		moves = billing.CreateMovements(ticket)
		if err := s.applyMoves(ctx, tx, moves); err != nil {
			return err
		}
		if err := s.attach(ctx, tx, idempotencyKey, id); err != nil {
			return err
		}
		return s.record(ctx, tx, "service_ticket.generated", id, map[string]any{
			"amount":          ticket.Amount.StringFixed(2),
			"log_ids":         ids,
			"personnel_days":  gen.PersonnelDays,
			"equipment_units": gen.EquipmentUnits,
		})
	})
	if err != nil {
		return nil, s.replayed(ctx, err, idempotencyKey, moduleGenerate)
	}

	s.metrics.TicketGenerated()
	s.afterCommit(ctx, moves)
	s.logger.Info("service ticket generated",
		slog.String("ticket_id", ticket.ID),
		slog.String("client_id", ticket.ClientID),
		slog.Int("logs", len(ids)),
		slog.String("amount", ticket.Amount.StringFixed(2)))
	return s.repo.Get(ctx, ticket.ID)
}

func (s *Service) draft(ctx context.Context, req GenerateRequest, gen billing.Generation, status billing.TicketStatus) (billing.ServiceTicket, error) {
	dateRaw := gen.Date
	if strings.TrimSpace(req.Date) != "" {
		dateRaw = req.Date
	}
	date, err := dayrange.ParseDate(dateRaw)
	if err != nil {
		return billing.ServiceTicket{}, httpx.NewValidationError("date", "The date is not a valid date.")
	}
	number := strings.TrimSpace(req.TicketNumber)
	if number == "" {
		number = nextTicketNumber(date)
	}
	ticket := billing.ServiceTicket{
		TicketNumber: number,
		ClientID:     req.ClientID,
		Date:         date,
		Status:       status,
		Amount:       gen.Amount.Round(2),
		Documents:    []string{},
	}

	job, err := s.generationLink(ctx, req, gen)
	if err != nil {
		return billing.ServiceTicket{}, err
	}
	if job != nil {
		id := job.ID()
		switch job.Kind {
		case billing.LinkAgreement:
			ticket.SubAgreementID = &id
		case billing.LinkCallOut:
			ticket.CallOutJobID = &id
		}
	}
	return ticket, translate(ticket.Validate())
}

// generationLink picks the job a generated ticket bills against. An explicit
// link in the request must resolve; an inherited one is dropped when it no
// longer exists or belongs to another client.
func (s *Service) generationLink(ctx context.Context, req GenerateRequest, gen billing.Generation) (*billing.LinkedJob, error) {
	explicit := billing.ServiceTicket{
		ClientID:       req.ClientID,
		SubAgreementID: nonEmpty(req.SubAgreementID),
		CallOutJobID:   nonEmpty(req.CallOutJobID),
	}
	if explicit.SubAgreementID != nil && explicit.CallOutJobID != nil {
		return nil, translate(billing.ErrConflictingLink)
	}
	if explicit.SubAgreementID != nil || explicit.CallOutJobID != nil {
		if err := s.checkLink(ctx, explicit); err != nil {
			return nil, err
		}
		id := explicit.SubAgreementID
		if id == nil {
			id = explicit.CallOutJobID
		}
		job, err := s.links.ResolveLink(ctx, *id)
		if err != nil {
			return nil, err
		}
		return &job, nil
	}

	if gen.LinkedJobID == nil {
		return nil, nil
	}
	job, err := s.links.ResolveLink(ctx, *gen.LinkedJobID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			s.logger.Warn("linked job of selected logs not found", slog.String("linked_job_id", *gen.LinkedJobID))
			return nil, nil
		}
		return nil, err
	}
	if linkClient(job) != req.ClientID {
		s.logger.Warn("linked job of selected logs belongs to another client", slog.String("linked_job_id", *gen.LinkedJobID))
		return nil, nil
	}
	return &job, nil
}

// checkSelection requires every id to name an existing billable log of clientID.
func checkSelection(clientID string, ids []string, logs []billing.DailyServiceLog) error {
	found := make(map[string]billing.DailyServiceLog, len(logs))
	for _, l := range logs {
		found[l.ID] = l
	}
	verr := &httpx.ValidationError{}
	for i, id := range ids {
		field := fmt.Sprintf("log_ids[%d]", i)
		l, ok := found[id]
		switch {
		case !ok:
			verr.Add(field, "The selected daily service log does not exist.")
		case l.ClientID != clientID:
			verr.Add(field, "The selected daily service log belongs to a different client.")
		case !l.Billable():
			verr.Add(field, "Upload-only daily service logs cannot be used to generate a ticket.")
		}
	}
	return verr.Err()
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func nextTicketNumber(date time.Time) string {
	return fmt.Sprintf("ST-%s-%s", date.Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}
