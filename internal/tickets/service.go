package tickets

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/petrofield/fieldops/internal/billing"
	"github.com/petrofield/fieldops/internal/dayrange"
	"github.com/petrofield/fieldops/internal/observability"
	"github.com/petrofield/fieldops/internal/platform/httpx"
	"github.com/petrofield/fieldops/internal/shared"
)

const (
	moduleCreate   = "service_tickets.create"
	moduleGenerate = "service_tickets.generate"

	defaultLockTTL = 30 * time.Second
)

// LinkResolver finds the sub-agreement or call-out job behind an id.
type LinkResolver interface {
	ResolveLink(ctx context.Context, id string) (billing.LinkedJob, error)
}

// Locker serialises generation per client.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// IdempotencyStore claims request keys inside the caller's transaction.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, q shared.Querier, key, module string) error
	Attach(ctx context.Context, q shared.Querier, key, resourceID string) error
	Lookup(ctx context.Context, key, module string) (string, error)
}

// AuditRecorder writes audit trail rows.
type AuditRecorder interface {
	Record(ctx context.Context, q shared.Querier, log shared.AuditLog) error
}

// Enqueuer schedules ledger verification after balances move.
type Enqueuer interface {
	EnqueueLedgerVerify(ctx context.Context, agreementID string) error
}

// Options tune ledger behaviour.
type Options struct {
	// RejectOverdraw refuses movements that would leave a balance below zero.
	RejectOverdraw bool
	Rates          billing.Rates
	LockTTL        time.Duration
}

// Deps groups the collaborators of Service. Only Repo and Links are required.
type Deps struct {
	Repo        Repository
	Links       LinkResolver
	Locker      Locker
	Idempotency IdempotencyStore
	Audit       AuditRecorder
	Enqueuer    Enqueuer
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// Service implements service ticket rules and keeps sub-agreement balances
// reconciled with ticket amounts.
type Service struct {
	repo       Repository
	links      LinkResolver
	locker     Locker
	idem       IdempotencyStore
	audit      AuditRecorder
	enqueuer   Enqueuer
	metrics    *observability.Metrics
	logger     *slog.Logger
	opts       Options
	aggregator billing.Aggregator
	pdfGroup   singleflight.Group
}

// NewService constructs the service.
func NewService(deps Deps, opts Options) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Locker == nil {
		deps.Locker = shared.NewLocker(nil)
	}
	if opts.Rates.PersonnelDay.IsZero() && opts.Rates.EquipmentDay.IsZero() {
		opts.Rates = billing.DefaultRates()
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	return &Service{
		repo:       deps.Repo,
		links:      deps.Links,
		locker:     deps.Locker,
		idem:       deps.Idempotency,
		audit:      deps.Audit,
		enqueuer:   deps.Enqueuer,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		opts:       opts,
		aggregator: billing.NewAggregator(opts.Rates),
	}
}

// List returns a page of tickets.
func (s *Service) List(ctx context.Context, req ListTicketsRequest) (shared.Page[billing.ServiceTicket], error) {
	items, total, err := s.repo.List(ctx, req)
	if err != nil {
		return shared.Page[billing.ServiceTicket]{}, err
	}
	return shared.NewPage(items, req.ListParams, total), nil
}

// Get returns one ticket.
func (s *Service) Get(ctx context.Context, id string) (*billing.ServiceTicket, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a manual ticket and debits its linked sub-agreement.
func (s *Service) Create(ctx context.Context, req CreateTicketRequest, idempotencyKey string) (*billing.ServiceTicket, error) {
	if req.Amount == nil {
		return nil, httpx.NewValidationError("amount", "The amount field is required.")
	}
	date, err := dayrange.ParseDate(req.Date)
	if err != nil {
		return nil, httpx.NewValidationError("date", "The date is not a valid date.")
	}
	ticket := billing.ServiceTicket{
		TicketNumber:   strings.TrimSpace(req.TicketNumber),
		ClientID:       req.ClientID,
		SubAgreementID: nonEmpty(req.SubAgreementID),
		CallOutJobID:   nonEmpty(req.CallOutJobID),
		Date:           date,
		Status:         defaultStatus(req.Status),
		Amount:         req.Amount.Round(2),
		Documents:      append([]string{}, req.Documents...),
	}
	if err := translate(ticket.Validate()); err != nil {
		return nil, err
	}
	if err := s.checkLink(ctx, ticket); err != nil {
		return nil, err
	}

	var moves []billing.Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := s.claim(ctx, tx, idempotencyKey, moduleCreate); err != nil {
			return err
		}
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
		return s.record(ctx, tx, "service_ticket.created", id, map[string]any{
			"amount":           ticket.Amount.StringFixed(2),
			"sub_agreement_id": ticket.SubAgreementID,
		})
	})
	if err != nil {
		return nil, s.replayed(ctx, err, idempotencyKey, moduleCreate)
	}
	s.afterCommit(ctx, moves)
	s.logger.Info("service ticket created", slog.String("ticket_id", ticket.ID), slog.String("amount", ticket.Amount.StringFixed(2)))
	return s.repo.Get(ctx, ticket.ID)
}

// Update edits a ticket. When the linked sub-agreement or the amount changes
// the old contribution is credited back and the new one debited.
func (s *Service) Update(ctx context.Context, id string, req UpdateTicketRequest) (*billing.ServiceTicket, error) {
	patch := billing.TicketPatch{
		Status:    req.Status,
		Documents: req.Documents,
	}
	if req.TicketNumber != nil {
		number := strings.TrimSpace(*req.TicketNumber)
		patch.TicketNumber = &number
	}
	if req.ClientID != nil {
		patch.ClientID = req.ClientID
	}
	if req.Amount != nil {
		amount := req.Amount.Round(2)
		patch.Amount = &amount
	}
	if req.Date != nil {
		date, err := dayrange.ParseDate(*req.Date)
		if err != nil {
			return nil, httpx.NewValidationError("date", "The date is not a valid date.")
		}
		patch.Date = &date
	}
	if err := validateLinkIDs(req); err != nil {
		return nil, err
	}

	var moves []billing.Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		old, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if patch.ClientID != nil && *patch.ClientID != old.ClientID && len(old.RelatedLogIDs) > 0 {
			return httpx.NewValidationError("client_id", "The client of a ticket generated from daily service logs cannot be changed.")
		}
		link, err := mergeLink(*old, req)
		if err != nil {
			return err
		}
		patch.Link = link

		updated := old.Apply(patch)
		if err := translate(updated.Validate()); err != nil {
			return err
		}
		if linkChanged(*old, updated) {
			if err := s.checkLink(ctx, updated); err != nil {
				return err
			}
		}
		if err := tx.Update(ctx, updated); err != nil {
			return err
		}
		if ledgerChanged(*old, updated) {
			moves = billing.UpdateMovements(*old, updated)
			if err := s.applyMoves(ctx, tx, moves); err != nil {
				return err
			}
		}
		return s.record(ctx, tx, "service_ticket.updated", id, map[string]any{
			"old_amount":           old.Amount.StringFixed(2),
			"new_amount":           updated.Amount.StringFixed(2),
			"old_sub_agreement_id": old.SubAgreementID,
			"new_sub_agreement_id": updated.SubAgreementID,
		})
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, moves)
	return s.repo.Get(ctx, id)
}

// UpdateStatus changes only the status. Balances never move.
func (s *Service) UpdateStatus(ctx context.Context, id string, status billing.TicketStatus) (*billing.ServiceTicket, error) {
	if !status.Valid() {
		return nil, translate(billing.ErrInvalidStatus)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		old, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if old.Status == status {
			return nil
		}
		updated := old.Apply(billing.TicketPatch{Status: &status})
		if err := tx.Update(ctx, updated); err != nil {
			return err
		}
		return s.record(ctx, tx, "service_ticket.status_changed", id, map[string]any{
			"from": string(old.Status),
			"to":   string(status),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a ticket and releases its consumed logs. The linked
// sub-agreement balance is left as it is.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		old, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		s.logger.Info("service ticket deleted", slog.String("ticket_id", id), slog.Int("released_logs", len(old.RelatedLogIDs)))
		return s.record(ctx, tx, "service_ticket.deleted", id, map[string]any{
			"amount":           old.Amount.StringFixed(2),
			"sub_agreement_id": old.SubAgreementID,
			"released_log_ids": old.RelatedLogIDs,
		})
	})
}

// applyMoves locks the touched agreements in ascending id order, optionally
// enforces the overdraw rule, then applies and journals each movement.
func (s *Service) applyMoves(ctx context.Context, tx Repository, moves []billing.Movement) error {
	if len(moves) == 0 {
		return nil
	}
	ids := billing.AgreementIDs(moves)
	balances, err := tx.LockBalances(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := balances[id]; !ok {
			return ErrUnknownAgreement
		}
	}
	if s.opts.RejectOverdraw {
		if err := billing.CheckOverdraw(balances, moves); err != nil {
			return translate(err)
		}
	}
	for _, m := range moves {
		if err := tx.ApplyMovement(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) afterCommit(ctx context.Context, moves []billing.Movement) {
	if len(moves) == 0 {
		return
	}
	for _, m := range moves {
		s.metrics.LedgerMovement(string(m.Reason))
	}
	if s.enqueuer == nil {
		return
	}
	for _, id := range billing.AgreementIDs(moves) {
		if err := s.enqueuer.EnqueueLedgerVerify(context.WithoutCancel(ctx), id); err != nil {
			s.logger.Warn("enqueue ledger verify failed", slog.String("agreement_id", id), slog.Any("error", err))
		}
	}
}

// checkLink confirms a ticket's link targets exist, have the right kind and
// belong to the ticket's client.
func (s *Service) checkLink(ctx context.Context, t billing.ServiceTicket) error {
	if t.SubAgreementID != nil {
		if err := s.expectLink(ctx, *t.SubAgreementID, billing.LinkAgreement, t.ClientID, "sub_agreement_id", "sub agreement"); err != nil {
			return err
		}
	}
	if t.CallOutJobID != nil {
		if err := s.expectLink(ctx, *t.CallOutJobID, billing.LinkCallOut, t.ClientID, "call_out_job_id", "call-out job"); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) expectLink(ctx context.Context, id string, kind billing.LinkKind, clientID, field, label string) error {
	job, err := s.links.ResolveLink(ctx, id)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return httpx.NewValidationError(field, "The selected "+label+" id is invalid.")
		}
		return err
	}
	if job.Kind != kind {
		return httpx.NewValidationError(field, "The selected "+label+" id is invalid.")
	}
	if owner := linkClient(job); owner != clientID {
		return httpx.NewValidationError(field, "The selected "+label+" belongs to a different client.")
	}
	return nil
}

func linkClient(job billing.LinkedJob) string {
	switch {
	case job.Agreement != nil:
		return job.Agreement.ClientID
	case job.CallOut != nil:
		return job.CallOut.ClientID
	}
	return ""
}

func (s *Service) claim(ctx context.Context, tx Repository, key, module string) error {
	if key == "" || s.idem == nil {
		return nil
	}
	return s.idem.CheckAndInsert(ctx, tx.Querier(), key, module)
}

func (s *Service) attach(ctx context.Context, tx Repository, key, id string) error {
	if key == "" || s.idem == nil {
		return nil
	}
	return s.idem.Attach(ctx, tx.Querier(), key, id)
}

// replayed turns a duplicate idempotency key into a ReplayError naming the
// ticket the first request produced.
func (s *Service) replayed(ctx context.Context, err error, key, module string) error {
	if !errors.Is(err, shared.ErrIdempotencyConflict) {
		return err
	}
	id, lookupErr := s.idem.Lookup(ctx, key, module)
	if lookupErr != nil && !errors.Is(lookupErr, shared.ErrNotRecorded) {
		s.logger.Warn("idempotency lookup failed", slog.String("key", key), slog.Any("error", lookupErr))
	}
	return &ReplayError{TicketID: id}
}

func (s *Service) record(ctx context.Context, tx Repository, action, id string, meta map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, tx.Querier(), shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "service_ticket",
		EntityID: id,
		Meta:     meta,
	})
}

// validateLinkIDs rejects link fields that are not identifiers before any
// lookup reaches the database.
func validateLinkIDs(req UpdateTicketRequest) error {
	verr := &httpx.ValidationError{}
	for field, value := range map[string]*string{
		"sub_agreement_id": req.SubAgreementID.Value,
		"call_out_job_id":  req.CallOutJobID.Value,
	} {
		if value == nil {
			continue
		}
		if _, err := uuid.Parse(*value); err != nil || len(*value) != 36 {
			verr.Add(field, "The "+field+" must be a valid UUID.")
		}
	}
	return verr.Err()
}

// mergeLink resolves the link fields of an edit against the stored ticket.
// Setting one link clears the other; explicit nulls clear only their field.
func mergeLink(old billing.ServiceTicket, req UpdateTicketRequest) (*billing.TicketLink, error) {
	sub, call := req.SubAgreementID, req.CallOutJobID
	if !sub.Set && !call.Set {
		return nil, nil
	}
	if sub.Value != nil && call.Value != nil {
		return nil, translate(billing.ErrConflictingLink)
	}
	link := billing.TicketLink{SubAgreementID: old.SubAgreementID, CallOutJobID: old.CallOutJobID}
	if sub.Set {
		link.SubAgreementID = sub.Value
		if sub.Value != nil {
			link.CallOutJobID = nil
		}
	}
	if call.Set {
		link.CallOutJobID = call.Value
		if call.Value != nil {
			link.SubAgreementID = nil
		}
	}
	return &link, nil
}

func linkChanged(old, updated billing.ServiceTicket) bool {
	return !sameID(old.SubAgreementID, updated.SubAgreementID) ||
		!sameID(old.CallOutJobID, updated.CallOutJobID) ||
		old.ClientID != updated.ClientID
}

// ledgerChanged reports whether the agreement contribution of the ticket moved.
func ledgerChanged(old, updated billing.ServiceTicket) bool {
	oldID, oldLinked := old.AgreementID()
	newID, newLinked := updated.AgreementID()
	if oldLinked != newLinked || oldID != newID {
		return true
	}
	return oldLinked && !old.Amount.Equal(updated.Amount)
}

func sameID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func defaultStatus(status billing.TicketStatus) billing.TicketStatus {
	if status == "" {
		return billing.TicketInFieldToSign
	}
	return status
}
