package tickets

import (
	"errors"
	"fmt"

	"github.com/petrofield/fieldops/internal/billing"
	"github.com/petrofield/fieldops/internal/platform/httpx"
)

var (
	// ErrLogAlreadyConsumed is returned when a selected log is already billed by another ticket.
	ErrLogAlreadyConsumed = fmt.Errorf("daily service log already consumed by a service ticket: %w", httpx.ErrConflict)
	// ErrDuplicateNumber is returned when the ticket number is taken.
	ErrDuplicateNumber = fmt.Errorf("ticket number already exists: %w", httpx.ErrDuplicate)
	// ErrGenerationInProgress is returned when another generation holds the client lock.
	ErrGenerationInProgress = fmt.Errorf("a ticket generation for this client is already running: %w", httpx.ErrConflict)
)

// ReplayError reports a request whose idempotency key was already used.
type ReplayError struct {
	TicketID string
}

func (e *ReplayError) Error() string {
	if e.TicketID == "" {
		return "request already processed"
	}
	return "request already processed as service ticket " + e.TicketID
}

// Unwrap classifies a replay as a conflict.
func (e *ReplayError) Unwrap() error { return httpx.ErrConflict }

// classified keeps a billing error visible to errors.Is while attaching the
// HTTP class it maps to.
type classified struct {
	err   error
	class error
}

func (c classified) Error() string   { return c.err.Error() }
func (c classified) Unwrap() []error { return []error{c.err, c.class} }

// translate maps pure billing errors to transport classes.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, billing.ErrTicketNotFound):
		return classified{err: err, class: httpx.ErrNotFound}
	case errors.Is(err, billing.ErrConflictingLink):
		verr := httpx.NewValidationError("sub_agreement_id", "A ticket cannot be linked to both a sub-agreement and a call-out job.")
		verr.Add("call_out_job_id", "A ticket cannot be linked to both a sub-agreement and a call-out job.")
		return verr
	case errors.Is(err, billing.ErrNegativeAmount):
		return httpx.NewValidationError("amount", "The amount must be greater than or equal to 0.")
	case errors.Is(err, billing.ErrInvalidStatus):
		return httpx.NewValidationError("status", "The selected status is invalid.")
	case errors.Is(err, billing.ErrOverdrawn):
		return httpx.NewValidationError("amount", "The amount exceeds the remaining balance of the sub-agreement.")
	}
	return err
}
