package billing

import "errors"

var (
	// ErrTicketNotFound indicates an edit referenced a ticket that does not exist.
	ErrTicketNotFound = errors.New("service ticket not found")
	// ErrConflictingLink indicates a ticket linked to both an agreement and a call-out job.
	ErrConflictingLink = errors.New("ticket cannot link both a sub-agreement and a call-out job")
	// ErrNegativeAmount indicates a negative ticket amount.
	ErrNegativeAmount = errors.New("ticket amount cannot be negative")
	// ErrInvalidStatus indicates an unknown ticket status.
	ErrInvalidStatus = errors.New("invalid ticket status")
	// ErrOverdrawn indicates a movement would push a balance below zero.
	ErrOverdrawn = errors.New("sub-agreement balance would become negative")
)
