package issues

import (
	"time"

	"github.com/petrofield/fieldops/internal/shared"
)

// Status enumerates the states of a ticket issue.
type Status string

const (
	StatusOpen       Status = "Open"
	StatusInProgress Status = "In Progress"
	StatusResolved   Status = "Resolved"
	StatusClosed     Status = "Closed"
)

// Valid reports whether s is a known issue status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Issue is a problem reported against a service ticket. It never changes
// the ticket it belongs to.
type Issue struct {
	ID           string    `json:"id"`
	TicketID     string    `json:"ticket_id"`
	Description  string    `json:"description"`
	Status       Status    `json:"status"`
	Remarks      string    `json:"remarks"`
	DateReported time.Time `json:"date_reported"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateIssueRequest is the body of POST /ticket-issues.
type CreateIssueRequest struct {
	TicketID     string `json:"ticket_id" validate:"required,uuid"`
	Description  string `json:"description" validate:"required,max=2000"`
	Status       Status `json:"status" validate:"omitempty,oneof=Open 'In Progress' Resolved Closed"`
	Remarks      string `json:"remarks" validate:"max=2000"`
	DateReported string `json:"date_reported" validate:"omitempty,datetime=2006-01-02"`
}

// UpdateIssueRequest is the body of PUT /ticket-issues/{id}.
type UpdateIssueRequest struct {
	Description  *string `json:"description" validate:"omitempty,min=1,max=2000"`
	Status       *Status `json:"status" validate:"omitempty,oneof=Open 'In Progress' Resolved Closed"`
	Remarks      *string `json:"remarks" validate:"omitempty,max=2000"`
	DateReported *string `json:"date_reported" validate:"omitempty,datetime=2006-01-02"`
}

// ListIssuesRequest filters issue listings.
type ListIssuesRequest struct {
	shared.ListParams
	TicketID string
	Status   Status
}
