package users

import (
	"time"

	"github.com/petrofield/fieldops/internal/shared"
)

// Account statuses.
const (
	StatusActive   = "Active"
	StatusInactive = "Inactive"
)

// User represents a portal account.
type User struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	Role         shared.Role `json:"role"`
	Status       string      `json:"status"`
	Avatar       *string     `json:"avatar"`
	LastLoginAt  *time.Time  `json:"last_login_at"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// ListFilter narrows a user listing.
type ListFilter struct {
	shared.ListParams
	Role   shared.Role
	Status string
}
