package auth

import (
	"time"

	"github.com/petrofield/fieldops/internal/shared"
)

// User represents an authenticated user account.
type User struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	Role         shared.Role `json:"role"`
	Status       string      `json:"status"`
	Avatar       *string     `json:"avatar,omitempty"`
	LastLoginAt  *time.Time  `json:"last_login_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Active reports whether the account may sign in.
func (u User) Active() bool {
	return u.Status == "" || u.Status == StatusActive
}

// StatusActive is the status of an enabled account.
const StatusActive = "Active"

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}
