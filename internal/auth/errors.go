package auth

import (
	"fmt"

	"github.com/petrofield/fieldops/internal/platform/httpx"
)

var (
	// ErrMissingToken indicates no bearer token was presented.
	ErrMissingToken = fmt.Errorf("missing bearer token: %w", httpx.ErrUnauthorized)
	// ErrInvalidToken indicates a malformed, expired or forged token.
	ErrInvalidToken = fmt.Errorf("invalid token: %w", httpx.ErrUnauthorized)
	// ErrTokenRevoked indicates the token was logged out.
	ErrTokenRevoked = fmt.Errorf("token revoked: %w", httpx.ErrUnauthorized)
	// ErrInactiveUser indicates the account behind a token was disabled.
	ErrInactiveUser = fmt.Errorf("account disabled: %w", httpx.ErrUnauthorized)
)
