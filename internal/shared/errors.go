package shared

import "errors"

var (
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLockHeld occurs when another worker owns a critical section.
	ErrLockHeld = errors.New("lock already held")
)
