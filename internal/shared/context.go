package shared

import (
	"context"
	"time"
)

// Role is a portal user role.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleManager Role = "Manager"
	RoleUser    Role = "User"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	}
	return false
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID    string
	Email     string
	Name      string
	Role      Role
	TokenID   string
	ExpiresAt time.Time
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}

// ActorID returns the id of the authenticated user, or "" when anonymous.
func ActorID(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.UserID
	}
	return ""
}
