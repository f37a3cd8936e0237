// Package rbac resolves role permissions and guards routes with them.
package rbac

import (
	"sort"

	"github.com/petrofield/fieldops/internal/shared"
)

// Service resolves effective permissions for a principal.
type Service struct {
	scopes map[shared.Role][]string
}

// NewService builds a Service from the built-in role matrix.
func NewService() *Service {
	scopes := make(map[shared.Role][]string)
	for _, role := range []shared.Role{shared.RoleAdmin, shared.RoleManager, shared.RoleUser} {
		scopes[role] = normalizePermissions(shared.RoleScopes(role))
	}
	return &Service{scopes: scopes}
}

// EffectivePermissions returns the sorted permissions granted to role.
func (s *Service) EffectivePermissions(role shared.Role) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.scopes[role]...)
}

// Matrix returns every role with its permissions.
func (s *Service) Matrix() map[shared.Role][]string {
	out := make(map[shared.Role][]string, len(s.scopes))
	for role, perms := range s.scopes {
		out[role] = append([]string(nil), perms...)
	}
	return out
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = normalize(p)
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	sort.Strings(normalized)
	return normalized
}
