package rbac

import (
	"context"

	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// Service resolves the effective permissions of a caller.
type Service struct {
	overrides map[shared.Role][]string
}

// NewService constructs Service. Overrides replace the built-in grants for
// the listed roles.
func NewService(overrides map[shared.Role][]string) *Service {
	return &Service{overrides: overrides}
}

// EffectivePermissions returns the permission names granted to the scope.
func (s *Service) EffectivePermissions(_ context.Context, scope shared.Scope) ([]string, error) {
	if s != nil {
		if perms, ok := s.overrides[scope.Role]; ok {
			return perms, nil
		}
	}
	return shared.RolePermissions(scope.Role), nil
}
