package shared

import (
	"context"
	"slices"
)

// Role identifies what a user may do across the bakery network.
type Role string

const (
	RoleAdmin           Role = "admin"
	RoleOwner           Role = "owner"
	RoleHQStaff         Role = "hq_staff"
	RoleProductionStaff Role = "production_staff"
	RoleBranchStaff     Role = "branch_staff"
)

// IsValid reports whether the role is known.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleOwner, RoleHQStaff, RoleProductionStaff, RoleBranchStaff:
		return true
	default:
		return false
	}
}

// SpansAllBranches reports whether the role sees every branch. Production
// staff work in the central kitchen and serve every branch.
func (r Role) SpansAllBranches() bool {
	return r == RoleAdmin || r == RoleOwner || r == RoleHQStaff || r == RoleProductionStaff
}

// Scope is the caller identity passed into every branch-aware service call.
type Scope struct {
	UserID    int64
	Role      Role
	BranchIDs []int64
}

// SystemScope is used by background jobs.
func SystemScope() Scope {
	return Scope{Role: RoleAdmin}
}

// AllowsBranch reports whether the scope may touch the branch.
func (s Scope) AllowsBranch(branchID int64) bool {
	if s.Role.SpansAllBranches() {
		return true
	}
	return slices.Contains(s.BranchIDs, branchID)
}

// FilterBranch narrows a requested branch filter to the scope. A zero request
// means "all visible branches". The returned slice is nil when the scope is
// unrestricted and no branch was requested.
func (s Scope) FilterBranch(requested int64) ([]int64, error) {
	if requested != 0 {
		if !s.AllowsBranch(requested) {
			return nil, ErrOutOfScope
		}
		return []int64{requested}, nil
	}
	if s.Role.SpansAllBranches() {
		return nil, nil
	}
	if len(s.BranchIDs) == 0 {
		return nil, ErrOutOfScope
	}
	return slices.Clone(s.BranchIDs), nil
}

// RequireBranch returns ErrOutOfScope when the branch is outside the scope.
func (s Scope) RequireBranch(branchID int64) error {
	if !s.AllowsBranch(branchID) {
		return ErrOutOfScope
	}
	return nil
}

type scopeContextKey struct{}

// ContextWithScope stores the caller scope in context.
func ContextWithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the caller scope from context.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(Scope)
	return scope, ok
}
