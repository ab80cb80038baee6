package branches

import (
	"context"
	"slices"
	"strconv"

	"github.com/odyssey-erp/odyssey-bakery/internal/masterdata/shared"
	core "github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// Service manages bakery outlets.
type Service struct {
	repo  Repository
	audit core.AuditPort
}

// NewService builds Service. audit may be nil.
func NewService(repo Repository, audit core.AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// List returns the branches visible to the caller. Branch staff only see the
// outlets they are assigned to.
func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Branch, int, error) {
	if scope, ok := core.ScopeFromContext(ctx); ok && !scope.Role.SpansAllBranches() {
		filters.IDs = visibleIDs(filters.IDs, scope.BranchIDs)
		if len(filters.IDs) == 0 {
			return []Branch{}, 0, nil
		}
	}
	return s.repo.List(ctx, filters)
}

func visibleIDs(requested, assigned []int64) []int64 {
	if len(requested) == 0 {
		return slices.Clone(assigned)
	}
	out := make([]int64, 0, len(requested))
	for _, id := range requested {
		if slices.Contains(assigned, id) {
			out = append(out, id)
		}
	}
	return out
}

func (s *Service) Get(ctx context.Context, id int64) (Branch, error) {
	if id <= 0 {
		return Branch{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, branch Branch) (Branch, error) {
	branch = normalize(branch)
	if err := s.validate(branch); err != nil {
		return Branch{}, err
	}
	created, err := s.repo.Create(ctx, branch)
	if err != nil {
		return Branch{}, err
	}
	s.record(ctx, "branch.create", created.ID, map[string]any{"code": created.Code})
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, branch Branch) (Branch, error) {
	if id <= 0 {
		return Branch{}, shared.ErrInvalidID
	}
	branch = normalize(branch)
	if err := s.validate(branch); err != nil {
		return Branch{}, err
	}
	if err := s.repo.Update(ctx, id, branch); err != nil {
		return Branch{}, err
	}
	s.record(ctx, "branch.update", id, map[string]any{"code": branch.Code, "is_active": branch.IsActive})
	return s.repo.Get(ctx, id)
}

// Deactivate closes a branch. Its stock, sales and movements are kept.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "branch.deactivate", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	scope, _ := core.ScopeFromContext(ctx)
	core.RecordBestEffort(ctx, s.audit, core.AuditLog{
		ActorID:  scope.UserID,
		BranchID: id,
		Action:   action,
		Entity:   "branch",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}
