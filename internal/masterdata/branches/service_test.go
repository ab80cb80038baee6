package branches

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-bakery/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
	core "github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

type memoryRepo struct {
	items  map[int64]Branch
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: map[int64]Branch{}}
}

func (r *memoryRepo) List(ctx context.Context, filters shared.ListFilters) ([]Branch, int, error) {
	out := []Branch{}
	for id := int64(1); id <= r.nextID; id++ {
		b, ok := r.items[id]
		if !ok || (len(filters.IDs) > 0 && !slices.Contains(filters.IDs, id)) {
			continue
		}
		out = append(out, b)
	}
	return out, len(out), nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Branch, error) {
	b, ok := r.items[id]
	if !ok {
		return Branch{}, shared.ErrNotFound
	}
	return b, nil
}

func (r *memoryRepo) Create(ctx context.Context, branch Branch) (Branch, error) {
	for _, b := range r.items {
		if b.Code == branch.Code {
			return Branch{}, shared.ErrDuplicate
		}
	}
	r.nextID++
	branch.ID = r.nextID
	r.items[branch.ID] = branch
	return branch, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, branch Branch) error {
	if _, ok := r.items[id]; !ok {
		return shared.ErrNotFound
	}
	branch.ID = id
	r.items[id] = branch
	return nil
}

func (r *memoryRepo) Deactivate(ctx context.Context, id int64) error {
	b, ok := r.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	b.IsActive = false
	r.items[id] = b
	return nil
}

func seed(t *testing.T, svc *Service, codes ...string) {
	t.Helper()
	for _, code := range codes {
		_, err := svc.Create(context.Background(), Branch{Code: code, Name: "Cabang " + code, IsActive: true})
		require.NoError(t, err)
	}
}

func TestCreateValidatesCode(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, Branch{Code: " dgo ", Name: " Dago "})
	require.NoError(t, err)
	require.Equal(t, "DGO", created.Code)
	require.Equal(t, "Dago", created.Name)

	_, err = svc.Create(ctx, Branch{Code: "DG O", Name: "Dago 2"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Create(ctx, Branch{Code: "dgo", Name: "Dago 3"})
	require.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestListIsScopedForBranchStaff(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	seed(t, svc, "HQ", "DGO", "BTR")

	staff := core.ContextWithScope(context.Background(), core.Scope{UserID: 3, Role: core.RoleBranchStaff, BranchIDs: []int64{2}})
	got, total, err := svc.List(staff, shared.ListFilters{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "DGO", got[0].Code)

	got, _, err = svc.List(staff, shared.ListFilters{IDs: []int64{1, 3}})
	require.NoError(t, err)
	require.Empty(t, got)

	owner := core.ContextWithScope(context.Background(), core.Scope{UserID: 1, Role: core.RoleOwner})
	got, _, err = svc.List(owner, shared.ListFilters{})
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestDeactivateKeepsBranch(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	seed(t, svc, "HQ")
	ctx := context.Background()

	require.NoError(t, svc.Deactivate(ctx, 1))
	got, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	require.ErrorIs(t, svc.Deactivate(ctx, 0), shared.ErrInvalidID)
	require.ErrorIs(t, svc.Deactivate(ctx, 42), httpx.ErrNotFound)
}
