package reconciliation_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-bakery/internal/inventory"
	"github.com/odyssey-erp/odyssey-bakery/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-bakery/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-bakery/internal/reconciliation"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

type storeSource struct {
	products []reconciliation.ProductInfo
	store    *inventorytest.Store
}

func (s storeSource) Products(ctx context.Context) ([]reconciliation.ProductInfo, error) {
	return s.products, nil
}

func (s storeSource) StockRows(ctx context.Context, branchIDs []int64) ([]reconciliation.StockRow, error) {
	movements := s.store.Movements()
	var rows []reconciliation.StockRow
	for _, rec := range s.store.Records() {
		if branchIDs != nil && !contains(branchIDs, rec.BranchID) {
			continue
		}
		row := reconciliation.StockRow{ProductID: rec.ProductID, BranchID: rec.BranchID, Quantity: rec.Quantity}
		for _, m := range movements {
			if m.ProductID == rec.ProductID && m.BranchID == rec.BranchID {
				row.HasMovements = true
				row.MovementBalance = m.QuantityAfter
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type fixture struct {
	store   *inventorytest.Store
	locker  *cache.Locker
	service *reconciliation.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := inventorytest.New()
	locker := cache.NewLocker(client, time.Minute)
	source := storeSource{store: store, products: []reconciliation.ProductInfo{
		{ID: 1, SKU: "RT-01", Name: "Roti Tawar", UoM: "pcs"},
		{ID: 2, SKU: "CR-01", Name: "Croissant", UoM: "pcs"},
	}}
	inv := inventory.NewService(store, nil, inventory.ServiceConfig{})
	return fixture{store: store, locker: locker, service: reconciliation.NewService(source, inv, locker)}
}

var admin = shared.Scope{UserID: 1, Role: shared.RoleAdmin}

func TestScanThenFixNegativeStock(t *testing.T) {
	f := newFixture(t)
	f.store.Seed(1, 1, -2)
	ctx := context.Background()

	report, err := f.service.Scan(ctx, admin, 0)
	require.NoError(t, err)
	require.Equal(t, 1, report.Critical)
	require.Len(t, report.Discrepancies, 1)

	d := report.Discrepancies[0]
	result, err := f.service.Fix(ctx, admin, []reconciliation.FixItem{{
		ProductID: d.ProductID, BranchID: d.BranchID, Kind: d.Kind, CalculatedStock: d.CalculatedStock,
	}})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Fixed, 1)

	qty, _ := f.store.Quantity(1, 1)
	require.Zero(t, qty)
	movements := f.store.Movements()
	require.Len(t, movements, 1)
	require.Equal(t, inventory.MovementAdjustment, movements[0].Type)
	require.Equal(t, inventory.RefReconciliation, movements[0].ReferenceType)
	require.EqualValues(t, 2, movements[0].QuantityChange)

	report, err = f.service.Scan(ctx, admin, 0)
	require.NoError(t, err)
	require.Empty(t, report.Discrepancies)
}

func TestFixDriftAppliesLoggedBalance(t *testing.T) {
	f := newFixture(t)
	f.store.Seed(2, 1, 9)
	f.store.SeedMovement(inventory.Movement{ProductID: 2, BranchID: 1, QuantityChange: 6, QuantityAfter: 6})
	ctx := context.Background()

	report, err := f.service.Scan(ctx, admin, 1)
	require.NoError(t, err)
	require.Len(t, report.Discrepancies, 1)
	require.Equal(t, reconciliation.KindMovementDrift, report.Discrepancies[0].Kind)

	result, err := f.service.Fix(ctx, admin, []reconciliation.FixItem{{ProductID: 2, BranchID: 1, Kind: reconciliation.KindMovementDrift, CalculatedStock: 6}})
	require.NoError(t, err)
	require.True(t, result.Success)

	report, err = f.service.Scan(ctx, admin, 1)
	require.NoError(t, err)
	require.Empty(t, report.Discrepancies)
}

func TestFixRejectsWhileBranchLocked(t *testing.T) {
	f := newFixture(t)
	f.store.Seed(1, 1, -5)
	ctx := context.Background()

	err := f.locker.WithLock(ctx, shared.ReconciliationLockKey(1), func(ctx context.Context) error {
		result, err := f.service.Fix(ctx, admin, []reconciliation.FixItem{{ProductID: 1, BranchID: 1, Kind: reconciliation.KindNegativeStock}})
		require.NoError(t, err)
		require.False(t, result.Success)
		require.Len(t, result.Errors, 1)
		require.Contains(t, result.Errors[0], "already running")
		return nil
	})
	require.NoError(t, err)

	qty, _ := f.store.Quantity(1, 1)
	require.EqualValues(t, -5, qty)
}

func TestFixRejectsUnfixableKindsAndForeignBranches(t *testing.T) {
	f := newFixture(t)
	f.store.Seed(1, 2, -1)
	staff := shared.Scope{UserID: 4, Role: shared.RoleBranchStaff, BranchIDs: []int64{1}}

	result, err := f.service.Fix(context.Background(), staff, []reconciliation.FixItem{
		{ProductID: 1, BranchID: 1, Kind: reconciliation.KindDuplicateSKU},
		{ProductID: 1, BranchID: 2, Kind: reconciliation.KindNegativeStock},
	})
	require.NoError(t, err)
	require.Len(t, result.Errors, 2)
	require.Empty(t, result.Fixed)

	_, err = f.service.Fix(context.Background(), admin, nil)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestScanRejectsForeignBranch(t *testing.T) {
	f := newFixture(t)
	staff := shared.Scope{UserID: 4, Role: shared.RoleBranchStaff, BranchIDs: []int64{1}}
	_, err := f.service.Scan(context.Background(), staff, 2)
	require.ErrorIs(t, err, shared.ErrOutOfScope)
}
