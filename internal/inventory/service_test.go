package inventory_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-bakery/internal/inventory"
	"github.com/odyssey-erp/odyssey-bakery/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

var admin = shared.Scope{UserID: 1, Role: shared.RoleAdmin}

func newService(store *inventorytest.Store) *inventory.Service {
	return inventory.NewService(store, nil, inventory.ServiceConfig{BatchChunkSize: 2})
}

func TestApplyOperation(t *testing.T) {
	cases := []struct {
		op       inventory.Operation
		current  int64
		quantity int64
		want     int64
	}{
		{inventory.OpSet, 10, 4, 4},
		{inventory.OpAdd, 10, 4, 14},
		{inventory.OpSubtract, 10, 4, 6},
		{inventory.OpSubtract, 3, 10, 0},
		{inventory.OpReset, 10, 0, 0},
	}
	for _, tc := range cases {
		got, err := inventory.ApplyOperation(tc.op, tc.current, tc.quantity)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "%s %d by %d", tc.op, tc.current, tc.quantity)
	}

	_, err := inventory.ApplyOperation(inventory.OpAdd, 1, 0)
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	_, err = inventory.ApplyOperation(inventory.OpSet, 1, -1)
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	_, err = inventory.ApplyOperation(inventory.OpAdd, 1, inventory.MaxQuantity+1)
	require.ErrorIs(t, err, inventory.ErrQuantityTooLarge)
	_, err = inventory.ApplyOperation("double", 1, 1)
	require.ErrorIs(t, err, inventory.ErrInvalidOperation)
}

func TestQuickAdjustSubtractClampsAtZero(t *testing.T) {
	store := inventorytest.New()
	rec := store.Seed(1, 1, 3)
	svc := newService(store)

	result, err := svc.QuickAdjust(context.Background(), admin, inventory.AdjustInput{
		RecordID: rec.ID, Operation: inventory.OpSubtract, Quantity: 10,
	})
	require.NoError(t, err)
	require.EqualValues(t, 3, result.Before)
	require.EqualValues(t, 0, result.After)
	require.NotNil(t, result.Movement)
	require.EqualValues(t, -3, result.Movement.QuantityChange)
	require.Equal(t, inventory.MovementOut, result.Movement.Type)
	require.Equal(t, inventory.RefAdjustment, result.Movement.ReferenceType)

	qty, _ := store.Quantity(1, 1)
	require.Zero(t, qty)
	require.Len(t, store.Movements(), 1)
}

func TestQuickAdjustSetAndAddCreateMissingRecord(t *testing.T) {
	store := inventorytest.New()
	svc := newService(store)
	ctx := context.Background()

	result, err := svc.QuickAdjust(ctx, admin, inventory.AdjustInput{ProductID: 7, BranchID: 2, Operation: inventory.OpSet, Quantity: 12})
	require.NoError(t, err)
	require.True(t, result.Created)
	require.EqualValues(t, 12, result.After)

	result, err = svc.QuickAdjust(ctx, admin, inventory.AdjustInput{ProductID: 8, BranchID: 2, Operation: inventory.OpAdd, Quantity: 5})
	require.NoError(t, err)
	require.True(t, result.Created)
	require.EqualValues(t, 0, result.Before)
	require.EqualValues(t, 5, result.After)
	require.Equal(t, inventory.MovementIn, result.Movement.Type)
}

func TestQuickAdjustAddReadsStockInsertedConcurrently(t *testing.T) {
	store := inventorytest.New()
	store.RacingInsert = map[int64]int64{9: 5}
	svc := newService(store)

	result, err := svc.QuickAdjust(context.Background(), admin, inventory.AdjustInput{
		ProductID: 9, BranchID: 1, Operation: inventory.OpAdd, Quantity: 3,
	})
	require.NoError(t, err)
	require.False(t, result.Created)
	require.EqualValues(t, 5, result.Before)
	require.EqualValues(t, 8, result.After)
	require.NotNil(t, result.Movement)
	require.EqualValues(t, 3, result.Movement.QuantityChange)
	require.EqualValues(t, 5, result.Movement.QuantityBefore)

	qty, _ := store.Quantity(9, 1)
	require.EqualValues(t, 8, qty)
	require.Len(t, store.Movements(), 1)
}

func TestQuickAdjustSetAfterConcurrentInsertLogsTrueChange(t *testing.T) {
	store := inventorytest.New()
	store.RacingInsert = map[int64]int64{9: 5}
	svc := newService(store)

	result, err := svc.QuickAdjust(context.Background(), admin, inventory.AdjustInput{
		ProductID: 9, BranchID: 1, Operation: inventory.OpSet, Quantity: 2,
	})
	require.NoError(t, err)
	require.EqualValues(t, 5, result.Before)
	require.NotNil(t, result.Movement)
	require.EqualValues(t, -3, result.Movement.QuantityChange)
	require.Equal(t, inventory.MovementAdjustment, result.Movement.Type)
}

func TestQuickAdjustSubtractAndResetRequireRecord(t *testing.T) {
	store := inventorytest.New()
	svc := newService(store)
	ctx := context.Background()

	_, err := svc.QuickAdjust(ctx, admin, inventory.AdjustInput{ProductID: 1, BranchID: 1, Operation: inventory.OpSubtract, Quantity: 1})
	require.ErrorIs(t, err, inventory.ErrRecordNotFound)
	require.ErrorIs(t, err, httpx.ErrNotFound)

	_, err = svc.QuickAdjust(ctx, admin, inventory.AdjustInput{ProductID: 1, BranchID: 1, Operation: inventory.OpReset})
	require.ErrorIs(t, err, inventory.ErrRecordNotFound)
	require.Empty(t, store.Records())
}

func TestQuickAdjustNoOpWritesNoMovement(t *testing.T) {
	store := inventorytest.New()
	rec := store.Seed(1, 1, 0)
	svc := newService(store)

	result, err := svc.QuickAdjust(context.Background(), admin, inventory.AdjustInput{RecordID: rec.ID, Operation: inventory.OpReset})
	require.NoError(t, err)
	require.Nil(t, result.Movement)
	require.Empty(t, store.Movements())
}

func TestQuickAdjustRollsBackWhenMovementFails(t *testing.T) {
	store := inventorytest.New()
	rec := store.Seed(1, 1, 10)
	store.FailMovements = errors.New("copy failed")
	svc := newService(store)

	_, err := svc.QuickAdjust(context.Background(), admin, inventory.AdjustInput{RecordID: rec.ID, Operation: inventory.OpSet, Quantity: 4})
	require.Error(t, err)

	qty, _ := store.Quantity(1, 1)
	require.EqualValues(t, 10, qty)
	require.Empty(t, store.Movements())
}

func TestQuickAdjustRejectsOutOfScopeBranch(t *testing.T) {
	store := inventorytest.New()
	rec := store.Seed(1, 2, 10)
	svc := newService(store)
	staff := shared.Scope{UserID: 9, Role: shared.RoleBranchStaff, BranchIDs: []int64{1}}
	ctx := context.Background()

	_, err := svc.QuickAdjust(ctx, staff, inventory.AdjustInput{RecordID: rec.ID, Operation: inventory.OpAdd, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrOutOfScope)

	_, err = svc.QuickAdjust(ctx, staff, inventory.AdjustInput{ProductID: 1, BranchID: 2, Operation: inventory.OpSet, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrOutOfScope)

	qty, _ := store.Quantity(1, 2)
	require.EqualValues(t, 10, qty)
}

func TestQuickAdjustValidatesBeforeTouchingStore(t *testing.T) {
	store := inventorytest.New()
	store.FailMovements = errors.New("unreachable")
	svc := newService(store)
	ctx := context.Background()

	_, err := svc.QuickAdjust(ctx, admin, inventory.AdjustInput{RecordID: 1, Operation: inventory.OpAdd, Quantity: 0})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.QuickAdjust(ctx, admin, inventory.AdjustInput{Operation: inventory.OpSet, Quantity: 2})
	require.ErrorIs(t, err, inventory.ErrTargetRequired)
}

func TestBatchAddMergesDuplicateKeys(t *testing.T) {
	store := inventorytest.New()
	svc := newService(store)

	result, err := svc.BatchAdd(context.Background(), admin, []inventory.BatchItem{
		{ProductID: 1, BranchID: 1, Quantity: 5},
		{ProductID: 1, BranchID: 1, Quantity: 3},
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, result.TotalInserted)
	require.Equal(t, 1, result.Merged)
	require.Empty(t, result.Errors)

	qty, ok := store.Quantity(1, 1)
	require.True(t, ok)
	require.EqualValues(t, 8, qty)

	movements := store.Movements()
	require.Len(t, movements, 1)
	require.EqualValues(t, 8, movements[0].QuantityChange)
	require.Equal(t, inventory.RefBatchAdd, movements[0].ReferenceType)
	require.Equal(t, result.BatchID, movements[0].ReferenceID)
}

func TestBatchAddRejectsOverflowingMerge(t *testing.T) {
	store := inventorytest.New()
	store.Seed(1, 1, 100)
	svc := newService(store)

	items := []inventory.BatchItem{
		{ProductID: 1, BranchID: 1, Quantity: math.MaxInt64},
		{ProductID: 1, BranchID: 1, Quantity: 2},
		{ProductID: 2, BranchID: 1, Quantity: inventory.MaxQuantity},
		{ProductID: 2, BranchID: 1, Quantity: 1},
	}
	result, err := svc.BatchAdd(context.Background(), admin, items)
	require.NoError(t, err)
	require.Len(t, result.Errors, 2)
	require.Contains(t, result.Errors[0], "item 1")
	require.Contains(t, result.Errors[1], "item 4")
	require.Zero(t, result.Merged)
	require.Equal(t, len(items), result.TotalUpdated+result.TotalInserted+len(result.Errors)+result.Merged)

	qty, ok := store.Quantity(1, 1)
	require.True(t, ok)
	require.EqualValues(t, 102, qty)
	qty, ok = store.Quantity(2, 1)
	require.True(t, ok)
	require.EqualValues(t, inventory.MaxQuantity, qty)

	for _, m := range store.Movements() {
		require.Positive(t, m.QuantityChange)
		require.GreaterOrEqual(t, m.QuantityBefore, int64(0))
	}
}

func TestBatchAddAccountsForEveryItem(t *testing.T) {
	store := inventorytest.New()
	store.Seed(1, 1, 10)
	store.FailIncrement = map[int64]error{4: errors.New("deadlock detected")}
	svc := newService(store)
	staff := shared.Scope{UserID: 3, Role: shared.RoleBranchStaff, BranchIDs: []int64{1}}

	items := []inventory.BatchItem{
		{ProductID: 1, BranchID: 1, Quantity: 2},
		{ProductID: 2, BranchID: 1, Quantity: 4},
		{ProductID: 2, BranchID: 1, Quantity: 1},
		{ProductID: 3, BranchID: 1, Quantity: 0},
		{ProductID: 3, BranchID: 2, Quantity: 6},
		{ProductID: 4, BranchID: 1, Quantity: 1},
		{ProductID: 5, BranchID: 1, Quantity: 9},
	}
	result, err := svc.BatchAdd(context.Background(), staff, items)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, 1, result.TotalUpdated)
	require.Equal(t, 2, result.TotalInserted)
	require.Equal(t, 1, result.Merged)
	require.Len(t, result.Errors, 3)
	require.Equal(t, len(items), result.TotalUpdated+result.TotalInserted+result.Merged+len(result.Errors))

	require.True(t, strings.HasPrefix(result.Errors[0], "item 4:"))
	require.True(t, strings.HasPrefix(result.Errors[1], "item 5:"))
	require.Contains(t, result.Errors[2], "product 4 branch 1")

	qty, _ := store.Quantity(1, 1)
	require.EqualValues(t, 12, qty)
	qty, _ = store.Quantity(2, 1)
	require.EqualValues(t, 5, qty)
	_, ok := store.Quantity(4, 1)
	require.False(t, ok)
	require.Len(t, store.Movements(), 3)
}

func TestBatchAddStopsBetweenChunksWhenCancelled(t *testing.T) {
	store := inventorytest.New()
	svc := newService(store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.BatchAdd(ctx, admin, []inventory.BatchItem{
		{ProductID: 1, BranchID: 1, Quantity: 1},
		{ProductID: 2, BranchID: 1, Quantity: 1},
		{ProductID: 3, BranchID: 1, Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, result.Errors, 3)
	require.False(t, result.Success)
	require.Empty(t, store.Records())
}

func TestBatchAddRejectsEmptyInput(t *testing.T) {
	_, err := newService(inventorytest.New()).BatchAdd(context.Background(), admin, nil)
	require.ErrorIs(t, err, inventory.ErrEmptyBatch)
}

func TestMetricsCountMutations(t *testing.T) {
	store := inventorytest.New()
	rec := store.Seed(1, 1, 5)
	registry := prometheus.NewRegistry()
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{Metrics: inventory.NewMetrics(registry)})
	ctx := context.Background()

	_, err := svc.QuickAdjust(ctx, admin, inventory.AdjustInput{RecordID: rec.ID, Operation: inventory.OpAdd, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.BatchAdd(ctx, admin, []inventory.BatchItem{{ProductID: 2, BranchID: 1, Quantity: 3}})
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(registry, "bakery_inventory_mutations_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
	count, err = testutil.GatherAndCount(registry, "bakery_inventory_batch_items_total")
	require.NoError(t, err)
	require.Equal(t, 4, count)
}

func TestListLowStockReadsEveryPage(t *testing.T) {
	store := inventorytest.New()
	for product := int64(1); product <= 7; product++ {
		store.Seed(product, 1, 1)
		store.SetReorderPoint(product, 1, 10)
	}
	store.Seed(8, 1, 50)
	store.SetReorderPoint(8, 1, 10)
	store.Seed(9, 2, 0)
	store.SetReorderPoint(9, 2, 5)
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{ListPageSize: 3})
	ctx := context.Background()

	records, err := svc.ListLowStock(ctx, admin, 0)
	require.NoError(t, err)
	require.Len(t, records, 8)

	records, err = svc.ListLowStock(ctx, admin, 1)
	require.NoError(t, err)
	require.Len(t, records, 7)
	for _, rec := range records {
		require.True(t, rec.IsLow())
	}
}

func TestListMovementsScopedToBranches(t *testing.T) {
	store := inventorytest.New()
	store.SeedMovement(inventory.Movement{ProductID: 1, BranchID: 1, QuantityChange: 1})
	store.SeedMovement(inventory.Movement{ProductID: 1, BranchID: 2, QuantityChange: 1})
	svc := newService(store)
	staff := shared.Scope{UserID: 3, Role: shared.RoleBranchStaff, BranchIDs: []int64{2}}

	movements, err := svc.ListMovements(context.Background(), staff, 0, inventory.MovementFilter{})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.EqualValues(t, 2, movements[0].BranchID)

	_, err = svc.ListMovements(context.Background(), staff, 1, inventory.MovementFilter{})
	require.ErrorIs(t, err, shared.ErrOutOfScope)
}
