package returns

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-bakery/internal/inventory"
	"github.com/odyssey-erp/odyssey-bakery/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

type memoryRepo struct {
	stock *inventorytest.Store
	sales map[int64]Sale

	mu      sync.Mutex
	returns map[int64]Return
	nextID  int64
}

type memoryTx struct {
	repo *memoryRepo
	inv  inventory.TxRepository
}

func newMemoryRepo(stock *inventorytest.Store) *memoryRepo {
	return &memoryRepo{
		stock: stock,
		sales: map[int64]Sale{
			10: {ID: 10, Code: "TRX-1", BranchID: 1, Lines: []SoldLine{{ProductID: 1, Quantity: 5}, {ProductID: 2, Quantity: 2}}},
		},
		returns: map[int64]Return{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.stock.Lock()
	defer r.stock.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := make(map[int64]Return, len(r.returns))
	for k, v := range r.returns {
		saved[k] = v
	}
	err := r.stock.Atomic(ctx, func(ctx context.Context, inv inventory.TxRepository) error {
		return fn(ctx, &memoryTx{repo: r, inv: inv})
	})
	if err != nil {
		r.returns = saved
	}
	return err
}

func (r *memoryRepo) Sale(ctx context.Context, id int64) (Sale, error) {
	sale, ok := r.sales[id]
	if !ok {
		return Sale{}, ErrSaleNotFound
	}
	return sale, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Return, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret, ok := r.returns[id]
	if !ok {
		return Return{}, ErrReturnNotFound
	}
	return ret, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Return, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Return{}
	for _, ret := range r.returns {
		if filter.Status != "" && ret.Status != filter.Status {
			continue
		}
		out = append(out, ret)
	}
	return out, len(out), nil
}

func (tx *memoryTx) Insert(ctx context.Context, ret Return) (Return, error) {
	tx.repo.nextID++
	ret.ID = tx.repo.nextID
	ret.CreatedAt = time.Now()
	tx.repo.returns[ret.ID] = ret
	return ret, nil
}

func (tx *memoryTx) Lock(ctx context.Context, id int64) (Return, error) {
	ret, ok := tx.repo.returns[id]
	if !ok {
		return Return{}, ErrReturnNotFound
	}
	return ret, nil
}

func (tx *memoryTx) Decide(ctx context.Context, id int64, status Status, by int64, note string, at time.Time) error {
	ret := tx.repo.returns[id]
	ret.Status, ret.DecidedBy, ret.DecisionNote, ret.DecidedAt = status, by, note, &at
	tx.repo.returns[id] = ret
	return nil
}

func (tx *memoryTx) ReturnedQuantities(ctx context.Context, transactionID int64) (map[int64]int64, error) {
	out := map[int64]int64{}
	for _, ret := range tx.repo.returns {
		if ret.TransactionID != transactionID || ret.Status == StatusRejected {
			continue
		}
		for _, it := range ret.Items {
			out[it.ProductID] += it.Quantity
		}
	}
	return out, nil
}

func (tx *memoryTx) Inventory() inventory.TxRepository { return tx.inv }

var (
	staffB1 = shared.Scope{UserID: 3, Role: shared.RoleBranchStaff, BranchIDs: []int64{1}}
	staffB2 = shared.Scope{UserID: 4, Role: shared.RoleBranchStaff, BranchIDs: []int64{2}}
	hq      = shared.Scope{UserID: 9, Role: shared.RoleHQStaff}
)

func newService() (*Service, *inventorytest.Store) {
	stock := inventorytest.New()
	stock.Seed(1, 1, 4)
	stock.Seed(2, 1, 0)
	svc := NewService(newMemoryRepo(stock), inventory.NewService(stock, nil, inventory.ServiceConfig{}), nil)
	return svc, stock
}

func TestApproveRestocksOnlyResaleableItems(t *testing.T) {
	svc, stock := newService()
	ctx := context.Background()

	ret, err := svc.Create(ctx, staffB1, CreateInput{
		TransactionID: 10,
		Items: []ItemInput{
			{ProductID: 1, Quantity: 2, Condition: ConditionResaleable},
			{ProductID: 2, Quantity: 1, Condition: ConditionDamaged},
			{ProductID: 1, Quantity: 1, Condition: ConditionExpired},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, ret.Status)
	require.Regexp(t, `^RET-\d{8}-[0-9A-F]{6}$`, ret.ReturnNumber)
	require.Empty(t, stock.Movements(), "pending returns do not move stock")

	approved, err := svc.Approve(ctx, hq, ret.ID, DecisionInput{Note: "ok"})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.DecidedAt)

	qty, _ := stock.Quantity(1, 1)
	require.EqualValues(t, 6, qty)
	qty, _ = stock.Quantity(2, 1)
	require.EqualValues(t, 0, qty)

	movements := stock.Movements()
	require.Len(t, movements, 1)
	require.Equal(t, inventory.MovementReturn, movements[0].Type)
	require.Equal(t, inventory.RefReturn, movements[0].ReferenceType)
	require.Equal(t, ret.ReturnNumber, movements[0].ReferenceID)

	_, err = svc.Approve(ctx, hq, ret.ID, DecisionInput{})
	require.ErrorIs(t, err, ErrNotPending)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestRejectLeavesStockAlone(t *testing.T) {
	svc, stock := newService()
	ctx := context.Background()
	ret, err := svc.Create(ctx, staffB1, CreateInput{
		TransactionID: 10,
		Items:         []ItemInput{{ProductID: 1, Quantity: 5, Condition: ConditionResaleable}},
	})
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, hq, ret.ID, DecisionInput{Note: "receipt missing"})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	qty, _ := stock.Quantity(1, 1)
	require.EqualValues(t, 4, qty)

	// Rejected returns free their quantity for a new return.
	_, err = svc.Create(ctx, staffB1, CreateInput{
		TransactionID: 10,
		Items:         []ItemInput{{ProductID: 1, Quantity: 5, Condition: ConditionResaleable}},
	})
	require.NoError(t, err)
}

func TestCreateCapsAtSoldQuantity(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	_, err := svc.Create(ctx, staffB1, CreateInput{
		TransactionID: 10,
		Items:         []ItemInput{{ProductID: 2, Quantity: 2, Condition: ConditionDamaged}},
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, staffB1, CreateInput{
		TransactionID: 10,
		Items:         []ItemInput{{ProductID: 2, Quantity: 1, Condition: ConditionExpired}},
	})
	require.ErrorIs(t, err, ErrExceedsSale)

	_, err = svc.Create(ctx, staffB1, CreateInput{
		TransactionID: 10,
		Items:         []ItemInput{{ProductID: 7, Quantity: 1, Condition: ConditionDamaged}},
	})
	require.ErrorIs(t, err, ErrExceedsSale)
}

func TestCreateValidatesAndScopes(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.Create(ctx, staffB1, CreateInput{TransactionID: 10})
	require.ErrorIs(t, err, ErrEmptyReturn)
	_, err = svc.Create(ctx, staffB1, CreateInput{TransactionID: 10, Items: []ItemInput{{ProductID: 1, Quantity: 1, Condition: "stale"}}})
	require.ErrorIs(t, err, ErrInvalidItem)
	_, err = svc.Create(ctx, staffB1, CreateInput{TransactionID: 99, Items: []ItemInput{{ProductID: 1, Quantity: 1, Condition: ConditionDamaged}}})
	require.ErrorIs(t, err, ErrSaleNotFound)
	_, err = svc.Create(ctx, staffB2, CreateInput{TransactionID: 10, Items: []ItemInput{{ProductID: 1, Quantity: 1, Condition: ConditionDamaged}}})
	require.ErrorIs(t, err, shared.ErrOutOfScope)
}
