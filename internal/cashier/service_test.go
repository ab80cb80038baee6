package cashier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-bakery/internal/inventory"
	"github.com/odyssey-erp/odyssey-bakery/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

type memoryRepo struct {
	stock  *inventorytest.Store
	prices map[int64]PriceInfo

	mu       sync.Mutex
	txns     []Transaction
	payments []Payment
	calls    int

	failPayment error
}

type memoryTx struct {
	repo *memoryRepo
	inv  inventory.TxRepository
}

func newMemoryRepo(stock *inventorytest.Store) *memoryRepo {
	return &memoryRepo{
		stock: stock,
		prices: map[int64]PriceInfo{
			1: {Name: "Roti Tawar", Price: decimal.NewFromInt(18000), IsActive: true},
			2: {Name: "Croissant", Price: decimal.RequireFromString("12500.50"), IsActive: true},
			3: {Name: "Bolu Lama", Price: decimal.NewFromInt(30000), IsActive: false},
		},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.stock.Lock()
	defer r.stock.Unlock()
	r.mu.Lock()
	txns, payments := len(r.txns), len(r.payments)
	r.mu.Unlock()
	err := r.stock.Atomic(ctx, func(ctx context.Context, inv inventory.TxRepository) error {
		return fn(ctx, &memoryTx{repo: r, inv: inv})
	})
	if err != nil {
		r.mu.Lock()
		r.txns, r.payments = r.txns[:txns], r.payments[:payments]
		r.mu.Unlock()
	}
	return err
}

func (r *memoryRepo) Prices(ctx context.Context, ids []int64) (map[int64]PriceInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	out := map[int64]PriceInfo{}
	for _, id := range ids {
		if p, ok := r.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r *memoryRepo) FindByIdempotencyKey(ctx context.Context, key string) (Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.txns {
		if t.IdempotencyKey == key {
			return t, nil
		}
	}
	return Transaction{}, ErrTransactionMissing
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.txns {
		if t.ID == id {
			return t, nil
		}
	}
	return Transaction{}, ErrTransactionMissing
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Transaction, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Transaction{}
	for _, t := range r.txns {
		if len(filter.BranchIDs) > 0 && t.BranchID != filter.BranchIDs[0] {
			continue
		}
		out = append(out, t)
	}
	return out, len(out), nil
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	txn.ID = int64(len(tx.repo.txns) + 1)
	tx.repo.txns = append(tx.repo.txns, txn)
	return txn, nil
}

func (tx *memoryTx) InsertItems(ctx context.Context, id int64, items []Item) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	for i := range tx.repo.txns {
		if tx.repo.txns[i].ID == id {
			tx.repo.txns[i].Items = append([]Item(nil), items...)
		}
	}
	return nil
}

func (tx *memoryTx) InsertPayment(ctx context.Context, p Payment) error {
	if tx.repo.failPayment != nil {
		return tx.repo.failPayment
	}
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	tx.repo.payments = append(tx.repo.payments, p)
	return nil
}

func (tx *memoryTx) Inventory() inventory.TxRepository { return tx.inv }

type memoryKeys struct {
	seen    map[string]bool
	deleted []string
}

func (k *memoryKeys) CheckAndInsert(ctx context.Context, key, module string) error {
	if k.seen[module+":"+key] {
		return shared.ErrIdempotencyConflict
	}
	k.seen[module+":"+key] = true
	return nil
}

func (k *memoryKeys) Delete(ctx context.Context, key, module string) error {
	delete(k.seen, module+":"+key)
	k.deleted = append(k.deleted, key)
	return nil
}

type countingInvalidator struct{ bumps int }

func (c *countingInvalidator) Bump(ctx context.Context) error {
	c.bumps++
	return nil
}

var (
	cashierB1 = shared.Scope{UserID: 7, Role: shared.RoleBranchStaff, BranchIDs: []int64{1}}
	cashierB2 = shared.Scope{UserID: 8, Role: shared.RoleBranchStaff, BranchIDs: []int64{2}}
)

type fixture struct {
	stock   *inventorytest.Store
	repo    *memoryRepo
	keys    *memoryKeys
	reports *countingInvalidator
	svc     *Service
}

func newFixture() fixture {
	stock := inventorytest.New()
	repo := newMemoryRepo(stock)
	keys := &memoryKeys{seen: map[string]bool{}}
	reports := &countingInvalidator{}
	invSvc := inventory.NewService(stock, nil, inventory.ServiceConfig{})
	svc := NewService(Dependencies{Repo: repo, Stock: invSvc, Idempotency: keys, Reports: reports})
	return fixture{stock: stock, repo: repo, keys: keys, reports: reports, svc: svc}
}

func cashInput(key string, items ...CartItem) CheckoutInput {
	return CheckoutInput{
		BranchID:       1,
		IdempotencyKey: key,
		Items:          items,
		PaymentMethod:  PaymentCash,
		CashReceived:   decimal.NewFromInt(200000),
	}
}

func TestComputeTotals(t *testing.T) {
	items := []Item{{Subtotal: decimal.NewFromInt(50000)}, {Subtotal: decimal.NewFromInt(25000)}}
	totals, err := ComputeTotals(items, decimal.NewFromInt(5000), decimal.NewFromInt(11))
	require.NoError(t, err)
	require.Equal(t, "75000", totals.Subtotal.String())
	require.Equal(t, "7700", totals.Tax.String())
	require.Equal(t, "77700", totals.Total.String())

	totals, err = ComputeTotals(items, decimal.NewFromInt(100000), decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, "75000", totals.Discount.String())
	require.True(t, totals.Total.IsZero())

	_, err = ComputeTotals(items, decimal.NewFromInt(-1), decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidDiscount)
	_, err = ComputeTotals(items, decimal.Zero, decimal.NewFromInt(101))
	require.ErrorIs(t, err, ErrInvalidTaxRate)
}

func TestCheckoutDecrementsStockAndLogsSale(t *testing.T) {
	f := newFixture()
	f.stock.Seed(1, 1, 10)
	f.stock.Seed(2, 1, 1)

	res, err := f.svc.Checkout(context.Background(), cashierB1,
		cashInput("k-1", CartItem{ProductID: 1, Quantity: 2}, CartItem{ProductID: 2, Quantity: 3}, CartItem{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)
	require.False(t, res.Replayed)

	txn := res.Transaction
	require.Equal(t, StatusPaid, txn.Status)
	require.Regexp(t, `^TRX-\d{8}-[0-9A-F]{8}$`, txn.Code)
	require.Len(t, txn.Items, 2)
	require.Equal(t, "91501.5", txn.Total.String())
	require.Equal(t, "108498.5", txn.Change.String())

	qty, _ := f.stock.Quantity(1, 1)
	require.EqualValues(t, 7, qty)
	qty, _ = f.stock.Quantity(2, 1)
	require.EqualValues(t, 0, qty, "sale clamps at zero")
	require.EqualValues(t, 0, txn.Items[1].StockAfter)

	movements := f.stock.Movements()
	require.Len(t, movements, 2)
	for _, m := range movements {
		require.Equal(t, inventory.RefSale, m.ReferenceType)
		require.Equal(t, inventory.MovementOut, m.Type)
		require.Equal(t, txn.Code, m.ReferenceID)
	}
	require.EqualValues(t, -1, movements[1].QuantityChange)
	require.Len(t, f.repo.payments, 1)
	require.Equal(t, 1, f.reports.bumps)
}

func TestCheckoutReplaysSameKey(t *testing.T) {
	f := newFixture()
	f.stock.Seed(1, 1, 10)
	ctx := context.Background()

	first, err := f.svc.Checkout(ctx, cashierB1, cashInput("same", CartItem{ProductID: 1, Quantity: 4}))
	require.NoError(t, err)
	second, err := f.svc.Checkout(ctx, cashierB1, cashInput("same", CartItem{ProductID: 1, Quantity: 4}))
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.Transaction.ID, second.Transaction.ID)

	qty, _ := f.stock.Quantity(1, 1)
	require.EqualValues(t, 6, qty, "stock decremented once")
	require.Len(t, f.stock.Movements(), 1)

	_, err = f.svc.Checkout(ctx, cashierB2, CheckoutInput{
		BranchID: 2, IdempotencyKey: "same", Items: []CartItem{{ProductID: 1, Quantity: 1}},
		PaymentMethod: PaymentQRIS, PaymentReference: "QR-1",
	})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestCheckoutRejectsBeforeTouchingStore(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, cashierB1, cashInput("e"))
	require.ErrorIs(t, err, ErrEmptyCart)
	_, err = f.svc.Checkout(ctx, cashierB1, cashInput("q", CartItem{ProductID: 1, Quantity: 0}))
	require.ErrorIs(t, err, ErrInvalidLine)
	_, err = f.svc.Checkout(ctx, cashierB2, cashInput("b", CartItem{ProductID: 1, Quantity: 1}))
	require.ErrorIs(t, err, shared.ErrOutOfScope)
	require.Zero(t, f.repo.calls)

	_, err = f.svc.Checkout(ctx, cashierB1, cashInput("i", CartItem{ProductID: 3, Quantity: 1}))
	require.ErrorIs(t, err, ErrUnknownProduct)

	in := cashInput("c", CartItem{ProductID: 1, Quantity: 1})
	in.CashReceived = decimal.NewFromInt(1000)
	_, err = f.svc.Checkout(ctx, cashierB1, in)
	require.ErrorIs(t, err, ErrInsufficientCash)

	in.PaymentMethod = PaymentDebit
	_, err = f.svc.Checkout(ctx, cashierB1, in)
	require.ErrorIs(t, err, ErrReferenceRequired)
	require.Empty(t, f.keys.seen)
}

func TestCheckoutRollsBackOnFailure(t *testing.T) {
	f := newFixture()
	f.stock.Seed(1, 1, 5)
	f.repo.failPayment = errors.New("payment table unavailable")

	_, err := f.svc.Checkout(context.Background(), cashierB1, cashInput("r", CartItem{ProductID: 1, Quantity: 2}))
	require.Error(t, err)

	qty, _ := f.stock.Quantity(1, 1)
	require.EqualValues(t, 5, qty)
	require.Empty(t, f.stock.Movements())
	require.Empty(t, f.repo.txns)
	require.Equal(t, []string{"r"}, f.keys.deleted)
	require.Zero(t, f.reports.bumps)
}

func TestCheckoutUnstockedProductFails(t *testing.T) {
	f := newFixture()
	f.stock.Seed(1, 1, 5)

	_, err := f.svc.Checkout(context.Background(), cashierB1,
		cashInput("u", CartItem{ProductID: 1, Quantity: 1}, CartItem{ProductID: 2, Quantity: 1}))
	require.ErrorIs(t, err, ErrNotStocked)
	qty, _ := f.stock.Quantity(1, 1)
	require.EqualValues(t, 5, qty)
}

func TestListScopesToBranch(t *testing.T) {
	f := newFixture()
	f.stock.Seed(1, 1, 5)
	_, err := f.svc.Checkout(context.Background(), cashierB1, cashInput("l", CartItem{ProductID: 1, Quantity: 1}))
	require.NoError(t, err)

	txns, total, err := f.svc.List(context.Background(), cashierB1, 0, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, txns, 1)

	_, _, err = f.svc.List(context.Background(), cashierB2, 1, ListFilter{})
	require.ErrorIs(t, err, shared.ErrOutOfScope)

	_, err = f.svc.Get(context.Background(), cashierB2, txns[0].ID)
	require.ErrorIs(t, err, shared.ErrOutOfScope)
}
