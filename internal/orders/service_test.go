package orders

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	orders  map[int64]Order
	history []TrackingEvent
	nextID  int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: map[int64]Order{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	orders := make(map[int64]Order, len(r.orders))
	for k, v := range r.orders {
		orders[k] = v
	}
	history := len(r.history)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.orders, r.history = orders, r.history[:history]
		return err
	}
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	for _, ev := range r.history {
		if ev.OrderID == id {
			o.History = append(o.History, ev)
		}
	}
	return o, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Order{}
	for _, o := range r.orders {
		out = append(out, o)
	}
	return out, len(out), nil
}

func (r *memoryRepo) BulkUpdateStatus(ctx context.Context, ids []int64, status Status) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		if o, ok := r.orders[id]; ok && o.AcceptsBulkStatus(status) {
			o.Status = status
			r.orders[id] = o
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) Create(ctx context.Context, order Order, items []ItemInput) (Order, error) {
	tx.repo.nextID++
	order.ID = tx.repo.nextID
	for _, it := range items {
		order.Items = append(order.Items, Item{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	tx.repo.orders[order.ID] = order
	return order, nil
}

func (tx *memoryTx) LockOrder(ctx context.Context, id int64) (Order, error) {
	o, ok := tx.repo.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (tx *memoryTx) UpdateTracking(ctx context.Context, id int64, stage Stage, status Status) error {
	o := tx.repo.orders[id]
	o.Stage, o.Status = stage, status
	tx.repo.orders[id] = o
	return nil
}

func (tx *memoryTx) UpdateStatus(ctx context.Context, id int64, status Status) error {
	o := tx.repo.orders[id]
	o.Status = status
	tx.repo.orders[id] = o
	return nil
}

func (tx *memoryTx) InsertHistory(ctx context.Context, event TrackingEvent) error {
	tx.repo.history = append(tx.repo.history, event)
	return nil
}

type recordingNotifier struct {
	branches []int64
	kinds    []string
}

func (n *recordingNotifier) Notify(ctx context.Context, branchID int64, kind, title, message string) error {
	n.branches = append(n.branches, branchID)
	n.kinds = append(n.kinds, kind)
	return nil
}

var (
	admin      = shared.Scope{UserID: 1, Role: shared.RoleAdmin}
	production = shared.Scope{UserID: 2, Role: shared.RoleProductionStaff}
	staffB1    = shared.Scope{UserID: 3, Role: shared.RoleBranchStaff, BranchIDs: []int64{1}}
	staffB2    = shared.Scope{UserID: 4, Role: shared.RoleBranchStaff, BranchIDs: []int64{2}}
	owner      = shared.Scope{UserID: 5, Role: shared.RoleOwner}
)

func createOrder(t *testing.T, svc *Service) Order {
	t.Helper()
	order, err := svc.Create(context.Background(), admin, CreateInput{
		BranchID:     1,
		CustomerName: " Bu Sari ",
		Items: []ItemInput{
			{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("15000.50")},
			{ProductID: 2, Quantity: 1, UnitPrice: decimal.NewFromInt(42000)},
		},
	})
	require.NoError(t, err)
	return order
}

func TestCheckTransition(t *testing.T) {
	cases := []struct {
		role    shared.Role
		from    Stage
		to      Stage
		wantErr error
	}{
		{shared.RoleAdmin, StageProduction, StageReadyToShip, nil},
		{shared.RoleHQStaff, StageInTransit, StageArrivedAtStore, nil},
		{shared.RoleProductionStaff, StageProduction, StageReadyToShip, nil},
		{shared.RoleProductionStaff, StageReadyToShip, StageInTransit, shared.ErrRoleNotAllowed},
		{shared.RoleBranchStaff, StageArrivedAtStore, StageDelivered, nil},
		{shared.RoleBranchStaff, StageInTransit, StageArrivedAtStore, shared.ErrRoleNotAllowed},
		{shared.RoleOwner, StageProduction, StageReadyToShip, shared.ErrRoleNotAllowed},
		{shared.RoleAdmin, StageProduction, StageInTransit, ErrInvalidTransition},
		{shared.RoleAdmin, StageInTransit, StageReadyToShip, ErrInvalidTransition},
		{shared.RoleAdmin, StageDelivered, StageProduction, ErrInvalidTransition},
	}
	for _, tc := range cases {
		err := CheckTransition(tc.role, tc.from, tc.to)
		if tc.wantErr == nil {
			require.NoError(t, err, "%s %s->%s", tc.role, tc.from, tc.to)
			continue
		}
		require.ErrorIs(t, err, tc.wantErr, "%s %s->%s", tc.role, tc.from, tc.to)
	}
}

func TestCreateComputesTotalAndStartsAtProduction(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	order := createOrder(t, svc)
	require.Equal(t, "72001", order.Total.String())
	require.Equal(t, StatusPending, order.Status)
	require.Equal(t, StageProduction, order.Stage)
	require.Equal(t, "Bu Sari", order.CustomerName)
	require.Regexp(t, `^ORD-\d{8}-[0-9A-F]{6}$`, order.OrderNumber)
}

func TestAdvanceFullFlowCompletesOrder(t *testing.T) {
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	svc := NewService(repo, nil, notifier)
	ctx := context.Background()
	order := createOrder(t, svc)

	steps := []struct {
		scope shared.Scope
		to    Stage
	}{
		{production, StageReadyToShip},
		{admin, StageInTransit},
		{admin, StageArrivedAtStore},
		{staffB1, StageDelivered},
	}
	for _, step := range steps {
		var err error
		order, err = svc.Advance(ctx, step.scope, order.ID, AdvanceInput{To: step.to})
		require.NoError(t, err, "advance to %s", step.to)
	}
	require.Equal(t, StageDelivered, order.Stage)
	require.Equal(t, StatusCompleted, order.Status)
	require.Equal(t, []int64{1}, notifier.branches)
	require.Equal(t, []string{"order_delivered"}, notifier.kinds)

	stored, err := svc.Get(ctx, admin, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.History, 5)
	require.Equal(t, StageArrivedAtStore, stored.History[4].FromStage)

	_, err = svc.Advance(ctx, admin, order.ID, AdvanceInput{To: StageDelivered})
	require.ErrorIs(t, err, ErrOrderClosed)
}

func TestAdvanceRejectsSkipAndKeepsStage(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	order := createOrder(t, svc)

	_, err := svc.Advance(context.Background(), admin, order.ID, AdvanceInput{To: StageInTransit})
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.ErrorIs(t, err, httpx.ErrConflict)

	stored, err := svc.Get(context.Background(), admin, order.ID)
	require.NoError(t, err)
	require.Equal(t, StageProduction, stored.Stage)
	require.Len(t, stored.History, 1)
}

func TestAdvanceBranchStaffLimitedToOwnBranch(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()
	order := createOrder(t, svc)
	for _, to := range []Stage{StageReadyToShip, StageInTransit, StageArrivedAtStore} {
		_, err := svc.Advance(ctx, admin, order.ID, AdvanceInput{To: to})
		require.NoError(t, err)
	}

	_, err := svc.Advance(ctx, staffB2, order.ID, AdvanceInput{To: StageDelivered})
	require.ErrorIs(t, err, shared.ErrOutOfScope)

	_, err = svc.Advance(ctx, owner, order.ID, AdvanceInput{To: StageDelivered})
	require.ErrorIs(t, err, shared.ErrRoleNotAllowed)
}

func TestCancelledOrderCannotAdvance(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()
	order := createOrder(t, svc)

	cancelled, err := svc.Cancel(ctx, admin, order.ID, "customer called")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	_, err = svc.Advance(ctx, admin, order.ID, AdvanceInput{To: StageReadyToShip})
	require.ErrorIs(t, err, ErrOrderClosed)

	_, err = svc.Cancel(ctx, admin, order.ID, "again")
	require.ErrorIs(t, err, ErrOrderClosed)
}

func TestBulkUpdateStatusRequiresNetworkRole(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()
	first := createOrder(t, svc)
	second := createOrder(t, svc)

	_, err := svc.BulkUpdateStatus(ctx, staffB1, []int64{first.ID}, StatusConfirmed)
	require.ErrorIs(t, err, shared.ErrRoleNotAllowed)

	_, err = svc.BulkUpdateStatus(ctx, admin, []int64{first.ID}, "shipped")
	require.ErrorIs(t, err, ErrInvalidStatus)

	affected, err := svc.BulkUpdateStatus(ctx, admin, []int64{first.ID, second.ID, 99}, StatusConfirmed)
	require.NoError(t, err)
	require.EqualValues(t, 2, affected)
}

func TestBulkUpdateStatusSkipsIllegalMoves(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	cancelled := createOrder(t, svc)
	_, err := svc.Cancel(ctx, admin, cancelled.ID, "customer left")
	require.NoError(t, err)
	inProduction := createOrder(t, svc)
	delivered := createOrder(t, svc)
	repo.mu.Lock()
	o := repo.orders[delivered.ID]
	o.Stage = StageDelivered
	repo.orders[delivered.ID] = o
	repo.mu.Unlock()

	affected, err := svc.BulkUpdateStatus(ctx, admin, []int64{cancelled.ID}, StatusPending)
	require.NoError(t, err)
	require.Zero(t, affected)

	affected, err = svc.BulkUpdateStatus(ctx, admin, []int64{cancelled.ID, inProduction.ID, delivered.ID}, StatusCompleted)
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	got, err := svc.Get(ctx, admin, cancelled.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
	got, err = svc.Get(ctx, admin, inProduction.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	got, err = svc.Get(ctx, admin, delivered.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)

	affected, err = svc.BulkUpdateStatus(ctx, admin, []int64{delivered.ID}, StatusConfirmed)
	require.NoError(t, err)
	require.Zero(t, affected)
}

func TestCreateRejectsForeignBranch(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	_, err := svc.Create(context.Background(), staffB2, CreateInput{
		BranchID: 1, CustomerName: "X", Items: []ItemInput{{ProductID: 1, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrOutOfScope)

	_, err = svc.Create(context.Background(), admin, CreateInput{BranchID: 1, CustomerName: "X"})
	require.ErrorIs(t, err, ErrEmptyOrder)
}
