package orders

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// RepositoryPort abstracts persistence for Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int, error)
	BulkUpdateStatus(ctx context.Context, ids []int64, status Status) (int64, error)
}

// Notifier delivers branch notifications.
type Notifier interface {
	Notify(ctx context.Context, branchID int64, kind, title, message string) error
}

// Service implements order creation and tracking.
type Service struct {
	repo     RepositoryPort
	audit    shared.AuditPort
	notifier Notifier
	now      func() time.Time
}

// NewService builds Service. audit and notifier may be nil.
func NewService(repo RepositoryPort, audit shared.AuditPort, notifier Notifier) *Service {
	return &Service{repo: repo, audit: audit, notifier: notifier, now: func() time.Time { return time.Now().UTC() }}
}

// Create stores a new pending order at the production stage.
func (s *Service) Create(ctx context.Context, scope shared.Scope, input CreateInput) (Order, error) {
	if len(input.Items) == 0 {
		return Order{}, ErrEmptyOrder
	}
	if err := scope.RequireBranch(input.BranchID); err != nil {
		return Order{}, err
	}
	order := Order{
		OrderNumber:   s.orderNumber(),
		BranchID:      input.BranchID,
		CustomerName:  strings.TrimSpace(input.CustomerName),
		CustomerPhone: strings.TrimSpace(input.CustomerPhone),
		Status:        StatusPending,
		Stage:         StageProduction,
		DeliveryDate:  input.DeliveryDate,
		Notes:         input.Notes,
		Total:         TotalOf(input.Items),
		CreatedBy:     scope.UserID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.Create(ctx, order, input.Items)
		if err != nil {
			return fmt.Errorf("orders: create: %w", err)
		}
		return tx.InsertHistory(ctx, TrackingEvent{OrderID: order.ID, ToStage: StageProduction, ChangedBy: scope.UserID, Note: "order created"})
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, scope, "orders:create", order)
	return order, nil
}

// Get loads an order visible to scope.
func (s *Service) Get(ctx context.Context, scope shared.Scope, id int64) (Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if err := scope.RequireBranch(order.BranchID); err != nil {
		return Order{}, err
	}
	return order, nil
}

// List lists orders in the branches visible to scope.
func (s *Service) List(ctx context.Context, scope shared.Scope, branchID int64, filter ListFilter) ([]Order, int, error) {
	branches, err := scope.FilterBranch(branchID)
	if err != nil {
		return nil, 0, err
	}
	filter.BranchIDs = branches
	return s.repo.List(ctx, filter)
}

// Advance moves an order to the next tracking stage. Reaching delivered
// completes the order.
func (s *Service) Advance(ctx context.Context, scope shared.Scope, id int64, input AdvanceInput) (Order, error) {
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := scope.RequireBranch(order.BranchID); err != nil {
			return err
		}
		if order.Status.IsClosed() {
			return ErrOrderClosed
		}
		if err := CheckTransition(scope.Role, order.Stage, input.To); err != nil {
			return err
		}
		from := order.Stage
		order.Stage = input.To
		switch {
		case input.To == StageDelivered:
			order.Status = StatusCompleted
		case order.Status == StatusPending:
			order.Status = StatusConfirmed
		}
		if err := tx.UpdateTracking(ctx, order.ID, order.Stage, order.Status); err != nil {
			return fmt.Errorf("orders: update tracking: %w", err)
		}
		return tx.InsertHistory(ctx, TrackingEvent{OrderID: order.ID, FromStage: from, ToStage: input.To, ChangedBy: scope.UserID, Note: input.Note})
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, scope, "orders:advance:"+string(input.To), order)
	if order.Stage == StageDelivered && s.notifier != nil {
		_ = s.notifier.Notify(ctx, order.BranchID, "order_delivered", "Order delivered",
			fmt.Sprintf("Order %s for %s has been delivered.", order.OrderNumber, order.CustomerName))
	}
	return order, nil
}

// Cancel marks an open order cancelled. Tracking stays where it was.
func (s *Service) Cancel(ctx context.Context, scope shared.Scope, id int64, reason string) (Order, error) {
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := scope.RequireBranch(order.BranchID); err != nil {
			return err
		}
		if order.Status.IsClosed() {
			return ErrOrderClosed
		}
		order.Status = StatusCancelled
		return tx.UpdateStatus(ctx, order.ID, order.Status)
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, scope, "orders:cancel", order, "reason", reason)
	return order, nil
}

// BulkUpdateStatus sets the order-level status of many orders at once. It is
// reserved for roles that see every branch. Orders that do not accept the
// status are skipped and left out of the affected count.
func (s *Service) BulkUpdateStatus(ctx context.Context, scope shared.Scope, ids []int64, status Status) (int64, error) {
	if !status.IsValid() {
		return 0, ErrInvalidStatus
	}
	if !scope.Role.SpansAllBranches() {
		return 0, fmt.Errorf("%w: bulk status updates span branches", shared.ErrRoleNotAllowed)
	}
	affected, err := s.repo.BulkUpdateStatus(ctx, ids, status)
	if err != nil {
		return 0, fmt.Errorf("orders: bulk status: %w", err)
	}
	shared.RecordBestEffort(ctx, s.audit, shared.AuditLog{
		ActorID: scope.UserID, Action: "orders:bulk_status", Entity: "orders", EntityID: string(status),
		Meta: map[string]any{"ids": ids, "affected": affected},
	})
	return affected, nil
}

func (s *Service) orderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "ORD-" + s.now().Format("20060102") + "-" + suffix
}

func (s *Service) recordAudit(ctx context.Context, scope shared.Scope, action string, order Order, meta ...any) {
	fields := map[string]any{"status": order.Status, "stage": order.Stage}
	for i := 0; i+1 < len(meta); i += 2 {
		fields[fmt.Sprint(meta[i])] = meta[i+1]
	}
	shared.RecordBestEffort(ctx, s.audit, shared.AuditLog{
		ActorID: scope.UserID, BranchID: order.BranchID, Action: action, Entity: "orders",
		EntityID: strconv.FormatInt(order.ID, 10), Meta: fields,
	})
}
