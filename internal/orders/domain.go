package orders

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// Stage is a delivery tracking stage. Stages only move forward, one at a
// time.
type Stage string

const (
	StageProduction     Stage = "production"
	StageReadyToShip    Stage = "ready_to_ship"
	StageInTransit      Stage = "in_transit"
	StageArrivedAtStore Stage = "arrived_at_store"
	StageDelivered      Stage = "delivered"
)

var stages = []Stage{StageProduction, StageReadyToShip, StageInTransit, StageArrivedAtStore, StageDelivered}

// IsValid reports whether the stage is known.
func (s Stage) IsValid() bool {
	return slices.Contains(stages, s)
}

// Next returns the stage that follows s.
func (s Stage) Next() (Stage, bool) {
	i := slices.Index(stages, s)
	if i < 0 || i == len(stages)-1 {
		return "", false
	}
	return stages[i+1], true
}

// Status is the order-level lifecycle, independent from tracking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsClosed reports whether the status admits no further moves.
func (s Status) IsClosed() bool {
	return s == StatusCancelled || s == StatusCompleted
}

var (
	ErrOrderNotFound     = fmt.Errorf("orders: order %w", httpx.ErrNotFound)
	ErrInvalidTransition = fmt.Errorf("orders: %w: only the next tracking stage is reachable", httpx.ErrConflict)
	ErrOrderClosed       = fmt.Errorf("orders: %w: order is cancelled or completed", httpx.ErrConflict)
	ErrEmptyOrder        = fmt.Errorf("orders: %w: order has no items", httpx.ErrValidation)
	ErrInvalidStatus     = fmt.Errorf("orders: %w: unknown status", httpx.ErrValidation)
)

// AcceptsBulkStatus reports whether a bulk update may move the order to
// status. Closed orders never reopen and only delivered orders complete.
func (o Order) AcceptsBulkStatus(status Status) bool {
	if o.Status.IsClosed() || o.Status == status {
		return false
	}
	return status != StatusCompleted || o.Stage == StageDelivered
}

// Order is a branch order tracked from production to delivery.
type Order struct {
	ID            int64           `json:"id"`
	OrderNumber   string          `json:"order_number"`
	BranchID      int64           `json:"branch_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	Status        Status          `json:"status"`
	Stage         Stage           `json:"tracking_stage"`
	DeliveryDate  *time.Time      `json:"delivery_date,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Total         decimal.Decimal `json:"total"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []Item          `json:"items,omitempty"`
	History       []TrackingEvent `json:"history,omitempty"`
}

// Item is one order line.
type Item struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// TrackingEvent is one order_tracking_history row.
type TrackingEvent struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	FromStage Stage     `json:"from_stage,omitempty"`
	ToStage   Stage     `json:"to_stage"`
	ChangedBy int64     `json:"changed_by"`
	Note      string    `json:"note,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// CreateInput is the payload for a new order.
type CreateInput struct {
	BranchID      int64       `json:"branch_id" validate:"required,gt=0"`
	CustomerName  string      `json:"customer_name" validate:"required,max=120"`
	CustomerPhone string      `json:"customer_phone" validate:"max=32"`
	DeliveryDate  *time.Time  `json:"delivery_date"`
	Notes         string      `json:"notes" validate:"max=500"`
	Items         []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// ItemInput is one requested order line.
type ItemInput struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// AdvanceInput moves an order to the next tracking stage.
type AdvanceInput struct {
	To   Stage  `json:"to" validate:"required,oneof=ready_to_ship in_transit arrived_at_store delivered"`
	Note string `json:"note" validate:"max=255"`
}

// ListFilter narrows order listings.
type ListFilter struct {
	BranchIDs []int64
	Status    Status
	Stage     Stage
	Limit     int
	Offset    int
}

// CheckTransition validates moving from -> to for role. The stage rule is
// checked first so a skipped stage reads as an invalid transition for every
// role.
func CheckTransition(role shared.Role, from, to Stage) error {
	next, ok := from.Next()
	if !ok || next != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	switch role {
	case shared.RoleAdmin, shared.RoleHQStaff:
		return nil
	case shared.RoleProductionStaff:
		if from == StageProduction {
			return nil
		}
	case shared.RoleBranchStaff:
		if from == StageArrivedAtStore {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not move orders from %s", shared.ErrRoleNotAllowed, role, from)
}

// TotalOf sums line subtotals.
func TotalOf(items []ItemInput) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity)))
	}
	return total
}
