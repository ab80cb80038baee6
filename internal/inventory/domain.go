package inventory

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
)

// MovementType classifies the direction of a stock movement.
type MovementType string

const (
	MovementIn         MovementType = "in"
	MovementOut        MovementType = "out"
	MovementReturn     MovementType = "return"
	MovementAdjustment MovementType = "adjustment"
)

// IsValid reports whether the movement type is known.
func (t MovementType) IsValid() bool {
	switch t {
	case MovementIn, MovementOut, MovementReturn, MovementAdjustment:
		return true
	default:
		return false
	}
}

// ReferenceType links a movement to the document that caused it.
type ReferenceType string

const (
	RefSale           ReferenceType = "sale"
	RefBatchAdd       ReferenceType = "batch_add"
	RefReturn         ReferenceType = "return"
	RefAdjustment     ReferenceType = "adjustment"
	RefReconciliation ReferenceType = "reconciliation"
)

// Operation is a single-record quantity operation.
type Operation string

const (
	OpSet      Operation = "set"
	OpAdd      Operation = "add"
	OpSubtract Operation = "subtract"
	OpReset    Operation = "reset"
)

// IsValid reports whether the operation is known.
func (o Operation) IsValid() bool {
	switch o {
	case OpSet, OpAdd, OpSubtract, OpReset:
		return true
	default:
		return false
	}
}

// MaxQuantity bounds a single operand and any merged batch total.
const MaxQuantity int64 = 1_000_000_000

var (
	ErrInvalidQuantity  = fmt.Errorf("inventory: %w: quantity must be positive", httpx.ErrValidation)
	ErrQuantityTooLarge = fmt.Errorf("inventory: %w: quantity exceeds %d", httpx.ErrValidation, MaxQuantity)
	ErrInvalidOperation = fmt.Errorf("inventory: %w: unknown operation", httpx.ErrValidation)
	ErrTargetRequired   = fmt.Errorf("inventory: %w: record id or product and branch required", httpx.ErrValidation)
	ErrEmptyBatch       = fmt.Errorf("inventory: %w: batch has no items", httpx.ErrValidation)
	ErrInvalidRange     = fmt.Errorf("%w: to must not precede from", httpx.ErrValidation)
	ErrRecordNotFound   = fmt.Errorf("inventory: record %w", httpx.ErrNotFound)
)

// Record is the stock of one product at one branch.
type Record struct {
	ID           int64     `json:"id"`
	ProductID    int64     `json:"product_id"`
	BranchID     int64     `json:"branch_id"`
	Quantity     int64     `json:"quantity"`
	LastUpdated  time.Time `json:"last_updated"`
	ProductName  string    `json:"product_name,omitempty"`
	SKU          string    `json:"sku,omitempty"`
	UoM          string    `json:"uom,omitempty"`
	ReorderPoint int64     `json:"reorder_point"`
}

// IsLow reports whether the record sits at or below its reorder point.
func (r Record) IsLow() bool {
	return r.ReorderPoint > 0 && r.Quantity <= r.ReorderPoint
}

// Movement is an append-only stock movement log entry.
type Movement struct {
	ID             int64         `json:"id"`
	ProductID      int64         `json:"product_id"`
	BranchID       int64         `json:"branch_id"`
	QuantityChange int64         `json:"quantity_change"`
	QuantityBefore int64         `json:"quantity_before"`
	QuantityAfter  int64         `json:"quantity_after"`
	Type           MovementType  `json:"movement_type"`
	ReferenceType  ReferenceType `json:"reference_type"`
	ReferenceID    string        `json:"reference_id,omitempty"`
	PerformedBy    int64         `json:"performed_by,omitempty"`
	Note           string        `json:"note,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// AdjustInput describes a single-record adjustment. Quantity is the delta for
// add/subtract and the target for set; it is ignored by reset.
type AdjustInput struct {
	RecordID      int64         `json:"record_id"`
	ProductID     int64         `json:"product_id"`
	BranchID      int64         `json:"branch_id"`
	Operation     Operation     `json:"operation" validate:"required,oneof=set add subtract reset"`
	Quantity      int64         `json:"quantity" validate:"gte=0"`
	Note          string        `json:"note" validate:"max=255"`
	MovementType  MovementType  `json:"-"`
	ReferenceType ReferenceType `json:"-"`
	ReferenceID   string        `json:"-"`
}

// AdjustResult reports the outcome of an adjustment.
type AdjustResult struct {
	Record   Record    `json:"record"`
	Before   int64     `json:"before"`
	After    int64     `json:"after"`
	Created  bool      `json:"created"`
	Movement *Movement `json:"movement,omitempty"`
}

// BatchItem is one (product, branch, +quantity) triple of a batch add.
type BatchItem struct {
	ProductID int64 `json:"product_id"`
	BranchID  int64 `json:"branch_id"`
	Quantity  int64 `json:"quantity"`
}

// BatchResult summarises a batch add. Every input item is counted exactly
// once: TotalUpdated + TotalInserted + len(Errors) + Merged == len(items).
type BatchResult struct {
	BatchID       string   `json:"batch_id"`
	TotalUpdated  int      `json:"total_updated"`
	TotalInserted int      `json:"total_inserted"`
	Merged        int      `json:"merged"`
	Errors        []string `json:"errors"`
	Success       bool     `json:"success"`
}

// RecordFilter narrows record listings.
type RecordFilter struct {
	BranchIDs []int64
	ProductID int64
	Search    string
	LowOnly   bool
	Limit     int
	Offset    int
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	BranchIDs     []int64
	ProductID     int64
	ReferenceType ReferenceType
	ReferenceID   string
	From          time.Time
	To            time.Time
	Limit         int
}

// ApplyOperation computes the quantity that results from op on current.
// Subtraction clamps at zero.
func ApplyOperation(op Operation, current, quantity int64) (int64, error) {
	if quantity > MaxQuantity {
		return 0, ErrQuantityTooLarge
	}
	switch op {
	case OpSet:
		if quantity < 0 {
			return 0, ErrInvalidQuantity
		}
		return quantity, nil
	case OpAdd:
		if quantity <= 0 {
			return 0, ErrInvalidQuantity
		}
		return current + quantity, nil
	case OpSubtract:
		if quantity <= 0 {
			return 0, ErrInvalidQuantity
		}
		return max(current-quantity, 0), nil
	case OpReset:
		return 0, nil
	default:
		return 0, ErrInvalidOperation
	}
}
