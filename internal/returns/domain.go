package returns

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
)

// Condition describes the state of a returned item.
type Condition string

const (
	ConditionResaleable Condition = "resaleable"
	ConditionDamaged    Condition = "damaged"
	ConditionExpired    Condition = "expired"
)

// Restocks reports whether items in this condition go back on the shelf.
func (c Condition) Restocks() bool {
	return c == ConditionResaleable
}

// Status is the approval state of a return.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var (
	ErrSaleNotFound   = fmt.Errorf("returns: sale %w", httpx.ErrNotFound)
	ErrReturnNotFound = fmt.Errorf("returns: return %w", httpx.ErrNotFound)
	ErrEmptyReturn    = fmt.Errorf("returns: %w: return has no items", httpx.ErrValidation)
	ErrInvalidItem    = fmt.Errorf("returns: %w: items need a product, positive quantity and known condition", httpx.ErrValidation)
	ErrExceedsSale    = fmt.Errorf("returns: %w: returned quantity exceeds the quantity sold", httpx.ErrValidation)
	ErrNotPending     = fmt.Errorf("returns: %w: return already decided", httpx.ErrConflict)
)

// Return is a customer return against a completed sale.
type Return struct {
	ID            int64      `json:"id"`
	ReturnNumber  string     `json:"return_number"`
	TransactionID int64      `json:"transaction_id"`
	BranchID      int64      `json:"branch_id"`
	Status        Status     `json:"status"`
	Reason        string     `json:"reason,omitempty"`
	CreatedBy     int64      `json:"created_by"`
	DecidedBy     int64      `json:"decided_by,omitempty"`
	DecisionNote  string     `json:"decision_note,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	Items         []Item     `json:"items"`
}

// Item is one returned line.
type Item struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Quantity  int64     `json:"quantity"`
	Condition Condition `json:"condition"`
	Reason    string    `json:"reason,omitempty"`
}

// ItemInput is a requested return line.
type ItemInput struct {
	ProductID int64     `json:"product_id" validate:"required,gt=0"`
	Quantity  int64     `json:"quantity" validate:"required,gt=0"`
	Condition Condition `json:"condition" validate:"required,oneof=resaleable damaged expired"`
	Reason    string    `json:"reason" validate:"max=255"`
}

// CreateInput opens a return.
type CreateInput struct {
	TransactionID int64       `json:"transaction_id" validate:"required,gt=0"`
	Reason        string      `json:"reason" validate:"max=255"`
	Items         []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// DecisionInput approves or rejects a return.
type DecisionInput struct {
	Note string `json:"note" validate:"max=255"`
}

// SoldLine is the quantity of a product on the original sale.
type SoldLine struct {
	ProductID int64
	Quantity  int64
}

// Sale is the part of a cashier transaction a return needs.
type Sale struct {
	ID       int64
	Code     string
	BranchID int64
	Lines    []SoldLine
}

// ListFilter narrows return listings.
type ListFilter struct {
	BranchIDs []int64
	Status    Status
	Limit     int
	Offset    int
}
