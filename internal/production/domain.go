package production

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
)

// Status is the lifecycle state of a production request.
type Status string

const (
	StatusPending      Status = "pending"
	StatusApproved     Status = "approved"
	StatusRejected     Status = "rejected"
	StatusInProduction Status = "in_production"
	StatusCompleted    Status = "completed"
)

var transitions = map[Status][]Status{
	StatusPending:      {StatusApproved, StatusRejected},
	StatusApproved:     {StatusInProduction},
	StatusInProduction: {StatusCompleted},
}

// CanTransition reports whether a request may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	ErrRequestNotFound   = fmt.Errorf("production: request %w", httpx.ErrNotFound)
	ErrInvalidTransition = fmt.Errorf("production: %w: status change not allowed", httpx.ErrConflict)
	ErrInvalidQuantity   = fmt.Errorf("production: %w: quantity must be positive", httpx.ErrValidation)
	ErrNotInProduction   = fmt.Errorf("production: %w: batches can only be recorded while the request is in production", httpx.ErrConflict)
	ErrProductMismatch   = fmt.Errorf("production: %w: batch product differs from the request", httpx.ErrValidation)
)

// Request is a branch asking the central kitchen for a product.
type Request struct {
	ID            int64     `json:"id"`
	RequestNumber string    `json:"request_number"`
	BranchID      int64     `json:"branch_id"`
	ProductID     int64     `json:"product_id"`
	Quantity      int64     `json:"quantity"`
	NeededBy      time.Time `json:"needed_by"`
	Status        Status    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	RequestedBy   int64     `json:"requested_by"`
	UpdatedBy     int64     `json:"updated_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Produced      int64     `json:"produced"`
}

// Batch records a quantity produced for a request.
type Batch struct {
	ID         int64     `json:"id"`
	BatchCode  string    `json:"batch_code"`
	RequestID  int64     `json:"request_id"`
	ProductID  int64     `json:"product_id"`
	Quantity   int64     `json:"quantity"`
	ProducedAt time.Time `json:"produced_at"`
	CreatedBy  int64     `json:"created_by"`
	Notes      string    `json:"notes,omitempty"`
}

// RequestInput creates a request.
type RequestInput struct {
	BranchID  int64     `json:"branch_id" validate:"required,gt=0"`
	ProductID int64     `json:"product_id" validate:"required,gt=0"`
	Quantity  int64     `json:"quantity" validate:"required,gt=0"`
	NeededBy  time.Time `json:"needed_by" validate:"required"`
	Notes     string    `json:"notes" validate:"max=255"`
}

// StatusInput moves a request along its lifecycle.
type StatusInput struct {
	Status Status `json:"status" validate:"required,oneof=approved rejected in_production completed"`
	Notes  string `json:"notes" validate:"max=255"`
}

// BatchInput records a produced batch.
type BatchInput struct {
	RequestID  int64     `json:"request_id" validate:"required,gt=0"`
	ProductID  int64     `json:"product_id" validate:"required,gt=0"`
	Quantity   int64     `json:"quantity" validate:"required,gt=0"`
	BatchCode  string    `json:"batch_code" validate:"max=40"`
	ProducedAt time.Time `json:"produced_at"`
	Notes      string    `json:"notes" validate:"max=255"`
}

// RequestFilter narrows request listings.
type RequestFilter struct {
	BranchIDs []int64
	Status    Status
	Limit     int
	Offset    int
}

// BatchFilter narrows batch listings.
type BatchFilter struct {
	BranchIDs []int64
	RequestID int64
	From      time.Time
	To        time.Time
	Limit     int
}
