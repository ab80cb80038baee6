package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-bakery/internal/inventory"
	"github.com/odyssey-erp/odyssey-bakery/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// ErrNothingToFix is returned for an empty fix request.
var ErrNothingToFix = fmt.Errorf("reconciliation: %w: no discrepancies to fix", httpx.ErrValidation)

// Source loads scan inputs.
type Source interface {
	Products(ctx context.Context) ([]ProductInfo, error)
	StockRows(ctx context.Context, branchIDs []int64) ([]StockRow, error)
}

// Adjuster applies a stock overwrite together with its movement.
type Adjuster interface {
	QuickAdjust(ctx context.Context, scope shared.Scope, input inventory.AdjustInput) (inventory.AdjustResult, error)
}

// Locker serialises fixes per branch.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Report is the outcome of a scan.
type Report struct {
	GeneratedAt   time.Time     `json:"generated_at"`
	BranchID      int64         `json:"branch_id,omitempty"`
	Critical      int           `json:"critical"`
	Warning       int           `json:"warning"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

// FixItem asks Fix to overwrite one record.
type FixItem struct {
	ProductID       int64 `json:"product_id" validate:"required,gt=0"`
	BranchID        int64 `json:"branch_id" validate:"required,gt=0"`
	Kind            Kind  `json:"kind" validate:"required,oneof=negative_stock movement_drift"`
	CalculatedStock int64 `json:"calculated_stock" validate:"gte=0"`
}

// FixResult reports applied corrections and per-item failures.
type FixResult struct {
	Fixed   []inventory.AdjustResult `json:"fixed"`
	Errors  []string                 `json:"errors"`
	Success bool                     `json:"success"`
}

// Service scans and repairs stock discrepancies.
type Service struct {
	source   Source
	adjuster Adjuster
	locker   Locker
	now      func() time.Time
}

// NewService builds Service. A nil locker runs fixes without cross-process
// serialisation.
func NewService(source Source, adjuster Adjuster, locker Locker) *Service {
	return &Service{source: source, adjuster: adjuster, locker: locker, now: func() time.Time { return time.Now().UTC() }}
}

// Scan computes discrepancies for the branches visible to scope. Product
// level findings are always included.
func (s *Service) Scan(ctx context.Context, scope shared.Scope, branchID int64) (Report, error) {
	branches, err := scope.FilterBranch(branchID)
	if err != nil {
		return Report{}, err
	}
	products, err := s.source.Products(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("reconciliation: load products: %w", err)
	}
	stock, err := s.source.StockRows(ctx, branches)
	if err != nil {
		return Report{}, fmt.Errorf("reconciliation: load stock: %w", err)
	}
	report := Report{GeneratedAt: s.now(), BranchID: branchID, Discrepancies: Check(products, stock)}
	for _, d := range report.Discrepancies {
		if d.Severity == SeverityCritical {
			report.Critical++
		} else {
			report.Warning++
		}
	}
	return report, nil
}

// Fix overwrites each record with its expected quantity. Items are grouped
// per branch and each branch is fixed under its own lock; every record
// commits separately with an adjustment movement.
func (s *Service) Fix(ctx context.Context, scope shared.Scope, items []FixItem) (FixResult, error) {
	if len(items) == 0 {
		return FixResult{}, ErrNothingToFix
	}
	result := FixResult{Fixed: []inventory.AdjustResult{}, Errors: []string{}}

	byBranch := map[int64][]FixItem{}
	for _, item := range items {
		if !item.Kind.Fixable() {
			result.Errors = append(result.Errors, itemError(item, fmt.Errorf("%w: %s cannot be fixed by a stock overwrite", httpx.ErrValidation, item.Kind)))
			continue
		}
		if err := scope.RequireBranch(item.BranchID); err != nil {
			result.Errors = append(result.Errors, itemError(item, err))
			continue
		}
		byBranch[item.BranchID] = append(byBranch[item.BranchID], item)
	}

	branchIDs := make([]int64, 0, len(byBranch))
	for id := range byBranch {
		branchIDs = append(branchIDs, id)
	}
	slices.Sort(branchIDs)

	for _, branchID := range branchIDs {
		group := byBranch[branchID]
		err := s.withLock(ctx, shared.ReconciliationLockKey(branchID), func(ctx context.Context) error {
			for _, item := range group {
				adjusted, err := s.adjuster.QuickAdjust(ctx, scope, inventory.AdjustInput{
					ProductID:     item.ProductID,
					BranchID:      item.BranchID,
					Operation:     inventory.OpSet,
					Quantity:      expectedQuantity(item),
					Note:          "reconciliation: " + string(item.Kind),
					MovementType:  inventory.MovementAdjustment,
					ReferenceType: inventory.RefReconciliation,
					ReferenceID:   string(item.Kind),
				})
				if err != nil {
					result.Errors = append(result.Errors, itemError(item, err))
					continue
				}
				result.Fixed = append(result.Fixed, adjusted)
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, cache.ErrLocked) {
				err = fmt.Errorf("%w: a fix for branch %d is already running", httpx.ErrConflict, branchID)
			}
			for _, item := range group {
				result.Errors = append(result.Errors, itemError(item, err))
			}
		}
	}
	result.Success = len(result.Errors) == 0
	return result, nil
}

func (s *Service) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithLock(ctx, key, fn)
}

func expectedQuantity(item FixItem) int64 {
	if item.Kind == KindNegativeStock {
		return 0
	}
	return item.CalculatedStock
}

func itemError(item FixItem, err error) string {
	return "product " + strconv.FormatInt(item.ProductID, 10) + " branch " + strconv.FormatInt(item.BranchID, 10) + ": " + err.Error()
}
