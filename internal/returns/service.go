package returns

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-bakery/internal/inventory"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Sale(ctx context.Context, transactionID int64) (Sale, error)
	Get(ctx context.Context, id int64) (Return, error)
	List(ctx context.Context, filter ListFilter) ([]Return, int, error)
}

// StockAdjuster applies stock changes inside a caller-owned transaction.
type StockAdjuster interface {
	AdjustInTx(ctx context.Context, tx inventory.TxRepository, scope shared.Scope, input inventory.AdjustInput) (inventory.AdjustResult, error)
}

// Service manages customer returns.
type Service struct {
	repo  RepositoryPort
	stock StockAdjuster
	audit shared.AuditPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, stock StockAdjuster, audit shared.AuditPort) *Service {
	return &Service{repo: repo, stock: stock, audit: audit, now: func() time.Time { return time.Now().UTC() }}
}

// Create opens a pending return against a sale. Quantities are checked
// against what was sold minus what is already returned.
func (s *Service) Create(ctx context.Context, scope shared.Scope, input CreateInput) (Return, error) {
	if len(input.Items) == 0 {
		return Return{}, ErrEmptyReturn
	}
	requested := map[int64]int64{}
	for _, it := range input.Items {
		if it.ProductID <= 0 || it.Quantity <= 0 || !validCondition(it.Condition) {
			return Return{}, ErrInvalidItem
		}
		requested[it.ProductID] += it.Quantity
	}
	sale, err := s.repo.Sale(ctx, input.TransactionID)
	if err != nil {
		return Return{}, err
	}
	if err := scope.RequireBranch(sale.BranchID); err != nil {
		return Return{}, err
	}
	sold := make(map[int64]int64, len(sale.Lines))
	for _, line := range sale.Lines {
		sold[line.ProductID] += line.Quantity
	}

	ret := Return{
		ReturnNumber:  returnNumber(s.now()),
		TransactionID: sale.ID,
		BranchID:      sale.BranchID,
		Status:        StatusPending,
		Reason:        strings.TrimSpace(input.Reason),
		CreatedBy:     scope.UserID,
	}
	for _, it := range input.Items {
		ret.Items = append(ret.Items, Item{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Condition: it.Condition,
			Reason:    strings.TrimSpace(it.Reason),
		})
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		already, err := tx.ReturnedQuantities(ctx, sale.ID)
		if err != nil {
			return err
		}
		for product, qty := range requested {
			if qty+already[product] > sold[product] {
				return fmt.Errorf("%w: product %d", ErrExceedsSale, product)
			}
		}
		ret, err = tx.Insert(ctx, ret)
		return err
	})
	if err != nil {
		return Return{}, err
	}
	s.record(ctx, scope, ret, "returns:create")
	return ret, nil
}

// Approve accepts a pending return. Resaleable items go back into stock in
// the same transaction; damaged and expired items leave stock untouched.
func (s *Service) Approve(ctx context.Context, scope shared.Scope, id int64, input DecisionInput) (Return, error) {
	return s.decide(ctx, scope, id, StatusApproved, input.Note)
}

// Reject closes a pending return without any stock effect.
func (s *Service) Reject(ctx context.Context, scope shared.Scope, id int64, input DecisionInput) (Return, error) {
	return s.decide(ctx, scope, id, StatusRejected, input.Note)
}

func (s *Service) decide(ctx context.Context, scope shared.Scope, id int64, status Status, note string) (Return, error) {
	var ret Return
	now := s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		ret, err = tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if err := scope.RequireBranch(ret.BranchID); err != nil {
			return err
		}
		if ret.Status != StatusPending {
			return ErrNotPending
		}
		if status == StatusApproved {
			for _, it := range ret.Items {
				if !it.Condition.Restocks() {
					continue
				}
				_, err := s.stock.AdjustInTx(ctx, tx.Inventory(), scope, inventory.AdjustInput{
					ProductID:     it.ProductID,
					BranchID:      ret.BranchID,
					Operation:     inventory.OpAdd,
					Quantity:      it.Quantity,
					MovementType:  inventory.MovementReturn,
					ReferenceType: inventory.RefReturn,
					ReferenceID:   ret.ReturnNumber,
					Note:          it.Reason,
				})
				if err != nil {
					return err
				}
			}
		}
		if err := tx.Decide(ctx, id, status, scope.UserID, note, now); err != nil {
			return err
		}
		ret.Status, ret.DecidedBy, ret.DecisionNote, ret.DecidedAt = status, scope.UserID, note, &now
		return nil
	})
	if err != nil {
		return Return{}, err
	}
	s.record(ctx, scope, ret, "returns:"+string(status))
	return ret, nil
}

// Get returns a return visible to the scope.
func (s *Service) Get(ctx context.Context, scope shared.Scope, id int64) (Return, error) {
	ret, err := s.repo.Get(ctx, id)
	if err != nil {
		return Return{}, err
	}
	if err := scope.RequireBranch(ret.BranchID); err != nil {
		return Return{}, err
	}
	return ret, nil
}

// List returns returns visible to the scope.
func (s *Service) List(ctx context.Context, scope shared.Scope, branchID int64, filter ListFilter) ([]Return, int, error) {
	branches, err := scope.FilterBranch(branchID)
	if err != nil {
		return nil, 0, err
	}
	filter.BranchIDs = branches
	return s.repo.List(ctx, filter)
}

func (s *Service) record(ctx context.Context, scope shared.Scope, ret Return, action string) {
	shared.RecordBestEffort(ctx, s.audit, shared.AuditLog{
		ActorID:  scope.UserID,
		BranchID: ret.BranchID,
		Action:   action,
		Entity:   "return",
		EntityID: strconv.FormatInt(ret.ID, 10),
		Meta:     map[string]any{"return_number": ret.ReturnNumber, "transaction_id": ret.TransactionID},
	})
}

func validCondition(c Condition) bool {
	switch c {
	case ConditionResaleable, ConditionDamaged, ConditionExpired:
		return true
	default:
		return false
	}
}

func returnNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return "RET-" + now.Format("20060102") + "-" + suffix
}
