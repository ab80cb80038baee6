package cashier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-bakery/internal/inventory"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

const idempotencyModule = "cashier"

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Prices(ctx context.Context, productIDs []int64) (map[int64]PriceInfo, error)
	FindByIdempotencyKey(ctx context.Context, key string) (Transaction, error)
	Get(ctx context.Context, id int64) (Transaction, error)
	List(ctx context.Context, filter ListFilter) ([]Transaction, int, error)
}

// StockAdjuster applies stock changes inside a caller-owned transaction.
type StockAdjuster interface {
	AdjustInTx(ctx context.Context, tx inventory.TxRepository, scope shared.Scope, input inventory.AdjustInput) (inventory.AdjustResult, error)
}

// Invalidator drops cached report data after a sale.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service records cashier sales.
type Service struct {
	repo        RepositoryPort
	stock       StockAdjuster
	idempotency shared.IdempotencyPort
	audit       shared.AuditPort
	reports     Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

// Dependencies groups the collaborators of Service; only Repo and Stock are required.
type Dependencies struct {
	Repo        RepositoryPort
	Stock       StockAdjuster
	Idempotency shared.IdempotencyPort
	Audit       shared.AuditPort
	Reports     Invalidator
	Logger      *slog.Logger
}

// NewService builds Service.
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        deps.Repo,
		stock:       deps.Stock,
		idempotency: deps.Idempotency,
		audit:       deps.Audit,
		reports:     deps.Reports,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Checkout validates the cart, prices it from the catalogue and records the
// sale, its payment and the stock decrements in one transaction. Repeating a
// request with the same idempotency key returns the original sale.
func (s *Service) Checkout(ctx context.Context, scope shared.Scope, input CheckoutInput) (CheckoutResult, error) {
	lines, err := mergeCart(input.Items)
	if err != nil {
		return CheckoutResult{}, err
	}
	if err := scope.RequireBranch(input.BranchID); err != nil {
		return CheckoutResult{}, err
	}
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return CheckoutResult{}, ErrKeyRequired
	}

	items, err := s.price(ctx, lines)
	if err != nil {
		return CheckoutResult{}, err
	}
	totals, err := ComputeTotals(items, input.Discount, input.TaxRatePercent)
	if err != nil {
		return CheckoutResult{}, err
	}
	paid, change, err := settle(input, totals.Total)
	if err != nil {
		return CheckoutResult{}, err
	}

	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return s.replay(ctx, scope, key)
			}
			return CheckoutResult{}, err
		}
	}

	now := s.now()
	txn := Transaction{
		Code:           transactionCode(now),
		BranchID:       input.BranchID,
		CashierID:      scope.UserID,
		IdempotencyKey: key,
		CustomerName:   strings.TrimSpace(input.CustomerName),
		Subtotal:       totals.Subtotal,
		Discount:       totals.Discount,
		Tax:            totals.Tax,
		Total:          totals.Total,
		PaymentMethod:  input.PaymentMethod,
		AmountPaid:     paid,
		Change:         change,
		Status:         StatusPaid,
		Notes:          strings.TrimSpace(input.Notes),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		txn, err = tx.InsertTransaction(ctx, txn)
		if err != nil {
			return fmt.Errorf("cashier: insert transaction: %w", err)
		}
		for i := range items {
			res, err := s.stock.AdjustInTx(ctx, tx.Inventory(), scope, inventory.AdjustInput{
				ProductID:     items[i].ProductID,
				BranchID:      input.BranchID,
				Operation:     inventory.OpSubtract,
				Quantity:      items[i].Quantity,
				MovementType:  inventory.MovementOut,
				ReferenceType: inventory.RefSale,
				ReferenceID:   txn.Code,
			})
			if errors.Is(err, inventory.ErrRecordNotFound) {
				return fmt.Errorf("%w: product %d", ErrNotStocked, items[i].ProductID)
			}
			if err != nil {
				return err
			}
			items[i].StockAfter = res.After
		}
		if err := tx.InsertItems(ctx, txn.ID, items); err != nil {
			return fmt.Errorf("cashier: insert items: %w", err)
		}
		return tx.InsertPayment(ctx, Payment{
			TransactionID: txn.ID,
			Method:        input.PaymentMethod,
			Amount:        totals.Total,
			Reference:     strings.TrimSpace(input.PaymentReference),
			PaidAt:        now,
		})
	})
	if err != nil {
		if s.idempotency != nil {
			_ = s.idempotency.Delete(context.WithoutCancel(ctx), key, idempotencyModule)
		}
		if shared.IsUniqueViolation(err) {
			return s.replay(ctx, scope, key)
		}
		return CheckoutResult{}, err
	}
	txn.Items = items

	if s.reports != nil {
		if err := s.reports.Bump(ctx); err != nil {
			s.logger.Warn("report cache bump failed", slog.Any("error", err))
		}
	}
	shared.RecordBestEffort(ctx, s.audit, shared.AuditLog{
		ActorID:  scope.UserID,
		BranchID: txn.BranchID,
		Action:   "cashier:checkout",
		Entity:   "transaction",
		EntityID: strconv.FormatInt(txn.ID, 10),
		Meta:     map[string]any{"code": txn.Code, "total": txn.Total.String(), "items": len(items)},
		At:       now,
	})
	return CheckoutResult{Transaction: txn}, nil
}

func (s *Service) replay(ctx context.Context, scope shared.Scope, key string) (CheckoutResult, error) {
	txn, err := s.repo.FindByIdempotencyKey(ctx, key)
	if errors.Is(err, ErrTransactionMissing) {
		return CheckoutResult{}, shared.ErrIdempotencyConflict
	}
	if err != nil {
		return CheckoutResult{}, err
	}
	if err := scope.RequireBranch(txn.BranchID); err != nil {
		return CheckoutResult{}, shared.ErrIdempotencyConflict
	}
	return CheckoutResult{Transaction: txn, Replayed: true}, nil
}

// mergeCart checks every line and folds repeated products into one line,
// keeping first-occurrence order.
func mergeCart(cart []CartItem) ([]CartItem, error) {
	if len(cart) == 0 {
		return nil, ErrEmptyCart
	}
	out := make([]CartItem, 0, len(cart))
	index := make(map[int64]int, len(cart))
	for i, line := range cart {
		if line.ProductID <= 0 || line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %d", ErrInvalidLine, i+1)
		}
		if at, ok := index[line.ProductID]; ok {
			out[at].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(out)
		out = append(out, line)
	}
	return out, nil
}

func (s *Service) price(ctx context.Context, lines []CartItem) ([]Item, error) {
	ids := make([]int64, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}
	prices, err := s.repo.Prices(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("cashier: load prices: %w", err)
	}
	items := make([]Item, len(lines))
	for i, line := range lines {
		info, ok := prices[line.ProductID]
		if !ok || !info.IsActive {
			return nil, fmt.Errorf("%w: product %d", ErrUnknownProduct, line.ProductID)
		}
		items[i] = Item{
			ProductID:   line.ProductID,
			ProductName: info.Name,
			Quantity:    line.Quantity,
			UnitPrice:   info.Price,
			Subtotal:    info.Price.Mul(decimal.NewFromInt(line.Quantity)),
		}
	}
	return items, nil
}

// settle returns the amount paid and change due.
func settle(input CheckoutInput, total decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if input.PaymentMethod == PaymentCash {
		if input.CashReceived.LessThan(total) {
			return decimal.Zero, decimal.Zero, ErrInsufficientCash
		}
		return input.CashReceived, input.CashReceived.Sub(total), nil
	}
	if strings.TrimSpace(input.PaymentReference) == "" {
		return decimal.Zero, decimal.Zero, ErrReferenceRequired
	}
	return total, decimal.Zero, nil
}

func transactionCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return "TRX-" + now.Format("20060102") + "-" + suffix
}

// Get returns a sale visible to the scope.
func (s *Service) Get(ctx context.Context, scope shared.Scope, id int64) (Transaction, error) {
	txn, err := s.repo.Get(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if err := scope.RequireBranch(txn.BranchID); err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

// List returns sales in the scope. A non-zero branchID narrows the listing.
func (s *Service) List(ctx context.Context, scope shared.Scope, branchID int64, filter ListFilter) ([]Transaction, int, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, 0, fmt.Errorf("cashier: %w", inventory.ErrInvalidRange)
	}
	branches, err := scope.FilterBranch(branchID)
	if err != nil {
		return nil, 0, err
	}
	filter.BranchIDs = branches
	return s.repo.List(ctx, filter)
}
