package cashier

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
)

// PaymentMethod identifies how a sale was paid.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentQRIS     PaymentMethod = "qris"
	PaymentDebit    PaymentMethod = "debit"
	PaymentTransfer PaymentMethod = "transfer"
)

// StatusPaid is the only status a checkout produces; refunds go through returns.
const StatusPaid = "paid"

var (
	ErrEmptyCart          = fmt.Errorf("cashier: %w: cart is empty", httpx.ErrValidation)
	ErrInvalidLine        = fmt.Errorf("cashier: %w: cart lines need a product and a positive quantity", httpx.ErrValidation)
	ErrUnknownProduct     = fmt.Errorf("cashier: %w: product unknown or inactive", httpx.ErrValidation)
	ErrInvalidDiscount    = fmt.Errorf("cashier: %w: discount must not be negative", httpx.ErrValidation)
	ErrInvalidTaxRate     = fmt.Errorf("cashier: %w: tax rate must be between 0 and 100", httpx.ErrValidation)
	ErrInsufficientCash   = fmt.Errorf("cashier: %w: cash received is below the total", httpx.ErrValidation)
	ErrReferenceRequired  = fmt.Errorf("cashier: %w: non-cash payments need a reference", httpx.ErrValidation)
	ErrNotStocked         = fmt.Errorf("cashier: %w: product is not stocked at this branch", httpx.ErrValidation)
	ErrKeyRequired        = fmt.Errorf("cashier: %w: idempotency key required", httpx.ErrValidation)
	ErrTransactionMissing = fmt.Errorf("cashier: transaction %w", httpx.ErrNotFound)
)

// CartItem is one requested sale line.
type CartItem struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

// CheckoutInput is the cashier request. Prices are always read from the
// product catalogue.
type CheckoutInput struct {
	BranchID         int64           `json:"branch_id" validate:"required,gt=0"`
	IdempotencyKey   string          `json:"idempotency_key" validate:"max=64"`
	Items            []CartItem      `json:"items" validate:"required,min=1,dive"`
	Discount         decimal.Decimal `json:"discount"`
	TaxRatePercent   decimal.Decimal `json:"tax_rate_percent"`
	PaymentMethod    PaymentMethod   `json:"payment_method" validate:"required,oneof=cash qris debit transfer"`
	CashReceived     decimal.Decimal `json:"cash_received"`
	PaymentReference string          `json:"payment_reference" validate:"max=120"`
	CustomerName     string          `json:"customer_name" validate:"max=120"`
	Notes            string          `json:"notes" validate:"max=255"`
}

// PriceInfo is the catalogue data a sale needs.
type PriceInfo struct {
	Name     string
	Price    decimal.Decimal
	IsActive bool
}

// Transaction is a completed sale.
type Transaction struct {
	ID             int64           `json:"id"`
	Code           string          `json:"code"`
	BranchID       int64           `json:"branch_id"`
	CashierID      int64           `json:"cashier_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	CustomerName   string          `json:"customer_name,omitempty"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	Change         decimal.Decimal `json:"change"`
	Status         string          `json:"status"`
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Items          []Item          `json:"items,omitempty"`
}

// Item is one sold line with the stock it left behind.
type Item struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	StockAfter  int64           `json:"stock_after"`
}

// Payment is one payment_history row.
type Payment struct {
	TransactionID int64
	Method        PaymentMethod
	Amount        decimal.Decimal
	Reference     string
	PaidAt        time.Time
}

// CheckoutResult wraps the transaction; Replayed marks an idempotent repeat.
type CheckoutResult struct {
	Transaction Transaction `json:"transaction"`
	Replayed    bool        `json:"replayed"`
}

// ListFilter narrows transaction listings.
type ListFilter struct {
	BranchIDs []int64
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// Totals holds the money breakdown of a sale.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// ComputeTotals prices items and applies discount then tax. The discount is
// capped at the subtotal and tax is rounded to two places.
func ComputeTotals(items []Item, discount, taxRatePercent decimal.Decimal) (Totals, error) {
	if discount.IsNegative() {
		return Totals{}, ErrInvalidDiscount
	}
	if taxRatePercent.IsNegative() || taxRatePercent.GreaterThan(hundred) {
		return Totals{}, ErrInvalidTaxRate
	}
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Subtotal)
	}
	discount = decimal.Min(discount, subtotal)
	base := subtotal.Sub(discount)
	tax := base.Mul(taxRatePercent).Div(hundred).Round(2)
	return Totals{Subtotal: subtotal, Discount: discount, Tax: tax, Total: base.Add(tax)}, nil
}
