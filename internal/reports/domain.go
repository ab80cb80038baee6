// Package reports builds sales and inventory reports and their exports.
package reports

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
)

var (
	ErrInvalidRange  = fmt.Errorf("reports: %w: from must not be after to", httpx.ErrValidation)
	ErrRangeTooLong  = fmt.Errorf("reports: %w: range exceeds 366 days", httpx.ErrValidation)
	ErrUnknownFormat = fmt.Errorf("reports: %w: format must be csv, xlsx or pdf", httpx.ErrValidation)
)

// DailySales is the sales summary of one branch on one day.
type DailySales struct {
	Date         string          `json:"date"`
	BranchID     int64           `json:"branch_id"`
	BranchName   string          `json:"branch_name"`
	Transactions int64           `json:"transactions"`
	ItemsSold    int64           `json:"items_sold"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	Tax          decimal.Decimal `json:"tax"`
	Total        decimal.Decimal `json:"total"`
}

// SalesReport groups daily rows with their grand total.
type SalesReport struct {
	From  string          `json:"from"`
	To    string          `json:"to"`
	Rows  []DailySales    `json:"rows"`
	Total decimal.Decimal `json:"total"`
	Count int64           `json:"transactions"`
}

// ValuationRow is the stock value of one product at one branch, priced at
// the catalogue selling price.
type ValuationRow struct {
	BranchID    int64           `json:"branch_id"`
	BranchName  string          `json:"branch_name"`
	ProductID   int64           `json:"product_id"`
	SKU         string          `json:"sku"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Value       decimal.Decimal `json:"value"`
}

// SalesQuery is a resolved sales report request. To is exclusive.
type SalesQuery struct {
	BranchIDs []int64
	From      time.Time
	To        time.Time
}
