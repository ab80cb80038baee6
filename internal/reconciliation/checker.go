// Package reconciliation detects and repairs drift between stored stock and
// the rules and movement log it must agree with.
package reconciliation

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Kind names a discrepancy class.
type Kind string

const (
	KindNegativeStock Kind = "negative_stock"
	KindDuplicateSKU  Kind = "duplicate_sku"
	KindMissingUoM    Kind = "missing_uom"
	KindMovementDrift Kind = "movement_drift"
)

// Fixable reports whether Fix can repair the kind by overwriting stock.
func (k Kind) Fixable() bool {
	return k == KindNegativeStock || k == KindMovementDrift
}

// Severity returns the fixed severity of the kind.
func (k Kind) Severity() Severity {
	if k == KindNegativeStock || k == KindDuplicateSKU {
		return SeverityCritical
	}
	return SeverityWarning
}

// Severity ranks discrepancies.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Discrepancy is a derived finding; it is never stored.
type Discrepancy struct {
	ProductID       int64    `json:"product_id"`
	BranchID        int64    `json:"branch_id,omitempty"`
	SKU             string   `json:"sku"`
	ProductName     string   `json:"product_name"`
	Kind            Kind     `json:"kind"`
	Severity        Severity `json:"severity"`
	CurrentStock    int64    `json:"current_stock"`
	CalculatedStock int64    `json:"calculated_stock"`
	Suggestion      string   `json:"suggestion"`
}

// ProductInfo is the product data the checker needs.
type ProductInfo struct {
	ID   int64
	SKU  string
	Name string
	UoM  string
}

// StockRow is one inventory record with the balance of its latest movement.
type StockRow struct {
	ProductID       int64
	BranchID        int64
	Quantity        int64
	HasMovements    bool
	MovementBalance int64
}

// Check runs every rule and returns the findings, critical first.
func Check(products []ProductInfo, stock []StockRow) []Discrepancy {
	byID := make(map[int64]ProductInfo, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	out := []Discrepancy{}
	for _, row := range stock {
		p := byID[row.ProductID]
		if row.Quantity < 0 {
			out = append(out, Discrepancy{
				ProductID: row.ProductID, BranchID: row.BranchID, SKU: p.SKU, ProductName: p.Name,
				Kind: KindNegativeStock, Severity: KindNegativeStock.Severity(),
				CurrentStock: row.Quantity, CalculatedStock: 0,
				Suggestion: fmt.Sprintf("Stock is %d; set it to 0 and recount the shelf.", row.Quantity),
			})
			continue
		}
		if row.HasMovements && row.Quantity != row.MovementBalance {
			out = append(out, Discrepancy{
				ProductID: row.ProductID, BranchID: row.BranchID, SKU: p.SKU, ProductName: p.Name,
				Kind: KindMovementDrift, Severity: KindMovementDrift.Severity(),
				CurrentStock: row.Quantity, CalculatedStock: row.MovementBalance,
				Suggestion: fmt.Sprintf("Stock is %d but the movement log ends at %d; apply the logged balance or recount.", row.Quantity, row.MovementBalance),
			})
		}
	}

	groups := map[string][]ProductInfo{}
	for _, p := range products {
		sku := normalizeSKU(p.SKU)
		if sku != "" {
			groups[sku] = append(groups[sku], p)
		}
		if strings.TrimSpace(p.UoM) == "" {
			out = append(out, Discrepancy{
				ProductID: p.ID, SKU: p.SKU, ProductName: p.Name,
				Kind: KindMissingUoM, Severity: KindMissingUoM.Severity(),
				Suggestion: "Set a unit of measure (pcs, box, kg) on the product.",
			})
		}
	}
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		ids := make([]string, 0, len(group))
		for _, p := range group {
			ids = append(ids, fmt.Sprint(p.ID))
		}
		for _, p := range group {
			out = append(out, Discrepancy{
				ProductID: p.ID, SKU: p.SKU, ProductName: p.Name,
				Kind: KindDuplicateSKU, Severity: KindDuplicateSKU.Severity(),
				Suggestion: fmt.Sprintf("SKU %q is shared by products %s; give each product a unique SKU.", strings.TrimSpace(p.SKU), strings.Join(ids, ", ")),
			})
		}
	}

	slices.SortStableFunc(out, func(a, b Discrepancy) int {
		return cmp.Or(
			cmp.Compare(severityRank(a.Severity), severityRank(b.Severity)),
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.ProductID, b.ProductID),
			cmp.Compare(a.BranchID, b.BranchID),
		)
	})
	return out
}

func severityRank(s Severity) int {
	if s == SeverityCritical {
		return 0
	}
	return 1
}

func normalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}
