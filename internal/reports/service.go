package reports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// Source loads raw report rows.
type Source interface {
	DailySales(ctx context.Context, q SalesQuery) ([]DailySales, error)
	Valuation(ctx context.Context, branchIDs []int64) ([]ValuationRow, error)
}

// Service assembles reports, caching sales summaries.
type Service struct {
	source Source
	cache  *Cache
	now    func() time.Time
}

// NewService builds Service. cache may be nil.
func NewService(source Source, cache *Cache) *Service {
	return &Service{source: source, cache: cache, now: time.Now}
}

const maxRangeDays = 366

// Sales returns the daily summary between from and to inclusive. Zero dates
// default to the last seven days.
func (s *Service) Sales(ctx context.Context, scope shared.Scope, branchID int64, from, to time.Time) (SalesReport, error) {
	branches, err := scope.FilterBranch(branchID)
	if err != nil {
		return SalesReport{}, err
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	if to.IsZero() {
		to = today
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -6)
	}
	from, to = from.UTC().Truncate(24*time.Hour), to.UTC().Truncate(24*time.Hour)
	if to.Before(from) {
		return SalesReport{}, ErrInvalidRange
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		return SalesReport{}, ErrRangeTooLong
	}
	q := SalesQuery{BranchIDs: branches, From: from, To: to.AddDate(0, 0, 1)}

	key, err := s.cache.BuildKey(ctx, "reports", "sales", branchToken(branches), from.Format(time.DateOnly), to.Format(time.DateOnly))
	if err != nil {
		return SalesReport{}, err
	}
	var report SalesReport
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
		rows, err := s.source.DailySales(ctx, q)
		if err != nil {
			return nil, err
		}
		out := SalesReport{From: from.Format(time.DateOnly), To: to.Format(time.DateOnly), Rows: rows, Total: decimal.Zero}
		for _, row := range rows {
			out.Total = out.Total.Add(row.Total)
			out.Count += row.Transactions
		}
		return out, nil
	})
	return report, err
}

// Valuation returns current stock value per product and branch. It is read
// live since stock changes on every sale.
func (s *Service) Valuation(ctx context.Context, scope shared.Scope, branchID int64) ([]ValuationRow, decimal.Decimal, error) {
	branches, err := scope.FilterBranch(branchID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	rows, err := s.source.Valuation(ctx, branches)
	if err != nil {
		return nil, decimal.Zero, err
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Value)
	}
	return rows, total, nil
}
