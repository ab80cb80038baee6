package reports

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads report data from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// DailySales aggregates paid transactions per branch and day.
func (r *Repository) DailySales(ctx context.Context, q SalesQuery) ([]DailySales, error) {
	rows, err := r.pool.Query(ctx, `SELECT to_char(t.created_at::date, 'YYYY-MM-DD'), t.branch_id, b.name, COUNT(*),
	COALESCE(SUM(items.qty), 0), SUM(t.subtotal), SUM(t.discount), SUM(t.tax), SUM(t.total)
FROM transactions t
JOIN branches b ON b.id = t.branch_id
LEFT JOIN LATERAL (SELECT SUM(quantity) AS qty FROM transaction_items WHERE transaction_id = t.id) items ON TRUE
WHERE t.status = 'paid' AND t.created_at >= $1 AND t.created_at < $2
	AND ($3::bigint[] IS NULL OR t.branch_id = ANY($3))
GROUP BY 1, t.branch_id, b.name
ORDER BY 1, t.branch_id`, q.From, q.To, q.BranchIDs)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DailySales, error) {
		var d DailySales
		err := row.Scan(&d.Date, &d.BranchID, &d.BranchName, &d.Transactions, &d.ItemsSold, &d.Subtotal, &d.Discount, &d.Tax, &d.Total)
		return d, err
	})
}

// Valuation lists stock value per product and branch.
func (r *Repository) Valuation(ctx context.Context, branchIDs []int64) ([]ValuationRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.branch_id, b.name, i.product_id, p.sku, p.name, i.quantity, p.price, p.price * i.quantity
FROM inventory i
JOIN branches b ON b.id = i.branch_id
JOIN products p ON p.id = i.product_id
WHERE ($1::bigint[] IS NULL OR i.branch_id = ANY($1))
ORDER BY i.branch_id, p.name`, branchIDs)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ValuationRow, error) {
		var v ValuationRow
		err := row.Scan(&v.BranchID, &v.BranchName, &v.ProductID, &v.SKU, &v.ProductName, &v.Quantity, &v.Price, &v.Value)
		return v, err
	})
}
