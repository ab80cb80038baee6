package reconciliation

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the data a scan needs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Products returns every product.
func (r *Repository) Products(ctx context.Context) ([]ProductInfo, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, sku, name, COALESCE(uom, '') FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProductInfo
	for rows.Next() {
		var p ProductInfo
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.UoM); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// StockRows returns inventory records with the balance of their latest
// movement. A nil branch list returns every branch.
func (r *Repository) StockRows(ctx context.Context, branchIDs []int64) ([]StockRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.product_id, i.branch_id, i.quantity, lm.quantity_after IS NOT NULL, COALESCE(lm.quantity_after, 0)
FROM inventory i
LEFT JOIN LATERAL (
	SELECT m.quantity_after FROM stock_movements m
	WHERE m.product_id = i.product_id AND m.branch_id = i.branch_id
	ORDER BY m.created_at DESC, m.id DESC
	LIMIT 1
) lm ON TRUE
WHERE $1::bigint[] IS NULL OR i.branch_id = ANY($1)
ORDER BY i.branch_id, i.product_id`, branchIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockRow
	for rows.Next() {
		var row StockRow
		if err := rows.Scan(&row.ProductID, &row.BranchID, &row.Quantity, &row.HasMovements, &row.MovementBalance); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
