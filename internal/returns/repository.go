package returns

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-bakery/internal/inventory"
	"github.com/odyssey-erp/odyssey-bakery/internal/platform/db"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// TxRepository holds the writes of one return operation.
type TxRepository interface {
	Insert(ctx context.Context, ret Return) (Return, error)
	Lock(ctx context.Context, id int64) (Return, error)
	Decide(ctx context.Context, id int64, status Status, by int64, note string, at time.Time) error
	ReturnedQuantities(ctx context.Context, transactionID int64) (map[int64]int64, error)
	Inventory() inventory.TxRepository
}

// Repository persists returns in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn in a read-committed transaction shared with inventory.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("returns repository not initialised")
	}
	return db.WithStockTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Sale loads the transaction a return refers to.
func (r *Repository) Sale(ctx context.Context, transactionID int64) (Sale, error) {
	sale := Sale{ID: transactionID}
	err := r.pool.QueryRow(ctx, `SELECT code, branch_id FROM transactions WHERE id = $1`, transactionID).Scan(&sale.Code, &sale.BranchID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrSaleNotFound
	}
	if err != nil {
		return Sale{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT product_id, SUM(quantity) FROM transaction_items WHERE transaction_id = $1 GROUP BY product_id`, transactionID)
	if err != nil {
		return Sale{}, err
	}
	sale.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (SoldLine, error) {
		var l SoldLine
		err := row.Scan(&l.ProductID, &l.Quantity)
		return l, err
	})
	return sale, err
}

const returnColumns = `id, return_number, transaction_id, branch_id, status, COALESCE(reason, ''), created_by,
COALESCE(decided_by, 0), COALESCE(decision_note, ''), created_at, decided_at`

func scanReturn(row pgx.Row) (Return, error) {
	var ret Return
	err := row.Scan(&ret.ID, &ret.ReturnNumber, &ret.TransactionID, &ret.BranchID, &ret.Status, &ret.Reason, &ret.CreatedBy,
		&ret.DecidedBy, &ret.DecisionNote, &ret.CreatedAt, &ret.DecidedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Return{}, ErrReturnNotFound
	}
	return ret, err
}

func loadItems(ctx context.Context, q interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
}, ret Return) (Return, error) {
	rows, err := q.Query(ctx, `SELECT id, product_id, quantity, condition, COALESCE(reason, '') FROM return_items WHERE return_id = $1 ORDER BY id`, ret.ID)
	if err != nil {
		return Return{}, err
	}
	ret.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var it Item
		err := row.Scan(&it.ID, &it.ProductID, &it.Quantity, &it.Condition, &it.Reason)
		return it, err
	})
	return ret, err
}

// Get loads a return with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Return, error) {
	ret, err := scanReturn(r.pool.QueryRow(ctx, `SELECT `+returnColumns+` FROM returns WHERE id = $1`, id))
	if err != nil {
		return Return{}, err
	}
	return loadItems(ctx, r.pool, ret)
}

// List returns matching returns without items, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Return, int, error) {
	var where shared.Where
	if len(filter.BranchIDs) > 0 {
		where.Add("branch_id = ANY(?)", filter.BranchIDs)
	}
	if filter.Status != "" {
		where.Add("status = ?", filter.Status)
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM returns`+where.SQL(), where.Args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `SELECT `+returnColumns+` FROM returns`+where.SQL()+
		` ORDER BY created_at DESC, id DESC LIMIT `+where.Next(limit)+` OFFSET `+where.Next(filter.Offset), where.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Return{}
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ret)
	}
	return out, total, rows.Err()
}

func (t *txRepo) Inventory() inventory.TxRepository {
	return inventory.NewTxRepository(t.tx)
}

func (t *txRepo) Insert(ctx context.Context, ret Return) (Return, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO returns (return_number, transaction_id, branch_id, status, reason, created_by, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NOW()) RETURNING id, created_at`,
		ret.ReturnNumber, ret.TransactionID, ret.BranchID, ret.Status, ret.Reason, ret.CreatedBy).Scan(&ret.ID, &ret.CreatedAt)
	if err != nil {
		return Return{}, err
	}
	batch := &pgx.Batch{}
	for _, it := range ret.Items {
		batch.Queue(`INSERT INTO return_items (return_id, product_id, quantity, condition, reason) VALUES ($1, $2, $3, $4, NULLIF($5, ''))`,
			ret.ID, it.ProductID, it.Quantity, it.Condition, it.Reason)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return Return{}, err
	}
	return ret, nil
}

func (t *txRepo) Lock(ctx context.Context, id int64) (Return, error) {
	ret, err := scanReturn(t.tx.QueryRow(ctx, `SELECT `+returnColumns+` FROM returns WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Return{}, err
	}
	return loadItems(ctx, t.tx, ret)
}

func (t *txRepo) Decide(ctx context.Context, id int64, status Status, by int64, note string, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE returns SET status = $2, decided_by = $3, decision_note = NULLIF($4, ''), decided_at = $5 WHERE id = $1`,
		id, status, by, note, at)
	return err
}

// ReturnedQuantities sums non-rejected returned quantities per product for a
// sale. Rows are locked so concurrent returns against one sale serialise.
func (t *txRepo) ReturnedQuantities(ctx context.Context, transactionID int64) (map[int64]int64, error) {
	if _, err := t.tx.Exec(ctx, `SELECT id FROM transactions WHERE id = $1 FOR UPDATE`, transactionID); err != nil {
		return nil, err
	}
	rows, err := t.tx.Query(ctx, `SELECT ri.product_id, SUM(ri.quantity) FROM return_items ri JOIN returns r ON r.id = ri.return_id
WHERE r.transaction_id = $1 AND r.status <> 'rejected' GROUP BY ri.product_id`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64]int64{}
	for rows.Next() {
		var product, qty int64
		if err := rows.Scan(&product, &qty); err != nil {
			return nil, err
		}
		out[product] = qty
	}
	return out, rows.Err()
}
