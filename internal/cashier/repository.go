package cashier

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-bakery/internal/inventory"
	"github.com/odyssey-erp/odyssey-bakery/internal/platform/db"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// TxRepository writes a sale inside one transaction. Inventory returns the
// stock operations bound to the same transaction.
type TxRepository interface {
	InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error)
	InsertItems(ctx context.Context, transactionID int64, items []Item) error
	InsertPayment(ctx context.Context, payment Payment) error
	Inventory() inventory.TxRepository
}

// Repository persists sales in PostgreSQL.
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
		return errors.New("cashier repository not initialised")
	}
	return db.WithStockTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Prices loads catalogue prices for the given products.
func (r *Repository) Prices(ctx context.Context, productIDs []int64) (map[int64]PriceInfo, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, price, is_active FROM products WHERE id = ANY($1)`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]PriceInfo, len(productIDs))
	for rows.Next() {
		var (
			id   int64
			info PriceInfo
		)
		if err := rows.Scan(&id, &info.Name, &info.Price, &info.IsActive); err != nil {
			return nil, err
		}
		out[id] = info
	}
	return out, rows.Err()
}

const transactionColumns = `id, code, branch_id, cashier_id, idempotency_key, COALESCE(customer_name, ''), subtotal, discount, tax, total,
payment_method, amount_paid, change_amount, status, COALESCE(notes, ''), created_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t      Transaction
		method string
	)
	err := row.Scan(&t.ID, &t.Code, &t.BranchID, &t.CashierID, &t.IdempotencyKey, &t.CustomerName, &t.Subtotal, &t.Discount,
		&t.Tax, &t.Total, &method, &t.AmountPaid, &t.Change, &t.Status, &t.Notes, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionMissing
	}
	t.PaymentMethod = PaymentMethod(method)
	return t, err
}

// FindByIdempotencyKey returns the sale recorded under key.
func (r *Repository) FindByIdempotencyKey(ctx context.Context, key string) (Transaction, error) {
	txn, err := scanTransaction(r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = $1`, key))
	if err != nil {
		return Transaction{}, err
	}
	return r.withItems(ctx, txn)
}

// Get loads a sale with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Transaction, error) {
	txn, err := scanTransaction(r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		return Transaction{}, err
	}
	return r.withItems(ctx, txn)
}

func (r *Repository) withItems(ctx context.Context, txn Transaction) (Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT ti.id, ti.product_id, p.name, ti.quantity, ti.unit_price, ti.subtotal, ti.stock_after
FROM transaction_items ti JOIN products p ON p.id = ti.product_id WHERE ti.transaction_id = $1 ORDER BY ti.id`, txn.ID)
	if err != nil {
		return Transaction{}, err
	}
	txn.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var it Item
		err := row.Scan(&it.ID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.Subtotal, &it.StockAfter)
		return it, err
	})
	return txn, err
}

// List returns sales matching filter, newest first, with the total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Transaction, int, error) {
	var where shared.Where
	if len(filter.BranchIDs) > 0 {
		where.Add("branch_id = ANY(?)", filter.BranchIDs)
	}
	if !filter.From.IsZero() {
		where.Add("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		where.Add("created_at < ?", filter.To)
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+where.SQL(), where.Args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions`+where.SQL()+
		` ORDER BY created_at DESC, id DESC LIMIT `+where.Next(limit)+` OFFSET `+where.Next(filter.Offset), where.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (t *txRepo) Inventory() inventory.TxRepository {
	return inventory.NewTxRepository(t.tx)
}

func (t *txRepo) InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO transactions (code, branch_id, cashier_id, idempotency_key, customer_name, subtotal, discount, tax,
total, payment_method, amount_paid, change_amount, status, notes, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12, $13, NULLIF($14, ''), NOW())
RETURNING id, created_at`,
		txn.Code, txn.BranchID, txn.CashierID, txn.IdempotencyKey, txn.CustomerName, txn.Subtotal, txn.Discount, txn.Tax,
		txn.Total, string(txn.PaymentMethod), txn.AmountPaid, txn.Change, txn.Status, txn.Notes).Scan(&txn.ID, &txn.CreatedAt)
	return txn, err
}

func (t *txRepo) InsertItems(ctx context.Context, transactionID int64, items []Item) error {
	_, err := t.tx.CopyFrom(ctx, pgx.Identifier{"transaction_items"},
		[]string{"transaction_id", "product_id", "quantity", "unit_price", "subtotal", "stock_after"},
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			it := items[i]
			return []any{transactionID, it.ProductID, it.Quantity, it.UnitPrice, it.Subtotal, it.StockAfter}, nil
		}))
	return err
}

func (t *txRepo) InsertPayment(ctx context.Context, payment Payment) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO payment_history (transaction_id, payment_method, amount, reference, paid_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5)`, payment.TransactionID, string(payment.Method), payment.Amount, payment.Reference, payment.PaidAt)
	return err
}
