package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/db"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// TxRepository exposes order writes inside a transaction.
type TxRepository interface {
	Create(ctx context.Context, order Order, items []ItemInput) (Order, error)
	LockOrder(ctx context.Context, id int64) (Order, error)
	UpdateTracking(ctx context.Context, id int64, stage Stage, status Status) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	InsertHistory(ctx context.Context, event TrackingEvent) error
}

// Repository persists orders in PostgreSQL.
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

// WithTx runs fn in a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("orders repository not initialised")
	}
	return db.WithStockTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const orderColumns = `id, order_number, branch_id, customer_name, COALESCE(customer_phone, ''), status, tracking_stage,
delivery_date, COALESCE(notes, ''), total, COALESCE(created_by, 0), created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		status string
		stage  string
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.BranchID, &o.CustomerName, &o.CustomerPhone, &status, &stage,
		&o.DeliveryDate, &o.Notes, &o.Total, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	o.Status = Status(status)
	o.Stage = Stage(stage)
	return o, err
}

// Get loads an order with its items and tracking history.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return Order{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, quantity, unit_price, subtotal FROM order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return Order{}, err
	}
	order.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var it Item
		err := row.Scan(&it.ID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.Subtotal)
		return it, err
	})
	if err != nil {
		return Order{}, err
	}
	rows, err = r.pool.Query(ctx, `SELECT id, order_id, COALESCE(from_stage, ''), to_stage, COALESCE(changed_by, 0), COALESCE(note, ''), changed_at
FROM order_tracking_history WHERE order_id = $1 ORDER BY changed_at, id`, id)
	if err != nil {
		return Order{}, err
	}
	order.History, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (TrackingEvent, error) {
		var (
			ev       TrackingEvent
			from, to string
		)
		err := row.Scan(&ev.ID, &ev.OrderID, &from, &to, &ev.ChangedBy, &ev.Note, &ev.ChangedAt)
		ev.FromStage, ev.ToStage = Stage(from), Stage(to)
		return ev, err
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// List returns orders matching filter and the total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	var where shared.Where
	if len(filter.BranchIDs) > 0 {
		where.Add("branch_id = ANY(?)", filter.BranchIDs)
	}
	if filter.Status != "" {
		where.Add("status = ?", string(filter.Status))
	}
	if filter.Stage != "" {
		where.Add("tracking_stage = ?", string(filter.Stage))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where.SQL(), where.Args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders`+where.SQL()+
		` ORDER BY created_at DESC, id DESC LIMIT `+where.Next(limit)+` OFFSET `+where.Next(filter.Offset), where.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// BulkUpdateStatus sets the order status of many orders through the
// bulk_update_order_status procedure and returns the affected count.
func (r *Repository) BulkUpdateStatus(ctx context.Context, ids []int64, status Status) (int64, error) {
	var affected int64
	err := r.pool.QueryRow(ctx, `SELECT bulk_update_order_status($1, $2)`, ids, string(status)).Scan(&affected)
	return affected, err
}

func (t *txRepo) Create(ctx context.Context, order Order, items []ItemInput) (Order, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO orders (order_number, branch_id, customer_name, customer_phone, status, tracking_stage,
delivery_date, notes, total, created_by, created_at, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), $9, $10, NOW(), NOW())
RETURNING id, created_at, updated_at`,
		order.OrderNumber, order.BranchID, order.CustomerName, order.CustomerPhone, string(order.Status), string(order.Stage),
		order.DeliveryDate, order.Notes, order.Total, order.CreatedBy).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, quantity, unit_price, subtotal)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, order.ID, item.ProductID, item.Quantity, item.UnitPrice, item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity)))
	}
	results := t.tx.SendBatch(ctx, batch)
	for _, item := range items {
		line := Item{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice, Subtotal: item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity))}
		if err := results.QueryRow().Scan(&line.ID); err != nil {
			_ = results.Close()
			return Order{}, err
		}
		order.Items = append(order.Items, line)
	}
	if err := results.Close(); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (t *txRepo) LockOrder(ctx context.Context, id int64) (Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) UpdateTracking(ctx context.Context, id int64, stage Stage, status Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET tracking_stage = $2, status = $3, updated_at = NOW() WHERE id = $1`, id, string(stage), string(status))
	return err
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	return err
}

func (t *txRepo) InsertHistory(ctx context.Context, event TrackingEvent) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO order_tracking_history (order_id, from_stage, to_stage, changed_by, note, changed_at)
VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), NOW())`,
		event.OrderID, string(event.FromStage), string(event.ToStage), event.ChangedBy, event.Note)
	return err
}
