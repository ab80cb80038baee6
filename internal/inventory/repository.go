package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/db"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// TxRepository exposes the stock operations that run inside a unit of work.
// Every quantity change is a single atomic statement; callers lock the row
// first when they need the prior value.
type TxRepository interface {
	LockRecord(ctx context.Context, id int64) (Record, error)
	LockRecordByKey(ctx context.Context, productID, branchID int64) (Record, error)
	EnsureRecord(ctx context.Context, productID, branchID int64) (bool, error)
	Increment(ctx context.Context, productID, branchID, delta int64) (Record, bool, error)
	Decrement(ctx context.Context, id, delta int64) (Record, error)
	Assign(ctx context.Context, productID, branchID, quantity int64) (Record, bool, error)
	InsertMovements(ctx context.Context, movements []Movement) error
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds the stock operations to a transaction owned by
// another module, so its document and the stock change commit together.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithStockTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const recordSelect = `SELECT i.id, i.product_id, i.branch_id, i.quantity, i.last_updated, p.name, p.sku, p.uom, p.reorder_point
FROM inventory i JOIN products p ON p.id = i.product_id`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.ProductID, &rec.BranchID, &rec.Quantity, &rec.LastUpdated, &rec.ProductName, &rec.SKU, &rec.UoM, &rec.ReorderPoint)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

// GetRecord loads one record with product details.
func (r *Repository) GetRecord(ctx context.Context, id int64) (Record, error) {
	return scanRecord(r.pool.QueryRow(ctx, recordSelect+` WHERE i.id = $1`, id))
}

// ListRecords returns records matching filter plus the total count.
func (r *Repository) ListRecords(ctx context.Context, filter RecordFilter) ([]Record, int, error) {
	var where shared.Where
	if len(filter.BranchIDs) > 0 {
		where.Add("i.branch_id = ANY(?)", filter.BranchIDs)
	}
	if filter.ProductID != 0 {
		where.Add("i.product_id = ?", filter.ProductID)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		where.Add("(p.name ILIKE ? OR p.sku ILIKE ?)", pattern, pattern)
	}
	if filter.LowOnly {
		where.Add("p.reorder_point > 0 AND i.quantity <= p.reorder_point")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory i JOIN products p ON p.id = i.product_id`+where.SQL(), where.Args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := recordSelect + where.SQL() + ` ORDER BY i.branch_id, p.name, i.id LIMIT ` + where.Next(limit) + ` OFFSET ` + where.Next(filter.Offset)
	rows, err := r.pool.Query(ctx, query, where.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

// ListMovements returns the stock card for the filter, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var where shared.Where
	if len(filter.BranchIDs) > 0 {
		where.Add("branch_id = ANY(?)", filter.BranchIDs)
	}
	if filter.ProductID != 0 {
		where.Add("product_id = ?", filter.ProductID)
	}
	if filter.ReferenceType != "" {
		where.Add("reference_type = ?", string(filter.ReferenceType))
	}
	if filter.ReferenceID != "" {
		where.Add("reference_id = ?", filter.ReferenceID)
	}
	if !filter.From.IsZero() {
		where.Add("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		where.Add("created_at < ?", filter.To)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, branch_id, quantity_change, quantity_before, quantity_after, movement_type,
reference_type, COALESCE(reference_id, ''), COALESCE(performed_by, 0), COALESCE(note, ''), created_at
FROM stock_movements`+where.SQL()+` ORDER BY created_at DESC, id DESC LIMIT `+where.Next(limit), where.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var (
			m       Movement
			mvType  string
			refType string
		)
		if err := rows.Scan(&m.ID, &m.ProductID, &m.BranchID, &m.QuantityChange, &m.QuantityBefore, &m.QuantityAfter, &mvType, &refType, &m.ReferenceID, &m.PerformedBy, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = MovementType(mvType)
		m.ReferenceType = ReferenceType(refType)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

const lockedColumns = `id, product_id, branch_id, quantity, last_updated`

func scanLocked(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.ProductID, &rec.BranchID, &rec.Quantity, &rec.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

func (r *txRepository) LockRecord(ctx context.Context, id int64) (Record, error) {
	return scanLocked(r.tx.QueryRow(ctx, `SELECT `+lockedColumns+` FROM inventory WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepository) LockRecordByKey(ctx context.Context, productID, branchID int64) (Record, error) {
	return scanLocked(r.tx.QueryRow(ctx, `SELECT `+lockedColumns+` FROM inventory WHERE product_id = $1 AND branch_id = $2 FOR UPDATE`, productID, branchID))
}

// EnsureRecord inserts an empty record unless one exists and reports whether
// this call created it. A conflicting insert from another transaction blocks
// until that transaction finishes.
func (r *txRepository) EnsureRecord(ctx context.Context, productID, branchID int64) (bool, error) {
	tag, err := r.tx.Exec(ctx, `INSERT INTO inventory (product_id, branch_id, quantity, last_updated)
VALUES ($1, $2, 0, NOW()) ON CONFLICT (product_id, branch_id) DO NOTHING`, productID, branchID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) Increment(ctx context.Context, productID, branchID, delta int64) (Record, bool, error) {
	var (
		rec      Record
		inserted bool
	)
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory (product_id, branch_id, quantity, last_updated)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (product_id, branch_id) DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity, last_updated = NOW()
RETURNING `+lockedColumns+`, (xmax = 0)`, productID, branchID, delta).
		Scan(&rec.ID, &rec.ProductID, &rec.BranchID, &rec.Quantity, &rec.LastUpdated, &inserted)
	return rec, inserted, err
}

func (r *txRepository) Decrement(ctx context.Context, id, delta int64) (Record, error) {
	return scanLocked(r.tx.QueryRow(ctx, `UPDATE inventory SET quantity = GREATEST(quantity - $2, 0), last_updated = NOW()
WHERE id = $1 RETURNING `+lockedColumns, id, delta))
}

func (r *txRepository) Assign(ctx context.Context, productID, branchID, quantity int64) (Record, bool, error) {
	var (
		rec      Record
		inserted bool
	)
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory (product_id, branch_id, quantity, last_updated)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (product_id, branch_id) DO UPDATE SET quantity = EXCLUDED.quantity, last_updated = NOW()
RETURNING `+lockedColumns+`, (xmax = 0)`, productID, branchID, quantity).
		Scan(&rec.ID, &rec.ProductID, &rec.BranchID, &rec.Quantity, &rec.LastUpdated, &inserted)
	return rec, inserted, err
}

var movementColumns = []string{
	"product_id", "branch_id", "quantity_change", "quantity_before", "quantity_after", "movement_type",
	"reference_type", "reference_id", "performed_by", "note", "created_at",
}

func (r *txRepository) InsertMovements(ctx context.Context, movements []Movement) error {
	if len(movements) == 0 {
		return nil
	}
	_, err := r.tx.CopyFrom(ctx, pgx.Identifier{"stock_movements"}, movementColumns, pgx.CopyFromSlice(len(movements), func(i int) ([]any, error) {
		m := movements[i]
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		return []any{
			m.ProductID, m.BranchID, m.QuantityChange, m.QuantityBefore, m.QuantityAfter, string(m.Type),
			string(m.ReferenceType), nullString(m.ReferenceID), nullInt(m.PerformedBy), nullString(m.Note), createdAt,
		}, nil
	}))
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
