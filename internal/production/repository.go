package production

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/db"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// TxRepository holds the writes of one production operation.
type TxRepository interface {
	InsertRequest(ctx context.Context, req Request) (Request, error)
	LockRequest(ctx context.Context, id int64) (Request, error)
	UpdateStatus(ctx context.Context, id int64, status Status, by int64, notes string) error
	InsertBatch(ctx context.Context, batch Batch) (Batch, error)
}

// Repository persists production data in PostgreSQL.
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

// WithTx runs fn inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("production repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const requestColumns = `r.id, r.request_number, r.branch_id, r.product_id, r.quantity, r.needed_by, r.status, COALESCE(r.notes, ''),
r.requested_by, COALESCE(r.updated_by, 0), r.created_at, r.updated_at,
COALESCE((SELECT SUM(b.quantity) FROM production_batches b WHERE b.request_id = r.id), 0)`

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	err := row.Scan(&req.ID, &req.RequestNumber, &req.BranchID, &req.ProductID, &req.Quantity, &req.NeededBy, &req.Status,
		&req.Notes, &req.RequestedBy, &req.UpdatedBy, &req.CreatedAt, &req.UpdatedAt, &req.Produced)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, ErrRequestNotFound
	}
	return req, err
}

// GetRequest loads a request.
func (r *Repository) GetRequest(ctx context.Context, id int64) (Request, error) {
	return scanRequest(r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM production_requests r WHERE r.id = $1`, id))
}

// ListRequests returns requests matching filter ordered by due date.
func (r *Repository) ListRequests(ctx context.Context, filter RequestFilter) ([]Request, int, error) {
	var where shared.Where
	if len(filter.BranchIDs) > 0 {
		where.Add("r.branch_id = ANY(?)", filter.BranchIDs)
	}
	if filter.Status != "" {
		where.Add("r.status = ?", filter.Status)
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM production_requests r`+where.SQL(), where.Args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `SELECT `+requestColumns+` FROM production_requests r`+where.SQL()+
		` ORDER BY r.needed_by, r.id LIMIT `+where.Next(limit)+` OFFSET `+where.Next(filter.Offset), where.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, req)
	}
	return out, total, rows.Err()
}

// ListBatches returns batches matching filter, newest first.
func (r *Repository) ListBatches(ctx context.Context, filter BatchFilter) ([]Batch, error) {
	var where shared.Where
	if len(filter.BranchIDs) > 0 {
		where.Add("r.branch_id = ANY(?)", filter.BranchIDs)
	}
	if filter.RequestID != 0 {
		where.Add("b.request_id = ?", filter.RequestID)
	}
	if !filter.From.IsZero() {
		where.Add("b.produced_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		where.Add("b.produced_at < ?", filter.To)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT b.id, b.batch_code, b.request_id, b.product_id, b.quantity, b.produced_at, b.created_by, COALESCE(b.notes, '')
FROM production_batches b JOIN production_requests r ON r.id = b.request_id`+where.SQL()+
		` ORDER BY b.produced_at DESC, b.id DESC LIMIT `+where.Next(limit), where.Args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Batch, error) {
		var b Batch
		err := row.Scan(&b.ID, &b.BatchCode, &b.RequestID, &b.ProductID, &b.Quantity, &b.ProducedAt, &b.CreatedBy, &b.Notes)
		return b, err
	})
}

func (t *txRepo) InsertRequest(ctx context.Context, req Request) (Request, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO production_requests (request_number, branch_id, product_id, quantity, needed_by, status, notes,
requested_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		req.RequestNumber, req.BranchID, req.ProductID, req.Quantity, req.NeededBy, req.Status, req.Notes, req.RequestedBy,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	return req, err
}

func (t *txRepo) LockRequest(ctx context.Context, id int64) (Request, error) {
	return scanRequest(t.tx.QueryRow(ctx, `SELECT `+requestColumns+` FROM production_requests r WHERE r.id = $1 FOR UPDATE OF r`, id))
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status Status, by int64, notes string) error {
	_, err := t.tx.Exec(ctx, `UPDATE production_requests SET status = $2, updated_by = $3, notes = COALESCE(NULLIF($4, ''), notes),
updated_at = NOW() WHERE id = $1`, id, status, by, notes)
	return err
}

func (t *txRepo) InsertBatch(ctx context.Context, batch Batch) (Batch, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO production_batches (batch_code, request_id, product_id, quantity, produced_at, created_by, notes)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')) RETURNING id`,
		batch.BatchCode, batch.RequestID, batch.ProductID, batch.Quantity, batch.ProducedAt, batch.CreatedBy, batch.Notes,
	).Scan(&batch.ID)
	return batch, err
}
