// Package notifications stores per-branch alerts such as low stock and
// delivered orders.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

const (
	KindLowStock         = "low_stock"
	KindOrderDelivered   = "order_delivered"
	KindStockDiscrepancy = "stock_discrepancy"
)

var (
	ErrNotFound     = fmt.Errorf("notifications: notification %w", httpx.ErrNotFound)
	ErrInvalidInput = fmt.Errorf("notifications: %w: branch, kind and title are required", httpx.ErrValidation)
)

// Notification is one alert addressed to a branch.
type Notification struct {
	ID        int64      `json:"id"`
	BranchID  int64      `json:"branch_id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	DedupKey  string     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// ListFilter narrows notification listings.
type ListFilter struct {
	BranchIDs  []int64
	UnreadOnly bool
	Limit      int
	Offset     int
}

// Store persists notifications.
type Store interface {
	Insert(ctx context.Context, n Notification) (bool, error)
	Get(ctx context.Context, id int64) (Notification, error)
	List(ctx context.Context, filter ListFilter) ([]Notification, int, error)
	MarkRead(ctx context.Context, id int64, at time.Time) error
}

// Service creates and reads notifications.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService builds Service.
func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Notify records a notification for a branch.
func (s *Service) Notify(ctx context.Context, branchID int64, kind, title, message string) error {
	_, err := s.NotifyOnce(ctx, branchID, kind, "", title, message)
	return err
}

// NotifyOnce records a notification unless an unread one with the same
// dedup key exists. An empty key never deduplicates. It reports whether a row
// was written.
func (s *Service) NotifyOnce(ctx context.Context, branchID int64, kind, dedupKey, title, message string) (bool, error) {
	if branchID <= 0 || strings.TrimSpace(kind) == "" || strings.TrimSpace(title) == "" {
		return false, ErrInvalidInput
	}
	return s.store.Insert(ctx, Notification{
		BranchID:  branchID,
		Kind:      kind,
		Title:     strings.TrimSpace(title),
		Message:   strings.TrimSpace(message),
		DedupKey:  dedupKey,
		CreatedAt: s.now(),
	})
}

// List returns notifications visible to the scope.
func (s *Service) List(ctx context.Context, scope shared.Scope, branchID int64, filter ListFilter) ([]Notification, int, error) {
	branches, err := scope.FilterBranch(branchID)
	if err != nil {
		return nil, 0, err
	}
	filter.BranchIDs = branches
	return s.store.List(ctx, filter)
}

// MarkRead marks a notification as read. Marking twice is a no-op.
func (s *Service) MarkRead(ctx context.Context, scope shared.Scope, id int64) (Notification, error) {
	n, err := s.store.Get(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if err := scope.RequireBranch(n.BranchID); err != nil {
		return Notification{}, err
	}
	if n.ReadAt != nil {
		return n, nil
	}
	now := s.now()
	if err := s.store.MarkRead(ctx, id, now); err != nil {
		return Notification{}, err
	}
	n.ReadAt = &now
	return n, nil
}

// Repository implements Store on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert relies on the partial unique index over unread dedup keys.
func (r *Repository) Insert(ctx context.Context, n Notification) (bool, error) {
	tag, err := r.pool.Exec(ctx, `INSERT INTO notifications (branch_id, kind, title, message, dedup_key, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
ON CONFLICT (dedup_key) WHERE read_at IS NULL DO NOTHING`, n.BranchID, n.Kind, n.Title, n.Message, n.DedupKey, n.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const columns = `id, branch_id, kind, title, COALESCE(message, ''), COALESCE(dedup_key, ''), created_at, read_at`

func scan(row pgx.Row) (Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.BranchID, &n.Kind, &n.Title, &n.Message, &n.DedupKey, &n.CreatedAt, &n.ReadAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, ErrNotFound
	}
	return n, err
}

// Get loads one notification.
func (r *Repository) Get(ctx context.Context, id int64) (Notification, error) {
	return scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM notifications WHERE id = $1`, id))
}

// List returns notifications newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Notification, int, error) {
	var where shared.Where
	if len(filter.BranchIDs) > 0 {
		where.Add("branch_id = ANY(?)", filter.BranchIDs)
	}
	if filter.UnreadOnly {
		where.Add("read_at IS NULL")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications`+where.SQL(), where.Args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `SELECT `+columns+` FROM notifications`+where.SQL()+
		` ORDER BY created_at DESC, id DESC LIMIT `+where.Next(limit)+` OFFSET `+where.Next(filter.Offset), where.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Notification{}
	for rows.Next() {
		n, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

// MarkRead sets read_at once.
func (r *Repository) MarkRead(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE notifications SET read_at = $2 WHERE id = $1 AND read_at IS NULL`, id, at)
	return err
}
