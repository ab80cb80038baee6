package branches

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-bakery/internal/masterdata/shared"
	core "github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Branch, int, error)
	Get(ctx context.Context, id int64) (Branch, error)
	Create(ctx context.Context, branch Branch) (Branch, error)
	Update(ctx context.Context, id int64, branch Branch) error
	Deactivate(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const branchColumns = `id, code, name, address, phone, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Branch, int, error) {
	var where core.Where
	if filters.Search != "" {
		pattern := "%" + filters.Search + "%"
		where.Add("(name ILIKE ? OR code ILIKE ?)", pattern, pattern)
	}
	if filters.IsActive != nil {
		where.Add("is_active = ?", *filters.IsActive)
	}
	if len(filters.IDs) > 0 {
		where.Add("id = ANY(?)", filters.IDs)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM branches`+where.SQL(), where.Args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + branchColumns + ` FROM branches` + where.SQL() + " ORDER BY " + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		query += " LIMIT " + where.Next(filters.Limit) + " OFFSET " + where.Next(filters.Offset())
	}
	rows, err := r.db.Query(ctx, query, where.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	branches := []Branch{}
	for rows.Next() {
		var b Branch
		if err := rows.Scan(&b.ID, &b.Code, &b.Name, &b.Address, &b.Phone, &b.IsActive, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, 0, err
		}
		branches = append(branches, b)
	}
	return branches, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Branch, error) {
	var b Branch
	err := r.db.QueryRow(ctx, `SELECT `+branchColumns+` FROM branches WHERE id = $1`, id).
		Scan(&b.ID, &b.Code, &b.Name, &b.Address, &b.Phone, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Branch{}, shared.ErrNotFound
	}
	return b, err
}

func (r *repository) Create(ctx context.Context, branch Branch) (Branch, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `INSERT INTO branches (code, name, address, phone, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING id`, branch.Code, branch.Name, branch.Address, branch.Phone, branch.IsActive, now).Scan(&branch.ID)
	if err != nil {
		if core.IsUniqueViolation(err) {
			return Branch{}, shared.ErrDuplicate
		}
		return Branch{}, err
	}
	branch.CreatedAt = now
	branch.UpdatedAt = now
	return branch, nil
}

func (r *repository) Update(ctx context.Context, id int64, branch Branch) error {
	tag, err := r.db.Exec(ctx, `UPDATE branches SET code = $1, name = $2, address = $3, phone = $4, is_active = $5, updated_at = $6 WHERE id = $7`,
		branch.Code, branch.Name, branch.Address, branch.Phone, branch.IsActive, time.Now(), id)
	if err != nil {
		if core.IsUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE branches SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == shared.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "code " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
