package products

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
	List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, id int64, product Product) error
	Deactivate(ctx context.Context, id int64) error
	// SKUTaken reports whether another product already uses sku,
	// compared case-insensitively.
	SKUTaken(ctx context.Context, sku string, excludeID int64) (bool, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, sku, name, category, uom, price, reorder_point, is_active, created_at, updated_at`

func scanProduct(row pgx.Row, p *Product) error {
	return row.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.UoM, &p.Price, &p.ReorderPoint, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	var where core.Where
	if filters.Category != "" {
		where.Add("category = ?", filters.Category)
	}
	if filters.Search != "" {
		pattern := "%" + filters.Search + "%"
		where.Add("(name ILIKE ? OR sku ILIKE ?)", pattern, pattern)
	}
	if filters.IsActive != nil {
		where.Add("is_active = ?", *filters.IsActive)
	}
	if len(filters.IDs) > 0 {
		where.Add("id = ANY(?)", filters.IDs)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where.SQL(), where.Args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + productColumns + ` FROM products` + where.SQL() + " ORDER BY " + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		query += " LIMIT " + where.Next(filters.Limit) + " OFFSET " + where.Next(filters.Offset())
	}
	rows, err := r.db.Query(ctx, query, where.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		var p Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id), &p)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.ErrNotFound
	}
	return p, err
}

func (r *repository) Create(ctx context.Context, product Product) (Product, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `INSERT INTO products (sku, name, category, uom, price, reorder_point, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8) RETURNING id`,
		product.SKU, product.Name, product.Category, product.UoM, product.Price, product.ReorderPoint, product.IsActive, now).Scan(&product.ID)
	if err != nil {
		if core.IsUniqueViolation(err) {
			return Product{}, shared.ErrDuplicate
		}
		return Product{}, err
	}
	product.CreatedAt = now
	product.UpdatedAt = now
	return product, nil
}

func (r *repository) Update(ctx context.Context, id int64, product Product) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET sku = $1, name = $2, category = $3, uom = $4, price = $5, reorder_point = $6, is_active = $7, updated_at = $8 WHERE id = $9`,
		product.SKU, product.Name, product.Category, product.UoM, product.Price, product.ReorderPoint, product.IsActive, time.Now(), id)
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

func (r *repository) SKUTaken(ctx context.Context, sku string, excludeID int64) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE lower(sku) = lower($1) AND id <> $2)`, sku, excludeID).Scan(&taken)
	return taken, err
}

func (r *repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
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
	case "sku":
		return "sku " + dir
	case "price":
		return "price " + dir
	case "category":
		return "category " + dir + ", name " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
