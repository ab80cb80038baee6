package products

import (
	"context"
	"strconv"

	"github.com/odyssey-erp/odyssey-bakery/internal/masterdata/shared"
	core "github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// Service manages the product catalogue. SKUs are kept unique here; rows
// loaded around the API (imports, restores) can still collide and are
// reported by the reconciliation scan.
type Service struct {
	repo  Repository
	audit core.AuditPort
}

// NewService builds Service. audit may be nil.
func NewService(repo Repository, audit core.AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	product = normalize(product)
	if err := s.validate(ctx, 0, product); err != nil {
		return Product{}, err
	}
	created, err := s.repo.Create(ctx, product)
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, "product.create", created.ID, map[string]any{"sku": created.SKU, "price": created.Price.String()})
	return created, nil
}

func (s *Service) Update(ctx context.Context, id int64, product Product) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrInvalidID
	}
	product = normalize(product)
	if err := s.validate(ctx, id, product); err != nil {
		return Product{}, err
	}
	if err := s.repo.Update(ctx, id, product); err != nil {
		return Product{}, err
	}
	s.record(ctx, "product.update", id, map[string]any{"sku": product.SKU, "price": product.Price.String(), "is_active": product.IsActive})
	return s.repo.Get(ctx, id)
}

// Deactivate hides a product from sale. Rows stay for movement history.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "product.deactivate", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	scope, _ := core.ScopeFromContext(ctx)
	core.RecordBestEffort(ctx, s.audit, core.AuditLog{
		ActorID:  scope.UserID,
		Action:   action,
		Entity:   "product",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}
