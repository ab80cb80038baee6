package products

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-bakery/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
)

func normalize(p Product) Product {
	p.SKU = strings.ToUpper(strings.TrimSpace(p.SKU))
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	p.UoM = strings.ToLower(strings.TrimSpace(p.UoM))
	return p
}

func (s *Service) validate(ctx context.Context, id int64, p Product) error {
	if p.SKU == "" {
		return fmt.Errorf("product sku: %w", shared.ErrRequiredField)
	}
	if p.Name == "" {
		return fmt.Errorf("product name: %w", shared.ErrRequiredField)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", httpx.ErrValidation)
	}
	if p.ReorderPoint < 0 {
		return fmt.Errorf("%w: reorder point must not be negative", httpx.ErrValidation)
	}
	taken, err := s.repo.SKUTaken(ctx, p.SKU, id)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("product sku %s: %w", p.SKU, shared.ErrDuplicate)
	}
	return nil
}
