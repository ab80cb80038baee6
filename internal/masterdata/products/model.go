package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a sellable bakery item.
type Product struct {
	ID           int64           `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	UoM          string          `json:"uom"`
	Price        decimal.Decimal `json:"price"`
	ReorderPoint int64           `json:"reorder_point"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ProductForm is the create/update payload.
type ProductForm struct {
	SKU          string          `json:"sku" validate:"required,max=40"`
	Name         string          `json:"name" validate:"required,max=160"`
	Category     string          `json:"category" validate:"max=60"`
	UoM          string          `json:"uom" validate:"max=20"`
	Price        decimal.Decimal `json:"price"`
	ReorderPoint int64           `json:"reorder_point" validate:"gte=0"`
	IsActive     *bool           `json:"is_active"`
}

// ToProduct converts the form into an entity.
func (f ProductForm) ToProduct() Product {
	active := true
	if f.IsActive != nil {
		active = *f.IsActive
	}
	return Product{
		SKU:          f.SKU,
		Name:         f.Name,
		Category:     f.Category,
		UoM:          f.UoM,
		Price:        f.Price,
		ReorderPoint: f.ReorderPoint,
		IsActive:     active,
	}
}
