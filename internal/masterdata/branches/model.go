package branches

import (
	"time"
)

// Branch represents a bakery outlet.
type Branch struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BranchForm is the create/update payload.
type BranchForm struct {
	Code     string `json:"code" validate:"required,max=20"`
	Name     string `json:"name" validate:"required,max=120"`
	Address  string `json:"address" validate:"max=255"`
	Phone    string `json:"phone" validate:"max=30"`
	IsActive *bool  `json:"is_active"`
}

// ToBranch converts the form into an entity.
func (f BranchForm) ToBranch() Branch {
	active := true
	if f.IsActive != nil {
		active = *f.IsActive
	}
	return Branch{Code: f.Code, Name: f.Name, Address: f.Address, Phone: f.Phone, IsActive: active}
}
