package auth

import (
	"time"

	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// User represents an authenticated profile.
type User struct {
	ID           int64       `json:"id"`
	Email        string      `json:"email"`
	FullName     string      `json:"full_name"`
	PasswordHash string      `json:"-"`
	Role         shared.Role `json:"role"`
	BranchIDs    []int64     `json:"branch_ids"`
	IsActive     bool        `json:"is_active"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Scope converts the profile into the scope carried by requests.
func (u User) Scope() shared.Scope {
	return shared.Scope{UserID: u.ID, Role: u.Role, BranchIDs: u.BranchIDs}
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginResponse carries the issued access token.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        User      `json:"user"`
}
