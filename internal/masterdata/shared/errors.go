package shared

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
)

var (
	ErrNotFound      = fmt.Errorf("masterdata: %w", httpx.ErrNotFound)
	ErrDuplicate     = fmt.Errorf("masterdata: %w", httpx.ErrDuplicate)
	ErrInvalidID     = fmt.Errorf("masterdata: invalid ID: %w", httpx.ErrValidation)
	ErrRequiredField = fmt.Errorf("masterdata: field is required: %w", httpx.ErrValidation)
)
