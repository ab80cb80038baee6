package branches

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/odyssey-erp/odyssey-bakery/internal/masterdata/shared"
	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]*$`)

func normalize(b Branch) Branch {
	b.Code = strings.ToUpper(strings.TrimSpace(b.Code))
	b.Name = strings.TrimSpace(b.Name)
	b.Address = strings.TrimSpace(b.Address)
	b.Phone = strings.TrimSpace(b.Phone)
	return b
}

func (s *Service) validate(b Branch) error {
	if b.Code == "" {
		return fmt.Errorf("branch code: %w", shared.ErrRequiredField)
	}
	if !codePattern.MatchString(b.Code) {
		return fmt.Errorf("%w: branch code may only hold letters, digits and dashes", httpx.ErrValidation)
	}
	if b.Name == "" {
		return fmt.Errorf("branch name: %w", shared.ErrRequiredField)
	}
	return nil
}
