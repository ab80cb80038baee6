package httpx

import (
	"net/http"

	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// RequireScope returns the authenticated scope or writes a 401 problem.
func RequireScope(w http.ResponseWriter, r *http.Request) (shared.Scope, bool) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		RespondError(w, ErrUnauthorized)
		return shared.Scope{}, false
	}
	return scope, true
}
