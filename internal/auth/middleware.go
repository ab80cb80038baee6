package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// Authenticator resolves bearer tokens into request scopes.
type Authenticator struct {
	Tokens *TokenManager
	Logger *slog.Logger
}

// Require rejects requests without a valid bearer token and stores the scope
// in the request context.
func (a Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}
		scope, err := a.Tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			if a.Logger != nil {
				a.Logger.Debug("reject token", slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithScope(r.Context(), scope)))
	})
}
