package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// PermissionsHandler exposes the caller's effective permissions.
type PermissionsHandler struct {
	logger  *slog.Logger
	service PermissionSource
}

// NewPermissionsHandler constructs the handler.
func NewPermissionsHandler(logger *slog.Logger, service PermissionSource) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/me", h.mine)
}

func (h *PermissionsHandler) mine(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	perms, err := h.service.EffectivePermissions(r.Context(), scope)
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": scope.Role, "permissions": perms})
}
