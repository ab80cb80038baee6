package notifications

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-bakery/internal/rbac"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// Handler exposes notification endpoints.
type Handler struct {
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler.
func NewHandler(service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{service: service, rbac: rbac}
}

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAny(shared.PermNotificationView))
	r.Get("/", h.list)
	r.Post("/{id}/read", h.markRead)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	branchID, err := httpx.QueryInt64(r, "branch_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page := shared.PageFromRequest(r)
	items, total, err := h.service.List(r.Context(), scope, branchID, ListFilter{
		UnreadOnly: r.URL.Query().Get("unread") == "true",
		Limit:      page.PerPage,
		Offset:     page.Offset(),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	n, err := h.service.MarkRead(r.Context(), scope, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, n)
}
