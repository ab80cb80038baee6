package orders

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-bakery/internal/rbac"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// Handler exposes order endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermOrderView))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
	})
	r.With(h.rbac.RequireAll(shared.PermOrderCreate)).Post("/", h.create)
	r.With(h.rbac.RequireAll(shared.PermOrderTrack)).Post("/{id}/advance", h.advance)
	r.With(h.rbac.RequireAll(shared.PermOrderCancel)).Post("/{id}/cancel", h.cancel)
	r.With(h.rbac.RequireAll(shared.PermOrderBulkSet)).Post("/bulk-status", h.bulkStatus)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

type bulkStatusRequest struct {
	IDs    []int64 `json:"ids" validate:"required,min=1,max=500,dive,gt=0"`
	Status Status  `json:"status" validate:"required,oneof=pending confirmed completed cancelled"`
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
	orders, total, err := h.service.List(r.Context(), scope, branchID, ListFilter{
		Status: Status(r.URL.Query().Get("status")),
		Stage:  Stage(r.URL.Query().Get("stage")),
		Limit:  page.PerPage,
		Offset: page.Offset(),
	})
	if err != nil {
		h.logger.Error("list orders failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       orders,
		"pagination": shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Get(r.Context(), scope, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	var input CreateInput
	if err := httpx.Bind(r, h.validator, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Create(r.Context(), scope, input)
	if err != nil {
		h.logger.Warn("create order failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input AdvanceInput
	if err := httpx.Bind(r, h.validator, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Advance(r.Context(), scope, id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req cancelRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Cancel(r.Context(), scope, id, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) bulkStatus(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	var req bulkStatusRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	affected, err := h.service.BulkUpdateStatus(r.Context(), scope, req.IDs, req.Status)
	if err != nil {
		h.logger.Error("bulk order status failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"affected": affected})
}
