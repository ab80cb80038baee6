package inventory

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-bakery/internal/rbac"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// Handler exposes inventory endpoints.
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

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermInventoryView))
		r.Get("/records", h.listRecords)
		r.Get("/records/{id}", h.showRecord)
		r.Get("/movements", h.listMovements)
		r.Get("/low-stock", h.lowStock)
	})
	r.With(h.rbac.RequireAll(shared.PermInventoryAdjust)).Post("/adjust", h.adjust)
	r.With(h.rbac.RequireAll(shared.PermInventoryBatch)).Post("/batch", h.batch)
}

type batchRequest struct {
	Items []BatchItem `json:"items" validate:"required,min=1,max=5000"`
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	branchID, err := httpx.QueryInt64(r, "branch_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page := shared.PageFromRequest(r)
	records, total, err := h.service.ListRecords(r.Context(), scope, branchID, RecordFilter{
		ProductID: productID,
		Search:    r.URL.Query().Get("search"),
		LowOnly:   r.URL.Query().Get("low") == "true",
		Limit:     page.PerPage,
		Offset:    page.Offset(),
	})
	if err != nil {
		h.logger.Error("list inventory records failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       records,
		"pagination": shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) showRecord(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.GetRecord(r.Context(), scope, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	branchID, err := httpx.QueryInt64(r, "branch_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, err := httpx.QueryDate(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := httpx.QueryDate(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.ListMovements(r.Context(), scope, branchID, MovementFilter{
		ProductID:     productID,
		ReferenceType: ReferenceType(r.URL.Query().Get("reference_type")),
		ReferenceID:   r.URL.Query().Get("reference_id"),
		From:          from,
		To:            to,
		Limit:         min(max(limit, 0), 1000),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": movements})
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	branchID, err := httpx.QueryInt64(r, "branch_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	records, err := h.service.ListLowStock(r.Context(), scope, branchID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": records, "total": len(records)})
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	var input AdjustInput
	if err := httpx.Bind(r, h.validator, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.QuickAdjust(r.Context(), scope, input)
	if err != nil {
		h.logger.Warn("inventory adjust failed", slog.Any("error", err), slog.String("operation", string(input.Operation)))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) batch(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	var req batchRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.BatchAdd(r.Context(), scope, req.Items)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, result)
}
