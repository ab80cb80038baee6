package cashier

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-bakery/internal/rbac"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// Handler exposes cashier endpoints.
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

// MountRoutes registers cashier routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAll(shared.PermCashierCheckout)).Post("/checkout", h.checkout)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermCashierView))
		r.Get("/transactions", h.list)
		r.Get("/transactions/{id}", h.show)
	})
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	var input CheckoutInput
	if err := httpx.Bind(r, h.validator, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if header := r.Header.Get("Idempotency-Key"); header != "" && input.IdempotencyKey == "" {
		input.IdempotencyKey = header
	}
	result, err := h.service.Checkout(r.Context(), scope, input)
	if err != nil {
		h.logger.Warn("checkout failed", slog.Int64("branch_id", input.BranchID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	httpx.JSON(w, status, result)
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
	filter := ListFilter{}
	if filter.From, err = httpx.QueryDate(r, "from"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = httpx.QueryDate(r, "to"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	page := shared.PageFromRequest(r)
	filter.Limit, filter.Offset = page.PerPage, page.Offset()
	txns, total, err := h.service.List(r.Context(), scope, branchID, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       txns,
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
	txn, err := h.service.Get(r.Context(), scope, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}
