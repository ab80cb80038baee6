package reconciliation

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-bakery/internal/rbac"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// Handler exposes reconciliation endpoints.
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

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermReconcileView)).Get("/scan", h.scan)
	r.With(h.rbac.RequireAll(shared.PermReconcileFix)).Post("/fix", h.fix)
}

type fixRequest struct {
	Items []FixItem `json:"items" validate:"required,min=1,max=500,dive"`
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	branchID, err := httpx.QueryInt64(r, "branch_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.Scan(r.Context(), scope, branchID)
	if err != nil {
		h.logger.Error("reconciliation scan failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) fix(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	var req fixRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Fix(r.Context(), scope, req.Items)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !result.Success {
		h.logger.Warn("reconciliation fix incomplete", slog.Int("fixed", len(result.Fixed)), slog.Int("failed", len(result.Errors)))
		httpx.JSON(w, http.StatusMultiStatus, result)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
