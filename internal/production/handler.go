package production

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-bakery/internal/rbac"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// Handler exposes production endpoints.
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

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermProductionView))
		r.Get("/requests", h.listRequests)
		r.Get("/requests/{id}", h.showRequest)
		r.Get("/batches", h.listBatches)
	})
	r.With(h.rbac.RequireAll(shared.PermProductionRequest)).Post("/requests", h.createRequest)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermProductionManage))
		r.Post("/requests/{id}/status", h.updateStatus)
		r.Post("/batches", h.recordBatch)
	})
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
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
	reqs, total, err := h.service.ListRequests(r.Context(), scope, branchID, RequestFilter{
		Status: Status(r.URL.Query().Get("status")),
		Limit:  page.PerPage,
		Offset: page.Offset(),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       reqs,
		"pagination": shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) showRequest(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.GetRequest(r.Context(), scope, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	var input RequestInput
	if err := httpx.Bind(r, h.validator, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.CreateRequest(r.Context(), scope, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, req)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	id, err := httpx.URLInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input StatusInput
	if err := httpx.Bind(r, h.validator, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, err := h.service.UpdateStatus(r.Context(), scope, id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) recordBatch(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	var input BatchInput
	if err := httpx.Bind(r, h.validator, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	batch, err := h.service.RecordBatch(r.Context(), scope, input)
	if err != nil {
		h.logger.Warn("record batch failed", slog.Int64("request_id", input.RequestID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, batch)
}

func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	branchID, err := httpx.QueryInt64(r, "branch_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	requestID, err := httpx.QueryInt64(r, "request_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := BatchFilter{RequestID: requestID}
	if filter.From, err = httpx.QueryDate(r, "from"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = httpx.QueryDate(r, "to"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	batches, err := h.service.ListBatches(r.Context(), scope, branchID, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": batches})
}
