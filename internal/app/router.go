package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-bakery/internal/auth"
	"github.com/odyssey-erp/odyssey-bakery/internal/cashier"
	"github.com/odyssey-erp/odyssey-bakery/internal/inventory"
	"github.com/odyssey-erp/odyssey-bakery/internal/masterdata/branches"
	"github.com/odyssey-erp/odyssey-bakery/internal/masterdata/products"
	"github.com/odyssey-erp/odyssey-bakery/internal/notifications"
	"github.com/odyssey-erp/odyssey-bakery/internal/observability"
	"github.com/odyssey-erp/odyssey-bakery/internal/orders"
	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-bakery/internal/production"
	"github.com/odyssey-erp/odyssey-bakery/internal/rbac"
	"github.com/odyssey-erp/odyssey-bakery/internal/reconciliation"
	"github.com/odyssey-erp/odyssey-bakery/internal/reports"
	"github.com/odyssey-erp/odyssey-bakery/internal/returns"
	"github.com/odyssey-erp/odyssey-bakery/jobs"
)

// RouterParams groups dependencies for building the HTTP router. Nil module
// handlers are not mounted.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	Authenticator auth.Authenticator
	Metrics       *observability.Metrics

	AuthHandler           *auth.Handler
	PermissionsHandler    *rbac.PermissionsHandler
	ProductsHandler       *products.Handler
	BranchesHandler       *branches.Handler
	InventoryHandler      *inventory.Handler
	ReconciliationHandler *reconciliation.Handler
	OrdersHandler         *orders.Handler
	CashierHandler        *cashier.Handler
	ReturnsHandler        *returns.Handler
	ProductionHandler     *production.Handler
	NotificationsHandler  *notifications.Handler
	ReportsHandler        *reports.Handler
	JobHandler            *jobs.Handler
}

type mounter interface {
	MountRoutes(r chi.Router)
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(params.Authenticator.Require)
		mount(r, "/permissions", params.PermissionsHandler)
		mount(r, "/masterdata/products", params.ProductsHandler)
		mount(r, "/masterdata/branches", params.BranchesHandler)
		mount(r, "/inventory", params.InventoryHandler)
		mount(r, "/reconciliation", params.ReconciliationHandler)
		mount(r, "/orders", params.OrdersHandler)
		mount(r, "/cashier", params.CashierHandler)
		mount(r, "/returns", params.ReturnsHandler)
		mount(r, "/production", params.ProductionHandler)
		mount(r, "/notifications", params.NotificationsHandler)
		mount(r, "/reports", params.ReportsHandler)
		mount(r, "/jobs", params.JobHandler)
	})
	return r
}

// mount skips typed-nil handlers so optional modules can be left unset.
func mount[H interface {
	*T
	mounter
}, T any](r chi.Router, pattern string, h H) {
	if h == nil {
		return
	}
	r.Route(pattern, h.MountRoutes)
}
