package reports

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-bakery/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-bakery/internal/rbac"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// Handler exposes report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	pdf     *PDFRenderer
	rbac    rbac.Middleware
}

// NewHandler builds Handler. pdf may be nil when PDF exports are disabled.
func NewHandler(logger *slog.Logger, service *Service, pdf *PDFRenderer, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, pdf: pdf, rbac: rbac}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAny(shared.PermReportView))
	r.Get("/sales", h.sales)
	r.Get("/sales/export", h.exportSales)
	r.Get("/inventory-valuation", h.valuation)
	r.Get("/inventory-valuation/export", h.exportValuation)
}

func (h *Handler) loadSales(w http.ResponseWriter, r *http.Request) (SalesReport, bool) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return SalesReport{}, false
	}
	branchID, err := httpx.QueryInt64(r, "branch_id")
	if err != nil {
		httpx.RespondError(w, err)
		return SalesReport{}, false
	}
	from, err := httpx.QueryDate(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return SalesReport{}, false
	}
	to, err := httpx.QueryDate(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return SalesReport{}, false
	}
	report, err := h.service.Sales(r.Context(), scope, branchID, from, to)
	if err != nil {
		h.logger.Warn("sales report failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return SalesReport{}, false
	}
	return report, true
}

func (h *Handler) sales(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadSales(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) exportSales(w http.ResponseWriter, r *http.Request) {
	format, err := ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, ok := h.loadSales(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	switch format {
	case FormatCSV:
		err = WriteSalesCSV(&buf, report)
	case FormatXLSX:
		err = WriteSalesXLSX(&buf, report)
	case FormatPDF:
		var html string
		if html, err = RenderSalesHTML(report, time.Now()); err == nil {
			var pdf []byte
			pdf, err = h.pdf.RenderHTML(r.Context(), html)
			buf.Write(pdf)
		}
	}
	if err != nil {
		h.logger.Error("sales export failed", slog.String("format", string(format)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=sales_%s_%s.%s", report.From, report.To, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) valuation(w http.ResponseWriter, r *http.Request) {
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	branchID, err := httpx.QueryInt64(r, "branch_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, total, err := h.service.Valuation(r.Context(), scope, branchID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rows, "total": total})
}

func (h *Handler) exportValuation(w http.ResponseWriter, r *http.Request) {
	format, err := ParseFormat(r.URL.Query().Get("format"))
	if err != nil || format == FormatPDF {
		httpx.RespondError(w, ErrUnknownFormat)
		return
	}
	scope, ok := httpx.RequireScope(w, r)
	if !ok {
		return
	}
	branchID, err := httpx.QueryInt64(r, "branch_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, total, err := h.service.Valuation(r.Context(), scope, branchID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var buf bytes.Buffer
	if format == FormatXLSX {
		err = WriteValuationXLSX(&buf, rows, total)
	} else {
		err = WriteValuationCSV(&buf, rows, total)
	}
	if err != nil {
		h.logger.Error("valuation export failed", slog.String("format", string(format)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=stock_valuation_%s.%s", time.Now().Format("2006-01-02"), format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
