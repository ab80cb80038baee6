package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat validates a requested export format.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatCSV, FormatXLSX, FormatPDF:
		return f, nil
	default:
		return "", ErrUnknownFormat
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

var salesHeader = []string{"Date", "Branch", "Transactions", "Items Sold", "Subtotal", "Discount", "Tax", "Total"}

// WriteSalesCSV serialises the sales report as CSV.
func WriteSalesCSV(w io.Writer, report SalesReport) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(salesHeader); err != nil {
		return err
	}
	for _, row := range report.Rows {
		if err := writer.Write([]string{
			row.Date,
			row.BranchName,
			fmt.Sprint(row.Transactions),
			fmt.Sprint(row.ItemsSold),
			row.Subtotal.StringFixed(2),
			row.Discount.StringFixed(2),
			row.Tax.StringFixed(2),
			row.Total.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"Total", "", fmt.Sprint(report.Count), "", "", "", "", report.Total.StringFixed(2)}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

const salesSheet = "Sales"

// WriteSalesXLSX writes the sales report as a spreadsheet with numeric cells.
func WriteSalesXLSX(w io.Writer, report SalesReport) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", salesSheet); err != nil {
		return err
	}
	for i, title := range salesHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(salesSheet, cell, title); err != nil {
			return err
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(salesSheet, 1, 1, bold); err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return err
	}
	for i, row := range report.Rows {
		r := i + 2
		values := []any{
			row.Date, row.BranchName, row.Transactions, row.ItemsSold,
			row.Subtotal.InexactFloat64(), row.Discount.InexactFloat64(), row.Tax.InexactFloat64(), row.Total.InexactFloat64(),
		}
		cell, _ := excelize.CoordinatesToCellName(1, r)
		if err := f.SetSheetRow(salesSheet, cell, &values); err != nil {
			return err
		}
	}
	last := len(report.Rows) + 2
	if err := f.SetSheetRow(salesSheet, fmt.Sprintf("A%d", last), &[]any{"Total", "", report.Count, "", "", "", "", report.Total.InexactFloat64()}); err != nil {
		return err
	}
	if err := f.SetCellStyle(salesSheet, "E2", fmt.Sprintf("H%d", last), money); err != nil {
		return err
	}
	if err := f.SetRowStyle(salesSheet, last, last, bold); err != nil {
		return err
	}
	return f.Write(w)
}

var valuationHeader = []string{"Branch", "SKU", "Product", "Quantity", "Price", "Value"}

// WriteValuationCSV serialises stock valuation rows as CSV.
func WriteValuationCSV(w io.Writer, rows []ValuationRow, total decimal.Decimal) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(valuationHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.BranchName,
			row.SKU,
			row.ProductName,
			fmt.Sprint(row.Quantity),
			row.Price.StringFixed(2),
			row.Value.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"Total", "", "", "", "", total.StringFixed(2)}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

const valuationSheet = "Stock"

// WriteValuationXLSX writes stock valuation rows as a spreadsheet.
func WriteValuationXLSX(w io.Writer, rows []ValuationRow, total decimal.Decimal) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", valuationSheet); err != nil {
		return err
	}
	header := make([]any, len(valuationHeader))
	for i, title := range valuationHeader {
		header[i] = title
	}
	if err := f.SetSheetRow(valuationSheet, "A1", &header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(valuationSheet, 1, 1, bold); err != nil {
		return err
	}
	for i, row := range rows {
		values := []any{row.BranchName, row.SKU, row.ProductName, row.Quantity, row.Price.InexactFloat64(), row.Value.InexactFloat64()}
		if err := f.SetSheetRow(valuationSheet, fmt.Sprintf("A%d", i+2), &values); err != nil {
			return err
		}
	}
	last := len(rows) + 2
	if err := f.SetSheetRow(valuationSheet, fmt.Sprintf("A%d", last), &[]any{"Total", "", "", "", "", total.InexactFloat64()}); err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(valuationSheet, "E2", fmt.Sprintf("F%d", last), money); err != nil {
		return err
	}
	if err := f.SetRowStyle(valuationSheet, last, last, bold); err != nil {
		return err
	}
	return f.Write(w)
}

var printer = message.NewPrinter(language.Indonesian)

// formatRupiah renders an amount with Indonesian digit grouping.
func formatRupiah(d decimal.Decimal) string {
	whole := d.Truncate(0)
	out := "Rp " + printer.Sprintf("%d", whole.IntPart())
	if frac := d.Sub(whole).Abs(); !frac.IsZero() {
		out += "," + strings.TrimPrefix(frac.StringFixed(2), "0.")
	}
	return out
}

var salesTemplate = template.Must(template.New("sales").Funcs(template.FuncMap{"rupiah": formatRupiah}).Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Sales {{.Report.From}} - {{.Report.To}}</title>
<style>body{font-family:sans-serif;font-size:11px}table{border-collapse:collapse;width:100%}td,th{border:1px solid #999;padding:4px}td.n{text-align:right}</style>
</head><body>
<h2>Sales summary {{.Report.From}} - {{.Report.To}}</h2>
<p>Generated {{.Generated}}</p>
<table><thead><tr><th>Date</th><th>Branch</th><th>Transactions</th><th>Items</th><th>Discount</th><th>Tax</th><th>Total</th></tr></thead>
<tbody>{{range .Report.Rows}}<tr><td>{{.Date}}</td><td>{{.BranchName}}</td><td class="n">{{.Transactions}}</td><td class="n">{{.ItemsSold}}</td><td class="n">{{rupiah .Discount}}</td><td class="n">{{rupiah .Tax}}</td><td class="n">{{rupiah .Total}}</td></tr>{{end}}</tbody>
<tfoot><tr><th colspan="2">Total</th><th class="n">{{.Report.Count}}</th><th colspan="3"></th><th class="n">{{rupiah .Report.Total}}</th></tr></tfoot>
</table></body></html>`))

// RenderSalesHTML produces the HTML document sent to the PDF renderer.
func RenderSalesHTML(report SalesReport, generated time.Time) (string, error) {
	var buf bytes.Buffer
	err := salesTemplate.Execute(&buf, struct {
		Report    SalesReport
		Generated string
	}{report, generated.Format("2006-01-02 15:04 MST")})
	return buf.String(), err
}

// PDFRenderer converts HTML into PDF through a Gotenberg instance.
type PDFRenderer struct {
	baseURL    string
	httpClient *http.Client
}

// NewPDFRenderer constructs a renderer. An empty baseURL disables PDF exports.
func NewPDFRenderer(baseURL string) *PDFRenderer {
	return &PDFRenderer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Ping checks if the Gotenberg service is available.
func (p *PDFRenderer) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gotenberg returned status %d", resp.StatusCode)
	}
	return nil
}

// RenderHTML converts raw HTML into a PDF document.
func (p *PDFRenderer) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	if p == nil || p.baseURL == "" {
		return nil, fmt.Errorf("reports: pdf renderer not configured")
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(part, html); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/forms/chromium/convert/html", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("reports: render failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
