package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"agencydesk/backend/internal/domain"
)

// CurrencySymbol prefixes every monetary figure in rendered documents.
const CurrencySymbol = "$"

var pdfColumnWidths = []float64{22, 26, 34, 72, 30}

// FormatMoney renders a decimal as a display amount with the currency symbol
// and thousands separators, e.g. "$12,500.00" or "-$250.50".
func FormatMoney(d decimal.Decimal) string {
	fixed := d.Round(2).StringFixed(2)
	negative := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, fracPart, _ := strings.Cut(fixed, ".")
	var grouped strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(digit)
	}

	sign := ""
	if negative {
		sign = "-"
	}
	return fmt.Sprintf("%s%s%s.%s", sign, CurrencySymbol, grouped.String(), fracPart)
}

// Document renders the report plus its ledger rows as a paginated PDF: title,
// generation metadata, a three-line income/expense/net summary, then the
// ledger table. An empty row set yields a document with an empty table body.
func Document(title string, report domain.Report, rows []domain.ActivityEntry, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 18)

	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() == 1 {
			return
		}
		writeLedgerHeader(pdf)
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(110, 110, 110)
	meta := fmt.Sprintf("Generated %s  |  Period %s to %s",
		generatedAt.UTC().Format("2006-01-02 15:04 MST"),
		report.Window.From.UTC().Format("2006-01-02"),
		report.Window.To.UTC().Format("2006-01-02"))
	pdf.CellFormat(0, 6, meta, "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	summary := []struct {
		label string
		value decimal.Decimal
	}{
		{"Total income", report.TotalRevenue},
		{"Total expenses", report.TotalExpenses},
		{"Net profit", report.NetProfit},
	}
	for _, line := range summary {
		pdf.CellFormat(50, 7, line.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(50, 7, FormatMoney(line.value), "", 1, "R", false, 0, "")
	}
	pdf.Ln(6)

	writeLedgerHeader(pdf)
	pdf.SetFont("Helvetica", "", 9)
	fill := false
	for _, row := range rows {
		pdf.SetFillColor(246, 246, 246)
		pdf.CellFormat(pdfColumnWidths[0], 7, row.Type, "", 0, "L", fill, 0, "")
		pdf.CellFormat(pdfColumnWidths[1], 7, row.Date.UTC().Format("2006-01-02"), "", 0, "L", fill, 0, "")
		pdf.CellFormat(pdfColumnWidths[2], 7, clip(row.Category, 22), "", 0, "L", fill, 0, "")
		pdf.CellFormat(pdfColumnWidths[3], 7, clip(row.Description, 48), "", 0, "L", fill, 0, "")
		pdf.CellFormat(pdfColumnWidths[4], 7, FormatMoney(row.Amount), "", 1, "R", fill, 0, "")
		fill = !fill
	}

	return pdfBytes(pdf)
}

// InvoiceDocument renders one invoice as a standalone PDF, the artifact of
// the invoice "send" action.
func InvoiceDocument(invoice domain.Invoice, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 18)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, fmt.Sprintf("Invoice %s", invoice.Number), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Issued %s", invoice.CreatedAt.UTC().Format("2006-01-02")), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Due %s", invoice.DueDate.UTC().Format("2006-01-02")), "", 1, "L", false, 0, "")
	if invoice.PaymentTerms != "" {
		pdf.CellFormat(0, 6, fmt.Sprintf("Terms: %s", invoice.PaymentTerms), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 6, "Bill to", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, invoice.ClientName, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, invoice.ClientEmail, "", 1, "L", false, 0, "")
	if invoice.ClientAddress != "" {
		pdf.CellFormat(0, 6, invoice.ClientAddress, "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(96, 8, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(18, 8, "Qty", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 8, "Rate", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 8, "Amount", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	for _, item := range invoice.Items {
		pdf.CellFormat(96, 7, clip(item.Description, 60), "1", 0, "L", false, 0, "")
		pdf.CellFormat(18, 7, fmt.Sprintf("%d", item.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, FormatMoney(item.UnitRate), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, FormatMoney(item.Amount), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(149, 6, "Subtotal", "", 0, "R", false, 0, "")
	pdf.CellFormat(35, 6, FormatMoney(invoice.Subtotal), "", 1, "R", false, 0, "")
	pdf.CellFormat(149, 6, "Tax", "", 0, "R", false, 0, "")
	pdf.CellFormat(35, 6, FormatMoney(invoice.TaxAmount), "", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(149, 8, "Total due", "", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, FormatMoney(invoice.TotalAmount), "", 1, "R", false, 0, "")

	if invoice.Notes != "" {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, invoice.Notes, "", "L", false)
	}

	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(110, 110, 110)
	pdf.SetY(-16)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated %s", generatedAt.UTC().Format("2006-01-02 15:04 MST")), "", 1, "L", false, 0, "")

	return pdfBytes(pdf)
}

func writeLedgerHeader(pdf *gofpdf.Fpdf) {
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, col := range ledgerColumns {
		align := "L"
		if col == "Amount" {
			align = "R"
		}
		last := 0
		if i == len(ledgerColumns)-1 {
			last = 1
		}
		pdf.CellFormat(pdfColumnWidths[i], 8, col, "1", last, align, true, 0, "")
	}
}

func pdfBytes(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// clip shortens a cell value to max characters. It cuts on rune boundaries
// so multi-byte input never yields invalid UTF-8.
func clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "..."
}
