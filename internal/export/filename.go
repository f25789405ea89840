package export

import (
	"fmt"
	"time"
)

// SpreadsheetName names a ledger export, e.g. "financial-report-2026-03-01.xlsx".
func SpreadsheetName(entity string, at time.Time) string {
	return fmt.Sprintf("%s-report-%s.xlsx", entity, at.UTC().Format("2006-01-02"))
}

// DocumentName names a PDF ledger export, e.g. "financial-report-2026-03-01.pdf".
func DocumentName(entity string, at time.Time) string {
	return fmt.Sprintf("%s-report-%s.pdf", entity, at.UTC().Format("2006-01-02"))
}

// InvoiceDocumentName names a single-invoice PDF, e.g. "Invoice-INV-202603-001.pdf".
func InvoiceDocumentName(invoiceNumber string) string {
	return fmt.Sprintf("Invoice-%s.pdf", invoiceNumber)
}
