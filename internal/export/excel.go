// Package export serializes aggregated reports and invoices into the byte
// streams the console downloads: xlsx ledgers and PDF documents.
package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"agencydesk/backend/internal/domain"
)

const ledgerSheet = "Ledger"

var ledgerColumns = []string{"Type", "Date", "Category", "Description", "Amount"}

// Spreadsheet renders the ledger rows into a single-sheet xlsx workbook. The
// header row is always present; an empty row set produces a header-only sheet.
func Spreadsheet(rows []domain.ActivityEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(ledgerSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	amountStyle, err := f.NewStyle(&excelize.Style{
		CustomNumFmt: strPtr("#,##0.00"),
	})
	if err != nil {
		return nil, fmt.Errorf("amount style: %w", err)
	}

	header := make([]any, len(ledgerColumns))
	for i, col := range ledgerColumns {
		header[i] = col
	}
	if err := f.SetSheetRow(ledgerSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(ledgerSheet, "A1", "E1", headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}

	for i, row := range rows {
		amount, _ := row.Amount.Round(2).Float64()
		cells := []any{
			row.Type,
			row.Date.UTC().Format("2006-01-02"),
			row.Category,
			row.Description,
			amount,
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(ledgerSheet, cell, &cells); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if len(rows) > 0 {
		first := "E2"
		last := fmt.Sprintf("E%d", len(rows)+1)
		if err := f.SetCellStyle(ledgerSheet, first, last, amountStyle); err != nil {
			return nil, fmt.Errorf("style amounts: %w", err)
		}
	}

	if err := f.SetColWidth(ledgerSheet, "A", "A", 12); err != nil {
		return nil, fmt.Errorf("column width: %w", err)
	}
	if err := f.SetColWidth(ledgerSheet, "B", "C", 16); err != nil {
		return nil, fmt.Errorf("column width: %w", err)
	}
	if err := f.SetColWidth(ledgerSheet, "D", "D", 44); err != nil {
		return nil, fmt.Errorf("column width: %w", err)
	}
	if err := f.SetColWidth(ledgerSheet, "E", "E", 14); err != nil {
		return nil, fmt.Errorf("column width: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func strPtr(s string) *string { return &s }
