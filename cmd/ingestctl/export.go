package main

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/normalizer"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/parser"
)

const sheetName = "Transactions"

// exportRow is one statement row as written to CSV or XLSX.
type exportRow struct {
	Index       int    `csv:"index"`
	Date        string `csv:"date"`
	Description string `csv:"description"`
	Merchant    string `csv:"merchant"`
	Amount      string `csv:"amount"`
	Direction   string `csv:"direction"`
	Category    string `csv:"category"`
}

var exportHeader = []any{"index", "date", "description", "merchant", "amount", "direction", "category"}

func toExportRows(rows []parser.StatementRow, merchants *normalizer.MerchantNormalizer) []exportRow {
	out := make([]exportRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, exportRow{
			Index:       r.Index,
			Date:        r.Date.Format(time.DateOnly),
			Description: r.Description,
			Merchant:    merchants.Normalize(r.Description),
			Amount:      r.Amount.StringFixed(2),
			Direction:   string(r.Direction),
			Category:    string(r.Category),
		})
	}
	return out
}

func writeCSV(w io.Writer, rows []exportRow) error {
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

func writeXLSX(w io.Writer, rows []exportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &exportHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{r.Index, r.Date, r.Description, r.Merchant, r.Amount, r.Direction, r.Category}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r.Index, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write XLSX: %w", err)
	}
	return nil
}
