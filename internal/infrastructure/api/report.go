package api

import (
	"fmt"
	"io"
	"time"

	"wix-store-migrator/internal/application"

	"github.com/xuri/excelize/v2"
)

var reportHeader = []any{
	"Source key", "Natural key", "Label", "Parent", "Destination store",
	"Destination id", "Status", "Error", "Attempts", "Created", "Updated",
}

// WriteLedgerWorkbook writes one worksheet per entity type
func WriteLedgerWorkbook(w io.Writer, sheets []application.LedgerSheet) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	defaultSheet := f.GetSheetName(0)
	for i, sheet := range sheets {
		name := sheet.Entity.DisplayName()
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, name); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}

		if err := f.SetSheetRow(name, "A1", &reportHeader); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		if err := f.SetRowStyle(name, 1, 1, bold); err != nil {
			return fmt.Errorf("failed to style header: %w", err)
		}

		for j, e := range sheet.Rows {
			cell, err := excelize.CoordinatesToCellName(1, j+2)
			if err != nil {
				return err
			}
			row := []any{
				e.Key.SourceKey, e.NaturalKey, e.Label, e.ParentKey, e.Key.ToStoreID,
				e.DestinationID, string(e.Status), e.ErrorMessage, e.Attempts,
				e.CreatedAt.UTC().Format(time.RFC3339), e.UpdatedAt.UTC().Format(time.RFC3339),
			}
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
