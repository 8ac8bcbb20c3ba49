package interfaces

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"sams-billing/internal/creditflow/application"
)

const timeLayout = time.RFC3339

// WriteAuditCSV writes derived events and comparator discrepancies to
// credit_audit.csv, one row per event/entry.
func WriteAuditCSV(outDir string, results []application.AuditResult) error {
	path := filepath.Join(outDir, "credit_audit.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{
		"unit_id",
		"kind",
		"event_type",
		"date",
		"amount",
		"description",
	}); err != nil {
		return err
	}

	for _, result := range results {
		if result.Err != nil {
			if err := writer.Write([]string{result.UnitID, "error", "", "", "", result.Err.Error()}); err != nil {
				return err
			}
			continue
		}
		audit := result.Audit
		for _, pair := range audit.Report.Matched {
			if err := writer.Write([]string{
				audit.UnitID, "matched", string(pair.Event.Type),
				pair.Event.Date.UTC().Format(timeLayout),
				pair.Event.Amount.StringFixed(2),
				pair.Event.SourceDescription,
			}); err != nil {
				return err
			}
		}
		for _, event := range audit.Report.MissingFromPersisted {
			if err := writer.Write([]string{
				audit.UnitID, "missing_from_persisted", string(event.Type),
				event.Date.UTC().Format(timeLayout),
				event.Amount.StringFixed(2),
				event.SourceDescription,
			}); err != nil {
				return err
			}
		}
		for _, entry := range audit.Report.ExtraInPersisted {
			if err := writer.Write([]string{
				audit.UnitID, "extra_in_persisted", string(entry.Type),
				entry.Date.UTC().Format(timeLayout),
				entry.Amount.StringFixed(2),
				entry.Notes,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// BuildAuditXLSX renders the audit as a workbook with a per-unit summary
// sheet and a discrepancy sheet.
func BuildAuditXLSX(results []application.AuditResult) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	rowsSheet := "discrepancies"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(rowsSheet)

	summaryHeaders := []string{"Unit", "Opening", "Closing", "Events", "Matched", "Missing", "Extra", "Error"}
	for i, header := range summaryHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(summarySheet, cell, header)
	}
	rowHeaders := []string{"Unit", "Kind", "Type", "Date", "Amount", "Description"}
	for i, header := range rowHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(rowsSheet, cell, header)
	}

	discRow := 2
	for i, result := range results {
		row := i + 2
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), result.UnitID)
		if result.Err != nil {
			_ = f.SetCellValue(summarySheet, fmt.Sprintf("H%d", row), result.Err.Error())
			continue
		}
		audit := result.Audit
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), audit.OpeningBalance.StringFixed(2))
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("C%d", row), audit.ClosingBalance.StringFixed(2))
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("D%d", row), len(audit.Events))
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("E%d", row), len(audit.Report.Matched))
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("F%d", row), len(audit.Report.MissingFromPersisted))
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("G%d", row), len(audit.Report.ExtraInPersisted))

		for _, event := range audit.Report.MissingFromPersisted {
			_ = f.SetCellValue(rowsSheet, fmt.Sprintf("A%d", discRow), audit.UnitID)
			_ = f.SetCellValue(rowsSheet, fmt.Sprintf("B%d", discRow), "missing_from_persisted")
			_ = f.SetCellValue(rowsSheet, fmt.Sprintf("C%d", discRow), string(event.Type))
			_ = f.SetCellValue(rowsSheet, fmt.Sprintf("D%d", discRow), event.Date.UTC().Format(timeLayout))
			_ = f.SetCellValue(rowsSheet, fmt.Sprintf("E%d", discRow), event.Amount.StringFixed(2))
			_ = f.SetCellValue(rowsSheet, fmt.Sprintf("F%d", discRow), event.SourceDescription)
			discRow++
		}
		for _, entry := range audit.Report.ExtraInPersisted {
			_ = f.SetCellValue(rowsSheet, fmt.Sprintf("A%d", discRow), audit.UnitID)
			_ = f.SetCellValue(rowsSheet, fmt.Sprintf("B%d", discRow), "extra_in_persisted")
			_ = f.SetCellValue(rowsSheet, fmt.Sprintf("C%d", discRow), string(entry.Type))
			_ = f.SetCellValue(rowsSheet, fmt.Sprintf("D%d", discRow), entry.Date.UTC().Format(timeLayout))
			_ = f.SetCellValue(rowsSheet, fmt.Sprintf("E%d", discRow), entry.Amount.StringFixed(2))
			_ = f.SetCellValue(rowsSheet, fmt.Sprintf("F%d", discRow), entry.Notes)
			discRow++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
