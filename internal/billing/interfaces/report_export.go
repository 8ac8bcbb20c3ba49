package interfaces

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"sams-billing/internal/billing/application"
	billing "sams-billing/internal/billing/domain"
)

const timeLayout = time.RFC3339

// WriteRunSummaryCSV writes the per-unit run summary to run_summary.csv.
func WriteRunSummaryCSV(outDir string, summary *application.RunSummary) error {
	path := filepath.Join(outDir, "run_summary.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{
		"run_id",
		"cycle",
		"unit_id",
		"outcome",
		"strategy",
		"total_consumption",
		"readings_total",
		"total_charge",
		"paid_amount",
		"delta",
		"breakdown_before",
		"breakdown_after",
		"reason",
	}); err != nil {
		return err
	}

	for _, report := range summary.Reports {
		reason := report.Reason
		if report.Err != nil {
			reason = report.Err.Error()
		}
		if err := writer.Write([]string{
			summary.RunID.String(),
			summary.Cycle.ID(),
			report.UnitID,
			string(report.Outcome),
			report.Strategy,
			formatInt(report.TotalConsumption),
			formatInt(report.ReadingsTotal),
			report.TotalCharge.StringFixed(2),
			report.Paid.StringFixed(2),
			report.Delta.StringFixed(2),
			formatBreakdown(report.Before),
			formatBreakdown(report.After),
			reason,
		}); err != nil {
			return err
		}
	}
	return nil
}

// BuildDiscrepancyXLSX renders the run as a workbook: a summary sheet plus
// one row per unit.
func BuildDiscrepancyXLSX(summary *application.RunSummary) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	unitsSheet := "units"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(unitsSheet)

	mode := "live"
	if summary.DryRun {
		mode = "dry-run"
	}
	_ = f.SetCellValue(summarySheet, "A1", "Utility Billing Reconciliation")
	_ = f.SetCellValue(summarySheet, "A3", "Run")
	_ = f.SetCellValue(summarySheet, "B3", summary.RunID.String())
	_ = f.SetCellValue(summarySheet, "A4", "Cycle")
	_ = f.SetCellValue(summarySheet, "B4", summary.Cycle.ID())
	_ = f.SetCellValue(summarySheet, "A5", "Mode")
	_ = f.SetCellValue(summarySheet, "B5", mode)
	_ = f.SetCellValue(summarySheet, "A6", "Started")
	_ = f.SetCellValue(summarySheet, "B6", summary.StartedAt.UTC().Format(timeLayout))
	_ = f.SetCellValue(summarySheet, "A7", "Verified")
	_ = f.SetCellValue(summarySheet, "B7", summary.Count(application.UnitVerified))
	_ = f.SetCellValue(summarySheet, "A8", "Corrected")
	_ = f.SetCellValue(summarySheet, "B8", summary.Count(application.UnitCorrected))
	_ = f.SetCellValue(summarySheet, "A9", "Unfixable")
	_ = f.SetCellValue(summarySheet, "B9", summary.Count(application.UnitUnfixable))
	_ = f.SetCellValue(summarySheet, "A10", "Paid discrepancies")
	_ = f.SetCellValue(summarySheet, "B10", summary.Count(application.UnitPaidDiscrepancy))
	_ = f.SetCellValue(summarySheet, "A11", "Skipped")
	_ = f.SetCellValue(summarySheet, "B11", summary.Count(application.UnitSkipped))
	_ = f.SetCellValue(summarySheet, "A12", "Failed")
	_ = f.SetCellValue(summarySheet, "B12", summary.Count(application.UnitFailed))

	headers := []string{"Unit", "Outcome", "Strategy", "Billed units", "Readings units", "Total charge", "Paid", "Delta", "Reason"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(unitsSheet, cell, header)
	}
	for i, report := range summary.Reports {
		row := i + 2
		reason := report.Reason
		if report.Err != nil {
			reason = report.Err.Error()
		}
		_ = f.SetCellValue(unitsSheet, fmt.Sprintf("A%d", row), report.UnitID)
		_ = f.SetCellValue(unitsSheet, fmt.Sprintf("B%d", row), string(report.Outcome))
		_ = f.SetCellValue(unitsSheet, fmt.Sprintf("C%d", row), report.Strategy)
		_ = f.SetCellValue(unitsSheet, fmt.Sprintf("D%d", row), report.TotalConsumption)
		_ = f.SetCellValue(unitsSheet, fmt.Sprintf("E%d", row), report.ReadingsTotal)
		_ = f.SetCellValue(unitsSheet, fmt.Sprintf("F%d", row), report.TotalCharge.StringFixed(2))
		_ = f.SetCellValue(unitsSheet, fmt.Sprintf("G%d", row), report.Paid.StringFixed(2))
		_ = f.SetCellValue(unitsSheet, fmt.Sprintf("H%d", row), report.Delta.StringFixed(2))
		_ = f.SetCellValue(unitsSheet, fmt.Sprintf("I%d", row), reason)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReviewPacketPDF renders the settled-bill discrepancies for manual
// review. These bills are never mutated; the packet carries the figures a
// reviewer needs to decide on a credit.
func BuildReviewPacketPDF(summary *application.RunSummary, currency string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Paid-Bill Discrepancy Review")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Cycle: %s", summary.Cycle.ID()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Run: %s", summary.RunID.String()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", summary.FinishedAt.UTC().Format(timeLayout)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(30, 6, "Unit", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Billed units", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Metered units", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Billed charge", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, fmt.Sprintf("Delta (%s)", currency), "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, report := range summary.Reports {
		if report.Outcome != application.UnitPaidDiscrepancy {
			continue
		}
		pdf.CellFormat(30, 6, report.UnitID, "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, formatInt(report.TotalConsumption), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, formatInt(report.ReadingsTotal), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, report.TotalCharge.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, report.Delta.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatBreakdown(entries []billing.BreakdownEntry) string {
	out := ""
	for i, entry := range entries {
		if i > 0 {
			out += "|"
		}
		out += fmt.Sprintf("%s:%d:%s", entry.Period, entry.Consumption, entry.Charge.StringFixed(2))
	}
	return out
}

func formatInt(value int64) string {
	return strconv.FormatInt(value, 10)
}
