package exporter

import (
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"divrec/internal/dataprocessing"
	"divrec/internal/pattern"
	"divrec/internal/recovery"
	"divrec/pkg/contracts"
)

// Workbook sheet names.
const (
	SheetSummary      = "Summary"
	SheetRecoveries   = "Recoveries"
	SheetCorrelations = "Correlations"
	SheetQuality      = "Data Quality"
)

// WorkbookData collects everything a full analysis run produces for the
// combined XLSX report. Any section may be empty; its sheet is still
// written with headers so the workbook shape stays stable.
type WorkbookData struct {
	GeneratedAt  time.Time
	Results      []recovery.RecoveryResult
	Statistics   map[string]*recovery.RecoveryStatistics
	Correlations []pattern.CorrelationCell
	Quality      map[string]dataprocessing.QualityReport
}

// WorkbookExporter writes the multi-sheet analysis workbook.
type WorkbookExporter struct{}

// NewWorkbookExporter creates a new workbook exporter
func NewWorkbookExporter() *WorkbookExporter {
	return &WorkbookExporter{}
}

// ExportWorkbook writes data to an XLSX workbook at outputPath with one
// sheet per report section and the summary active.
func (e *WorkbookExporter) ExportWorkbook(data WorkbookData, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeSheet(f, SheetSummary, summaryRows(data)); err != nil {
		return err
	}
	if err := writeSheet(f, SheetRecoveries, recoveryRows(data.Results)); err != nil {
		return err
	}
	if err := writeSheet(f, SheetCorrelations, correlationRows(data.Correlations)); err != nil {
		return err
	}
	if err := writeSheet(f, SheetQuality, qualityRows(data.Quality)); err != nil {
		return err
	}

	// Drop the default sheet and land the reader on the summary.
	f.DeleteSheet("Sheet1")
	if idx, err := f.GetSheetIndex(SheetSummary); err == nil {
		f.SetActiveSheet(idx)
	}

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// writeSheet creates a sheet and fills it row by row.
func writeSheet(f *excelize.File, sheet string, rows [][]interface{}) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	for rowIdx, row := range rows {
		for colIdx, value := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
			if err != nil {
				return fmt.Errorf("failed to resolve cell (%d,%d): %w", rowIdx+1, colIdx+1, err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("failed to set %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}

// summaryRows builds the per-instrument statistics sheet with a title block.
func summaryRows(data WorkbookData) [][]interface{} {
	generatedAt := data.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}

	rows := [][]interface{}{
		{contracts.GetVersionString()},
		{"Generated", generatedAt.Format(time.RFC3339)},
		{},
		{
			"Instrument", "EventCount", "RecoveredCount", "TruncatedCount", "WinRate",
			"MeanOffset", "MedianOffset", "MeanObservedDropPct", "MeanMaxAdverseExcursionPct",
			"FastRecoveries", "NormalRecoveries", "SlowRecoveries",
		},
	}

	instruments := make([]string, 0, len(data.Statistics))
	for instrument := range data.Statistics {
		instruments = append(instruments, instrument)
	}
	sort.Strings(instruments)

	for _, instrument := range instruments {
		s := data.Statistics[instrument]
		if s == nil {
			continue
		}
		rows = append(rows, []interface{}{
			instrument, s.EventCount, s.RecoveredCount, s.TruncatedCount, s.WinRate,
			cellValue(s.MeanOffset), cellValue(s.MedianOffset),
			s.MeanObservedDropPct, s.MeanMaxAdverseExcursionPct,
			s.FastRecoveries, s.NormalRecoveries, s.SlowRecoveries,
		})
	}

	return rows
}

// recoveryRows builds the per-event verdict sheet.
func recoveryRows(results []recovery.RecoveryResult) [][]interface{} {
	sorted := make([]recovery.RecoveryResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Instrument != sorted[j].Instrument {
			return sorted[i].Instrument < sorted[j].Instrument
		}
		return sorted[i].ExDate.Before(sorted[j].ExDate)
	})

	rows := [][]interface{}{{
		"Instrument", "ExDate", "Amount",
		"ReferenceDate", "ReferencePrice", "TargetPrice",
		"ExDateClose", "ObservedDropPct", "TheoreticalDropPct", "GapRatio",
		"Recovered", "RecoveryOffset", "RecoveryDate", "RecoveryClose",
		"MaxAdverseExcursionPct", "BarsExamined", "Exhaustion",
	}}

	for _, r := range sorted {
		rows = append(rows, []interface{}{
			r.Instrument, formatDate(r.ExDate), r.Amount,
			formatDate(r.Target.ReferenceDate), r.Target.ReferencePrice, r.Target.TargetPrice,
			r.ExDateClose, r.ObservedDropPct, r.TheoreticalDropPct, cellValue(r.GapRatio),
			r.Recovered, cellValue(r.Offset), formatDatePtr(r.RecoveryDate), cellValue(r.RecoveryClose),
			r.MaxAdverseExcursionPct, r.BarsExamined, r.Exhaustion.String(),
		})
	}

	return rows
}

// correlationRows builds the ranked correlation sheet.
func correlationRows(cells []pattern.CorrelationCell) [][]interface{} {
	rows := [][]interface{}{{"Feature", "Outcome", "Coefficient", "SampleSize"}}
	for _, cell := range cells {
		rows = append(rows, []interface{}{
			cell.FeatureKey, cell.OutcomeKey, cellValue(cell.Coefficient), cell.SampleSize,
		})
	}
	return rows
}

// qualityRows builds the per-instrument data-quality sheet.
func qualityRows(reports map[string]dataprocessing.QualityReport) [][]interface{} {
	instruments := make([]string, 0, len(reports))
	for instrument := range reports {
		instruments = append(instruments, instrument)
	}
	sort.Strings(instruments)

	rows := [][]interface{}{{
		"Instrument", "Valid", "Errors", "Warnings",
		"TotalBars", "FirstDate", "LastDate", "AvgClose", "AvgVolume", "Issues",
	}}

	for _, instrument := range instruments {
		report := reports[instrument]

		firstDate, lastDate := "", ""
		if report.Stats.TotalBars > 0 {
			firstDate = formatDate(report.Stats.FirstDate)
			lastDate = formatDate(report.Stats.LastDate)
		}

		issues := ""
		for i, issue := range report.Issues {
			if i > 0 {
				issues += "; "
			}
			issues += issue.Code + ": " + issue.Message
		}

		rows = append(rows, []interface{}{
			report.Instrument, report.Valid,
			len(report.Errors()), len(report.Warnings()),
			report.Stats.TotalBars, firstDate, lastDate,
			report.Stats.AvgClose, report.Stats.AvgVolume, issues,
		})
	}

	return rows
}

// cellValue converts a nullable scalar for a worksheet cell; absent values
// become empty cells.
func cellValue(v recovery.Value) interface{} {
	if !v.Valid {
		return ""
	}
	return v.Float64
}
