package exporter

import (
	"fmt"
	"sort"
	"strings"

	"divrec/internal/config"
	"divrec/internal/dataprocessing"
	"divrec/internal/recovery"
)

// RecoveryExporter writes recovery analysis reports.
type RecoveryExporter struct {
	csvWriter *CSVWriter
}

// NewRecoveryExporter creates a new recovery report exporter
func NewRecoveryExporter(paths *config.Paths) *RecoveryExporter {
	return &RecoveryExporter{
		csvWriter: NewCSVWriter(paths),
	}
}

// ExportResults writes recovery verdicts to a single CSV file, sorted by
// instrument and ex-date for consistent output.
func (e *RecoveryExporter) ExportResults(results []recovery.RecoveryResult, outputPath string) error {
	sorted := make([]recovery.RecoveryResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Instrument != sorted[j].Instrument {
			return sorted[i].Instrument < sorted[j].Instrument
		}
		return sorted[i].ExDate.Before(sorted[j].ExDate)
	})

	records := make([][]string, 0, len(sorted))
	for _, result := range sorted {
		records = append(records, e.resultToCSVRow(result))
	}

	if err := e.csvWriter.WriteSimpleCSV(outputPath, e.resultHeaders(), records); err != nil {
		return fmt.Errorf("failed to write recovery results: %w", err)
	}
	return nil
}

// ExportStatistics writes per-instrument recovery statistics, one row per
// instrument. Percentile columns are derived from the quantiles present in
// the statistics; instruments missing a quantile get an empty cell.
func (e *RecoveryExporter) ExportStatistics(stats map[string]*recovery.RecoveryStatistics, outputPath string) error {
	instruments := make([]string, 0, len(stats))
	for instrument := range stats {
		instruments = append(instruments, instrument)
	}
	sort.Strings(instruments)

	quantiles := collectQuantiles(stats)

	headers := []string{
		"Instrument", "EventCount", "RecoveredCount", "TruncatedCount", "WinRate",
		"MeanObservedDropPct", "MeanMaxAdverseExcursionPct", "MeanOffset", "MedianOffset",
	}
	for _, q := range quantiles {
		headers = append(headers, quantileHeader(q))
	}
	headers = append(headers, "FastRecoveries", "NormalRecoveries", "SlowRecoveries")

	records := make([][]string, 0, len(instruments))
	for _, instrument := range instruments {
		records = append(records, statsToCSVRow(instrument, stats[instrument], quantiles))
	}

	if err := e.csvWriter.WriteSimpleCSV(outputPath, headers, records); err != nil {
		return fmt.Errorf("failed to write recovery statistics: %w", err)
	}
	return nil
}

// ExportFailures writes the events excluded from a batch with the reason
// each was excluded.
func (e *RecoveryExporter) ExportFailures(failures []recovery.EventFailure, outputPath string) error {
	sorted := make([]recovery.EventFailure, len(failures))
	copy(sorted, failures)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Event.Instrument != sorted[j].Event.Instrument {
			return sorted[i].Event.Instrument < sorted[j].Event.Instrument
		}
		return sorted[i].Event.ExDate.Before(sorted[j].Event.ExDate)
	})

	headers := []string{"Instrument", "ExDate", "Amount", "Reason"}
	records := make([][]string, 0, len(sorted))
	for _, failure := range sorted {
		records = append(records, []string{
			failure.Event.Instrument,
			formatDate(failure.Event.ExDate),
			formatFloat(failure.Event.Amount),
			failure.Reason(),
		})
	}

	if err := e.csvWriter.WriteSimpleCSV(outputPath, headers, records); err != nil {
		return fmt.Errorf("failed to write event failures: %w", err)
	}
	return nil
}

// ExportQualityReports writes per-instrument data-quality findings.
func (e *RecoveryExporter) ExportQualityReports(reports map[string]dataprocessing.QualityReport, outputPath string) error {
	instruments := make([]string, 0, len(reports))
	for instrument := range reports {
		instruments = append(instruments, instrument)
	}
	sort.Strings(instruments)

	headers := []string{
		"Instrument", "Valid", "Errors", "Warnings", "Issues",
		"TotalBars", "FirstDate", "LastDate", "AvgClose", "AvgVolume",
	}
	records := make([][]string, 0, len(instruments))
	for _, instrument := range instruments {
		records = append(records, qualityToCSVRow(reports[instrument]))
	}

	if err := e.csvWriter.WriteSimpleCSV(outputPath, headers, records); err != nil {
		return fmt.Errorf("failed to write quality reports: %w", err)
	}
	return nil
}

// resultHeaders returns the CSV headers for recovery results
func (e *RecoveryExporter) resultHeaders() []string {
	return []string{
		"Instrument", "ExDate", "Amount",
		"ReferenceDate", "ReferencePrice", "TargetPrice",
		"ExDateClose", "ObservedDropPct", "TheoreticalDropPct", "GapRatio",
		"Recovered", "RecoveryOffset", "RecoveryDate", "RecoveryClose",
		"MaxAdverseExcursionPct", "BarsExamined", "Exhaustion",
	}
}

// resultToCSVRow converts a recovery result to a CSV row
func (e *RecoveryExporter) resultToCSVRow(result recovery.RecoveryResult) []string {
	return []string{
		result.Instrument,
		formatDate(result.ExDate),
		formatFloat(result.Amount),
		formatDate(result.Target.ReferenceDate),
		formatFloat(result.Target.ReferencePrice),
		formatFloat(result.Target.TargetPrice),
		formatFloat(result.ExDateClose),
		formatFloat(result.ObservedDropPct),
		formatFloat(result.TheoreticalDropPct),
		formatValue(result.GapRatio),
		formatBool(result.Recovered),
		formatValue(result.Offset),
		formatDatePtr(result.RecoveryDate),
		formatValue(result.RecoveryClose),
		formatFloat(result.MaxAdverseExcursionPct),
		formatInt(int64(result.BarsExamined)),
		result.Exhaustion.String(),
	}
}

// collectQuantiles returns the sorted union of quantiles reported across
// the statistics.
func collectQuantiles(stats map[string]*recovery.RecoveryStatistics) []float64 {
	seen := make(map[float64]bool)
	for _, s := range stats {
		if s == nil {
			continue
		}
		for _, p := range s.OffsetPercentiles {
			seen[p.Quantile] = true
		}
	}

	quantiles := make([]float64, 0, len(seen))
	for q := range seen {
		quantiles = append(quantiles, q)
	}
	sort.Float64s(quantiles)
	return quantiles
}

// quantileHeader names a percentile column, e.g. OffsetP25 for 0.25.
func quantileHeader(q float64) string {
	return "OffsetP" + formatFloat(q*100)
}

// statsToCSVRow converts one instrument's statistics to a CSV row aligned
// with the percentile columns.
func statsToCSVRow(instrument string, s *recovery.RecoveryStatistics, quantiles []float64) []string {
	if s == nil {
		row := []string{instrument}
		for len(row) < 9+len(quantiles)+3 {
			row = append(row, "")
		}
		return row
	}

	offsets := make(map[float64]float64, len(s.OffsetPercentiles))
	for _, p := range s.OffsetPercentiles {
		offsets[p.Quantile] = p.Offset
	}

	row := []string{
		instrument,
		formatInt(int64(s.EventCount)),
		formatInt(int64(s.RecoveredCount)),
		formatInt(int64(s.TruncatedCount)),
		formatFloat(s.WinRate),
		formatFloat(s.MeanObservedDropPct),
		formatFloat(s.MeanMaxAdverseExcursionPct),
		formatValue(s.MeanOffset),
		formatValue(s.MedianOffset),
	}
	for _, q := range quantiles {
		if offset, ok := offsets[q]; ok {
			row = append(row, formatFloat(offset))
		} else {
			row = append(row, "")
		}
	}
	return append(row,
		formatInt(int64(s.FastRecoveries)),
		formatInt(int64(s.NormalRecoveries)),
		formatInt(int64(s.SlowRecoveries)),
	)
}

// qualityToCSVRow converts one instrument's quality report to a CSV row.
func qualityToCSVRow(report dataprocessing.QualityReport) []string {
	issues := make([]string, 0, len(report.Issues))
	for _, issue := range report.Issues {
		issues = append(issues, fmt.Sprintf("%s: %s", issue.Code, issue.Message))
	}

	firstDate, lastDate := "", ""
	if report.Stats.TotalBars > 0 {
		firstDate = formatDate(report.Stats.FirstDate)
		lastDate = formatDate(report.Stats.LastDate)
	}

	return []string{
		report.Instrument,
		formatBool(report.Valid),
		formatInt(int64(len(report.Errors()))),
		formatInt(int64(len(report.Warnings()))),
		strings.Join(issues, "; "),
		formatInt(int64(report.Stats.TotalBars)),
		firstDate,
		lastDate,
		formatFloat(report.Stats.AvgClose),
		formatFloat(report.Stats.AvgVolume),
	}
}
