// Package exporter writes the analysis reports of the dividend recovery
// engine as CSV files and a combined XLSX workbook.
//
// This package contains four main components:
//
// CSVWriter: Core CSV writing functionality with support for headers,
// streaming, and UTF-8 BOM for Excel compatibility.
//
// RecoveryExporter: Writes recovery verdicts, per-instrument statistics,
// excluded-event reports, and data-quality findings.
//
// PatternExporter: Writes the ranked correlation grid, similarity query
// results, and the wide per-event feature/outcome matrix.
//
// WorkbookExporter: Assembles a multi-sheet XLSX workbook combining the
// summary statistics, recovery verdicts, correlations, and data quality.
//
// Example usage:
//
//	recoveryExporter := exporter.NewRecoveryExporter(paths)
//	err := recoveryExporter.ExportResults(results, paths.RecoveryResultsCSV)
//
//	patternExporter := exporter.NewPatternExporter(paths)
//	err = patternExporter.ExportCorrelations(cells, paths.CorrelationRankingCSV)
//
//	workbook := exporter.NewWorkbookExporter()
//	err = workbook.ExportWorkbook(data, paths.AnalyticsWorkbook)
package exporter
