package exporter

import (
	"fmt"
	"sort"

	"divrec/internal/config"
	"divrec/internal/pattern"
)

// PatternExporter writes pattern analysis reports.
type PatternExporter struct {
	csvWriter *CSVWriter
}

// NewPatternExporter creates a new pattern report exporter
func NewPatternExporter(paths *config.Paths) *PatternExporter {
	return &PatternExporter{
		csvWriter: NewCSVWriter(paths),
	}
}

// ExportCorrelations writes the correlation grid in the order it was
// ranked: defined cells by |r| descending, undefined cells after. Undefined
// coefficients stay empty rather than zero.
func (e *PatternExporter) ExportCorrelations(cells []pattern.CorrelationCell, outputPath string) error {
	headers := []string{"Feature", "Outcome", "Coefficient", "SampleSize"}

	records := make([][]string, 0, len(cells))
	for _, cell := range cells {
		records = append(records, []string{
			cell.FeatureKey,
			cell.OutcomeKey,
			formatValue(cell.Coefficient),
			formatInt(int64(cell.SampleSize)),
		})
	}

	if err := e.csvWriter.WriteSimpleCSV(outputPath, headers, records); err != nil {
		return fmt.Errorf("failed to write correlation ranking: %w", err)
	}
	return nil
}

// ExportNeighbors writes a similarity query's ranked matches alongside the
// target event they were matched against.
func (e *PatternExporter) ExportNeighbors(target pattern.PatternRecord, neighbors []pattern.Neighbor, outputPath string) error {
	headers := []string{
		"TargetInstrument", "TargetExDate",
		"Rank", "Instrument", "ExDate", "Similarity", "SharedDims",
	}

	records := make([][]string, 0, len(neighbors))
	for i, neighbor := range neighbors {
		records = append(records, []string{
			target.Instrument,
			formatDate(target.ExDate),
			formatInt(int64(i + 1)),
			neighbor.Instrument,
			formatDate(neighbor.ExDate),
			formatFloat(neighbor.Similarity),
			formatInt(int64(neighbor.SharedDims)),
		})
	}

	if err := e.csvWriter.WriteSimpleCSV(outputPath, headers, records); err != nil {
		return fmt.Errorf("failed to write similar patterns: %w", err)
	}
	return nil
}

// ExportPatternRecords streams the wide feature/outcome matrix, one row per
// event with every feature and outcome key the spec defines. Absent
// measurements become empty cells so the matrix stays rectangular.
func (e *PatternExporter) ExportPatternRecords(records []pattern.PatternRecord, spec pattern.WindowSpec, outputPath string) error {
	featureKeys := spec.FeatureKeys()
	outcomeKeys := spec.OutcomeKeys()

	headers := make([]string, 0, 5+len(featureKeys)+len(outcomeKeys))
	headers = append(headers, "Instrument", "ExDate", "Amount", "ReferencePrice", "ExDateClose")
	headers = append(headers, featureKeys...)
	headers = append(headers, outcomeKeys...)

	sorted := make([]pattern.PatternRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Instrument != sorted[j].Instrument {
			return sorted[i].Instrument < sorted[j].Instrument
		}
		return sorted[i].ExDate.Before(sorted[j].ExDate)
	})

	stream, err := e.csvWriter.CreateStreamWriter(outputPath, headers)
	if err != nil {
		return fmt.Errorf("failed to create pattern stream writer: %w", err)
	}

	row := make([]string, 0, len(headers))
	for _, record := range sorted {
		row = row[:0]
		row = append(row,
			record.Instrument,
			formatDate(record.ExDate),
			formatFloat(record.Amount),
			formatFloat(record.ReferencePrice),
			formatFloat(record.ExDateClose),
		)
		for _, key := range featureKeys {
			row = append(row, formatValue(record.Features[key]))
		}
		for _, key := range outcomeKeys {
			row = append(row, formatValue(record.Outcomes[key]))
		}

		if err := stream.WriteRecord(row); err != nil {
			stream.Close()
			return fmt.Errorf("failed to write pattern record %s: %w", record.Key(), err)
		}
	}

	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close pattern stream: %w", err)
	}
	return nil
}
