package exporter

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"divrec/internal/dataprocessing"
	"divrec/internal/recovery"
)

func mustDay(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", value)
	require.NoError(t, err)
	return d
}

// testResult builds a plausible recovery verdict for export tests.
func testResult(t *testing.T, instrument, exDate string, recovered bool, offset float64) recovery.RecoveryResult {
	t.Helper()
	ex := mustDay(t, exDate)

	result := recovery.RecoveryResult{
		Instrument: instrument,
		ExDate:     ex,
		Amount:     0.5,
		Target: recovery.RecoveryTarget{
			ReferenceDate:  ex.AddDate(0, 0, -1),
			ReferencePrice: 10,
			Threshold:      1.0,
			TargetPrice:    10,
		},
		ExDateClose:            9.5,
		ObservedDropPct:        -5,
		TheoreticalDropPct:     -5,
		GapRatio:               recovery.Present(1),
		MaxAdverseExcursionPct: -6.25,
		BarsExamined:           30,
		Exhaustion:             recovery.ExhaustionFullHorizon,
	}

	if recovered {
		recoveryDate := ex.AddDate(0, 0, int(offset))
		result.Recovered = true
		result.Offset = recovery.Present(offset)
		result.RecoveryDate = &recoveryDate
		result.RecoveryClose = recovery.Present(10.2)
		result.BarsExamined = int(offset)
		result.Exhaustion = recovery.ExhaustionNone
	}

	return result
}

func TestRecoveryExporter_ExportResults(t *testing.T) {
	writer, tempDir := newTestWriter(t)
	e := &RecoveryExporter{csvWriter: writer}

	results := []recovery.RecoveryResult{
		testResult(t, "BETA", "2024-03-15", false, 0),
		testResult(t, "ACME", "2024-06-10", true, 4),
		testResult(t, "ACME", "2024-03-12", true, 2),
	}

	require.NoError(t, e.ExportResults(results, "recovery_results.csv"))

	records, hasBOM := readCSVFile(t, filepath.Join(tempDir, "reports", "recovery_results.csv"))
	assert.True(t, hasBOM)
	require.Len(t, records, 4)

	assert.Equal(t, e.resultHeaders(), records[0])

	// Sorted by instrument then ex-date.
	assert.Equal(t, "ACME", records[1][0])
	assert.Equal(t, "2024-03-12", records[1][1])
	assert.Equal(t, "ACME", records[2][0])
	assert.Equal(t, "2024-06-10", records[2][1])
	assert.Equal(t, "BETA", records[3][0])

	// Recovered row carries offset, date, close and a none exhaustion.
	assert.Equal(t, "true", records[1][10])
	assert.Equal(t, "2", records[1][11])
	assert.Equal(t, "2024-03-14", records[1][12])
	assert.Equal(t, "10.2", records[1][13])
	assert.Equal(t, "none", records[1][16])

	// Non-recovered row leaves the recovery cells empty.
	assert.Equal(t, "false", records[3][10])
	assert.Equal(t, "", records[3][11])
	assert.Equal(t, "", records[3][12])
	assert.Equal(t, "", records[3][13])
	assert.Equal(t, "full-horizon", records[3][16])
}

func TestRecoveryExporter_ExportStatistics(t *testing.T) {
	writer, tempDir := newTestWriter(t)
	e := &RecoveryExporter{csvWriter: writer}

	stats := map[string]*recovery.RecoveryStatistics{
		"BETA": {
			EventCount:                 20,
			RecoveredCount:             0,
			WinRate:                    0,
			MeanObservedDropPct:        -2,
			MeanMaxAdverseExcursionPct: -5,
		},
		"ACME": {
			EventCount:     25,
			RecoveredCount: 20,
			TruncatedCount: 1,
			WinRate:        0.8,
			MeanOffset:     recovery.Present(4.2),
			MedianOffset:   recovery.Present(3),
			OffsetPercentiles: []recovery.PercentilePoint{
				{Quantile: 0.25, Offset: 2},
				{Quantile: 0.5, Offset: 3},
				{Quantile: 0.75, Offset: 6},
			},
			MeanObservedDropPct:        -3.1,
			MeanMaxAdverseExcursionPct: -4.4,
			FastRecoveries:             9,
			NormalRecoveries:           7,
			SlowRecoveries:             4,
		},
	}

	require.NoError(t, e.ExportStatistics(stats, "recovery_statistics.csv"))

	records, _ := readCSVFile(t, filepath.Join(tempDir, "reports", "recovery_statistics.csv"))
	require.Len(t, records, 3)

	expectedHeaders := []string{
		"Instrument", "EventCount", "RecoveredCount", "TruncatedCount", "WinRate",
		"MeanObservedDropPct", "MeanMaxAdverseExcursionPct", "MeanOffset", "MedianOffset",
		"OffsetP25", "OffsetP50", "OffsetP75",
		"FastRecoveries", "NormalRecoveries", "SlowRecoveries",
	}
	assert.Equal(t, expectedHeaders, records[0])

	// Instruments sorted alphabetically.
	acme := records[1]
	assert.Equal(t, "ACME", acme[0])
	assert.Equal(t, "25", acme[1])
	assert.Equal(t, "0.8", acme[4])
	assert.Equal(t, "4.2", acme[7])
	assert.Equal(t, "2", acme[9])
	assert.Equal(t, "6", acme[11])
	assert.Equal(t, "9", acme[12])

	// An instrument with no recoveries leaves offset columns empty.
	beta := records[2]
	assert.Equal(t, "BETA", beta[0])
	assert.Equal(t, "", beta[7])
	assert.Equal(t, "", beta[8])
	assert.Equal(t, "", beta[9])
	assert.Equal(t, "0", beta[12])
}

func TestRecoveryExporter_ExportFailures(t *testing.T) {
	writer, tempDir := newTestWriter(t)
	e := &RecoveryExporter{csvWriter: writer}

	failures := []recovery.EventFailure{
		{
			Event: recovery.DistributionEvent{Instrument: "ZETA", ExDate: mustDay(t, "2024-02-01"), Amount: 0.3},
			Err: &recovery.EventNotFoundError{
				Instrument: "ZETA",
				ExDate:     mustDay(t, "2024-02-01"),
			},
		},
		{
			Event: recovery.DistributionEvent{Instrument: "ACME", ExDate: mustDay(t, "2024-03-12"), Amount: 0.5},
			Err: &recovery.InsufficientDataError{
				Instrument: "ACME",
				ExDate:     mustDay(t, "2024-03-12"),
			},
		},
	}

	require.NoError(t, e.ExportFailures(failures, "event_failures.csv"))

	records, _ := readCSVFile(t, filepath.Join(tempDir, "reports", "event_failures.csv"))
	require.Len(t, records, 3)

	assert.Equal(t, []string{"Instrument", "ExDate", "Amount", "Reason"}, records[0])
	assert.Equal(t, "ACME", records[1][0])
	assert.NotEmpty(t, records[1][3])
	assert.Equal(t, "ZETA", records[2][0])
	assert.Contains(t, records[2][3], "precedes available history")
}

func TestRecoveryExporter_ExportQualityReports(t *testing.T) {
	writer, tempDir := newTestWriter(t)
	e := &RecoveryExporter{csvWriter: writer}

	reports := map[string]dataprocessing.QualityReport{
		"ACME": {
			Instrument: "ACME",
			Valid:      true,
			Stats: dataprocessing.PriceStats{
				TotalBars: 250,
				FirstDate: mustDay(t, "2023-01-02"),
				LastDate:  mustDay(t, "2023-12-29"),
				AvgClose:  10.4,
				AvgVolume: 120000,
			},
		},
		"ZETA": {
			Instrument: "ZETA",
			Valid:      false,
			Issues: []dataprocessing.Issue{
				{Severity: dataprocessing.SeverityError, Code: dataprocessing.IssueNoPriceData, Message: "no price data loaded"},
				{Severity: dataprocessing.SeverityWarning, Code: dataprocessing.IssueNoEvents, Message: "no distribution events on record"},
			},
		},
	}

	require.NoError(t, e.ExportQualityReports(reports, "data_quality.csv"))

	records, _ := readCSVFile(t, filepath.Join(tempDir, "reports", "data_quality.csv"))
	require.Len(t, records, 3)

	acme := records[1]
	assert.Equal(t, "ACME", acme[0])
	assert.Equal(t, "true", acme[1])
	assert.Equal(t, "0", acme[2])
	assert.Equal(t, "2023-01-02", acme[6])

	zeta := records[2]
	assert.Equal(t, "false", zeta[1])
	assert.Equal(t, "1", zeta[2])
	assert.Equal(t, "1", zeta[3])
	assert.Contains(t, zeta[4], "no_price_data")
	// No bars means no date range.
	assert.Equal(t, "", zeta[6])
	assert.Equal(t, "", zeta[7])
}
