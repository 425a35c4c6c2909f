package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"divrec/internal/config"
	"divrec/internal/recovery"
	"divrec/internal/services"
	"divrec/pkg/contracts/domain"
)

func main() {
	dataDir := flag.String("data", "", "directory containing prices/ and distributions.csv (defaults to data/ next to the executable)")
	outDir := flag.String("out", "", "output directory for reports (defaults to <data>/reports)")
	horizon := flag.Int("horizon", 0, "recovery horizon in trading days (defaults to the configured maximum)")
	threshold := flag.Float64("threshold", 0, "recovery threshold as a multiple of the reference price")
	minSample := flag.Int("min-sample", 0, "minimum events per instrument before statistics are reported")
	format := flag.String("format", domain.ExportFormatAll, "report format: csv, xlsx, or all")
	top := flag.Int("top", 10, "rows in the printed rankings")
	flag.Parse()

	switch *format {
	case domain.ExportFormatCSV, domain.ExportFormatXLSX, domain.ExportFormatAll:
	default:
		slog.Error("Unknown report format", "format", *format, "supported", "csv, xlsx, all")
		os.Exit(1)
	}

	paths, err := buildPaths(*dataDir, *outDir)
	if err != nil {
		slog.Error("Failed to resolve paths", "error", err)
		os.Exit(1)
	}

	if err := paths.ValidateRequiredFiles(); err != nil {
		slog.Error("Input data missing", "error", err,
			"hint", "place per-instrument price CSVs under prices/ and the events in distributions.csv")
		os.Exit(1)
	}

	cfg := config.DefaultAnalytics()
	if *minSample > 0 {
		cfg.MinSampleSize = *minSample
	}

	svc, err := services.NewAnalyticsService(cfg, paths, nil, nil, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize analytics", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	slog.Info("Loading universe",
		"prices_dir", paths.PricesDir,
		"events_file", paths.EventsFile)
	summary, err := svc.LoadUniverse(ctx)
	if err != nil {
		slog.Error("Failed to load universe", "error", err)
		os.Exit(1)
	}
	slog.Info("Universe loaded",
		"instruments", summary.Instruments,
		"bars", summary.TotalBars,
		"events", summary.TotalEvents,
		"invalid_instruments", len(summary.InvalidInstruments))

	opts := services.AnalysisOptions{}
	if *horizon > 0 {
		opts.HorizonDays = horizon
	}
	if *threshold > 0 {
		opts.Threshold = threshold
	}

	slog.Info("Analyzing universe...")
	analysis, err := svc.AnalyzeUniverse(ctx, "", opts, nil)
	if err != nil {
		slog.Error("Analysis failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Analysis complete",
		"events", len(analysis.Results),
		"failures", len(analysis.Failures),
		"correlations", len(analysis.Correlations))

	files, err := svc.ExportAnalysis(ctx, analysis, *format)
	if err != nil {
		slog.Error("Failed to write reports", "error", err)
		os.Exit(1)
	}
	for _, file := range files {
		slog.Info("Report written", "path", file)
	}

	printRecoveryRanking(analysis, *top)
	printCorrelationRanking(analysis, *top)
}

// buildPaths starts from the executable-relative layout and applies the
// data and output directory overrides.
func buildPaths(dataDir, outDir string) (*config.Paths, error) {
	paths, err := config.GetPaths()
	if err != nil {
		return nil, err
	}

	if dataDir != "" {
		paths.DataDir = dataDir
		paths.PricesDir = filepath.Join(dataDir, "prices")
		paths.CacheDir = filepath.Join(dataDir, "cache")
		paths.EventsFile = filepath.Join(dataDir, "distributions.csv")
		if outDir == "" {
			outDir = filepath.Join(dataDir, "reports")
		}
	}

	if outDir != "" {
		paths.ReportsDir = outDir
		paths.RecoveryReportsDir = filepath.Join(outDir, "recovery")
		paths.PatternReportsDir = filepath.Join(outDir, "patterns")
		paths.SummaryReportsDir = filepath.Join(outDir, "summary")
		paths.CorrelationReportsDir = filepath.Join(outDir, "correlation")

		paths.RecoveryResultsCSV = filepath.Join(paths.RecoveryReportsDir, "recovery_results.csv")
		paths.RecoveryStatsCSV = filepath.Join(paths.SummaryReportsDir, "recovery_statistics.csv")
		paths.CorrelationRankingCSV = filepath.Join(paths.CorrelationReportsDir, "correlation_ranking.csv")
		paths.SimilarPatternsCSV = filepath.Join(paths.PatternReportsDir, "similar_patterns.csv")
		paths.AnalyticsWorkbook = filepath.Join(paths.SummaryReportsDir, "analytics.xlsx")
	}

	return paths, nil
}

// printRecoveryRanking prints instruments ranked by win rate. Instruments
// below the minimum sample size carry no statistics and do not rank.
func printRecoveryRanking(analysis *services.UniverseAnalysis, top int) {
	type row struct {
		instrument string
		stats      *recovery.RecoveryStatistics
	}

	rows := make([]row, 0, len(analysis.Statistics))
	for instrument, stats := range analysis.Statistics {
		rows = append(rows, row{instrument: instrument, stats: stats})
	}
	if len(rows) == 0 {
		fmt.Println("\nNo instrument reached the minimum sample size; nothing to rank.")
		return
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].stats.WinRate != rows[j].stats.WinRate {
			return rows[i].stats.WinRate > rows[j].stats.WinRate
		}
		if rows[i].stats.EventCount != rows[j].stats.EventCount {
			return rows[i].stats.EventCount > rows[j].stats.EventCount
		}
		return rows[i].instrument < rows[j].instrument
	})
	if top > 0 && len(rows) > top {
		rows = rows[:top]
	}

	fmt.Printf("\n=== RECOVERY RANKING (horizon %d days, threshold %.2f) ===\n",
		analysis.HorizonDays, analysis.Threshold)
	fmt.Println("Instrument | Events | Recovered | Win Rate | Median Offset | Mean Drop %")
	fmt.Println("-----------|--------|-----------|----------|---------------|------------")
	for _, r := range rows {
		fmt.Printf("%-10s | %6d | %9d | %7.1f%% | %13s | %11.2f\n",
			r.instrument,
			r.stats.EventCount,
			r.stats.RecoveredCount,
			r.stats.WinRate*100,
			formatOffset(r.stats.MedianOffset),
			r.stats.MeanObservedDropPct)
	}
}

// printCorrelationRanking prints the strongest feature-outcome pairs. The
// service already filtered and ranked the cells by absolute coefficient.
func printCorrelationRanking(analysis *services.UniverseAnalysis, top int) {
	if len(analysis.Correlations) == 0 {
		return
	}

	fmt.Println("\n=== TOP FEATURE-OUTCOME CORRELATIONS ===")
	fmt.Println("Feature                    | Outcome        |      r | Samples")
	fmt.Println("---------------------------|----------------|--------|--------")
	printed := 0
	for _, cell := range analysis.Correlations {
		if !cell.Defined() {
			continue
		}
		fmt.Printf("%-26s | %-14s | %+.3f | %7d\n",
			cell.FeatureKey, cell.OutcomeKey, cell.Coefficient.Float64, cell.SampleSize)
		printed++
		if top > 0 && printed >= top {
			break
		}
	}
}

func formatOffset(v recovery.Value) string {
	if !v.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%.1f days", v.Float64)
}
