package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Paths contains all the application paths
// This is the single source of truth for ALL file paths in the application
type Paths struct {
	ExecutableDir string
	DataDir       string
	PricesDir     string
	ReportsDir    string
	CacheDir      string
	LogsDir       string

	// Input files
	EventsFile string

	// Report subdirectories for organized structure
	RecoveryReportsDir   string
	PatternReportsDir    string
	SummaryReportsDir    string
	CorrelationReportsDir string

	// Well-known report files
	RecoveryResultsCSV    string
	RecoveryStatsCSV      string
	CorrelationRankingCSV string
	SimilarPatternsCSV    string
	AnalyticsWorkbook     string
}

// GetPaths returns the application paths relative to the executable location
// All paths are ALWAYS relative to the executable directory, never the current working directory
func GetPaths() (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %v", err)
	}

	// Resolve symlinks to get the actual executable location
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable symlinks: %v", err)
	}

	return PathsFrom(filepath.Dir(exe)), nil
}

// PathsFrom builds the full path layout rooted at the given directory.
// Directory structure:
//
//	<root>/
//	  ├── data/
//	  │   ├── prices/        (per-instrument daily price CSVs)
//	  │   ├── distributions.csv
//	  │   ├── reports/       (generated CSV/XLSX reports)
//	  │   └── cache/         (temporary files)
//	  └── logs/              (application logs)
func PathsFrom(rootDir string) *Paths {
	dataDir := filepath.Join(rootDir, "data")
	reportsDir := filepath.Join(dataDir, "reports")

	recoveryReportsDir := filepath.Join(reportsDir, "recovery")
	patternReportsDir := filepath.Join(reportsDir, "patterns")
	summaryReportsDir := filepath.Join(reportsDir, "summary")
	correlationReportsDir := filepath.Join(reportsDir, "correlation")

	return &Paths{
		ExecutableDir: rootDir,
		DataDir:       dataDir,
		PricesDir:     filepath.Join(dataDir, "prices"),
		ReportsDir:    reportsDir,
		CacheDir:      filepath.Join(dataDir, "cache"),
		LogsDir:       filepath.Join(rootDir, "logs"),

		EventsFile: filepath.Join(dataDir, "distributions.csv"),

		RecoveryReportsDir:    recoveryReportsDir,
		PatternReportsDir:     patternReportsDir,
		SummaryReportsDir:     summaryReportsDir,
		CorrelationReportsDir: correlationReportsDir,

		RecoveryResultsCSV:    filepath.Join(recoveryReportsDir, "recovery_results.csv"),
		RecoveryStatsCSV:      filepath.Join(summaryReportsDir, "recovery_statistics.csv"),
		CorrelationRankingCSV: filepath.Join(correlationReportsDir, "correlation_ranking.csv"),
		SimilarPatternsCSV:    filepath.Join(patternReportsDir, "similar_patterns.csv"),
		AnalyticsWorkbook:     filepath.Join(summaryReportsDir, "analytics.xlsx"),
	}
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.DataDir,
		p.PricesDir,
		p.ReportsDir,
		p.RecoveryReportsDir,
		p.PatternReportsDir,
		p.SummaryReportsDir,
		p.CorrelationReportsDir,
		p.CacheDir,
		p.LogsDir,
	}

	logger := slog.Default()

	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %v", dir, err)
		}

		if logger != nil {
			logger.Debug("Ensured directory exists",
				slog.String("directory", dir))
		}
	}

	return nil
}

// GetRelativePath returns a path relative to the executable directory
func (p *Paths) GetRelativePath(subpath string) string {
	return filepath.Join(p.ExecutableDir, subpath)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// GetPriceCSVPath returns the path for an instrument's daily price CSV
// (e.g. BBOB_daily.csv)
func (p *Paths) GetPriceCSVPath(instrument string) string {
	filename := fmt.Sprintf("%s_daily.csv", strings.ToUpper(instrument))
	return filepath.Join(p.PricesDir, filename)
}

// GetEventsCSVPath returns the path for the distribution-events CSV
func (p *Paths) GetEventsCSVPath() string {
	return p.EventsFile
}

// GetReportPath returns the path for a report file
func (p *Paths) GetReportPath(filename string) string {
	return filepath.Join(p.ReportsDir, filename)
}

// GetLogPath returns the path for a log file
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// GetCachePath returns the path for a cache file
func (p *Paths) GetCachePath(filename string) string {
	return filepath.Join(p.CacheDir, filename)
}

// GetRecoveryCSVPath returns the path for an instrument's recovery report
// (e.g. BBOB_recovery.csv)
func (p *Paths) GetRecoveryCSVPath(instrument string) string {
	filename := fmt.Sprintf("%s_recovery.csv", strings.ToUpper(instrument))
	return filepath.Join(p.RecoveryReportsDir, filename)
}

// GetPatternCSVPath returns the path for an instrument's pattern-record report
// (e.g. BBOB_patterns.csv)
func (p *Paths) GetPatternCSVPath(instrument string) string {
	filename := fmt.Sprintf("%s_patterns.csv", strings.ToUpper(instrument))
	return filepath.Join(p.PatternReportsDir, filename)
}

// GetTimestampedReportPath returns a run-scoped report path
// (e.g. recovery_statistics_20240115_150405.csv)
func (p *Paths) GetTimestampedReportPath(prefix, ext string, ts time.Time) string {
	filename := fmt.Sprintf("%s_%s.%s", prefix, ts.Format("20060102_150405"), ext)
	return filepath.Join(p.ReportsDir, filename)
}

// LogPathResolution logs detailed path resolution information for debugging
func (p *Paths) LogPathResolution() {
	logger := slog.Default()
	if logger == nil {
		return
	}

	logger.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("executable", p.ExecutableDir),
			slog.String("data", p.DataDir),
			slog.String("prices", p.PricesDir),
			slog.String("reports", p.ReportsDir),
			slog.String("cache", p.CacheDir),
			slog.String("logs", p.LogsDir),
		),
		slog.Group("input_files",
			slog.String("events", p.EventsFile),
		),
		slog.Group("report_files",
			slog.String("recovery_results", p.RecoveryResultsCSV),
			slog.String("recovery_statistics", p.RecoveryStatsCSV),
			slog.String("correlation_ranking", p.CorrelationRankingCSV),
			slog.String("similar_patterns", p.SimilarPatternsCSV),
			slog.String("workbook", p.AnalyticsWorkbook),
		))
}

// ValidateRequiredFiles checks if critical input files exist and returns
// detailed error information
func (p *Paths) ValidateRequiredFiles() error {
	requiredFiles := map[string]string{
		"Distribution events": p.EventsFile,
	}

	var missingFiles []string
	for name, path := range requiredFiles {
		if !FileExists(path) {
			missingFiles = append(missingFiles, fmt.Sprintf("%s (%s)", name, path))
		}
	}

	if len(missingFiles) > 0 {
		return fmt.Errorf("required files missing: %s", strings.Join(missingFiles, ", "))
	}

	return nil
}
