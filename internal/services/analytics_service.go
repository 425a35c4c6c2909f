package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"divrec/internal/config"
	"divrec/internal/dataprocessing"
	"divrec/internal/infrastructure"
	"divrec/internal/pattern"
	"divrec/internal/recovery"
	"divrec/pkg/contracts/domain"
)

// WebSocketHub interface for WebSocket communication
type WebSocketHub interface {
	Broadcast(messageType string, data interface{})
}

// noopHub satisfies WebSocketHub when no hub is attached (CLI runs).
type noopHub struct{}

func (noopHub) Broadcast(string, interface{}) {}

// Universe is an immutable snapshot of everything loaded from disk: the
// price series, the distribution events grouped per instrument, and the
// quality report for each instrument. Reloads swap in a fresh snapshot;
// nothing mutates one in place, so readers never need a lock beyond the
// pointer fetch.
type Universe struct {
	LoadedAt time.Time
	Series   map[string]*recovery.Series
	Events   map[string][]recovery.DistributionEvent
	Quality  map[string]dataprocessing.QualityReport
}

// Instruments returns every known instrument in sorted order. The quality
// map covers the union of price and event instruments.
func (u *Universe) Instruments() []string {
	out := make([]string, 0, len(u.Quality))
	for instrument := range u.Quality {
		out = append(out, instrument)
	}
	sort.Strings(out)
	return out
}

// analyzable returns the sorted instruments that have a usable series and
// passed quality checks.
func (u *Universe) analyzable() []string {
	out := make([]string, 0, len(u.Series))
	for instrument := range u.Series {
		if report, ok := u.Quality[instrument]; ok && !report.Valid {
			continue
		}
		out = append(out, instrument)
	}
	sort.Strings(out)
	return out
}

// AnalysisOptions override per-request recovery parameters. Nil fields fall
// back to the configured defaults.
type AnalysisOptions struct {
	HorizonDays *int
	Threshold   *float64
}

// SimilarityOptions override per-request similarity parameters. Nil fields
// fall back to the configured defaults.
type SimilarityOptions struct {
	TopK  *int
	Floor *float64
}

// ProgressFunc receives per-instrument completion callbacks during a
// universe analysis. Implementations must be safe for concurrent use.
type ProgressFunc func(done, total int, instrument string)

// UniverseAnalysis carries everything one full analysis run produced. The
// engine-level values ride alongside the outbound reports so exporters can
// write files without recomputing anything.
type UniverseAnalysis struct {
	GeneratedAt time.Time
	HorizonDays int
	Threshold   float64
	Spec        pattern.WindowSpec

	Reports      []domain.InstrumentReport
	Results      []recovery.RecoveryResult
	Statistics   map[string]*recovery.RecoveryStatistics
	Failures     []recovery.EventFailure
	Records      []pattern.PatternRecord
	Correlations []pattern.CorrelationCell
	Quality      map[string]dataprocessing.QualityReport
}

// AnalyticsService orchestrates the recovery and pattern engines over the
// loaded universe and manages asynchronous full-universe analysis jobs.
type AnalyticsService struct {
	cfg     config.AnalyticsConfig
	paths   *config.Paths
	loader  *dataprocessing.Loader
	checker *dataprocessing.Checker
	hub     WebSocketHub
	metrics *infrastructure.BusinessMetrics
	logger  *slog.Logger

	mu       sync.RWMutex
	universe *Universe

	jobsMu sync.RWMutex
	jobs   map[string]*analysisJob
}

// NewAnalyticsService creates the analytics service. A nil hub disables
// broadcasting and a nil logger falls back to slog.Default.
func NewAnalyticsService(cfg config.AnalyticsConfig, paths *config.Paths, hub WebSocketHub, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) (*AnalyticsService, error) {
	if paths == nil {
		return nil, fmt.Errorf("paths are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = noopHub{}
	}

	logger.Info("AnalyticsService initialized with paths",
		slog.String("prices_dir", paths.PricesDir),
		slog.String("events_file", paths.EventsFile),
		slog.String("reports_dir", paths.ReportsDir))

	return &AnalyticsService{
		cfg:     cfg,
		paths:   paths,
		loader:  dataprocessing.NewLoader(logger),
		checker: dataprocessing.NewChecker(logger),
		hub:     hub,
		metrics: metrics,
		logger:  logger,
		jobs:    make(map[string]*analysisJob),
	}, nil
}

// LoadUniverse reads every price CSV and the distribution-events file from
// disk, runs quality checks, and swaps in the new snapshot. Instruments
// whose data carries error-severity issues stay visible in listings but are
// excluded from analysis.
func (s *AnalyticsService) LoadUniverse(ctx context.Context) (*domain.UniverseSummary, error) {
	start := time.Now()
	s.logger.InfoContext(ctx, "loading universe",
		slog.String("prices_dir", s.paths.PricesDir),
		slog.String("events_file", s.paths.EventsFile))

	prices, err := s.loader.LoadPriceDir(ctx, s.paths.PricesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load price data: %w", err)
	}
	if len(prices) == 0 {
		return nil, ErrNoInstrumentsFound
	}

	events, err := s.loader.LoadEventsCSV(s.paths.EventsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load distribution events: %w", err)
	}

	quality, err := s.checker.CheckAll(ctx, prices, events)
	if err != nil {
		return nil, fmt.Errorf("quality checks failed: %w", err)
	}

	series := make(map[string]*recovery.Series, len(prices))
	for instrument, bars := range prices {
		sr, err := recovery.NewSeries(instrument, bars)
		if err != nil {
			// The quality report already flags the instrument; it simply
			// has no usable series to analyze.
			s.logger.WarnContext(ctx, "skipping unusable price series",
				slog.String("instrument", instrument),
				slog.String("error", err.Error()))
			continue
		}
		series[instrument] = sr
	}

	u := &Universe{
		LoadedAt: time.Now().UTC(),
		Series:   series,
		Events:   dataprocessing.GroupEventsByInstrument(events),
		Quality:  quality,
	}

	s.mu.Lock()
	s.universe = u
	s.mu.Unlock()

	summary := universeSummary(u)

	s.logger.InfoContext(ctx, "universe loaded",
		slog.Int("instruments", summary.Instruments),
		slog.Int("total_bars", summary.TotalBars),
		slog.Int("total_events", summary.TotalEvents),
		slog.Int("invalid_instruments", len(summary.InvalidInstruments)),
		slog.Duration("duration", time.Since(start)))

	s.hub.Broadcast("universe_loaded", summary)

	return summary, nil
}

// snapshot returns the current universe or ErrUniverseNotLoaded.
func (s *AnalyticsService) snapshot() (*Universe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.universe == nil {
		return nil, ErrUniverseNotLoaded
	}
	return s.universe, nil
}

// UniverseSummary describes the currently loaded universe.
func (s *AnalyticsService) UniverseSummary(ctx context.Context) (*domain.UniverseSummary, error) {
	u, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return universeSummary(u), nil
}

// Instruments returns a summary row per loaded instrument, sorted by symbol.
func (s *AnalyticsService) Instruments(ctx context.Context) ([]domain.InstrumentSummary, error) {
	u, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	instruments := u.Instruments()
	out := make([]domain.InstrumentSummary, 0, len(instruments))
	for _, instrument := range instruments {
		out = append(out, instrumentSummaryToDomain(u, instrument))
	}
	return out, nil
}

// QualityReports returns the data-quality report for every loaded
// instrument, sorted by symbol.
func (s *AnalyticsService) QualityReports(ctx context.Context) ([]domain.QualityReport, error) {
	u, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	instruments := u.Instruments()
	out := make([]domain.QualityReport, 0, len(instruments))
	for _, instrument := range instruments {
		out = append(out, qualityReportToDomain(u.Quality[instrument]))
	}
	return out, nil
}

// AnalyzeInstrument runs recovery detection over one instrument's events and
// aggregates the verdicts. Populations below the configured minimum sample
// size come back with SampleTooSmall set instead of statistics.
func (s *AnalyticsService) AnalyzeInstrument(ctx context.Context, instrument string, opts AnalysisOptions) (report *domain.InstrumentReport, err error) {
	start := time.Now()
	defer func() {
		infrastructure.RecordAnalysisMetrics(ctx, s.metrics, "", "instrument", time.Since(start), err == nil, err)
	}()

	u, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	quality, ok := u.Quality[instrument]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstrumentNotFound, instrument)
	}
	if !quality.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInstrumentInvalid, instrument)
	}
	series, ok := u.Series[instrument]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstrumentInvalid, instrument)
	}
	events := u.Events[instrument]
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEventsFound, instrument)
	}

	detector, err := recovery.NewDetector(s.horizonDays(opts), s.threshold(opts), s.logger)
	if err != nil {
		return nil, err
	}

	results, failures := detector.DetectAll(ctx, series, events)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats, tooSmall, err := s.summarize(results)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "instrument analyzed",
		slog.String("instrument", instrument),
		slog.Int("events", len(events)),
		slog.Int("results", len(results)),
		slog.Int("failures", len(failures)),
		slog.Bool("sample_too_small", tooSmall))

	out := instrumentReportToDomain(instrument, results, stats, tooSmall, failures)
	return &out, nil
}

// CorrelationRanking computes the population feature/outcome correlation
// grid and returns the defined cells at or above the floor in absolute
// value, best first. A nil minCorrelation falls back to the configured
// default; a positive limit caps the number of cells returned.
func (s *AnalyticsService) CorrelationRanking(ctx context.Context, minCorrelation *float64, limit int) ([]domain.CorrelationCell, error) {
	u, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	spec := s.windowSpec()
	records, err := s.extractUniverse(ctx, u, spec)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoEventsFound
	}

	cells, err := pattern.Correlate(records, spec)
	if err != nil {
		return nil, fmt.Errorf("correlation failed: %w", err)
	}

	floor := s.cfg.MinCorrelation
	if minCorrelation != nil {
		floor = *minCorrelation
	}

	ranked := filterCells(cells, floor, limit)
	out := make([]domain.CorrelationCell, 0, len(ranked))
	for _, cell := range ranked {
		out = append(out, correlationCellToDomain(cell))
	}
	return out, nil
}

// SimilarEvents finds the historical events whose pre-event pattern most
// resembles the given event's. The search refuses populations smaller than
// the configured minimum pattern count.
func (s *AnalyticsService) SimilarEvents(ctx context.Context, instrument string, exDate time.Time, opts SimilarityOptions) (*domain.SimilarityResult, error) {
	u, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	if _, ok := u.Quality[instrument]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstrumentNotFound, instrument)
	}

	spec := s.windowSpec()
	records, err := s.extractUniverse(ctx, u, spec)
	if err != nil {
		return nil, err
	}

	exDate = normalizeDay(exDate)
	target := -1
	for i, record := range records {
		if record.Instrument == instrument && record.ExDate.Equal(exDate) {
			target = i
			break
		}
	}
	if target < 0 {
		return nil, fmt.Errorf("%w: %s@%s", ErrEventNotFound, instrument, exDate.Format("2006-01-02"))
	}

	params := pattern.SimilarityParams{
		TopK:        s.cfg.TopK,
		Floor:       s.cfg.SimilarityFloor,
		MinPatterns: s.cfg.MinPatterns,
		Keys:        spec.SimilarityKeys(),
	}
	if opts.TopK != nil {
		params.TopK = *opts.TopK
	}
	if opts.Floor != nil {
		params.Floor = *opts.Floor
	}

	neighbors, err := pattern.FindSimilar(records, target, params)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "similarity search completed",
		slog.String("instrument", instrument),
		slog.Time("ex_date", exDate),
		slog.Int("population", len(records)),
		slog.Int("matches", len(neighbors)))

	return similarityResultToDomain(records[target], neighbors), nil
}

// AnalyzeUniverse runs recovery detection and pattern extraction for every
// analyzable instrument in parallel, then correlates the pooled records.
// Per-event failures are collected, never fatal; jobID tags the emitted
// metrics and may be empty for ad-hoc runs.
func (s *AnalyticsService) AnalyzeUniverse(ctx context.Context, jobID string, opts AnalysisOptions, progress ProgressFunc) (analysis *UniverseAnalysis, err error) {
	start := time.Now()
	defer func() {
		infrastructure.RecordAnalysisMetrics(ctx, s.metrics, jobID, "universe", time.Since(start), err == nil, err)
	}()

	u, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	horizon := s.horizonDays(opts)
	threshold := s.threshold(opts)

	detector, err := recovery.NewDetector(horizon, threshold, s.logger)
	if err != nil {
		return nil, err
	}
	spec := s.windowSpec()
	extractor, err := pattern.NewExtractor(spec, s.logger)
	if err != nil {
		return nil, err
	}

	var instruments []string
	for _, instrument := range u.analyzable() {
		if len(u.Events[instrument]) > 0 {
			instruments = append(instruments, instrument)
		}
	}
	if len(instruments) == 0 {
		return nil, ErrNoEventsFound
	}

	s.logger.InfoContext(ctx, "universe analysis started",
		slog.String("job_id", jobID),
		slog.Int("instruments", len(instruments)),
		slog.Int("horizon_days", horizon),
		slog.Float64("threshold", threshold),
		slog.Int("workers", s.workerLimit()))

	type instrumentOutcome struct {
		results        []recovery.RecoveryResult
		records        []pattern.PatternRecord
		failures       []recovery.EventFailure
		stats          *recovery.RecoveryStatistics
		sampleTooSmall bool
	}

	outcomes := make([]instrumentOutcome, len(instruments))
	var completed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workerLimit())
	for i, instrument := range instruments {
		g.Go(func() error {
			instStart := time.Now()
			series := u.Series[instrument]
			events := u.Events[instrument]

			results, failures := detector.DetectAll(gctx, series, events)
			records, extractFailures := extractor.ExtractAll(gctx, series, events)
			if err := gctx.Err(); err != nil {
				return err
			}

			// Extraction failures mirror detection failures for the same
			// events; log them rather than double-reporting.
			for _, failure := range extractFailures {
				s.logger.WarnContext(gctx, "pattern extraction skipped event",
					slog.String("event", failure.Event.Key()),
					slog.String("reason", failure.Reason()))
			}

			stats, tooSmall, err := s.summarize(results)
			if err != nil {
				return fmt.Errorf("aggregation failed for %s: %w", instrument, err)
			}

			outcomes[i] = instrumentOutcome{
				results:        results,
				records:        records,
				failures:       failures,
				stats:          stats,
				sampleTooSmall: tooSmall,
			}

			infrastructure.RecordInstrumentMetrics(gctx, s.metrics, jobID, instrument,
				len(events), len(failures)+len(extractFailures), time.Since(instStart))

			if progress != nil {
				progress(int(completed.Add(1)), len(instruments), instrument)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	analysis = &UniverseAnalysis{
		GeneratedAt: time.Now().UTC(),
		HorizonDays: horizon,
		Threshold:   threshold,
		Spec:        spec,
		Statistics:  make(map[string]*recovery.RecoveryStatistics),
		Quality:     u.Quality,
	}
	for i, instrument := range instruments {
		outcome := outcomes[i]
		analysis.Reports = append(analysis.Reports,
			instrumentReportToDomain(instrument, outcome.results, outcome.stats, outcome.sampleTooSmall, outcome.failures))
		analysis.Results = append(analysis.Results, outcome.results...)
		analysis.Records = append(analysis.Records, outcome.records...)
		analysis.Failures = append(analysis.Failures, outcome.failures...)
		if outcome.stats != nil {
			analysis.Statistics[instrument] = outcome.stats
		}
	}

	if len(analysis.Records) > 0 {
		cells, err := pattern.Correlate(analysis.Records, spec)
		if err != nil {
			return nil, fmt.Errorf("correlation failed: %w", err)
		}
		analysis.Correlations = filterCells(cells, s.cfg.MinCorrelation, 0)
	}

	s.logger.InfoContext(ctx, "universe analysis completed",
		slog.String("job_id", jobID),
		slog.Int("instruments", len(instruments)),
		slog.Int("results", len(analysis.Results)),
		slog.Int("failures", len(analysis.Failures)),
		slog.Int("correlations", len(analysis.Correlations)),
		slog.Duration("duration", time.Since(start)))

	return analysis, nil
}

// extractUniverse builds pattern records for every analyzable instrument in
// sorted order, so record indexes are deterministic across calls against the
// same snapshot.
func (s *AnalyticsService) extractUniverse(ctx context.Context, u *Universe, spec pattern.WindowSpec) ([]pattern.PatternRecord, error) {
	extractor, err := pattern.NewExtractor(spec, s.logger)
	if err != nil {
		return nil, err
	}

	var records []pattern.PatternRecord
	for _, instrument := range u.analyzable() {
		events := u.Events[instrument]
		if len(events) == 0 {
			continue
		}
		recs, failures := extractor.ExtractAll(ctx, u.Series[instrument], events)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, failure := range failures {
			s.logger.WarnContext(ctx, "pattern extraction skipped event",
				slog.String("event", failure.Event.Key()),
				slog.String("reason", failure.Reason()))
		}
		records = append(records, recs...)
	}
	return records, nil
}

// summarize aggregates results, treating a too-small population as a
// reportable condition rather than an error.
func (s *AnalyticsService) summarize(results []recovery.RecoveryResult) (*recovery.RecoveryStatistics, bool, error) {
	params := recovery.SummaryParams{
		MinSampleSize: s.cfg.MinSampleSize,
		Percentiles:   append([]float64(nil), s.cfg.Percentiles...),
	}
	stats, err := recovery.Summarize(results, params)
	if err != nil {
		var insufficient *recovery.InsufficientSampleError
		if errors.As(err, &insufficient) {
			return nil, true, nil
		}
		return nil, false, err
	}
	return stats, false, nil
}

// filterCells keeps the defined cells at or above the floor in absolute
// value, preserving the engine's best-first order. A positive limit caps the
// output.
func filterCells(cells []pattern.CorrelationCell, floor float64, limit int) []pattern.CorrelationCell {
	out := make([]pattern.CorrelationCell, 0, len(cells))
	for _, cell := range cells {
		if !cell.Defined() || math.Abs(cell.Coefficient.Float64) < floor {
			continue
		}
		out = append(out, cell)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (s *AnalyticsService) horizonDays(opts AnalysisOptions) int {
	if opts.HorizonDays != nil {
		return *opts.HorizonDays
	}
	return s.cfg.MaxHorizonDays
}

func (s *AnalyticsService) threshold(opts AnalysisOptions) float64 {
	if opts.Threshold != nil {
		return *opts.Threshold
	}
	return s.cfg.RecoveryThreshold
}

// windowSpec builds the extraction spec from configuration. The window set
// itself is fixed; only horizons, baseline, and momentum periods vary.
func (s *AnalyticsService) windowSpec() pattern.WindowSpec {
	return pattern.WindowSpec{
		Windows:         pattern.DefaultWindows(),
		ForwardHorizons: append([]int(nil), s.cfg.ForwardHorizons...),
		BaselineDays:    s.cfg.BaselineDays,
		RSIPeriod:       s.cfg.RSIPeriod,
		StochPeriod:     s.cfg.StochPeriod,
	}
}

// workerLimit bounds the analysis fan-out. Zero workers in config means one
// per CPU.
func (s *AnalyticsService) workerLimit() int {
	if s.cfg.Workers > 0 {
		return s.cfg.Workers
	}
	return runtime.NumCPU()
}

// normalizeDay truncates a timestamp to its UTC calendar day, matching how
// the loader normalizes ex-dates.
func normalizeDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
