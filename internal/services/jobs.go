package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"divrec/internal/exporter"
	"divrec/internal/infrastructure"
	"divrec/pkg/contracts/domain"
)

// JobOptions configure an asynchronous full-universe analysis job.
type JobOptions struct {
	Analysis AnalysisOptions
	// Reload re-reads the universe from disk before analyzing.
	Reload bool
	// Export writes the CSV and workbook reports once analysis succeeds.
	Export bool
}

// analysisJob tracks one asynchronous universe analysis. The id and cancel
// func are immutable; everything else is guarded by mu.
type analysisJob struct {
	id     string
	cancel context.CancelFunc

	mu    sync.RWMutex
	state domain.AnalysisJob
}

func (j *analysisJob) snapshot() domain.AnalysisJob {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

func (j *analysisJob) start(ts time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Status != domain.JobStatusPending {
		return
	}
	j.state.Status = domain.JobStatusRunning
	j.state.StartedAt = &ts
}

// setProgress updates the progress block unless the job already finished,
// so a straggling worker callback cannot resurrect a cancelled job.
func (j *analysisJob) setProgress(p domain.JobProgress) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Status.IsTerminal() {
		return false
	}
	j.state.Progress = p
	return true
}

// finish moves the job to a terminal status exactly once. Later transitions
// are ignored, so a cancel request and a failing run cannot fight over the
// final state.
func (j *analysisJob) finish(status domain.JobStatus, mutate func(*domain.AnalysisJob)) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Status.IsTerminal() {
		return false
	}
	now := time.Now().UTC()
	j.state.Status = status
	j.state.EndedAt = &now
	if mutate != nil {
		mutate(&j.state)
	}
	return true
}

// StartAnalysisJob launches a full-universe analysis in the background and
// returns its initial state. Progress is broadcast over the hub as the run
// advances; the terminal state carries the reports or the failure.
func (s *AnalyticsService) StartAnalysisJob(ctx context.Context, opts JobOptions) (domain.AnalysisJob, error) {
	if !opts.Reload {
		if _, err := s.snapshot(); err != nil {
			return domain.AnalysisJob{}, err
		}
	}

	// The job outlives the request that started it.
	jobCtx, cancel := context.WithCancel(context.Background())

	job := &analysisJob{
		id:     uuid.New().String(),
		cancel: cancel,
		state: domain.AnalysisJob{
			Status:    domain.JobStatusPending,
			CreatedAt: time.Now().UTC(),
		},
	}
	job.state.ID = job.id

	s.jobsMu.Lock()
	s.jobs[job.id] = job
	s.jobsMu.Unlock()

	s.logger.InfoContext(ctx, "analysis job created",
		slog.String("job_id", job.id),
		slog.Bool("reload", opts.Reload),
		slog.Bool("export", opts.Export))

	go s.runAnalysisJob(jobCtx, job, opts)

	return job.snapshot(), nil
}

// JobStatus returns the current state of a job.
func (s *AnalyticsService) JobStatus(ctx context.Context, jobID string) (domain.AnalysisJob, error) {
	job, err := s.findJob(jobID)
	if err != nil {
		return domain.AnalysisJob{}, err
	}
	return job.snapshot(), nil
}

// ListJobs returns all known jobs, newest first. A non-empty status filters
// the list.
func (s *AnalyticsService) ListJobs(ctx context.Context, status domain.JobStatus) ([]domain.AnalysisJob, error) {
	s.jobsMu.RLock()
	jobs := make([]domain.AnalysisJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		state := job.snapshot()
		if status != "" && state.Status != status {
			continue
		}
		jobs = append(jobs, state)
	}
	s.jobsMu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs, nil
}

// CancelJob cancels a running or pending job.
func (s *AnalyticsService) CancelJob(ctx context.Context, jobID string) (domain.AnalysisJob, error) {
	job, err := s.findJob(jobID)
	if err != nil {
		return domain.AnalysisJob{}, err
	}

	finished := job.finish(domain.JobStatusCancelled, func(state *domain.AnalysisJob) {
		state.Progress.Message = "cancellation requested"
	})
	if !finished {
		state := job.snapshot()
		return state, fmt.Errorf("%w: %s is %s", ErrJobNotRunning, jobID, state.Status)
	}

	job.cancel()
	infrastructure.RecordJobCancellation(ctx, s.metrics, jobID, "universe", "requested")

	s.logger.InfoContext(ctx, "analysis job cancelled",
		slog.String("job_id", jobID))

	state := job.snapshot()
	s.hub.Broadcast("job_cancelled", state)
	return state, nil
}

// CancelAllJobs cancels every non-terminal job, for shutdown.
func (s *AnalyticsService) CancelAllJobs(ctx context.Context) {
	s.jobsMu.RLock()
	jobs := make([]*analysisJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	s.jobsMu.RUnlock()

	for _, job := range jobs {
		finished := job.finish(domain.JobStatusCancelled, func(state *domain.AnalysisJob) {
			state.Progress.Message = "cancelled during shutdown"
		})
		if !finished {
			continue
		}
		job.cancel()
		infrastructure.RecordJobCancellation(ctx, s.metrics, job.id, "universe", "shutdown")
		s.hub.Broadcast("job_cancelled", job.snapshot())
	}
}

// ActiveJobCount returns the number of pending or running jobs.
func (s *AnalyticsService) ActiveJobCount() int {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	active := 0
	for _, job := range s.jobs {
		if !job.snapshot().Status.IsTerminal() {
			active++
		}
	}
	return active
}

func (s *AnalyticsService) findJob(jobID string) (*analysisJob, error) {
	s.jobsMu.RLock()
	job, ok := s.jobs[jobID]
	s.jobsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job, nil
}

// runAnalysisJob drives one job from pending to a terminal state.
func (s *AnalyticsService) runAnalysisJob(ctx context.Context, job *analysisJob, opts JobOptions) {
	logger := s.logger.With(slog.String("job_id", job.id))

	infrastructure.RecordActiveJobChange(ctx, s.metrics, 1, "universe")
	defer infrastructure.RecordActiveJobChange(ctx, s.metrics, -1, "universe")

	started := time.Now().UTC()
	job.start(started)
	s.hub.Broadcast("job_started", job.snapshot())

	if opts.Reload {
		if _, err := s.LoadUniverse(ctx); err != nil {
			s.finishJob(ctx, job, err)
			return
		}
	}

	progress := func(done, total int, instrument string) {
		pct := 0.0
		if total > 0 {
			pct = float64(done) / float64(total) * 100
		}
		updated := job.setProgress(domain.JobProgress{
			Current:    done,
			Total:      total,
			Percentage: pct,
			Instrument: instrument,
			Message:    fmt.Sprintf("analyzed %d of %d instruments", done, total),
		})
		if updated {
			s.hub.Broadcast("job_progress", job.snapshot())
		}
	}

	analysis, err := s.AnalyzeUniverse(ctx, job.id, opts.Analysis, progress)
	if err != nil {
		s.finishJob(ctx, job, err)
		return
	}

	var files []string
	if opts.Export {
		files, err = s.ExportAnalysis(ctx, analysis, domain.ExportFormatAll)
		if err != nil {
			s.finishJob(ctx, job, err)
			return
		}
	}

	finished := job.finish(domain.JobStatusCompleted, func(state *domain.AnalysisJob) {
		state.Reports = analysis.Reports
		state.Correlations = correlationCellsToDomain(analysis.Correlations)
		state.ReportFiles = files
		state.Progress.Percentage = 100
		state.Progress.Message = "analysis complete"
	})
	if !finished {
		// Cancelled while assembling output; the cancel path already
		// broadcast the terminal state.
		return
	}

	logger.Info("analysis job completed",
		slog.Int("instruments", len(analysis.Reports)),
		slog.Int("results", len(analysis.Results)),
		slog.Int("report_files", len(files)),
		slog.Duration("duration", time.Since(started)))
	s.hub.Broadcast("job_completed", job.snapshot())
}

// finishJob marks a failed or cancelled run and broadcasts the terminal
// state, unless a cancel request got there first.
func (s *AnalyticsService) finishJob(ctx context.Context, job *analysisJob, err error) {
	if errors.Is(err, context.Canceled) {
		if job.finish(domain.JobStatusCancelled, nil) {
			s.hub.Broadcast("job_cancelled", job.snapshot())
		}
		return
	}

	finished := job.finish(domain.JobStatusFailed, func(state *domain.AnalysisJob) {
		state.Error = err.Error()
	})
	if !finished {
		return
	}

	s.logger.ErrorContext(ctx, "analysis job failed",
		slog.String("job_id", job.id),
		slog.String("error", err.Error()))
	s.hub.Broadcast("job_failed", job.snapshot())
}

// ExportReports analyzes the loaded universe synchronously and writes the
// report files for the requested format. Format selects the CSV report set,
// the Excel workbook, or both ("all", the default when empty).
func (s *AnalyticsService) ExportReports(ctx context.Context, format string, opts AnalysisOptions) ([]string, error) {
	analysis, err := s.AnalyzeUniverse(ctx, "", opts, nil)
	if err != nil {
		return nil, err
	}
	return s.ExportAnalysis(ctx, analysis, format)
}

// ExportAnalysis writes an already-computed analysis into the configured
// report tree and returns the files written. Callers that need both the
// in-memory analysis and the report files use this to avoid analyzing twice.
func (s *AnalyticsService) ExportAnalysis(ctx context.Context, analysis *UniverseAnalysis, format string) ([]string, error) {
	if err := s.paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to prepare report directories: %w", err)
	}

	writeCSV := format == "" || format == domain.ExportFormatAll || format == domain.ExportFormatCSV
	writeXLSX := format == "" || format == domain.ExportFormatAll || format == domain.ExportFormatXLSX

	recoveryExp := exporter.NewRecoveryExporter(s.paths)
	patternExp := exporter.NewPatternExporter(s.paths)

	files := make([]string, 0, 7)

	if writeCSV {
		if err := recoveryExp.ExportResults(analysis.Results, s.paths.RecoveryResultsCSV); err != nil {
			return nil, fmt.Errorf("failed to export recovery results: %w", err)
		}
		files = append(files, s.paths.RecoveryResultsCSV)

		if err := recoveryExp.ExportStatistics(analysis.Statistics, s.paths.RecoveryStatsCSV); err != nil {
			return nil, fmt.Errorf("failed to export recovery statistics: %w", err)
		}
		files = append(files, s.paths.RecoveryStatsCSV)

		if len(analysis.Failures) > 0 {
			path := filepath.Join(s.paths.RecoveryReportsDir, "recovery_failures.csv")
			if err := recoveryExp.ExportFailures(analysis.Failures, path); err != nil {
				return nil, fmt.Errorf("failed to export recovery failures: %w", err)
			}
			files = append(files, path)
		}

		if err := patternExp.ExportCorrelations(analysis.Correlations, s.paths.CorrelationRankingCSV); err != nil {
			return nil, fmt.Errorf("failed to export correlation ranking: %w", err)
		}
		files = append(files, s.paths.CorrelationRankingCSV)

		patternRecordsPath := filepath.Join(s.paths.PatternReportsDir, "pattern_records.csv")
		if err := patternExp.ExportPatternRecords(analysis.Records, analysis.Spec, patternRecordsPath); err != nil {
			return nil, fmt.Errorf("failed to export pattern records: %w", err)
		}
		files = append(files, patternRecordsPath)

		qualityPath := filepath.Join(s.paths.SummaryReportsDir, "data_quality.csv")
		if err := recoveryExp.ExportQualityReports(analysis.Quality, qualityPath); err != nil {
			return nil, fmt.Errorf("failed to export quality reports: %w", err)
		}
		files = append(files, qualityPath)
	}

	if writeXLSX {
		workbook := exporter.NewWorkbookExporter()
		data := exporter.WorkbookData{
			GeneratedAt:  analysis.GeneratedAt,
			Results:      analysis.Results,
			Statistics:   analysis.Statistics,
			Correlations: analysis.Correlations,
			Quality:      analysis.Quality,
		}
		if err := workbook.ExportWorkbook(data, s.paths.AnalyticsWorkbook); err != nil {
			return nil, fmt.Errorf("failed to export workbook: %w", err)
		}
		files = append(files, s.paths.AnalyticsWorkbook)
	}

	s.logger.InfoContext(ctx, "analysis reports written",
		slog.Int("files", len(files)),
		slog.String("reports_dir", s.paths.ReportsDir))

	return files, nil
}
