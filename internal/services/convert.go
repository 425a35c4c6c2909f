package services

import (
	"time"

	"divrec/internal/dataprocessing"
	"divrec/internal/pattern"
	"divrec/internal/recovery"
	"divrec/pkg/contracts/domain"
)

// Mapping between engine types and the outbound contract types. The engine
// marks unmeasurable values with recovery.Value; outbound they become nil
// pointers so JSON consumers see null, never a fabricated zero.

// valuePtr converts an optional engine measurement to its outbound pointer
// form, nil when absent.
func valuePtr(v recovery.Value) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timePtr(t time.Time) *time.Time { return &t }

// universeSummary derives the outbound summary from a snapshot.
func universeSummary(u *Universe) *domain.UniverseSummary {
	summary := &domain.UniverseSummary{
		LoadedAt:    u.LoadedAt,
		Instruments: len(u.Quality),
	}
	for _, report := range u.Quality {
		summary.TotalBars += report.Stats.TotalBars
	}
	for _, events := range u.Events {
		summary.TotalEvents += len(events)
	}
	for _, instrument := range u.Instruments() {
		if !u.Quality[instrument].Valid {
			summary.InvalidInstruments = append(summary.InvalidInstruments, instrument)
		}
	}
	return summary
}

func instrumentSummaryToDomain(u *Universe, instrument string) domain.InstrumentSummary {
	report := u.Quality[instrument]
	summary := domain.InstrumentSummary{
		Instrument: instrument,
		Bars:       report.Stats.TotalBars,
		EventCount: len(u.Events[instrument]),
		Valid:      report.Valid,
		Errors:     len(report.Errors()),
		Warnings:   len(report.Warnings()),
	}
	if report.Stats.TotalBars > 0 {
		summary.FirstDate = timePtr(report.Stats.FirstDate)
		summary.LastDate = timePtr(report.Stats.LastDate)
	}
	return summary
}

func qualityReportToDomain(report dataprocessing.QualityReport) domain.QualityReport {
	out := domain.QualityReport{
		Instrument: report.Instrument,
		Valid:      report.Valid,
		TotalBars:  report.Stats.TotalBars,
		AvgClose:   report.Stats.AvgClose,
		AvgVolume:  report.Stats.AvgVolume,
	}
	if report.Stats.TotalBars > 0 {
		out.FirstDate = timePtr(report.Stats.FirstDate)
		out.LastDate = timePtr(report.Stats.LastDate)
	}
	for _, issue := range report.Issues {
		out.Issues = append(out.Issues, domain.QualityIssue{
			Severity: string(issue.Severity),
			Code:     issue.Code,
			Message:  issue.Message,
		})
	}
	return out
}

func recoveryResultToDomain(r recovery.RecoveryResult) domain.RecoveryResult {
	out := domain.RecoveryResult{
		Instrument:             r.Instrument,
		ExDate:                 r.ExDate,
		Amount:                 r.Amount,
		ReferenceDate:          r.Target.ReferenceDate,
		ReferencePrice:         r.Target.ReferencePrice,
		TargetPrice:            r.Target.TargetPrice,
		ExDateClose:            r.ExDateClose,
		ObservedDropPct:        r.ObservedDropPct,
		TheoreticalDropPct:     r.TheoreticalDropPct,
		GapRatio:               valuePtr(r.GapRatio),
		Recovered:              r.Recovered,
		RecoveryOffset:         valuePtr(r.Offset),
		RecoveryClose:          valuePtr(r.RecoveryClose),
		MaxAdverseExcursionPct: r.MaxAdverseExcursionPct,
		BarsExamined:           r.BarsExamined,
		Exhaustion:             r.Exhaustion.String(),
	}
	if r.RecoveryDate != nil {
		out.RecoveryDate = timePtr(*r.RecoveryDate)
	}
	return out
}

func recoveryStatisticsToDomain(stats *recovery.RecoveryStatistics) *domain.RecoveryStatistics {
	if stats == nil {
		return nil
	}
	out := &domain.RecoveryStatistics{
		EventCount:                 stats.EventCount,
		RecoveredCount:             stats.RecoveredCount,
		TruncatedCount:             stats.TruncatedCount,
		WinRate:                    stats.WinRate,
		MeanOffset:                 valuePtr(stats.MeanOffset),
		MedianOffset:               valuePtr(stats.MedianOffset),
		MeanObservedDropPct:        stats.MeanObservedDropPct,
		MeanMaxAdverseExcursionPct: stats.MeanMaxAdverseExcursionPct,
		FastRecoveries:             stats.FastRecoveries,
		NormalRecoveries:           stats.NormalRecoveries,
		SlowRecoveries:             stats.SlowRecoveries,
	}
	for _, p := range stats.OffsetPercentiles {
		out.OffsetPercentiles = append(out.OffsetPercentiles, domain.PercentilePoint{
			Quantile: p.Quantile,
			Offset:   p.Offset,
		})
	}
	return out
}

func eventFailureToDomain(f recovery.EventFailure) domain.EventFailure {
	return domain.EventFailure{
		Instrument: f.Event.Instrument,
		ExDate:     f.Event.ExDate,
		Amount:     f.Event.Amount,
		Reason:     f.Reason(),
	}
}

func instrumentReportToDomain(instrument string, results []recovery.RecoveryResult, stats *recovery.RecoveryStatistics, sampleTooSmall bool, failures []recovery.EventFailure) domain.InstrumentReport {
	report := domain.InstrumentReport{
		Instrument:     instrument,
		Results:        make([]domain.RecoveryResult, 0, len(results)),
		Statistics:     recoveryStatisticsToDomain(stats),
		SampleTooSmall: sampleTooSmall,
	}
	for _, r := range results {
		report.Results = append(report.Results, recoveryResultToDomain(r))
	}
	for _, f := range failures {
		report.Failures = append(report.Failures, eventFailureToDomain(f))
	}
	return report
}

func correlationCellToDomain(c pattern.CorrelationCell) domain.CorrelationCell {
	return domain.CorrelationCell{
		Feature:     c.FeatureKey,
		Outcome:     c.OutcomeKey,
		Coefficient: valuePtr(c.Coefficient),
		SampleSize:  c.SampleSize,
	}
}

func correlationCellsToDomain(cells []pattern.CorrelationCell) []domain.CorrelationCell {
	if len(cells) == 0 {
		return nil
	}
	out := make([]domain.CorrelationCell, 0, len(cells))
	for _, cell := range cells {
		out = append(out, correlationCellToDomain(cell))
	}
	return out
}

func similarityResultToDomain(target pattern.PatternRecord, neighbors []pattern.Neighbor) *domain.SimilarityResult {
	result := &domain.SimilarityResult{
		Instrument: target.Instrument,
		ExDate:     target.ExDate,
		Matches:    make([]domain.SimilarMatch, 0, len(neighbors)),
	}
	for i, n := range neighbors {
		result.Matches = append(result.Matches, domain.SimilarMatch{
			Rank:       i + 1,
			Instrument: n.Instrument,
			ExDate:     n.ExDate,
			Similarity: n.Similarity,
			SharedDims: n.SharedDims,
		})
	}
	return result
}
