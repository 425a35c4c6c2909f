package recovery

import (
	"math"
	"sort"
)

// SummaryParams controls aggregation of recovery results.
type SummaryParams struct {
	// MinSampleSize is the smallest population the aggregator will report
	// on. Smaller populations yield InsufficientSampleError.
	MinSampleSize int
	// Percentiles are the quantiles reported for recovery offsets, each in
	// [0, 1].
	Percentiles []float64
}

// DefaultSummaryParams returns the standard aggregation parameters.
func DefaultSummaryParams() SummaryParams {
	return SummaryParams{
		MinSampleSize: DefaultMinSampleSize,
		Percentiles:   append([]float64(nil), DefaultPercentiles...),
	}
}

// Validate checks the parameters.
func (p SummaryParams) Validate() error {
	if p.MinSampleSize < 1 {
		return &ValidationError{Field: "min_sample_size", Message: "must be at least 1", Value: p.MinSampleSize}
	}
	for _, q := range p.Percentiles {
		if q < 0 || q > 1 {
			return &ValidationError{Field: "percentiles", Message: "quantiles must be in [0, 1]", Value: q}
		}
	}
	return nil
}

// PercentilePoint is one quantile of the recovery-offset distribution.
type PercentilePoint struct {
	Quantile float64 `json:"quantile"`
	Offset   float64 `json:"offset"`
}

// RecoveryStatistics summarizes a population of RecoveryResult. Recomputed
// on demand from the results; never persisted as the source of truth.
//
// Offset statistics cover recovered events only; win rate and the drop and
// excursion means cover every result in the population. TruncatedCount
// reports non-recoveries whose walk ran out of data rather than horizon so
// callers can judge how much an incomplete tail may bias the win rate.
type RecoveryStatistics struct {
	EventCount     int     `json:"event_count"`
	RecoveredCount int     `json:"recovered_count"`
	TruncatedCount int     `json:"truncated_count"`
	WinRate        float64 `json:"win_rate"`

	MeanOffset        Value             `json:"mean_offset"`
	MedianOffset      Value             `json:"median_offset"`
	OffsetPercentiles []PercentilePoint `json:"offset_percentiles,omitempty"`

	MeanObservedDropPct        float64 `json:"mean_observed_drop_pct"`
	MeanMaxAdverseExcursionPct float64 `json:"mean_max_adverse_excursion_pct"`

	FastRecoveries   int `json:"fast_recoveries"`
	NormalRecoveries int `json:"normal_recoveries"`
	SlowRecoveries   int `json:"slow_recoveries"`
}

// Summarize aggregates results into RecoveryStatistics. It refuses
// populations smaller than params.MinSampleSize rather than reporting
// misleadingly precise statistics, and works over whatever grouping the
// caller assembled: one instrument, or an arbitrary pool of events.
func Summarize(results []RecoveryResult, params SummaryParams) (*RecoveryStatistics, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(results) < params.MinSampleSize {
		return nil, &InsufficientSampleError{Count: len(results), MinSampleSize: params.MinSampleSize}
	}

	stats := &RecoveryStatistics{EventCount: len(results)}
	offsets := make([]float64, 0, len(results))

	for _, r := range results {
		stats.MeanObservedDropPct += r.ObservedDropPct
		stats.MeanMaxAdverseExcursionPct += r.MaxAdverseExcursionPct

		if !r.Recovered {
			if r.Exhaustion == ExhaustionAvailableData {
				stats.TruncatedCount++
			}
			continue
		}

		stats.RecoveredCount++
		offset := r.Offset.Float64
		offsets = append(offsets, offset)
		switch {
		case offset <= FastRecoveryMaxDays:
			stats.FastRecoveries++
		case offset <= NormalRecoveryMaxDays:
			stats.NormalRecoveries++
		default:
			stats.SlowRecoveries++
		}
	}

	count := float64(stats.EventCount)
	stats.MeanObservedDropPct /= count
	stats.MeanMaxAdverseExcursionPct /= count
	stats.WinRate = float64(stats.RecoveredCount) / count

	if len(offsets) > 0 {
		sort.Float64s(offsets)
		stats.MeanOffset = Present(mean(offsets))
		stats.MedianOffset = Present(percentile(offsets, 0.5))
		stats.OffsetPercentiles = make([]PercentilePoint, 0, len(params.Percentiles))
		for _, q := range params.Percentiles {
			stats.OffsetPercentiles = append(stats.OffsetPercentiles, PercentilePoint{
				Quantile: q,
				Offset:   percentile(offsets, q),
			})
		}
	}

	return stats, nil
}

// mean of a non-empty slice.
func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// percentile returns the q-quantile of sorted values using linear
// interpolation between order statistics.
func percentile(sorted []float64, q float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	index := q * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
