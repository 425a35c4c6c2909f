package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

// Detector finds the first trading day on or after an event's ex-date whose
// close reclaims the recovery target within a bounded horizon.
type Detector struct {
	horizonDays int
	threshold   float64
	logger      *slog.Logger
}

// NewDetector validates parameters and returns a Detector.
//
// horizonDays bounds the forward walk in trading days; threshold multiplies
// the reference price to form the target (1.0 = full recovery, values below
// detect partial recovery).
func NewDetector(horizonDays int, threshold float64, logger *slog.Logger) (*Detector, error) {
	if horizonDays <= 0 {
		return nil, &ValidationError{Field: "max_horizon_days", Message: "must be positive", Value: horizonDays}
	}
	if threshold <= 0 || threshold > MaxRecoveryThreshold {
		return nil, &ValidationError{
			Field:   "recovery_threshold",
			Message: fmt.Sprintf("must be in (0, %g]", MaxRecoveryThreshold),
			Value:   threshold,
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		horizonDays: horizonDays,
		threshold:   threshold,
		logger:      logger.With(slog.String("component", "recovery.detector")),
	}, nil
}

// Detect runs the forward walk for one event. Identical inputs always
// produce an identical result.
//
// The reference bar is the last bar strictly before the ex-date; the walk
// starts at the ex-date bar itself (offset 0, so a same-day recovery is
// detectable) and covers at most horizonDays+1 bars. The minimum close seen
// on every day of the walk populates the maximum adverse excursion whether
// or not recovery occurs.
func (d *Detector) Detect(series *Series, event DistributionEvent) (*RecoveryResult, error) {
	if series == nil || series.Len() == 0 {
		return nil, &InsufficientDataError{Instrument: event.Instrument, ExDate: event.ExDate}
	}

	exIdx := series.IndexAtOrAfter(event.ExDate)
	if exIdx == -1 {
		// Ex-date falls after the last bar: zero usable bars to walk.
		return nil, &InsufficientDataError{Instrument: series.Instrument, ExDate: event.ExDate}
	}
	if exIdx == 0 {
		// No bar precedes the ex-date, so no reference price exists.
		return nil, &EventNotFoundError{Instrument: series.Instrument, ExDate: event.ExDate}
	}

	ref := series.At(exIdx - 1)
	if ref.Close <= 0 {
		return nil, &ValidationError{Field: "reference_price", Message: "must be positive", Value: ref.Close}
	}

	target := RecoveryTarget{
		ReferenceDate:  ref.Date,
		ReferencePrice: ref.Close,
		Threshold:      d.threshold,
		TargetPrice:    ref.Close * d.threshold,
	}

	exBar := series.At(exIdx)
	result := &RecoveryResult{
		Instrument:         series.Instrument,
		ExDate:             exBar.Date,
		Amount:             event.Amount,
		Target:             target,
		ExDateClose:        exBar.Close,
		ObservedDropPct:    (ref.Close - exBar.Close) / ref.Close * 100,
		TheoreticalDropPct: event.Amount / ref.Close * 100,
	}
	if result.TheoreticalDropPct != 0 {
		result.GapRatio = Present(result.ObservedDropPct / result.TheoreticalDropPct)
	}

	// Offsets run 0..horizonDays inclusive, so the largest reportable
	// offset equals the horizon. A series that ends earlier leaves the
	// verdict open and must stay distinguishable from a full search.
	lastOffset := d.horizonDays
	if available := series.Len() - 1 - exIdx; available < lastOffset {
		lastOffset = available
		result.Exhaustion = ExhaustionAvailableData
	} else {
		result.Exhaustion = ExhaustionFullHorizon
	}

	minClose := math.Inf(1)
	for offset := 0; offset <= lastOffset; offset++ {
		bar := series.At(exIdx + offset)
		result.BarsExamined++
		if bar.Close < minClose {
			minClose = bar.Close
		}
		if bar.Close >= target.TargetPrice {
			recoveryDate := bar.Date
			result.Recovered = true
			result.Offset = Present(float64(offset))
			result.RecoveryDate = &recoveryDate
			result.RecoveryClose = Present(bar.Close)
			result.Exhaustion = ExhaustionNone
			break
		}
	}
	result.MaxAdverseExcursionPct = (minClose - ref.Close) / ref.Close * 100

	return result, nil
}

// DetectAll walks every event against the series, isolating per-event
// failures: one bad event never aborts the rest of the batch. Failures are
// logged at Warn and returned alongside the results so callers can report
// them explicitly instead of miscounting them as non-recoveries.
func (d *Detector) DetectAll(ctx context.Context, series *Series, events []DistributionEvent) ([]RecoveryResult, []EventFailure) {
	results := make([]RecoveryResult, 0, len(events))
	var failures []EventFailure

	for i, event := range events {
		if err := ctx.Err(); err != nil {
			for _, remaining := range events[i:] {
				failures = append(failures, EventFailure{Event: remaining, Err: err})
			}
			break
		}

		result, err := d.Detect(series, event)
		if err != nil {
			d.logger.WarnContext(ctx, "event skipped",
				slog.String("instrument", event.Instrument),
				slog.String("ex_date", event.ExDate.Format("2006-01-02")),
				slog.String("error", err.Error()))
			failures = append(failures, EventFailure{Event: event, Err: err})
			continue
		}
		results = append(results, *result)
	}

	return results, failures
}
