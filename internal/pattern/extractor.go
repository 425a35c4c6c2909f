package pattern

import (
	"context"
	"log/slog"
	"math"

	"divrec/internal/recovery"
)

// Extractor derives one PatternRecord per distribution event: features over
// the spec's pre-event windows plus a D-1 snapshot, and outcomes at the
// spec's forward horizons, all measured on a single instrument's series.
type Extractor struct {
	spec   WindowSpec
	logger *slog.Logger
}

// NewExtractor validates the spec and returns an Extractor.
func NewExtractor(spec WindowSpec, logger *slog.Logger) (*Extractor, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		spec:   spec,
		logger: logger.With(slog.String("component", "pattern.extractor")),
	}, nil
}

// Spec returns the extraction parameters.
func (e *Extractor) Spec() WindowSpec { return e.spec }

// Extract builds the record for one event. The ex-date is matched to the
// first trading day at or after it, exactly as the recovery detector matches
// it, so features and recovery verdicts line up event for event. Windows
// reaching past the start of the series yield absent values, never zeros.
func (e *Extractor) Extract(series *recovery.Series, event recovery.DistributionEvent) (*PatternRecord, error) {
	if series == nil || series.Len() == 0 {
		return nil, &recovery.InsufficientDataError{Instrument: event.Instrument, ExDate: event.ExDate}
	}

	exIdx := series.IndexAtOrAfter(event.ExDate)
	if exIdx == -1 {
		return nil, &recovery.InsufficientDataError{Instrument: series.Instrument, ExDate: event.ExDate}
	}
	if exIdx == 0 {
		return nil, &recovery.EventNotFoundError{Instrument: series.Instrument, ExDate: event.ExDate}
	}

	ref := series.At(exIdx - 1)
	if ref.Close <= 0 {
		return nil, &recovery.ValidationError{Field: "reference_price", Message: "must be positive", Value: ref.Close}
	}

	exBar := series.At(exIdx)
	record := &PatternRecord{
		Instrument:     series.Instrument,
		ExDate:         exBar.Date,
		Amount:         event.Amount,
		ReferencePrice: ref.Close,
		ExDateClose:    exBar.Close,
		Features:       make(map[string]recovery.Value, len(e.spec.Windows)*len(windowFeatureNames)+len(snapshotKeys)),
		Outcomes:       make(map[string]recovery.Value, len(e.spec.ForwardHorizons)),
	}

	baseline := e.volumeBaseline(series, exIdx)
	for _, w := range e.spec.Windows {
		e.windowFeatures(record.Features, series, exIdx, w, baseline)
	}
	e.snapshotFeatures(record.Features, series, exIdx)

	for _, h := range e.spec.ForwardHorizons {
		record.Outcomes[OutcomeKey(h)] = outcomeAt(series, exIdx, h, ref.Close)
	}

	return record, nil
}

// ExtractAll extracts a record per event, isolating per-event failures the
// same way the recovery detector's batch walk does: one bad event never
// aborts the rest, and cancellation fails the not-yet-visited remainder.
func (e *Extractor) ExtractAll(ctx context.Context, series *recovery.Series, events []recovery.DistributionEvent) ([]PatternRecord, []recovery.EventFailure) {
	records := make([]PatternRecord, 0, len(events))
	var failures []recovery.EventFailure

	for i, event := range events {
		if err := ctx.Err(); err != nil {
			for _, remaining := range events[i:] {
				failures = append(failures, recovery.EventFailure{Event: remaining, Err: err})
			}
			break
		}

		record, err := e.Extract(series, event)
		if err != nil {
			e.logger.WarnContext(ctx, "event skipped",
				slog.String("instrument", event.Instrument),
				slog.String("ex_date", event.ExDate.Format("2006-01-02")),
				slog.String("error", err.Error()))
			failures = append(failures, recovery.EventFailure{Event: event, Err: err})
			continue
		}
		records = append(records, *record)
	}

	return records, failures
}

// volumeBaseline is the mean volume over up to BaselineDays bars ending just
// before the earliest pre-event window. A tail shorter than MinBaselineBars,
// or one that never traded, gives no baseline and every volume ratio built
// on it stays absent.
func (e *Extractor) volumeBaseline(series *recovery.Series, exIdx int) recovery.Value {
	earliest := e.spec.Windows[0].Start
	for _, w := range e.spec.Windows[1:] {
		if w.Start < earliest {
			earliest = w.Start
		}
	}

	end := exIdx + earliest - 1
	if end < 0 {
		return recovery.Value{}
	}
	start := end - e.spec.BaselineDays + 1
	if start < 0 {
		start = 0
	}
	if end-start+1 < MinBaselineBars {
		return recovery.Value{}
	}

	m := mean(series.Volumes(start, end))
	if m <= 0 {
		return recovery.Value{}
	}
	return recovery.Present(m)
}

// windowFeatures fills the feature keys for one window. A window reaching
// past the first bar yields absent values under every key; the keys
// themselves always exist.
func (e *Extractor) windowFeatures(features map[string]recovery.Value, series *recovery.Series, exIdx int, w FeatureWindow, baseline recovery.Value) {
	key := func(name string) string { return w.Label + "_" + name }

	start, end := exIdx+w.Start, exIdx+w.End
	if start < 0 {
		for _, name := range windowFeatureNames {
			features[key(name)] = recovery.Value{}
		}
		return
	}

	closes := series.Closes(start, end)
	volumes := series.Volumes(start, end)

	features[key(FeatureTrendPct)] = relativeChangePct(closes[0], closes[len(closes)-1])
	features[key(FeatureVolatility)] = returnVolatilityPct(closes)
	features[key(FeatureVolumeTrendPct)] = relativeChangePct(volumes[0], volumes[len(volumes)-1])
	features[key(FeatureMaxDrawdownPct)] = drawdownPct(closes)

	up, down := directionCounts(closes)
	features[key(FeatureUpDays)] = recovery.Present(float64(up))
	features[key(FeatureDownDays)] = recovery.Present(float64(down))

	avg := mean(volumes)
	features[key(FeatureAvgVolume)] = recovery.Present(avg)
	if baseline.Valid {
		features[key(FeatureVolumeRatio)] = recovery.Present(avg / baseline.Float64)
	} else {
		features[key(FeatureVolumeRatio)] = recovery.Value{}
	}
}

// snapshotFeatures measures the last bar before the ex-date: its close and
// volume, plus RSI and Stochastic %K computed over the history ending there.
func (e *Extractor) snapshotFeatures(features map[string]recovery.Value, series *recovery.Series, exIdx int) {
	prev := series.At(exIdx - 1)
	features[SnapshotClose] = recovery.Present(prev.Close)
	features[SnapshotVolume] = recovery.Present(prev.Volume)
	features[SnapshotRSI] = relativeStrength(series.Closes(0, exIdx-1), e.spec.RSIPeriod)
	features[SnapshotStochK] = stochasticK(series.Bars[:exIdx], e.spec.StochPeriod)
}

// outcomeAt is the cumulative return from the reference price to the close
// h trading days after the ex-date bar, in percent. Absent when the series
// ends first.
func outcomeAt(series *recovery.Series, exIdx, h int, referencePrice float64) recovery.Value {
	idx := exIdx + h
	if idx >= series.Len() {
		return recovery.Value{}
	}
	return recovery.Present((series.At(idx).Close/referencePrice - 1) * 100)
}

// relativeChangePct is the percent change from first to last, absent when
// the base is not positive.
func relativeChangePct(first, last float64) recovery.Value {
	if first <= 0 {
		return recovery.Value{}
	}
	return recovery.Present((last/first - 1) * 100)
}

// returnVolatilityPct is the sample standard deviation of daily simple
// returns over the closes, in percent. Fewer than two usable returns leave
// dispersion undefined.
func returnVolatilityPct(closes []float64) recovery.Value {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	if len(returns) < 2 {
		return recovery.Value{}
	}
	return recovery.Present(stddev(returns) * 100)
}

// drawdownPct is the lowest close against the highest close in the window.
func drawdownPct(closes []float64) recovery.Value {
	lo, hi := closes[0], closes[0]
	for _, c := range closes[1:] {
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	if hi <= 0 {
		return recovery.Value{}
	}
	return recovery.Present((lo/hi - 1) * 100)
}

// directionCounts counts up and down close-over-close moves in the window.
func directionCounts(closes []float64) (up, down int) {
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			up++
		case closes[i] < closes[i-1]:
			down++
		}
	}
	return up, down
}

// mean of a non-empty slice.
func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the sample standard deviation (n−1 denominator); callers ensure
// at least two values.
func stddev(values []float64) float64 {
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
