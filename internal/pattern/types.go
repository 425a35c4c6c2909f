// Package pattern relates pre-event price behavior to post-event outcomes.
// A window feature extractor turns each distribution event into one flat
// record of named measurements over labelled pre-event windows plus a D-1
// snapshot; a correlation analyzer ranks feature/outcome relationships
// across a population of such records with pairwise-complete Pearson; a
// similarity matcher finds an event's nearest historical analogues by
// cosine similarity over z-score-normalized feature dimensions.
//
// Like the recovery package, everything here is a pure function of its
// explicit inputs, and measurements that cannot be computed stay absent
// (recovery.Value) instead of collapsing to zero.
package pattern

import (
	"fmt"
	"strings"
	"time"

	"divrec/internal/recovery"
)

// Default extraction and matching parameters. Callers pass parameters
// explicitly into every call; these are starting points, not ambient state.
const (
	DefaultBaselineDays = 60
	DefaultRSIPeriod    = 14
	DefaultStochPeriod  = 14

	DefaultTopK            = 5
	DefaultSimilarityFloor = 0.8
	DefaultMinPatterns     = 3
	DefaultMinCorrelation  = 0.3

	// MinBaselineBars is the fewest trailing bars a volume baseline may be
	// averaged from before it is considered meaningless.
	MinBaselineBars = 10

	// MinPairedObservations is the fewest paired observations a correlation
	// cell needs; below it the cell is undefined, never zero.
	MinPairedObservations = 3

	// MinSharedDimensions is the fewest feature dimensions two vectors must
	// share for their cosine similarity to be defined.
	MinSharedDimensions = 2
)

// DefaultForwardHorizons are the post-event offsets, in trading days, at
// which outcomes are measured.
var DefaultForwardHorizons = []int{5, 10, 15, 20, 30}

// Per-window feature names. A record keys each as "<window label>_<name>".
const (
	FeatureTrendPct       = "trend_pct"
	FeatureVolatility     = "volatility"
	FeatureVolumeRatio    = "volume_ratio"
	FeatureVolumeTrendPct = "volume_trend_pct"
	FeatureMaxDrawdownPct = "max_drawdown_pct"
	FeatureUpDays         = "up_days"
	FeatureDownDays       = "down_days"
	FeatureAvgVolume      = "avg_volume"
)

// Snapshot feature keys, measured on the last bar before the ex-date.
const (
	SnapshotClose  = "D-1_close"
	SnapshotVolume = "D-1_volume"
	SnapshotRSI    = "D-1_rsi"
	SnapshotStochK = "D-1_stoch_k"
)

// windowFeatureNames fixes the per-window key order used in reports.
var windowFeatureNames = []string{
	FeatureTrendPct,
	FeatureVolatility,
	FeatureVolumeRatio,
	FeatureVolumeTrendPct,
	FeatureMaxDrawdownPct,
	FeatureUpDays,
	FeatureDownDays,
	FeatureAvgVolume,
}

// snapshotKeys fixes the snapshot key order used in reports.
var snapshotKeys = []string{
	SnapshotClose,
	SnapshotVolume,
	SnapshotRSI,
	SnapshotStochK,
}

// FeatureWindow is a labelled pre-event interval. Offsets are trading-day
// counts relative to the ex-date bar (offset 0), so both are negative and
// Start < End: D-5..D-3 covers three bars ending two days before the event.
type FeatureWindow struct {
	Label string `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Bars returns the number of trading days the window covers.
func (w FeatureWindow) Bars() int { return w.End - w.Start + 1 }

// DefaultWindows returns the standard pre-event window set.
func DefaultWindows() []FeatureWindow {
	return []FeatureWindow{
		{Label: "D-40_D-30", Start: -40, End: -30},
		{Label: "D-30_D-20", Start: -30, End: -20},
		{Label: "D-20_D-15", Start: -20, End: -15},
		{Label: "D-15_D-5", Start: -15, End: -5},
		{Label: "D-5_D-3", Start: -5, End: -3},
		{Label: "D-3_D-1", Start: -3, End: -1},
	}
}

// WindowSpec configures feature extraction: the pre-event windows, the
// post-event horizons, the trailing volume baseline, and the momentum
// periods for the D-1 snapshot.
type WindowSpec struct {
	Windows         []FeatureWindow `json:"windows"`
	ForwardHorizons []int           `json:"forward_horizons"`
	BaselineDays    int             `json:"baseline_days"`
	RSIPeriod       int             `json:"rsi_period"`
	StochPeriod     int             `json:"stoch_period"`
}

// DefaultWindowSpec returns the standard extraction parameters.
func DefaultWindowSpec() WindowSpec {
	return WindowSpec{
		Windows:         DefaultWindows(),
		ForwardHorizons: append([]int(nil), DefaultForwardHorizons...),
		BaselineDays:    DefaultBaselineDays,
		RSIPeriod:       DefaultRSIPeriod,
		StochPeriod:     DefaultStochPeriod,
	}
}

// Validate checks the spec.
func (s WindowSpec) Validate() error {
	if len(s.Windows) == 0 {
		return &recovery.ValidationError{Field: "windows", Message: "must not be empty"}
	}
	seen := make(map[string]struct{}, len(s.Windows))
	for _, w := range s.Windows {
		if w.Label == "" {
			return &recovery.ValidationError{Field: "windows", Message: "labels must not be empty"}
		}
		if _, dup := seen[w.Label]; dup {
			return &recovery.ValidationError{Field: "windows", Message: "labels must be unique", Value: w.Label}
		}
		seen[w.Label] = struct{}{}
		if w.Start >= w.End || w.End > -1 {
			return &recovery.ValidationError{
				Field:   "windows",
				Message: "offsets must satisfy start < end <= -1",
				Value:   fmt.Sprintf("%s [%d, %d]", w.Label, w.Start, w.End),
			}
		}
	}
	if len(s.ForwardHorizons) == 0 {
		return &recovery.ValidationError{Field: "forward_horizons", Message: "must not be empty"}
	}
	prev := 0
	for _, h := range s.ForwardHorizons {
		if h <= prev {
			return &recovery.ValidationError{
				Field:   "forward_horizons",
				Message: "must be positive and strictly increasing",
				Value:   h,
			}
		}
		prev = h
	}
	if s.BaselineDays < MinBaselineBars {
		return &recovery.ValidationError{
			Field:   "baseline_days",
			Message: fmt.Sprintf("must be at least %d", MinBaselineBars),
			Value:   s.BaselineDays,
		}
	}
	if s.RSIPeriod < 1 {
		return &recovery.ValidationError{Field: "rsi_period", Message: "must be positive", Value: s.RSIPeriod}
	}
	if s.StochPeriod < 1 {
		return &recovery.ValidationError{Field: "stoch_period", Message: "must be positive", Value: s.StochPeriod}
	}
	return nil
}

// FeatureKeys returns every feature key a record built from this spec
// carries, in deterministic report order: window features first, window by
// window, then the D-1 snapshot.
func (s WindowSpec) FeatureKeys() []string {
	keys := make([]string, 0, len(s.Windows)*len(windowFeatureNames)+len(snapshotKeys))
	for _, w := range s.Windows {
		for _, name := range windowFeatureNames {
			keys = append(keys, w.Label+"_"+name)
		}
	}
	return append(keys, snapshotKeys...)
}

// SimilarityKeys returns the feature keys compared during similarity search:
// the full key set minus raw price and volume levels, which describe the
// instrument's size rather than the shape of its pre-event pattern.
func (s WindowSpec) SimilarityKeys() []string {
	all := s.FeatureKeys()
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if k == SnapshotClose || k == SnapshotVolume || strings.HasSuffix(k, "_"+FeatureAvgVolume) {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// OutcomeKeys returns the outcome keys in horizon order.
func (s WindowSpec) OutcomeKeys() []string {
	keys := make([]string, 0, len(s.ForwardHorizons))
	for _, h := range s.ForwardHorizons {
		keys = append(keys, OutcomeKey(h))
	}
	return keys
}

// OutcomeKey names the outcome measured h trading days after the ex-date.
func OutcomeKey(h int) string { return fmt.Sprintf("D+%d", h) }

// PatternRecord is one event's feature and outcome row. Every key the window
// spec defines is present in the maps; measurements that could not be computed
// carry explicit absent Values so rows stay rectangular. Immutable once
// produced.
type PatternRecord struct {
	Instrument     string    `json:"instrument"`
	ExDate         time.Time `json:"ex_date"`
	Amount         float64   `json:"amount"`
	ReferencePrice float64   `json:"reference_price"`
	ExDateClose    float64   `json:"ex_date_close"`

	Features map[string]recovery.Value `json:"features"`
	Outcomes map[string]recovery.Value `json:"outcomes"`
}

// Key identifies the record in logs and reports.
func (r PatternRecord) Key() string {
	return fmt.Sprintf("%s@%s", r.Instrument, r.ExDate.Format("2006-01-02"))
}

// UndefinedSimilarityError reports a similarity query whose target vector
// carries too few usable dimensions to compare against anything. Distinct
// from an empty neighbor list, which means the search ran and nothing
// cleared the floor.
type UndefinedSimilarityError struct {
	Instrument string
	ExDate     time.Time
	Dimensions int
}

// Error implements the error interface.
func (e *UndefinedSimilarityError) Error() string {
	return fmt.Sprintf("similarity undefined: %s@%s has %d usable feature dimensions, need at least %d",
		e.Instrument, e.ExDate.Format("2006-01-02"), e.Dimensions, MinSharedDimensions)
}
