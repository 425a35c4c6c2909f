package domain

import (
	"fmt"
	"time"
)

// RecoveryResult is the Single Source of Truth (SSOT) for one event's
// recovery verdict as it leaves the service boundary. Every API response,
// websocket payload, and export derives from this shape.
//
// Nullable fields use pointers: a nil pointer marshals to JSON null and
// means "not measurable", which is distinct from zero. GapRatio is nil when
// the theoretical drop is degenerate; RecoveryOffset, RecoveryDate, and
// RecoveryClose are nil for events that never recovered within the horizon.
type RecoveryResult struct {
	Instrument string    `json:"instrument" validate:"required,min=1,max=12"`
	ExDate     time.Time `json:"ex_date" validate:"required"`
	Amount     float64   `json:"amount" validate:"gt=0"`

	// Target anchoring: the last close before the ex-date and the price
	// the event must reach to count as recovered.
	ReferenceDate  time.Time `json:"reference_date"`
	ReferencePrice float64   `json:"reference_price"`
	TargetPrice    float64   `json:"target_price"`

	// Drop measurements on the ex-date bar.
	ExDateClose        float64  `json:"ex_date_close"`
	ObservedDropPct    float64  `json:"observed_drop_pct"`
	TheoreticalDropPct float64  `json:"theoretical_drop_pct"`
	GapRatio           *float64 `json:"gap_ratio"`

	// Recovery verdict.
	Recovered      bool       `json:"recovered"`
	RecoveryOffset *float64   `json:"recovery_offset"`
	RecoveryDate   *time.Time `json:"recovery_date"`
	RecoveryClose  *float64   `json:"recovery_close"`

	// Path diagnostics over the examined bars.
	MaxAdverseExcursionPct float64 `json:"max_adverse_excursion_pct"`
	BarsExamined           int     `json:"bars_examined"`
	Exhaustion             string  `json:"exhaustion"`
}

// Key identifies the event in logs, reports, and lookups.
func (r RecoveryResult) Key() string {
	return fmt.Sprintf("%s@%s", r.Instrument, r.ExDate.Format("2006-01-02"))
}

// PercentilePoint is one quantile of the recovery-offset distribution.
type PercentilePoint struct {
	Quantile float64 `json:"quantile"`
	Offset   float64 `json:"offset"`
}

// RecoveryStatistics aggregates a population of recovery results. MeanOffset
// and MedianOffset are nil when nothing in the population recovered, so "no
// events recovered" stays distinguishable from "average offset zero".
type RecoveryStatistics struct {
	EventCount     int     `json:"event_count"`
	RecoveredCount int     `json:"recovered_count"`
	TruncatedCount int     `json:"truncated_count"`
	WinRate        float64 `json:"win_rate"`

	MeanOffset        *float64          `json:"mean_offset"`
	MedianOffset      *float64          `json:"median_offset"`
	OffsetPercentiles []PercentilePoint `json:"offset_percentiles,omitempty"`

	MeanObservedDropPct        float64 `json:"mean_observed_drop_pct"`
	MeanMaxAdverseExcursionPct float64 `json:"mean_max_adverse_excursion_pct"`

	// Recovery speed buckets over recovered events: fast is an offset of
	// at most 3 trading days, normal 4-7, slow above 7.
	FastRecoveries   int `json:"fast_recoveries"`
	NormalRecoveries int `json:"normal_recoveries"`
	SlowRecoveries   int `json:"slow_recoveries"`
}

// EventFailure reports one event excluded from a batch and why. Failures
// ride alongside results; they never abort the rest of the batch.
type EventFailure struct {
	Instrument string    `json:"instrument"`
	ExDate     time.Time `json:"ex_date"`
	Amount     float64   `json:"amount"`
	Reason     string    `json:"reason"`
}

// CorrelationCell is one feature/outcome pair in the correlation ranking.
// Coefficient is nil when the pairwise-complete sample was too small for
// Pearson to be defined; an undefined cell is never reported as zero.
type CorrelationCell struct {
	Feature     string   `json:"feature"`
	Outcome     string   `json:"outcome"`
	Coefficient *float64 `json:"coefficient"`
	SampleSize  int      `json:"sample_size"`
}

// SimilarMatch is one historical analogue returned by a similarity query,
// ranked best-first.
type SimilarMatch struct {
	Rank       int       `json:"rank"`
	Instrument string    `json:"instrument"`
	ExDate     time.Time `json:"ex_date"`
	Similarity float64   `json:"similarity"`
	SharedDims int       `json:"shared_dims"`
}

// SimilarityResult pairs a similarity query's target event with its ranked
// matches. An empty Matches list means the search ran and nothing cleared
// the floor.
type SimilarityResult struct {
	Instrument string         `json:"instrument"`
	ExDate     time.Time      `json:"ex_date"`
	Matches    []SimilarMatch `json:"matches"`
}

// InstrumentReport bundles one instrument's full recovery analysis: the
// per-event verdicts, the aggregate statistics when the population clears
// the minimum sample size, and the events that could not be analyzed.
// Statistics is nil and SampleTooSmall is true when it does not.
type InstrumentReport struct {
	Instrument     string              `json:"instrument"`
	Results        []RecoveryResult    `json:"results"`
	Statistics     *RecoveryStatistics `json:"statistics,omitempty"`
	SampleTooSmall bool                `json:"sample_too_small,omitempty"`
	Failures       []EventFailure      `json:"failures,omitempty"`
}
