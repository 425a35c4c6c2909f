// Package recovery implements dividend-recovery detection over daily price
// series. Given a cash distribution that mechanically depresses a quoted
// price on its ex-date, the detector finds whether and when the close
// reclaims the pre-event reference level within a bounded horizon, and the
// aggregator turns many such detections into win-rate and risk statistics.
//
// Everything in this package is a pure function of its explicit inputs:
// no ambient configuration, no shared mutable state, no I/O.
package recovery

import (
	"encoding/json"
	"fmt"
	"time"
)

// Default analysis parameters. Callers pass parameters explicitly into
// every call; these are starting points, not ambient state.
const (
	DefaultMaxHorizonDays    = 30
	DefaultRecoveryThreshold = 1.0
	DefaultMinSampleSize     = 20

	// MaxRecoveryThreshold bounds the threshold multiplier. Targets more
	// than 20% above the reference price are outside recognized use.
	MaxRecoveryThreshold = 1.2

	// Recovery speed buckets, in trading days since the ex-date.
	FastRecoveryMaxDays   = 3
	NormalRecoveryMaxDays = 7
)

// DefaultPercentiles are the quantiles reported for recovery offsets.
var DefaultPercentiles = []float64{0.25, 0.50, 0.75}

// Value is a float64 that may be explicitly absent. Measurements that
// cannot be computed are absent, never a fabricated zero, so downstream
// consumers handle missing data uniformly. The zero Value is absent.
type Value struct {
	Float64 float64
	Valid   bool
}

// Present returns a Value carrying v.
func Present(v float64) Value { return Value{Float64: v, Valid: true} }

// MarshalJSON encodes an absent Value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Float64)
}

// UnmarshalJSON decodes null as absent.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	if err := json.Unmarshal(data, &v.Float64); err != nil {
		return err
	}
	v.Valid = true
	return nil
}

// PriceBar is one trading day of an instrument's history.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// IsValid reports whether the bar carries usable prices.
func (b PriceBar) IsValid() bool {
	return !b.Date.IsZero() &&
		b.Open > 0 && b.High > 0 && b.Low > 0 && b.Close > 0 &&
		b.High >= b.Low &&
		b.Volume >= 0
}

// DistributionEvent is a cash distribution that reduces the quoted price on
// its ex-date. Events are immutable once passed into the engine. The ex-date
// is matched to the nearest available trading day at or after it.
type DistributionEvent struct {
	Instrument      string    `json:"instrument"`
	ExDate          time.Time `json:"ex_date"`
	Amount          float64   `json:"amount"`
	DeclaredDropPct Value     `json:"declared_drop_pct"`
}

// Validate checks the event for basic sanity.
func (e DistributionEvent) Validate() error {
	if e.Instrument == "" {
		return &ValidationError{Field: "instrument", Message: "must not be empty"}
	}
	if e.ExDate.IsZero() {
		return &ValidationError{Field: "ex_date", Message: "must be set"}
	}
	if e.Amount <= 0 {
		return &ValidationError{Field: "amount", Message: "must be positive", Value: e.Amount}
	}
	return nil
}

// Key identifies the event in logs and reports.
func (e DistributionEvent) Key() string {
	return fmt.Sprintf("%s@%s", e.Instrument, e.ExDate.Format("2006-01-02"))
}

// RecoveryTarget is the level the close must reclaim, derived from the last
// trading day strictly before the ex-date.
type RecoveryTarget struct {
	ReferenceDate  time.Time `json:"reference_date"`
	ReferencePrice float64   `json:"reference_price"`
	Threshold      float64   `json:"threshold"`
	TargetPrice    float64   `json:"target_price"`
}

// Exhaustion states how the detector's forward walk ended.
type Exhaustion int

const (
	// ExhaustionNone: the walk stopped because the price recovered.
	ExhaustionNone Exhaustion = iota
	// ExhaustionFullHorizon: the full horizon was searched without recovery.
	ExhaustionFullHorizon
	// ExhaustionAvailableData: the series ended before the horizon was
	// covered. Non-recovery here is an open verdict, not a final one, and
	// aggregates must keep the distinction visible.
	ExhaustionAvailableData
)

// String returns the exhaustion state name.
func (e Exhaustion) String() string {
	switch e {
	case ExhaustionNone:
		return "none"
	case ExhaustionFullHorizon:
		return "full-horizon"
	case ExhaustionAvailableData:
		return "available-data"
	default:
		return fmt.Sprintf("Exhaustion(%d)", int(e))
	}
}

// MarshalJSON encodes the exhaustion state by name.
func (e Exhaustion) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// RecoveryResult is the detector's verdict for a single event. Created once,
// immutable thereafter, consumed by the aggregator and by exporters.
type RecoveryResult struct {
	Instrument string         `json:"instrument"`
	ExDate     time.Time      `json:"ex_date"`
	Amount     float64        `json:"amount"`
	Target     RecoveryTarget `json:"target"`

	ExDateClose        float64 `json:"ex_date_close"`
	ObservedDropPct    float64 `json:"observed_drop_pct"`
	TheoreticalDropPct float64 `json:"theoretical_drop_pct"`

	// GapRatio compares the observed drop to the theoretical one. A value
	// near 1 means the market priced the distribution almost exactly;
	// absent when the theoretical drop is zero.
	GapRatio Value `json:"gap_ratio"`

	Recovered     bool       `json:"recovered"`
	Offset        Value      `json:"recovery_offset"`
	RecoveryDate  *time.Time `json:"recovery_date,omitempty"`
	RecoveryClose Value      `json:"recovery_close"`

	// MaxAdverseExcursionPct is the lowest close observed during the walk,
	// as a percentage move from the reference price.
	MaxAdverseExcursionPct float64    `json:"max_adverse_excursion_pct"`
	BarsExamined           int        `json:"bars_examined"`
	Exhaustion             Exhaustion `json:"exhaustion"`
}

// EventFailure pairs an event with the error that excluded it from a batch.
// Per-event failures never abort processing of the rest of a batch.
type EventFailure struct {
	Event DistributionEvent `json:"event"`
	Err   error             `json:"-"`
}

// Reason returns the failure's error text for reporting.
func (f EventFailure) Reason() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

// ValidationError describes invalid input parameters or data.
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (value: %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// EventNotFoundError reports an event whose ex-date precedes the first
// available bar, leaving no reference price to measure recovery against.
type EventNotFoundError struct {
	Instrument string
	ExDate     time.Time
}

// Error implements the error interface.
func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("event not found: %s ex-date %s precedes available history",
		e.Instrument, e.ExDate.Format("2006-01-02"))
}

// InsufficientDataError reports an event with zero usable bars at or after
// its ex-date. Such events are excluded from aggregates entirely; treating
// them as non-recoveries would silently bias win rates downward.
type InsufficientDataError struct {
	Instrument string
	ExDate     time.Time
}

// Error implements the error interface.
func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %s has no bars at or after ex-date %s",
		e.Instrument, e.ExDate.Format("2006-01-02"))
}

// InsufficientSampleError reports an aggregate requested over fewer results
// than the configured minimum. Distinct from a population where nothing
// recovered: "no events recovered" and "not enough events to judge" have
// opposite implications for decision-making.
type InsufficientSampleError struct {
	Count         int
	MinSampleSize int
}

// Error implements the error interface.
func (e *InsufficientSampleError) Error() string {
	return fmt.Sprintf("insufficient sample: %d results, need at least %d",
		e.Count, e.MinSampleSize)
}
