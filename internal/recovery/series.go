package recovery

import (
	"sort"
	"time"
)

// Series is one instrument's ordered trading history. Bars are strictly
// increasing by date and unique; the series contains whatever trading days
// the adapter supplied, with no gap-filling.
type Series struct {
	Instrument string
	Bars       []PriceBar
}

// NewSeries wraps bars as a Series after verifying the ordering invariant.
// The engine trusts adapters to deliver clean, deduplicated data; the check
// here guards the invariant, it does not repair the input.
func NewSeries(instrument string, bars []PriceBar) (*Series, error) {
	if instrument == "" {
		return nil, &ValidationError{Field: "instrument", Message: "must not be empty"}
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Date.After(bars[i-1].Date) {
			return nil, &ValidationError{
				Field:   "bars",
				Message: "dates must be strictly increasing and unique",
				Value:   bars[i].Date.Format("2006-01-02"),
			}
		}
	}
	return &Series{Instrument: instrument, Bars: bars}, nil
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.Bars) }

// At returns the bar at index i.
func (s *Series) At(i int) PriceBar { return s.Bars[i] }

// First returns the earliest bar. Only meaningful when Len() > 0.
func (s *Series) First() PriceBar { return s.Bars[0] }

// Last returns the latest bar. Only meaningful when Len() > 0.
func (s *Series) Last() PriceBar { return s.Bars[len(s.Bars)-1] }

// IndexAtOrAfter returns the index of the first bar dated on or after date,
// or -1 when every bar precedes it. This is how an event's ex-date is
// matched to a trading day.
func (s *Series) IndexAtOrAfter(date time.Time) int {
	i := sort.Search(len(s.Bars), func(i int) bool {
		return !s.Bars[i].Date.Before(date)
	})
	if i == len(s.Bars) {
		return -1
	}
	return i
}

// Closes returns the closes of bars[from..to], both inclusive. Bounds must
// be valid for the series.
func (s *Series) Closes(from, to int) []float64 {
	closes := make([]float64, 0, to-from+1)
	for i := from; i <= to; i++ {
		closes = append(closes, s.Bars[i].Close)
	}
	return closes
}

// Volumes returns the volumes of bars[from..to], both inclusive. Bounds must
// be valid for the series.
func (s *Series) Volumes(from, to int) []float64 {
	volumes := make([]float64, 0, to-from+1)
	for i := from; i <= to; i++ {
		volumes = append(volumes, s.Bars[i].Volume)
	}
	return volumes
}
