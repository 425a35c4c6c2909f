package domain

import (
	"time"
)

// InstrumentSummary describes one loaded instrument: its price coverage,
// its distribution events, and whether its data passed quality checks.
type InstrumentSummary struct {
	Instrument string     `json:"instrument" validate:"required,min=1,max=12"`
	Bars       int        `json:"bars"`
	FirstDate  *time.Time `json:"first_date,omitempty"`
	LastDate   *time.Time `json:"last_date,omitempty"`
	EventCount int        `json:"event_count"`

	// Valid is false when quality checks found error-severity issues;
	// such instruments are listed but excluded from analysis.
	Valid    bool `json:"valid"`
	Errors   int  `json:"errors"`
	Warnings int  `json:"warnings"`
}

// UniverseSummary describes one load of the data universe.
type UniverseSummary struct {
	LoadedAt    time.Time `json:"loaded_at"`
	Instruments int       `json:"instruments"`
	TotalBars   int       `json:"total_bars"`
	TotalEvents int       `json:"total_events"`

	// InvalidInstruments lists instruments whose data failed quality
	// checks. They stay queryable through the quality report.
	InvalidInstruments []string `json:"invalid_instruments,omitempty"`
}

// QualityIssue is one data-quality finding.
type QualityIssue struct {
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// QualityReport carries an instrument's quality findings across the API
// boundary. Valid means no error-severity issues; warnings alone keep the
// instrument analyzable.
type QualityReport struct {
	Instrument string         `json:"instrument"`
	Valid      bool           `json:"valid"`
	Issues     []QualityIssue `json:"issues,omitempty"`

	TotalBars int        `json:"total_bars"`
	FirstDate *time.Time `json:"first_date,omitempty"`
	LastDate  *time.Time `json:"last_date,omitempty"`
	AvgClose  float64    `json:"avg_close,omitempty"`
	AvgVolume float64    `json:"avg_volume,omitempty"`
}
