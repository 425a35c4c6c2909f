package dataprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"divrec/internal/recovery"
)

// Severity classifies a quality issue. Errors describe data that would
// corrupt analysis; warnings describe suspicious but usable data.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes reported by the Checker.
const (
	IssueNoPriceData       = "no_price_data"
	IssueHighBelowLow      = "high_below_low"
	IssueNonPositivePrice  = "non_positive_price"
	IssueNegativeVolume    = "negative_volume"
	IssueNonFiniteValue    = "non_finite_value"
	IssueHighBelowClose    = "high_below_close"
	IssueLowAboveClose     = "low_above_close"
	IssueHighBelowOpen     = "high_below_open"
	IssueLowAboveOpen      = "low_above_open"
	IssueLargePriceMove    = "large_price_move"
	IssueNoEvents          = "no_events"
	IssueDuplicateExDate   = "duplicate_ex_date"
	IssueNonPositiveAmount = "non_positive_amount"
	IssueExDateNoData      = "ex_date_no_data"
	IssueExDateNotTraded   = "ex_date_not_traded"
)

// largeMoveThreshold flags day-over-day close changes above 50% as suspect.
const largeMoveThreshold = 0.50

// exDateSearchWindowDays bounds how far from an ex-date price data may sit
// before the event is considered unanalyzable.
const exDateSearchWindowDays = 5

// Issue is a single quality finding for an instrument.
type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// PriceStats summarizes an instrument's loaded price history.
type PriceStats struct {
	TotalBars int       `json:"total_bars"`
	FirstDate time.Time `json:"first_date"`
	LastDate  time.Time `json:"last_date"`
	AvgClose  float64   `json:"avg_close"`
	AvgVolume float64   `json:"avg_volume"`
}

// QualityReport is the per-instrument result of a quality check. Valid is
// false when at least one error-severity issue was found; warnings alone
// leave the instrument analyzable.
type QualityReport struct {
	Instrument string     `json:"instrument"`
	Valid      bool       `json:"valid"`
	Issues     []Issue    `json:"issues,omitempty"`
	Stats      PriceStats `json:"stats"`
}

// Errors returns the error-severity issues in the report.
func (r QualityReport) Errors() []Issue {
	return r.filter(SeverityError)
}

// Warnings returns the warning-severity issues in the report.
func (r QualityReport) Warnings() []Issue {
	return r.filter(SeverityWarning)
}

func (r QualityReport) filter(sev Severity) []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == sev {
			out = append(out, issue)
		}
	}
	return out
}

// Checker inspects loaded prices and events for data-quality problems.
type Checker struct {
	logger *slog.Logger
}

// NewChecker creates a Checker. A nil logger falls back to slog.Default.
func NewChecker(logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{logger: logger}
}

// CheckAll runs quality checks for every instrument that appears in prices
// or events and returns the reports keyed by instrument. A failing
// instrument never aborts the batch; callers decide what to do with
// invalid reports.
func (c *Checker) CheckAll(ctx context.Context, prices map[string][]recovery.PriceBar, events []recovery.DistributionEvent) (map[string]QualityReport, error) {
	grouped := GroupEventsByInstrument(events)

	instruments := make(map[string]bool, len(prices))
	for instrument := range prices {
		instruments[instrument] = true
	}
	for instrument := range grouped {
		instruments[instrument] = true
	}

	ordered := make([]string, 0, len(instruments))
	for instrument := range instruments {
		ordered = append(ordered, instrument)
	}
	sort.Strings(ordered)

	reports := make(map[string]QualityReport, len(ordered))
	invalid := 0

	for _, instrument := range ordered {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during quality checks: %w", ctx.Err())
		default:
		}

		report := c.CheckInstrument(instrument, prices[instrument], grouped[instrument])
		if !report.Valid {
			invalid++
			c.logger.WarnContext(ctx, "instrument failed quality checks",
				"instrument", instrument,
				"errors", len(report.Errors()),
				"warnings", len(report.Warnings()),
			)
		}
		reports[instrument] = report
	}

	c.logger.InfoContext(ctx, "quality checks completed",
		"instruments", len(reports),
		"invalid", invalid,
	)

	return reports, nil
}

// CheckInstrument validates one instrument's bars and events and returns a
// combined report.
func (c *Checker) CheckInstrument(instrument string, bars []recovery.PriceBar, events []recovery.DistributionEvent) QualityReport {
	report := QualityReport{Instrument: instrument}

	report.Issues = append(report.Issues, checkPrices(bars)...)
	report.Issues = append(report.Issues, checkEvents(events, bars)...)
	report.Stats = computeStats(bars)

	report.Valid = true
	for _, issue := range report.Issues {
		if issue.Severity == SeverityError {
			report.Valid = false
			break
		}
	}

	return report
}

func checkPrices(bars []recovery.PriceBar) []Issue {
	if len(bars) == 0 {
		return []Issue{{
			Severity: SeverityError,
			Code:     IssueNoPriceData,
			Message:  "no price data loaded",
		}}
	}

	var (
		highBelowLow   int
		nonPositive    int
		negativeVolume int
		nonFinite      int
		highBelowClose int
		lowAboveClose  int
		highBelowOpen  int
		lowAboveOpen   int
		largeMoves     int
	)

	prevClose := 0.0
	for i, bar := range bars {
		if !finiteBar(bar) {
			nonFinite++
			continue
		}

		if bar.Open <= 0 || bar.High <= 0 || bar.Low <= 0 || bar.Close <= 0 {
			nonPositive++
		}
		if bar.High < bar.Low {
			highBelowLow++
		}
		if bar.Volume < 0 {
			negativeVolume++
		}

		if bar.High < bar.Close {
			highBelowClose++
		}
		if bar.Low > bar.Close {
			lowAboveClose++
		}
		if bar.High < bar.Open {
			highBelowOpen++
		}
		if bar.Low > bar.Open {
			lowAboveOpen++
		}

		if i > 0 && prevClose > 0 {
			change := math.Abs(bar.Close-prevClose) / prevClose
			if change > largeMoveThreshold {
				largeMoves++
			}
		}
		prevClose = bar.Close
	}

	var issues []Issue
	issues = appendCountIssue(issues, SeverityError, IssueNonFiniteValue, nonFinite, "%d rows with non-finite values")
	issues = appendCountIssue(issues, SeverityError, IssueHighBelowLow, highBelowLow, "%d rows where high < low")
	issues = appendCountIssue(issues, SeverityError, IssueNonPositivePrice, nonPositive, "%d rows with zero or negative prices")
	issues = appendCountIssue(issues, SeverityError, IssueNegativeVolume, negativeVolume, "%d rows with negative volume")
	issues = appendCountIssue(issues, SeverityWarning, IssueHighBelowClose, highBelowClose, "%d rows where high < close")
	issues = appendCountIssue(issues, SeverityWarning, IssueLowAboveClose, lowAboveClose, "%d rows where low > close")
	issues = appendCountIssue(issues, SeverityWarning, IssueHighBelowOpen, highBelowOpen, "%d rows where high < open")
	issues = appendCountIssue(issues, SeverityWarning, IssueLowAboveOpen, lowAboveOpen, "%d rows where low > open")
	issues = appendCountIssue(issues, SeverityWarning, IssueLargePriceMove, largeMoves, "%d day-over-day close moves above 50%%")
	return issues
}

func checkEvents(events []recovery.DistributionEvent, bars []recovery.PriceBar) []Issue {
	if len(events) == 0 {
		return []Issue{{
			Severity: SeverityWarning,
			Code:     IssueNoEvents,
			Message:  "no distribution events on record",
		}}
	}

	var issues []Issue

	seen := make(map[time.Time]int, len(events))
	for _, event := range events {
		seen[event.ExDate]++
	}
	duplicates := 0
	for _, n := range seen {
		if n > 1 {
			duplicates += n - 1
		}
	}
	issues = appendCountIssue(issues, SeverityError, IssueDuplicateExDate, duplicates, "%d duplicate ex-dates")

	barDates := make(map[time.Time]bool, len(bars))
	for _, bar := range bars {
		barDates[bar.Date] = true
	}

	for _, event := range events {
		day := event.ExDate.Format("2006-01-02")

		if event.Amount <= 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     IssueNonPositiveAmount,
				Message:  fmt.Sprintf("event %s: non-positive amount %.4f", day, event.Amount),
			})
		}

		// The ex-date cross-check needs price history; its absence is
		// already reported by checkPrices.
		if len(bars) == 0 {
			continue
		}
		if barDates[event.ExDate] {
			continue
		}
		if hasNearbyBar(barDates, event.ExDate) {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Code:     IssueExDateNotTraded,
				Message:  fmt.Sprintf("event %s: ex-date is not a trading day", day),
			})
		} else {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     IssueExDateNoData,
				Message:  fmt.Sprintf("event %s: no price data within %d days of ex-date", day, exDateSearchWindowDays),
			})
		}
	}

	return issues
}

func hasNearbyBar(barDates map[time.Time]bool, exDate time.Time) bool {
	for off := 1; off <= exDateSearchWindowDays; off++ {
		if barDates[exDate.AddDate(0, 0, off)] || barDates[exDate.AddDate(0, 0, -off)] {
			return true
		}
	}
	return false
}

func computeStats(bars []recovery.PriceBar) PriceStats {
	if len(bars) == 0 {
		return PriceStats{}
	}

	var sumClose, sumVolume float64
	for _, bar := range bars {
		sumClose += bar.Close
		sumVolume += bar.Volume
	}

	return PriceStats{
		TotalBars: len(bars),
		FirstDate: bars[0].Date,
		LastDate:  bars[len(bars)-1].Date,
		AvgClose:  sumClose / float64(len(bars)),
		AvgVolume: sumVolume / float64(len(bars)),
	}
}

func finiteBar(bar recovery.PriceBar) bool {
	for _, v := range []float64{bar.Open, bar.High, bar.Low, bar.Close, bar.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func appendCountIssue(issues []Issue, sev Severity, code string, count int, format string) []Issue {
	if count == 0 {
		return issues
	}
	return append(issues, Issue{
		Severity: sev,
		Code:     code,
		Message:  fmt.Sprintf(format, count),
	})
}

// GroupEventsByInstrument buckets a flat event list by instrument symbol.
func GroupEventsByInstrument(events []recovery.DistributionEvent) map[string][]recovery.DistributionEvent {
	grouped := make(map[string][]recovery.DistributionEvent)
	for _, event := range events {
		grouped[event.Instrument] = append(grouped[event.Instrument], event)
	}
	return grouped
}
