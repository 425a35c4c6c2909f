package dataprocessing

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"divrec/internal/recovery"
)

// priceFileRE matches per-instrument daily price files, e.g. ACME_daily.csv.
var priceFileRE = regexp.MustCompile(`^([A-Za-z0-9.]+)_daily\.csv$`)

// Loader reads price and distribution-event CSVs into engine types.
// Rows that fail to parse are logged and skipped so a few bad lines
// cannot sink a whole file; semantic validation (negative amounts,
// inverted ranges) is left to the quality Checker.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a Loader. A nil logger falls back to slog.Default.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// LoadPriceDir loads every <INSTRUMENT>_daily.csv found directly under dir
// and returns bars keyed by instrument. Files that fail to load are logged
// and skipped so one corrupt file cannot abort the batch.
func (l *Loader) LoadPriceDir(ctx context.Context, dir string) (map[string][]recovery.PriceBar, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("price directory does not exist: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read price directory: %w", err)
	}

	prices := make(map[string][]recovery.PriceBar)

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during price loading: %w", ctx.Err())
		default:
		}

		if entry.IsDir() {
			continue
		}
		instrument, ok := instrumentFromFilename(entry.Name())
		if !ok {
			continue
		}

		bars, err := l.LoadPriceCSV(filepath.Join(dir, entry.Name()))
		if err != nil {
			l.logger.WarnContext(ctx, "failed to load price CSV",
				"file", entry.Name(),
				"error", err,
			)
			continue
		}
		prices[instrument] = bars
	}

	if len(prices) == 0 {
		return nil, fmt.Errorf("no price CSV files loaded from %s", dir)
	}

	l.logger.InfoContext(ctx, "price data loaded",
		"dir", dir,
		"instruments", len(prices),
	)

	return prices, nil
}

// LoadPriceCSV loads a single instrument's daily bars. Header names are
// matched flexibly (Date/Open/High/Low/Close/Volume and common variants);
// a file without a header row is read positionally in that order. Bars are
// deduplicated by calendar day and returned in chronological order.
func (l *Loader) LoadPriceCSV(path string) ([]recovery.PriceBar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open price CSV: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read price CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty price CSV")
	}

	cols, dataStart, err := mapPriceColumns(records[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if len(records) <= dataStart {
		return nil, fmt.Errorf("price CSV contains only a header")
	}

	byDate := make(map[time.Time]recovery.PriceBar)
	for i := dataStart; i < len(records); i++ {
		bar, err := parsePriceRecord(records[i], cols, i+1)
		if err != nil {
			l.logger.Warn("failed to parse price record",
				"file", filepath.Base(path),
				"line", i+1,
				"error", err,
			)
			continue
		}
		// Later rows win: re-exported files append corrected bars.
		byDate[bar.Date] = bar
	}

	if len(byDate) == 0 {
		return nil, fmt.Errorf("no parsable rows in %s", filepath.Base(path))
	}

	bars := make([]recovery.PriceBar, 0, len(byDate))
	for _, bar := range byDate {
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})

	return bars, nil
}

// LoadEventsCSV loads the distribution-events CSV. Header names are matched
// flexibly (instrument/symbol/ticker, ex_date and variants, amount/dividend
// and variants, optional declared drop); a file without a header row is read
// positionally as instrument,ex_date,amount. Events are returned sorted by
// instrument then ex-date. Duplicate (instrument, ex-date) pairs are kept so
// the quality Checker can report them.
func (l *Loader) LoadEventsCSV(path string) ([]recovery.DistributionEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open events CSV: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read events CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty events CSV")
	}

	cols, dataStart, err := mapEventColumns(records[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if len(records) <= dataStart {
		return nil, fmt.Errorf("events CSV contains only a header")
	}

	var events []recovery.DistributionEvent
	for i := dataStart; i < len(records); i++ {
		event, err := parseEventRecord(records[i], cols, i+1)
		if err != nil {
			l.logger.Warn("failed to parse event record",
				"file", filepath.Base(path),
				"line", i+1,
				"error", err,
			)
			continue
		}
		events = append(events, event)
	}

	if len(events) == 0 {
		return nil, fmt.Errorf("no parsable rows in %s", filepath.Base(path))
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].Instrument != events[j].Instrument {
			return events[i].Instrument < events[j].Instrument
		}
		return events[i].ExDate.Before(events[j].ExDate)
	})

	return events, nil
}

// instrumentFromFilename extracts the instrument symbol from a price file
// name following the <INSTRUMENT>_daily.csv convention.
func instrumentFromFilename(name string) (string, bool) {
	m := priceFileRE.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1]), true
}

// priceColumns holds the resolved column index for each bar field.
// volume is -1 when the file carries no volume column.
type priceColumns struct {
	date, open, high, low, close, volume int
}

func mapPriceColumns(header []string) (priceColumns, int, error) {
	if !isHeaderRow(header) {
		// Positional layout: Date,Open,High,Low,Close,Volume.
		if len(header) < 5 {
			return priceColumns{}, 0, fmt.Errorf("expected at least 5 columns, got %d", len(header))
		}
		return priceColumns{date: 0, open: 1, high: 2, low: 3, close: 4, volume: 5}, 0, nil
	}

	cols := priceColumns{date: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	adjClose := -1

	for i, cell := range header {
		switch normalizeHeader(cell) {
		case "date", "datetime", "day", "trade_date", "trading_date":
			if cols.date == -1 {
				cols.date = i
			}
		case "open", "opening", "open_price", "opening_price":
			if cols.open == -1 {
				cols.open = i
			}
		case "high", "highest", "high_price", "highest_price":
			if cols.high == -1 {
				cols.high = i
			}
		case "low", "lowest", "low_price", "lowest_price":
			if cols.low == -1 {
				cols.low = i
			}
		case "close", "closing", "close_price", "closing_price":
			if cols.close == -1 {
				cols.close = i
			}
		case "adj_close", "adjusted_close", "adjclose":
			if adjClose == -1 {
				adjClose = i
			}
		case "volume", "vol", "traded_volume":
			if cols.volume == -1 {
				cols.volume = i
			}
		}
	}

	if cols.close == -1 {
		cols.close = adjClose
	}

	missing := missingPriceColumns(cols)
	if len(missing) > 0 {
		return priceColumns{}, 0, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, 1, nil
}

func missingPriceColumns(cols priceColumns) []string {
	var missing []string
	for _, c := range []struct {
		name string
		idx  int
	}{
		{"date", cols.date},
		{"open", cols.open},
		{"high", cols.high},
		{"low", cols.low},
		{"close", cols.close},
	} {
		if c.idx == -1 {
			missing = append(missing, c.name)
		}
	}
	return missing
}

func parsePriceRecord(record []string, cols priceColumns, lineNum int) (recovery.PriceBar, error) {
	dateStr, err := fieldAt(record, cols.date, "date", lineNum)
	if err != nil {
		return recovery.PriceBar{}, err
	}
	date, err := parseDate(strings.TrimSpace(dateStr))
	if err != nil {
		return recovery.PriceBar{}, fmt.Errorf("parse date (line %d): %w", lineNum, err)
	}

	open, err := parseFloatAt(record, cols.open, "open", lineNum)
	if err != nil {
		return recovery.PriceBar{}, err
	}
	high, err := parseFloatAt(record, cols.high, "high", lineNum)
	if err != nil {
		return recovery.PriceBar{}, err
	}
	low, err := parseFloatAt(record, cols.low, "low", lineNum)
	if err != nil {
		return recovery.PriceBar{}, err
	}
	closePrice, err := parseFloatAt(record, cols.close, "close", lineNum)
	if err != nil {
		return recovery.PriceBar{}, err
	}

	// Volume defaults to 0 when the column is absent or empty.
	var volume float64
	if cols.volume >= 0 && cols.volume < len(record) && strings.TrimSpace(record[cols.volume]) != "" {
		volume, err = parseFloat(record[cols.volume], "volume", lineNum)
		if err != nil {
			return recovery.PriceBar{}, err
		}
	}

	return recovery.PriceBar{
		Date:   normalizeDay(date),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}, nil
}

// eventColumns holds the resolved column index for each event field.
// declaredDrop is -1 when the file carries no declared-drop column.
type eventColumns struct {
	instrument, exDate, amount, declaredDrop int
}

func mapEventColumns(header []string) (eventColumns, int, error) {
	if !isEventsHeaderRow(header) {
		// Positional layout: instrument,ex_date,amount.
		if len(header) < 3 {
			return eventColumns{}, 0, fmt.Errorf("expected at least 3 columns, got %d", len(header))
		}
		return eventColumns{instrument: 0, exDate: 1, amount: 2, declaredDrop: -1}, 0, nil
	}

	cols := eventColumns{instrument: -1, exDate: -1, amount: -1, declaredDrop: -1}
	for i, cell := range header {
		switch normalizeHeader(cell) {
		case "instrument", "symbol", "ticker", "code":
			if cols.instrument == -1 {
				cols.instrument = i
			}
		case "ex_date", "exdate", "ex_dividend_date", "ex_div_date", "date":
			if cols.exDate == -1 {
				cols.exDate = i
			}
		case "amount", "dividend", "dividend_amount", "cash_amount", "amount_per_share", "value":
			if cols.amount == -1 {
				cols.amount = i
			}
		case "declared_drop_pct", "declared_drop", "expected_drop_pct":
			if cols.declaredDrop == -1 {
				cols.declaredDrop = i
			}
		}
	}

	var missing []string
	if cols.instrument == -1 {
		missing = append(missing, "instrument")
	}
	if cols.exDate == -1 {
		missing = append(missing, "ex_date")
	}
	if cols.amount == -1 {
		missing = append(missing, "amount")
	}
	if len(missing) > 0 {
		return eventColumns{}, 0, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, 1, nil
}

func parseEventRecord(record []string, cols eventColumns, lineNum int) (recovery.DistributionEvent, error) {
	instStr, err := fieldAt(record, cols.instrument, "instrument", lineNum)
	if err != nil {
		return recovery.DistributionEvent{}, err
	}
	instrument := strings.ToUpper(strings.TrimSpace(instStr))
	if instrument == "" {
		return recovery.DistributionEvent{}, fmt.Errorf("empty instrument (line %d)", lineNum)
	}

	dateStr, err := fieldAt(record, cols.exDate, "ex_date", lineNum)
	if err != nil {
		return recovery.DistributionEvent{}, err
	}
	exDate, err := parseDate(strings.TrimSpace(dateStr))
	if err != nil {
		return recovery.DistributionEvent{}, fmt.Errorf("parse ex_date (line %d): %w", lineNum, err)
	}

	amount, err := parseFloatAt(record, cols.amount, "amount", lineNum)
	if err != nil {
		return recovery.DistributionEvent{}, err
	}

	var declaredDrop recovery.Value
	if cols.declaredDrop >= 0 && cols.declaredDrop < len(record) && strings.TrimSpace(record[cols.declaredDrop]) != "" {
		v, err := parseFloat(record[cols.declaredDrop], "declared_drop_pct", lineNum)
		if err != nil {
			return recovery.DistributionEvent{}, err
		}
		declaredDrop = recovery.Present(v)
	}

	return recovery.DistributionEvent{
		Instrument:      instrument,
		ExDate:          normalizeDay(exDate),
		Amount:          amount,
		DeclaredDropPct: declaredDrop,
	}, nil
}

// parseDate attempts to parse date strings in multiple formats.
func parseDate(dateStr string) (time.Time, error) {
	dateFormats := []string{
		"2006-01-02",          // ISO format
		"01/02/2006",          // US format
		"02/01/2006",          // European format
		"2006/01/02",          // Alternative ISO
		"2006-01-02 15:04:05", // With time
		"01-02-2006",          // US with dashes
		"02-01-2006",          // European with dashes
	}

	for _, format := range dateFormats {
		if date, err := time.Parse(format, dateStr); err == nil {
			return date, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}

// normalizeDay truncates a parsed timestamp to midnight UTC so bars from
// files with differing time components align on calendar days.
func normalizeDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func fieldAt(record []string, idx int, name string, lineNum int) (string, error) {
	if idx < 0 || idx >= len(record) {
		return "", fmt.Errorf("missing %s column (line %d)", name, lineNum)
	}
	return record[idx], nil
}

func parseFloatAt(record []string, idx int, name string, lineNum int) (float64, error) {
	str, err := fieldAt(record, idx, name, lineNum)
	if err != nil {
		return 0, err
	}
	return parseFloat(str, name, lineNum)
}

// parseFloat safely parses a float64 value from string. Thousands
// separators are stripped before parsing.
func parseFloat(str, fieldName string, lineNum int) (float64, error) {
	str = strings.TrimSpace(strings.ReplaceAll(str, ",", ""))
	if str == "" {
		return 0, fmt.Errorf("empty %s (line %d)", fieldName, lineNum)
	}

	value, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s (line %d): %w", fieldName, lineNum, err)
	}

	return value, nil
}

// isHeaderRow checks if the first row of a price CSV contains headers.
func isHeaderRow(record []string) bool {
	if len(record) == 0 {
		return false
	}

	headers := []string{"date", "open", "high", "low", "close", "volume"}
	firstCell := strings.ToLower(strings.TrimSpace(record[0]))

	for _, header := range headers {
		if strings.Contains(firstCell, header) {
			return true
		}
	}

	// Try parsing as date - if it fails, likely a header.
	_, err := parseDate(strings.TrimSpace(record[0]))
	return err != nil
}

// isEventsHeaderRow checks if the first row of an events CSV contains
// headers. Event rows lead with an instrument symbol, so the date test
// used for price files does not apply here.
func isEventsHeaderRow(record []string) bool {
	known := map[string]bool{
		"instrument": true, "symbol": true, "ticker": true, "code": true,
		"ex_date": true, "exdate": true, "ex_dividend_date": true, "ex_div_date": true,
		"amount": true, "dividend": true, "dividend_amount": true, "cash_amount": true,
	}
	for _, cell := range record {
		if known[normalizeHeader(cell)] {
			return true
		}
	}
	return false
}

// normalizeHeader lower-cases a header cell and folds spaces and hyphens
// to underscores so "Ex-Date" and "ex date" both match "ex_date".
func normalizeHeader(cell string) string {
	cell = strings.ToLower(strings.TrimSpace(cell))
	cell = strings.ReplaceAll(cell, " ", "_")
	cell = strings.ReplaceAll(cell, "-", "_")
	return cell
}
