package exporter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"divrec/internal/recovery"
)

// formatFloat formats a float64 for CSV output with up to six decimal
// places and trailing zeros trimmed, so 13.40 appears as 13.4 and whole
// numbers carry no decimal point.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-0" {
		return "0"
	}
	return s
}

// formatValue formats a nullable scalar; absent values become empty cells.
func formatValue(v recovery.Value) string {
	if !v.Valid {
		return ""
	}
	return formatFloat(v.Float64)
}

// formatInt formats an int64 value for CSV output
func formatInt(i int64) string {
	return fmt.Sprintf("%d", i)
}

// formatBool formats a boolean value for CSV output
func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// formatDate formats a date for CSV output
func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// formatDatePtr formats an optional date; nil becomes an empty cell.
func formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDate(*t)
}
