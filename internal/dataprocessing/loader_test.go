package dataprocessing

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader() *Loader {
	return NewLoader(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

func writeTempCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func day(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", value)
	require.NoError(t, err)
	return d.UTC()
}

func TestLoadPriceCSV(t *testing.T) {
	loader := newTestLoader()

	t.Run("standard header with duplicates and unsorted rows", func(t *testing.T) {
		path := writeTempCSV(t, t.TempDir(), "ACME_daily.csv",
			"Date,Open,High,Low,Close,Volume\n"+
				"2024-01-03,10,11,9,10.5,1000\n"+
				"2024-01-02,9,10,8,9.5,900\n"+
				"2024-01-03,10,12,9,11,1100\n")

		bars, err := loader.LoadPriceCSV(path)
		require.NoError(t, err)
		require.Len(t, bars, 2)

		assert.Equal(t, day(t, "2024-01-02"), bars[0].Date)
		assert.Equal(t, day(t, "2024-01-03"), bars[1].Date)
		// The later duplicate row wins.
		assert.Equal(t, 11.0, bars[1].Close)
		assert.Equal(t, 1100.0, bars[1].Volume)
	})

	t.Run("flexible header names with adjusted close fallback", func(t *testing.T) {
		path := writeTempCSV(t, t.TempDir(), "ACME_daily.csv",
			"Trade Date,Opening Price,Highest Price,Lowest Price,Adj Close,Vol\n"+
				"2024-01-02,9,10,8,9.5,900\n")

		bars, err := loader.LoadPriceCSV(path)
		require.NoError(t, err)
		require.Len(t, bars, 1)
		assert.Equal(t, 9.5, bars[0].Close)
		assert.Equal(t, 900.0, bars[0].Volume)
	})

	t.Run("positional layout without header", func(t *testing.T) {
		path := writeTempCSV(t, t.TempDir(), "ACME_daily.csv",
			"2024-01-02,9,10,8,9.5,900\n"+
				"2024-01-03,10,11,9,10.5,1000\n")

		bars, err := loader.LoadPriceCSV(path)
		require.NoError(t, err)
		require.Len(t, bars, 2)
		assert.Equal(t, 9.0, bars[0].Open)
	})

	t.Run("mixed date formats normalize to calendar days", func(t *testing.T) {
		path := writeTempCSV(t, t.TempDir(), "ACME_daily.csv",
			"Date,Open,High,Low,Close,Volume\n"+
				"2024-01-02,9,10,8,9.5,900\n"+
				"01/15/2024,10,11,9,10.5,1000\n"+
				"2024/01/16,10,11,9,10.6,1000\n"+
				"2024-01-17 15:04:05,10,11,9,10.7,1000\n")

		bars, err := loader.LoadPriceCSV(path)
		require.NoError(t, err)
		require.Len(t, bars, 4)
		assert.Equal(t, day(t, "2024-01-15"), bars[1].Date)
		assert.Equal(t, day(t, "2024-01-16"), bars[2].Date)
		assert.Equal(t, day(t, "2024-01-17"), bars[3].Date)
		for _, bar := range bars {
			assert.Equal(t, time.UTC, bar.Date.Location())
			assert.Zero(t, bar.Date.Hour())
		}
	})

	t.Run("missing volume column defaults to zero", func(t *testing.T) {
		path := writeTempCSV(t, t.TempDir(), "ACME_daily.csv",
			"Date,Open,High,Low,Close\n"+
				"2024-01-02,9,10,8,9.5\n")

		bars, err := loader.LoadPriceCSV(path)
		require.NoError(t, err)
		require.Len(t, bars, 1)
		assert.Zero(t, bars[0].Volume)
	})

	t.Run("bad rows are skipped", func(t *testing.T) {
		path := writeTempCSV(t, t.TempDir(), "ACME_daily.csv",
			"Date,Open,High,Low,Close,Volume\n"+
				"2024-01-02,9,10,8,9.5,900\n"+
				"2024-01-03,not-a-price,11,9,10.5,1000\n"+
				"garbage,10,11,9,10.5,1000\n"+
				"2024-01-04,10,11,9,10.5,1000\n")

		bars, err := loader.LoadPriceCSV(path)
		require.NoError(t, err)
		assert.Len(t, bars, 2)
	})

	t.Run("thousands separators are accepted", func(t *testing.T) {
		path := writeTempCSV(t, t.TempDir(), "ACME_daily.csv",
			"Date,Open,High,Low,Close,Volume\n"+
				`2024-01-02,9,10,8,9.5,"1,234,500"`+"\n")

		bars, err := loader.LoadPriceCSV(path)
		require.NoError(t, err)
		require.Len(t, bars, 1)
		assert.Equal(t, 1234500.0, bars[0].Volume)
	})

	t.Run("missing required column fails", func(t *testing.T) {
		path := writeTempCSV(t, t.TempDir(), "ACME_daily.csv",
			"Date,Open,High,Low,Volume\n"+
				"2024-01-02,9,10,8,900\n")

		_, err := loader.LoadPriceCSV(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "close")
	})

	t.Run("empty file fails", func(t *testing.T) {
		path := writeTempCSV(t, t.TempDir(), "ACME_daily.csv", "")

		_, err := loader.LoadPriceCSV(path)
		assert.Error(t, err)
	})

	t.Run("header-only file fails", func(t *testing.T) {
		path := writeTempCSV(t, t.TempDir(), "ACME_daily.csv",
			"Date,Open,High,Low,Close,Volume\n")

		_, err := loader.LoadPriceCSV(path)
		assert.Error(t, err)
	})

	t.Run("all rows unparsable fails", func(t *testing.T) {
		path := writeTempCSV(t, t.TempDir(), "ACME_daily.csv",
			"Date,Open,High,Low,Close,Volume\n"+
				"garbage,x,y,z,w,v\n")

		_, err := loader.LoadPriceCSV(path)
		assert.Error(t, err)
	})
}

func TestLoadPriceDir(t *testing.T) {
	loader := newTestLoader()

	t.Run("loads matching files and skips the rest", func(t *testing.T) {
		dir := t.TempDir()
		writeTempCSV(t, dir, "ACME_daily.csv",
			"Date,Open,High,Low,Close,Volume\n2024-01-02,9,10,8,9.5,900\n")
		writeTempCSV(t, dir, "enel.mi_daily.csv",
			"Date,Open,High,Low,Close,Volume\n2024-01-02,5,6,4,5.5,500\n")
		writeTempCSV(t, dir, "BAD_daily.csv", "nonsense,without,columns\n???\n")
		writeTempCSV(t, dir, "notes.txt", "not a csv\n")
		writeTempCSV(t, dir, "distributions.csv", "instrument,ex_date,amount\nACME,2024-01-02,0.5\n")

		prices, err := loader.LoadPriceDir(context.Background(), dir)
		require.NoError(t, err)

		require.Len(t, prices, 2)
		assert.Contains(t, prices, "ACME")
		assert.Contains(t, prices, "ENEL.MI")
		assert.NotContains(t, prices, "BAD")
	})

	t.Run("missing directory fails", func(t *testing.T) {
		_, err := loader.LoadPriceDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})

	t.Run("no loadable files fails", func(t *testing.T) {
		dir := t.TempDir()
		writeTempCSV(t, dir, "notes.txt", "not a csv\n")

		_, err := loader.LoadPriceDir(context.Background(), dir)
		assert.Error(t, err)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		dir := t.TempDir()
		writeTempCSV(t, dir, "ACME_daily.csv",
			"Date,Open,High,Low,Close,Volume\n2024-01-02,9,10,8,9.5,900\n")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := loader.LoadPriceDir(ctx, dir)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLoadEventsCSV(t *testing.T) {
	loader := newTestLoader()

	t.Run("flexible headers sorted by instrument and date", func(t *testing.T) {
		path := writeTempCSV(t, t.TempDir(), "distributions.csv",
			"Symbol,Ex-Date,Dividend\n"+
				"beta,2024-03-15,0.75\n"+
				"ACME,2024-06-10,0.60\n"+
				"ACME,2024-03-12,0.50\n")

		events, err := loader.LoadEventsCSV(path)
		require.NoError(t, err)
		require.Len(t, events, 3)

		assert.Equal(t, "ACME", events[0].Instrument)
		assert.Equal(t, day(t, "2024-03-12"), events[0].ExDate)
		assert.Equal(t, "ACME", events[1].Instrument)
		assert.Equal(t, day(t, "2024-06-10"), events[1].ExDate)
		assert.Equal(t, "BETA", events[2].Instrument)
		assert.False(t, events[0].DeclaredDropPct.Valid)
	})

	t.Run("declared drop column is optional per row", func(t *testing.T) {
		path := writeTempCSV(t, t.TempDir(), "distributions.csv",
			"instrument,ex_date,amount,declared_drop_pct\n"+
				"ACME,2024-03-12,0.50,4.2\n"+
				"ACME,2024-06-10,0.60,\n")

		events, err := loader.LoadEventsCSV(path)
		require.NoError(t, err)
		require.Len(t, events, 2)

		require.True(t, events[0].DeclaredDropPct.Valid)
		assert.Equal(t, 4.2, events[0].DeclaredDropPct.Float64)
		assert.False(t, events[1].DeclaredDropPct.Valid)
	})

	t.Run("positional layout without header", func(t *testing.T) {
		path := writeTempCSV(t, t.TempDir(), "distributions.csv",
			"ACME,2024-03-12,0.50\n")

		events, err := loader.LoadEventsCSV(path)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, 0.50, events[0].Amount)
	})

	t.Run("keeps semantically invalid rows for the quality checker", func(t *testing.T) {
		path := writeTempCSV(t, t.TempDir(), "distributions.csv",
			"instrument,ex_date,amount\n"+
				"ACME,2024-03-12,0\n"+
				"ACME,2024-03-12,0.50\n")

		events, err := loader.LoadEventsCSV(path)
		require.NoError(t, err)
		// Zero amounts and duplicate ex-dates load fine; the Checker
		// reports them.
		assert.Len(t, events, 2)
	})

	t.Run("bad rows are skipped", func(t *testing.T) {
		path := writeTempCSV(t, t.TempDir(), "distributions.csv",
			"instrument,ex_date,amount\n"+
				"ACME,2024-03-12,0.50\n"+
				",2024-03-13,0.50\n"+
				"ACME,not-a-date,0.50\n")

		events, err := loader.LoadEventsCSV(path)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("missing required column fails", func(t *testing.T) {
		path := writeTempCSV(t, t.TempDir(), "distributions.csv",
			"instrument,ex_date\nACME,2024-03-12\n")

		_, err := loader.LoadEventsCSV(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "amount")
	})
}

func TestInstrumentFromFilename(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		instrument string
		ok         bool
	}{
		{"plain symbol", "ACME_daily.csv", "ACME", true},
		{"lowercase is uppercased", "acme_daily.csv", "ACME", true},
		{"symbol with exchange suffix", "ENEL.MI_daily.csv", "ENEL.MI", true},
		{"events file", "distributions.csv", "", false},
		{"wrong suffix", "ACME_weekly.csv", "", false},
		{"no symbol", "_daily.csv", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instrument, ok := instrumentFromFilename(tt.filename)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.instrument, instrument)
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"iso", "2024-01-15", "2024-01-15", true},
		{"us slashes", "01/15/2024", "2024-01-15", true},
		{"european slashes", "15/01/2024", "2024-01-15", true},
		{"alternative iso", "2024/01/15", "2024-01-15", true},
		{"with time", "2024-01-15 09:30:00", "2024-01-15", true},
		{"us dashes", "01-15-2024", "2024-01-15", true},
		{"european dashes", "15-01-2024", "2024-01-15", true},
		{"unparsable", "Jan 15th 2024", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDate(tt.input)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, normalizeDay(got).Format("2006-01-02"))
		})
	}
}

func TestNormalizeDay(t *testing.T) {
	in := time.Date(2024, 3, 15, 15, 4, 5, 0, time.FixedZone("X", 3600))
	out := normalizeDay(in)

	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), out)
}
