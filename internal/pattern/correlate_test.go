package pattern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"divrec/internal/recovery"
)

// patternRow builds a record with just the given present values; every other
// key reads as absent, exactly like a real record with missing measurements.
func patternRow(instrument string, exDate time.Time, features, outcomes map[string]float64) PatternRecord {
	r := PatternRecord{
		Instrument: instrument,
		ExDate:     exDate,
		Features:   make(map[string]recovery.Value, len(features)),
		Outcomes:   make(map[string]recovery.Value, len(outcomes)),
	}
	for k, v := range features {
		r.Features[k] = recovery.Present(v)
	}
	for k, v := range outcomes {
		r.Outcomes[k] = recovery.Present(v)
	}
	return r
}

// oneWindowSpec gives a 12-feature × 1-outcome grid.
func oneWindowSpec() WindowSpec {
	return WindowSpec{
		Windows:         []FeatureWindow{{Label: "D-3_D-1", Start: -3, End: -1}},
		ForwardHorizons: []int{5},
		BaselineDays:    60,
		RSIPeriod:       14,
		StochPeriod:     14,
	}
}

func TestPearson(t *testing.T) {
	t.Run("perfect positive", func(t *testing.T) {
		r, ok := pearson([]float64{1, 2, 3}, []float64{2, 4, 6})
		require.True(t, ok)
		assert.InDelta(t, 1.0, r, 1e-12)
	})

	t.Run("perfect negative", func(t *testing.T) {
		r, ok := pearson([]float64{1, 2, 3}, []float64{6, 4, 2})
		require.True(t, ok)
		assert.InDelta(t, -1.0, r, 1e-12)
	})

	t.Run("zero variance is undefined", func(t *testing.T) {
		_, ok := pearson([]float64{1, 2, 3}, []float64{5, 5, 5})
		assert.False(t, ok)
	})

	t.Run("known mixed value", func(t *testing.T) {
		// Hand-computed: cov=1, varX=14/3, varY=2, so r = 1/sqrt(28/3).
		r, ok := pearson([]float64{1, 2, 4}, []float64{3, 5, 4})
		require.True(t, ok)
		assert.InDelta(t, 0.32733, r, 1e-5)
	})
}

func TestCorrelate(t *testing.T) {
	spec := oneWindowSpec()

	t.Run("defined cells ranked by magnitude, undefined appended", func(t *testing.T) {
		records := make([]PatternRecord, 0, 4)
		for i := 0; i < 4; i++ {
			x := float64(i + 1)
			records = append(records, patternRow("ENL", day(i),
				map[string]float64{
					"D-3_D-1_trend_pct":  x,     // r = +1 with the outcome
					"D-3_D-1_volatility": 5 - x, // r = -1 with the outcome
					"D-3_D-1_up_days":    2,     // zero variance, undefined
				},
				map[string]float64{"D+5": 2 * x},
			))
		}

		cells, err := Correlate(records, spec)
		require.NoError(t, err)
		// Full grid: 12 feature keys × 1 outcome key.
		require.Len(t, cells, 12)

		// The two |r|=1 cells tie; the feature key breaks the tie.
		assert.Equal(t, "D-3_D-1_trend_pct", cells[0].FeatureKey)
		require.True(t, cells[0].Defined())
		assert.InDelta(t, 1.0, cells[0].Coefficient.Float64, 1e-12)
		assert.Equal(t, 4, cells[0].SampleSize)

		assert.Equal(t, "D-3_D-1_volatility", cells[1].FeatureKey)
		require.True(t, cells[1].Defined())
		assert.InDelta(t, -1.0, cells[1].Coefficient.Float64, 1e-12)

		// Everything else is undefined and sorted by key, zero never faked.
		for i, cell := range cells[2:] {
			assert.False(t, cell.Defined(), "cell %d should be undefined", i+2)
			if i > 0 {
				prev := cells[2+i-1]
				assert.True(t, prev.FeatureKey < cell.FeatureKey ||
					(prev.FeatureKey == cell.FeatureKey && prev.OutcomeKey < cell.OutcomeKey),
					"undefined tail must stay key-ordered")
			}
		}
	})

	t.Run("pairwise deletion uses only complete pairs", func(t *testing.T) {
		// Five records; rows 1 and 3 are missing one side, so the cell must
		// be the Pearson of the three complete pairs (1,3), (2,5), (4,4).
		records := []PatternRecord{
			patternRow("ENL", day(0), map[string]float64{"D-3_D-1_trend_pct": 1}, map[string]float64{"D+5": 3}),
			patternRow("ENL", day(1), map[string]float64{"D-3_D-1_trend_pct": 9}, nil),
			patternRow("ENL", day(2), map[string]float64{"D-3_D-1_trend_pct": 2}, map[string]float64{"D+5": 5}),
			patternRow("ENL", day(3), nil, map[string]float64{"D+5": 9}),
			patternRow("ENL", day(4), map[string]float64{"D-3_D-1_trend_pct": 4}, map[string]float64{"D+5": 4}),
		}

		cells, err := Correlate(records, spec)
		require.NoError(t, err)

		cell := findCell(t, cells, "D-3_D-1_trend_pct", "D+5")
		require.True(t, cell.Defined())
		assert.Equal(t, 3, cell.SampleSize)
		assert.InDelta(t, 0.32733, cell.Coefficient.Float64, 1e-5)
	})

	t.Run("fewer than three pairs is undefined", func(t *testing.T) {
		records := []PatternRecord{
			patternRow("ENL", day(0), map[string]float64{"D-3_D-1_trend_pct": 1}, map[string]float64{"D+5": 2}),
			patternRow("ENL", day(1), map[string]float64{"D-3_D-1_trend_pct": 2}, map[string]float64{"D+5": 4}),
		}

		cells, err := Correlate(records, spec)
		require.NoError(t, err)

		cell := findCell(t, cells, "D-3_D-1_trend_pct", "D+5")
		assert.False(t, cell.Defined())
		assert.Equal(t, 2, cell.SampleSize)
	})

	t.Run("empty population yields a fully undefined grid", func(t *testing.T) {
		cells, err := Correlate(nil, spec)
		require.NoError(t, err)
		require.Len(t, cells, 12)
		for _, cell := range cells {
			assert.False(t, cell.Defined())
			assert.Zero(t, cell.SampleSize)
		}
	})

	t.Run("invalid spec rejected", func(t *testing.T) {
		bad := oneWindowSpec()
		bad.Windows = nil
		_, err := Correlate(nil, bad)
		var validationErr *recovery.ValidationError
		require.ErrorAs(t, err, &validationErr)
	})
}

func findCell(t *testing.T, cells []CorrelationCell, featureKey, outcomeKey string) CorrelationCell {
	t.Helper()
	for _, c := range cells {
		if c.FeatureKey == featureKey && c.OutcomeKey == outcomeKey {
			return c
		}
	}
	t.Fatalf("cell %s × %s not found", featureKey, outcomeKey)
	return CorrelationCell{}
}
