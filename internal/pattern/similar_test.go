package pattern

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"divrec/internal/recovery"
)

func simRecord(exDate time.Time, features map[string]float64) PatternRecord {
	return patternRow("ENL", exDate, features, nil)
}

func TestCosine(t *testing.T) {
	t.Run("uniform scaling preserves similarity", func(t *testing.T) {
		a := vector{dims: []float64{1, 2, 3, 4}, defined: 4}
		b := vector{dims: []float64{2, 4, 6, 8}, defined: 4}

		sim, shared, ok := cosine(a, b)
		require.True(t, ok)
		assert.Equal(t, 4, shared)
		assert.InDelta(t, 1.0, sim, 1e-12)
	})

	t.Run("orthogonal vectors score zero", func(t *testing.T) {
		a := vector{dims: []float64{1, 0}, defined: 2}
		b := vector{dims: []float64{0, 1}, defined: 2}

		sim, _, ok := cosine(a, b)
		require.True(t, ok)
		assert.InDelta(t, 0.0, sim, 1e-12)
	})

	t.Run("opposite vectors score minus one", func(t *testing.T) {
		a := vector{dims: []float64{1, 2}, defined: 2}
		b := vector{dims: []float64{-2, -4}, defined: 2}

		sim, _, ok := cosine(a, b)
		require.True(t, ok)
		assert.InDelta(t, -1.0, sim, 1e-12)
	})

	t.Run("missing dimensions are excluded pairwise", func(t *testing.T) {
		nan := math.NaN()
		a := vector{dims: []float64{1, nan, 2}, defined: 2}
		b := vector{dims: []float64{2, 5, nan}, defined: 2}

		// Only the first dimension is shared: below the floor of two.
		_, shared, ok := cosine(a, b)
		assert.False(t, ok)
		assert.Equal(t, 1, shared)
	})
}

func TestSimilarityParamsValidate(t *testing.T) {
	valid := SimilarityParams{TopK: 5, Floor: 0.8, MinPatterns: 3, Keys: []string{"f1"}}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*SimilarityParams)
	}{
		{"zero top_k", func(p *SimilarityParams) { p.TopK = 0 }},
		{"floor below -1", func(p *SimilarityParams) { p.Floor = -1.5 }},
		{"floor above 1", func(p *SimilarityParams) { p.Floor = 1.5 }},
		{"zero min_patterns", func(p *SimilarityParams) { p.MinPatterns = 0 }},
		{"no keys", func(p *SimilarityParams) { p.Keys = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := valid
			tt.mutate(&params)

			err := params.Validate()
			var validationErr *recovery.ValidationError
			require.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestFindSimilar(t *testing.T) {
	keys := []string{"f1", "f2"}
	params := func(topK int, floor float64) SimilarityParams {
		return SimilarityParams{TopK: topK, Floor: floor, MinPatterns: 3, Keys: keys}
	}

	// Three identical feature vectors (indices 0, 1, 4), one half-opposed
	// (2) and one fully opposed (3). After z-scoring, the identical pair
	// scores 1.0 against the target and the opposed ones go negative.
	population := []PatternRecord{
		simRecord(day(0), map[string]float64{"f1": 1, "f2": 1}),
		simRecord(day(10), map[string]float64{"f1": 1, "f2": 1}),
		simRecord(day(2), map[string]float64{"f1": -1, "f2": 1}),
		simRecord(day(3), map[string]float64{"f1": -1, "f2": -1}),
		simRecord(day(5), map[string]float64{"f1": 1, "f2": 1}),
	}

	t.Run("ranking, tie-break and self-exclusion", func(t *testing.T) {
		neighbors, err := FindSimilar(population, 0, params(10, -1))
		require.NoError(t, err)
		require.Len(t, neighbors, 4)

		for _, n := range neighbors {
			assert.NotEqual(t, 0, n.Index, "target must not appear in its own list")
		}

		// The two perfect matches tie at 1.0; the earlier event comes first.
		assert.Equal(t, []int{4, 1, 2, 3}, []int{
			neighbors[0].Index, neighbors[1].Index, neighbors[2].Index, neighbors[3].Index,
		})
		assert.InDelta(t, 1.0, neighbors[0].Similarity, 1e-9)
		assert.InDelta(t, 1.0, neighbors[1].Similarity, 1e-9)
		assert.InDelta(t, -0.5922, neighbors[2].Similarity, 1e-3)
		assert.InDelta(t, -0.8907, neighbors[3].Similarity, 1e-3)
		assert.Equal(t, 2, neighbors[0].SharedDims)
	})

	t.Run("floor filters before truncation", func(t *testing.T) {
		neighbors, err := FindSimilar(population, 0, params(10, 0.9))
		require.NoError(t, err)
		require.Len(t, neighbors, 2)
		assert.Equal(t, 4, neighbors[0].Index)
		assert.Equal(t, 1, neighbors[1].Index)
	})

	t.Run("top_k truncates after ranking", func(t *testing.T) {
		neighbors, err := FindSimilar(population, 0, params(1, -1))
		require.NoError(t, err)
		require.Len(t, neighbors, 1)
		assert.Equal(t, 4, neighbors[0].Index)
	})

	t.Run("population below min_patterns refused", func(t *testing.T) {
		_, err := FindSimilar(population[:2], 0, params(5, 0.8))
		var sampleErr *recovery.InsufficientSampleError
		require.ErrorAs(t, err, &sampleErr)
		assert.Equal(t, 2, sampleErr.Count)
		assert.Equal(t, 3, sampleErr.MinSampleSize)
	})

	t.Run("target index out of range", func(t *testing.T) {
		_, err := FindSimilar(population, len(population), params(5, 0.8))
		var validationErr *recovery.ValidationError
		require.ErrorAs(t, err, &validationErr)
	})

	t.Run("target with no usable dimensions is undefined", func(t *testing.T) {
		records := []PatternRecord{
			simRecord(day(0), nil), // target measures nothing
			simRecord(day(1), map[string]float64{"f1": 1, "f2": 2}),
			simRecord(day(2), map[string]float64{"f1": 2, "f2": 4}),
			simRecord(day(3), map[string]float64{"f1": 3, "f2": 6}),
		}

		_, err := FindSimilar(records, 0, params(5, -1))
		var undefinedErr *UndefinedSimilarityError
		require.ErrorAs(t, err, &undefinedErr)
		assert.Zero(t, undefinedErr.Dimensions)
	})

	t.Run("pairs sharing too few dimensions are omitted", func(t *testing.T) {
		records := []PatternRecord{
			simRecord(day(0), map[string]float64{"f1": 1, "f2": 1}),
			simRecord(day(1), map[string]float64{"f1": 2}), // one shared dim only
			simRecord(day(2), map[string]float64{"f1": 3, "f2": 3}),
		}

		neighbors, err := FindSimilar(records, 0, params(5, -1))
		require.NoError(t, err)
		require.Len(t, neighbors, 1)
		assert.Equal(t, 2, neighbors[0].Index)
		assert.Equal(t, 2, neighbors[0].SharedDims)
		assert.InDelta(t, -1.0, neighbors[0].Similarity, 1e-9)
	})

	t.Run("zero-magnitude candidates are omitted", func(t *testing.T) {
		// The middle record sits exactly at the population mean on every
		// dimension; its normalized vector has no direction to compare.
		records := []PatternRecord{
			simRecord(day(0), map[string]float64{"f1": 1, "f2": 5}),
			simRecord(day(1), map[string]float64{"f1": 2, "f2": 6}),
			simRecord(day(2), map[string]float64{"f1": 3, "f2": 7}),
		}

		neighbors, err := FindSimilar(records, 0, params(5, -1))
		require.NoError(t, err)
		require.Len(t, neighbors, 1)
		assert.Equal(t, 2, neighbors[0].Index)
	})

	t.Run("constant dimensions are dropped everywhere", func(t *testing.T) {
		records := []PatternRecord{
			simRecord(day(0), map[string]float64{"f1": 1, "f2": 1, "f3": 9}),
			simRecord(day(1), map[string]float64{"f1": 1, "f2": 1, "f3": 9}),
			simRecord(day(2), map[string]float64{"f1": -1, "f2": -1, "f3": 9}),
		}
		p := SimilarityParams{TopK: 5, Floor: -1, MinPatterns: 3, Keys: []string{"f1", "f2", "f3"}}

		neighbors, err := FindSimilar(records, 0, p)
		require.NoError(t, err)
		require.Len(t, neighbors, 2)
		// f3 never varies, so only two dimensions remain comparable.
		assert.Equal(t, 2, neighbors[0].SharedDims)
	})
}

func TestDefaultSimilarityParams(t *testing.T) {
	params := DefaultSimilarityParams(DefaultWindowSpec())
	assert.Equal(t, DefaultTopK, params.TopK)
	assert.InDelta(t, DefaultSimilarityFloor, params.Floor, 1e-12)
	assert.Equal(t, DefaultMinPatterns, params.MinPatterns)
	assert.Equal(t, DefaultWindowSpec().SimilarityKeys(), params.Keys)
	require.NoError(t, params.Validate())
}
