package pattern

import (
	"math"
	"sort"
	"time"

	"divrec/internal/recovery"
)

// SimilarityParams controls a similarity search.
type SimilarityParams struct {
	// TopK caps the number of neighbors returned.
	TopK int
	// Floor is the minimum cosine similarity a neighbor must reach.
	Floor float64
	// MinPatterns is the smallest population a search will run against.
	MinPatterns int
	// Keys are the feature dimensions compared.
	Keys []string
}

// DefaultSimilarityParams returns the standard search parameters over the
// spec's similarity dimensions.
func DefaultSimilarityParams(spec WindowSpec) SimilarityParams {
	return SimilarityParams{
		TopK:        DefaultTopK,
		Floor:       DefaultSimilarityFloor,
		MinPatterns: DefaultMinPatterns,
		Keys:        spec.SimilarityKeys(),
	}
}

// Validate checks the parameters.
func (p SimilarityParams) Validate() error {
	if p.TopK < 1 {
		return &recovery.ValidationError{Field: "top_k", Message: "must be positive", Value: p.TopK}
	}
	if p.Floor < -1 || p.Floor > 1 {
		return &recovery.ValidationError{Field: "similarity_floor", Message: "must be in [-1, 1]", Value: p.Floor}
	}
	if p.MinPatterns < 1 {
		return &recovery.ValidationError{Field: "min_patterns", Message: "must be at least 1", Value: p.MinPatterns}
	}
	if len(p.Keys) == 0 {
		return &recovery.ValidationError{Field: "keys", Message: "must not be empty"}
	}
	return nil
}

// Neighbor is one record ranked by similarity to the target.
type Neighbor struct {
	Index      int       `json:"index"`
	Instrument string    `json:"instrument"`
	ExDate     time.Time `json:"ex_date"`
	Similarity float64   `json:"similarity"`
	SharedDims int       `json:"shared_dims"`
}

// FindSimilar ranks the records most similar to records[targetIdx] by cosine
// similarity over z-score-normalized feature dimensions. Dimensions missing
// from either vector are excluded pairwise; pairs sharing fewer than
// MinSharedDimensions are undefined and omitted, never scored zero. The
// floor is applied before truncation to TopK; ties rank the earlier event
// first. The target never appears in its own list.
func FindSimilar(records []PatternRecord, targetIdx int, params SimilarityParams) ([]Neighbor, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if targetIdx < 0 || targetIdx >= len(records) {
		return nil, &recovery.ValidationError{Field: "target_index", Message: "out of range", Value: targetIdx}
	}
	if len(records) < params.MinPatterns {
		return nil, &recovery.InsufficientSampleError{Count: len(records), MinSampleSize: params.MinPatterns}
	}

	matrix := normalize(records, params.Keys)
	target := matrix[targetIdx]
	if target.defined < MinSharedDimensions {
		return nil, &UndefinedSimilarityError{
			Instrument: records[targetIdx].Instrument,
			ExDate:     records[targetIdx].ExDate,
			Dimensions: target.defined,
		}
	}

	neighbors := make([]Neighbor, 0, len(records)-1)
	for i := range records {
		if i == targetIdx {
			continue
		}
		sim, shared, ok := cosine(target, matrix[i])
		if !ok || sim < params.Floor {
			continue
		}
		neighbors = append(neighbors, Neighbor{
			Index:      i,
			Instrument: records[i].Instrument,
			ExDate:     records[i].ExDate,
			Similarity: sim,
			SharedDims: shared,
		})
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}
		return neighbors[i].ExDate.Before(neighbors[j].ExDate)
	})
	if len(neighbors) > params.TopK {
		neighbors = neighbors[:params.TopK]
	}
	return neighbors, nil
}

// vector is one record's feature values in key order. Missing dimensions are
// NaN so the dot product can skip them pairwise.
type vector struct {
	dims    []float64
	defined int
}

// normalize z-scores each dimension across the population. Dimensions with
// fewer than two present values, or with zero spread, cannot be scaled and
// become missing everywhere.
func normalize(records []PatternRecord, keys []string) []vector {
	vectors := make([]vector, len(records))
	for i := range vectors {
		vectors[i].dims = make([]float64, len(keys))
		for d := range vectors[i].dims {
			vectors[i].dims[d] = math.NaN()
		}
	}

	column := make([]float64, 0, len(records))
	for d, key := range keys {
		column = column[:0]
		for _, r := range records {
			if v := r.Features[key]; v.Valid {
				column = append(column, v.Float64)
			}
		}
		if len(column) < 2 {
			continue
		}
		m, s := mean(column), stddev(column)
		if s == 0 {
			continue
		}
		for i, r := range records {
			if v := r.Features[key]; v.Valid {
				vectors[i].dims[d] = (v.Float64 - m) / s
				vectors[i].defined++
			}
		}
	}
	return vectors
}

// cosine is the cosine similarity over the dimensions both vectors carry.
// The last return is false when too few dimensions are shared or either
// projection has zero magnitude.
func cosine(a, b vector) (float64, int, bool) {
	var dot, normA, normB float64
	shared := 0
	for d := range a.dims {
		x, y := a.dims[d], b.dims[d]
		if math.IsNaN(x) || math.IsNaN(y) {
			continue
		}
		shared++
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if shared < MinSharedDimensions || normA == 0 || normB == 0 {
		return 0, shared, false
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim)), shared, true
}
