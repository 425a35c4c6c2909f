package pattern

import (
	"math"
	"sort"

	"divrec/internal/recovery"
)

// CorrelationCell is the Pearson correlation between one feature and one
// outcome across a population of pattern records. Cells with fewer than
// MinPairedObservations paired values, or with a zero-variance side, are
// undefined: the coefficient stays absent and is never coerced to zero.
type CorrelationCell struct {
	FeatureKey  string         `json:"feature_key"`
	OutcomeKey  string         `json:"outcome_key"`
	Coefficient recovery.Value `json:"coefficient"`
	SampleSize  int            `json:"sample_size"`
}

// Defined reports whether the cell carries a coefficient.
func (c CorrelationCell) Defined() bool { return c.Coefficient.Valid }

// Correlate computes the full feature-by-outcome grid over the records using
// pairwise deletion: each cell uses exactly the records where both its
// feature and its outcome are present. Defined cells come first, ranked by
// |r| descending with ties broken by feature key then outcome key; undefined
// cells follow in key order, so the grid stays complete without fabricated
// coefficients.
func Correlate(records []PatternRecord, spec WindowSpec) ([]CorrelationCell, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	featureKeys := spec.FeatureKeys()
	outcomeKeys := spec.OutcomeKeys()
	cells := make([]CorrelationCell, 0, len(featureKeys)*len(outcomeKeys))

	xs := make([]float64, 0, len(records))
	ys := make([]float64, 0, len(records))
	for _, fKey := range featureKeys {
		for _, oKey := range outcomeKeys {
			xs, ys = xs[:0], ys[:0]
			for _, r := range records {
				f, o := r.Features[fKey], r.Outcomes[oKey]
				if !f.Valid || !o.Valid {
					continue
				}
				xs = append(xs, f.Float64)
				ys = append(ys, o.Float64)
			}

			cell := CorrelationCell{FeatureKey: fKey, OutcomeKey: oKey, SampleSize: len(xs)}
			if len(xs) >= MinPairedObservations {
				if r, ok := pearson(xs, ys); ok {
					cell.Coefficient = recovery.Present(r)
				}
			}
			cells = append(cells, cell)
		}
	}

	sort.SliceStable(cells, func(i, j int) bool {
		a, b := cells[i], cells[j]
		if a.Defined() != b.Defined() {
			return a.Defined()
		}
		if a.Defined() {
			ra, rb := math.Abs(a.Coefficient.Float64), math.Abs(b.Coefficient.Float64)
			if ra != rb {
				return ra > rb
			}
		}
		if a.FeatureKey != b.FeatureKey {
			return a.FeatureKey < b.FeatureKey
		}
		return a.OutcomeKey < b.OutcomeKey
	})

	return cells, nil
}

// pearson is the sample Pearson correlation of the paired observations. The
// second return is false when either side has zero variance, where the
// coefficient is undefined.
func pearson(xs, ys []float64) (float64, bool) {
	meanX, meanY := mean(xs), mean(ys)

	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, false
	}

	r := cov / math.Sqrt(varX*varY)
	return math.Max(-1, math.Min(1, r)), true
}
