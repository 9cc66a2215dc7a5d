package normalize

import (
	"context"
	"math"
	"sort"

	"isoquant/domain/quant"
	"isoquant/internal/numeric"
)

// QuantileNormalizer gives every column of a matrix the same distribution:
// the average of the column quantiles. Tied values share the mean of their
// quantiles; missing cells stay missing and partially observed columns are
// mapped through interpolated quantiles.
type QuantileNormalizer struct {
	Scope Scope
	// GrandMean is the per-run target of the rescale step; zero means the
	// mean of the whole input table.
	GrandMean float64
	Rescale   bool
	Workers   int
}

// NewQuantileNormalizer creates a quantile normalizer
func NewQuantileNormalizer(scope Scope, rescale bool) *QuantileNormalizer {
	return &QuantileNormalizer{Scope: scope, Rescale: rescale}
}

// Name returns the strategy name
func (n *QuantileNormalizer) Name() string {
	return "quantile"
}

// Params returns the settings that affect the output
func (n *QuantileNormalizer) Params() map[string]interface{} {
	return map[string]interface{}{"scope": n.Scope.String(), "grand_mean": n.GrandMean, "rescale": n.Rescale}
}

// Normalize quantile-normalizes per run or on the cross-run matrix.
func (n *QuantileNormalizer) Normalize(ctx context.Context, t *quant.Table) (*quant.Table, error) {
	target := n.GrandMean
	if n.Rescale && target == 0 {
		target = numeric.Mean(t.Values())
	}
	rescale := n.Rescale && n.Scope == PerRun && !math.IsNaN(target)
	additive := t.Scale().Additive()

	return byScope(ctx, t, n.Scope, n.Workers, func(_ context.Context, m quant.Matrix) (quant.Matrix, error) {
		QuantileMatrix(m)
		if rescale {
			rescaleTo(m, target, additive)
		}
		return m, nil
	})
}

// QuantileMatrix normalizes m in place.
func QuantileMatrix(m quant.Matrix) {
	rows, cols := m.Dims()
	if rows == 0 || cols == 0 {
		return
	}

	sorted := make([][]float64, cols)
	for j := 0; j < cols; j++ {
		obs := numeric.Observed(m.Column(j))
		sort.Float64s(obs)
		sorted[j] = obs
	}

	// Reference distribution on a grid of rows points.
	ref := make([]float64, rows)
	for i := range ref {
		p := gridPosition(i, rows)
		sum, k := 0.0, 0
		for _, s := range sorted {
			if len(s) == 0 {
				continue
			}
			sum += interpolate(s, p)
			k++
		}
		ref[i] = sum / float64(k)
	}

	for j := 0; j < cols; j++ {
		col := m.Column(j)
		m.SetColumn(j, mapColumn(col, ref))
	}
}

// mapColumn replaces observed values by reference quantiles; a run of tied
// values gets the mean of the quantiles its positions span.
func mapColumn(col, ref []float64) []float64 {
	idx := make([]int, 0, len(col))
	for i, v := range col {
		if !math.IsNaN(v) {
			idx = append(idx, i)
		}
	}
	out := append([]float64(nil), col...)
	nObs := len(idx)
	if nObs == 0 {
		return out
	}
	sort.SliceStable(idx, func(a, b int) bool { return col[idx[a]] < col[idx[b]] })

	for start := 0; start < nObs; {
		end := start + 1
		for end < nObs && col[idx[end]] == col[idx[start]] {
			end++
		}
		sum := 0.0
		for k := start; k < end; k++ {
			sum += interpolate(ref, gridPosition(k, nObs))
		}
		v := sum / float64(end-start)
		for k := start; k < end; k++ {
			out[idx[k]] = v
		}
		start = end
	}
	return out
}

// gridPosition maps index i of n onto [0, 1].
func gridPosition(i, n int) float64 {
	if n == 1 {
		return 0.5
	}
	return float64(i) / float64(n-1)
}

// interpolate reads sorted at fractional position p in [0, 1].
func interpolate(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	x := p * float64(n-1)
	lo := int(math.Floor(x))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := x - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// rescaleTo moves the grand mean of m onto target.
func rescaleTo(m quant.Matrix, target float64, additive bool) {
	var all []float64
	for _, row := range m.Data {
		all = append(all, row...)
	}
	mean := numeric.Mean(all)
	if math.IsNaN(mean) || (!additive && mean == 0) {
		return
	}
	for _, row := range m.Data {
		for k, v := range row {
			if math.IsNaN(v) {
				continue
			}
			if additive {
				row[k] = v - mean + target
			} else {
				row[k] = v * target / mean
			}
		}
	}
}
