package numeric

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// PairedObserved keeps the positions where both x and y are finite.
func PairedObserved(x, y []float64) ([]float64, []float64) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	xo := make([]float64, 0, n)
	yo := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) || math.IsInf(x[i], 0) || math.IsInf(y[i], 0) {
			continue
		}
		xo = append(xo, x[i])
		yo = append(yo, y[i])
	}
	return xo, yo
}

// Pearson correlation over paired observations; NaN with fewer than 3 pairs
// or a constant vector.
func Pearson(x, y []float64) float64 {
	xo, yo := PairedObserved(x, y)
	if len(xo) < 3 {
		return math.NaN()
	}
	if stat.Variance(xo, nil) == 0 || stat.Variance(yo, nil) == 0 {
		return math.NaN()
	}
	return stat.Correlation(xo, yo, nil)
}

// Spearman rank correlation over paired observations.
func Spearman(x, y []float64) float64 {
	xo, yo := PairedObserved(x, y)
	if len(xo) < 3 {
		return math.NaN()
	}
	return Pearson(Ranks(xo), Ranks(yo))
}
