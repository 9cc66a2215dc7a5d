package numeric

import (
	"math"
	"sort"
)

// AdjustBH applies the Benjamini-Hochberg step-up adjustment. NaN p-values are
// excluded from the family and keep a NaN q-value. The result is aligned with p.
func AdjustBH(p []float64) []float64 {
	q := make([]float64, len(p))
	idx := make([]int, 0, len(p))
	for i, v := range p {
		if math.IsNaN(v) {
			q[i] = math.NaN()
			continue
		}
		idx = append(idx, i)
	}
	m := len(idx)
	if m == 0 {
		return q
	}

	sort.SliceStable(idx, func(a, b int) bool { return p[idx[a]] < p[idx[b]] })

	running := 1.0
	for rank := m; rank >= 1; rank-- {
		i := idx[rank-1]
		adj := p[i] * float64(m) / float64(rank)
		if adj < running {
			running = adj
		}
		q[i] = math.Min(running, 1)
	}
	return q
}
