package numeric

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAdjustBH_KnownValues(t *testing.T) {
	p := []float64{0.01, 0.04, 0.03, 0.005}
	q := AdjustBH(p)
	// sorted p: 0.005 0.01 0.03 0.04 -> raw 0.02 0.02 0.04 0.04
	assert.InDelta(t, 0.02, q[0], 1e-12)
	assert.InDelta(t, 0.04, q[1], 1e-12)
	assert.InDelta(t, 0.04, q[2], 1e-12)
	assert.InDelta(t, 0.02, q[3], 1e-12)
}

func TestAdjustBH_NaNExcludedFromFamily(t *testing.T) {
	q := AdjustBH([]float64{0.01, math.NaN(), 0.02})
	assert.True(t, math.IsNaN(q[1]))
	assert.InDelta(t, 0.02, q[0], 1e-12)
	assert.InDelta(t, 0.02, q[2], 1e-12)
}

func TestAdjustBH_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		p := rapid.SliceOfN(rapid.Float64Range(0, 1), 1, 200).Draw(rt, "p")
		q := AdjustBH(p)
		require.Len(rt, q, len(p))

		idx := make([]int, len(p))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return p[idx[a]] < p[idx[b]] })

		prev := -1.0
		for _, i := range idx {
			require.GreaterOrEqual(rt, q[i], p[i]-1e-15, "q must not be below p")
			require.LessOrEqual(rt, q[i], 1.0)
			require.GreaterOrEqual(rt, q[i], prev-1e-15, "q must be monotone in p order")
			prev = q[i]
		}
	})
}

func TestRanksAverageTies(t *testing.T) {
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, Ranks([]float64{1, 5, 5, 9}))
	assert.Equal(t, []int{2, 3}, TieGroups([]float64{2, 1, 1, 3, 3, 3}))
}

func TestCorrelations(t *testing.T) {
	x := []float64{1, 2, 3, 4, math.NaN()}
	y := []float64{2, 4, 6, 8, 1}
	assert.InDelta(t, 1.0, Pearson(x, y), 1e-12)

	// monotone but nonlinear: Spearman is exactly 1
	z := []float64{1, 8, 27, 64, 125}
	assert.InDelta(t, 1.0, Spearman([]float64{1, 2, 3, 4, 5}, z), 1e-12)
	assert.Less(t, Pearson([]float64{1, 2, 3, 4, 5}, z), 1.0)

	assert.True(t, math.IsNaN(Pearson([]float64{1, 1, 1}, []float64{1, 2, 3})))
}

func TestMedianIgnoresMissing(t *testing.T) {
	assert.Equal(t, 2.0, Median([]float64{1, math.NaN(), 2, 3}))
	assert.True(t, math.IsNaN(Median([]float64{math.NaN()})))
	assert.Equal(t, 6.0, Sum([]float64{1, 2, 3, math.NaN()}))
	assert.True(t, math.IsNaN(Mean(nil)))
}
