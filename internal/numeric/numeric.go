// Package numeric holds NaN-aware summary helpers shared by the strategies.
package numeric

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// Observed drops NaN and infinite values.
func Observed(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}

// Median ignores missing values; NaN when nothing is observed.
func Median(xs []float64) float64 {
	obs := Observed(xs)
	if len(obs) == 0 {
		return math.NaN()
	}
	m, err := stats.Median(obs)
	if err != nil {
		return math.NaN()
	}
	return m
}

// Mean ignores missing values; NaN when nothing is observed.
func Mean(xs []float64) float64 {
	obs := Observed(xs)
	if len(obs) == 0 {
		return math.NaN()
	}
	m, err := stats.Mean(obs)
	if err != nil {
		return math.NaN()
	}
	return m
}

// Sum ignores missing values; NaN when nothing is observed.
func Sum(xs []float64) float64 {
	obs := Observed(xs)
	if len(obs) == 0 {
		return math.NaN()
	}
	s, err := stats.Sum(obs)
	if err != nil {
		return math.NaN()
	}
	return s
}

// Variance is the unbiased sample variance of the observed values.
func Variance(xs []float64) float64 {
	obs := Observed(xs)
	if len(obs) < 2 {
		return math.NaN()
	}
	v, err := stats.SampleVariance(obs)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Ranks returns 1-based ranks with ties receiving their average rank.
func Ranks(xs []float64) []float64 {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	ranks := make([]float64, len(xs))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// TieGroups returns the sizes of groups of equal values (only groups > 1).
func TieGroups(xs []float64) []int {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	var out []int
	for i := 0; i < len(sorted); {
		j := i
		for j+1 < len(sorted) && sorted[j+1] == sorted[i] {
			j++
		}
		if j > i {
			out = append(out, j-i+1)
		}
		i = j + 1
	}
	return out
}

// MaxAbsDeviation returns max |x - target| over observed values.
func MaxAbsDeviation(xs []float64, target float64) float64 {
	worst := 0.0
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		if d := math.Abs(x - target); d > worst {
			worst = d
		}
	}
	return worst
}
