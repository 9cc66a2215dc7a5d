package difftest

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"isoquant/domain/quant"
)

// compactLevels renumbers the observed condition levels to 0..k-1 with the
// reference kept at 0. ok is false when the reference is not observed.
func compactLevels(levels []int) (compact []int, index map[int]int, ok bool) {
	present := make(map[int]bool)
	for _, l := range levels {
		present[l] = true
	}
	if !present[0] {
		return nil, nil, false
	}
	observed := make([]int, 0, len(present))
	for l := range present {
		observed = append(observed, l)
	}
	sort.Ints(observed)
	index = make(map[int]int, len(observed))
	for i, l := range observed {
		index[l] = i
	}
	compact = make([]int, len(levels))
	for i, l := range levels {
		compact[i] = index[l]
	}
	return compact, index, true
}

// runBlocks returns one indicator column per run after the first.
func runBlocks(samples []quant.Sample) [][]float64 {
	set := make(map[string]struct{})
	for _, s := range samples {
		set[s.Run] = struct{}{}
	}
	runs := make([]string, 0, len(set))
	for r := range set {
		runs = append(runs, r)
	}
	sort.Strings(runs)
	if len(runs) < 2 {
		return nil
	}
	cols := make([][]float64, len(runs)-1)
	for k, run := range runs[1:] {
		col := make([]float64, len(samples))
		for i, s := range samples {
			if s.Run == run {
				col[i] = 1
			}
		}
		cols[k] = col
	}
	return cols
}

// twoSidedP is the two-sided tail probability of t on df degrees of
// freedom; infinite df uses the normal distribution.
func twoSidedP(t, df float64) float64 {
	if math.IsNaN(t) || math.IsNaN(df) || df <= 0 {
		return math.NaN()
	}
	var tail float64
	if math.IsInf(df, 1) {
		tail = distuv.UnitNormal.Survival(math.Abs(t))
	} else {
		tail = distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Survival(math.Abs(t))
	}
	return math.Min(1, 2*tail)
}
