package normalize

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"isoquant/domain/core"
	"isoquant/domain/quant"
	"isoquant/internal/numeric"
)

func newRunMatrix(rows, cols int) quant.Matrix {
	features := make([]quant.Feature, rows)
	for i := range features {
		features[i] = quant.Feature{Protein: string(rune('A' + i))}
	}
	samples := make([]quant.Sample, cols)
	for j := range samples {
		samples[j] = quant.Sample{Run: "R1", Channel: string(rune('a' + j))}
	}
	return quant.NewMatrix("R1", features, samples, quant.ScaleRaw)
}

// genReporterMatrix draws intensities shaped like reporter ions: feature
// abundance times channel loading times multiplicative noise.
func genReporterMatrix(t *rapid.T) quant.Matrix {
	rows := rapid.IntRange(2, 12).Draw(t, "rows")
	cols := rapid.IntRange(2, 11).Draw(t, "cols")
	m := newRunMatrix(rows, cols)
	loading := make([]float64, cols)
	for j := range loading {
		loading[j] = rapid.Float64Range(0.5, 2).Draw(t, "loading")
	}
	for i := 0; i < rows; i++ {
		abundance := rapid.Float64Range(1, 1000).Draw(t, "abundance")
		for j := 0; j < cols; j++ {
			m.Data[i][j] = abundance * loading[j] * rapid.Float64Range(0.8, 1.25).Draw(t, "noise")
		}
	}
	return m
}

func genPositiveMatrix(t *rapid.T) quant.Matrix {
	rows := rapid.IntRange(2, 6).Draw(t, "rows")
	cols := rapid.IntRange(2, 6).Draw(t, "cols")
	m := newRunMatrix(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Data[i][j] = rapid.Float64Range(1, 100).Draw(t, "v")
		}
	}
	return m
}

func assertMarginsWithin(t *rapid.T, m quant.Matrix, tol float64) {
	for i, row := range m.Data {
		if d := math.Abs(numeric.Mean(row) - 1); d >= tol {
			t.Fatalf("row %d mean off by %g", i, d)
		}
	}
	for j := range m.Samples {
		if d := math.Abs(numeric.Mean(m.Column(j)) - 1); d >= tol {
			t.Fatalf("column %d mean off by %g", j, d)
		}
	}
}

func TestRaking_MarginsAndIdempotence(t *testing.T) {
	r := NewRakingNormalizer()
	rapid.Check(t, func(t *rapid.T) {
		raked, err := r.Rake(genReporterMatrix(t))
		if err != nil {
			t.Fatalf("rake: %v", err)
		}
		assertMarginsWithin(t, raked, r.Tolerance)

		again, err := r.Rake(raked.Clone())
		if err != nil {
			t.Fatalf("re-rake: %v", err)
		}
		for i := range raked.Data {
			for j, v := range raked.Data[i] {
				if d := math.Abs(again.Data[i][j] - v); d >= r.Tolerance {
					t.Fatalf("re-raking moved (%d,%d) by %g", i, j, d)
				}
			}
		}
	})
}

func TestRaking_WideSpreadMatricesConverge(t *testing.T) {
	r := &RakingNormalizer{Tolerance: 1e-5, MaxIterations: 5000}
	rapid.Check(t, func(t *rapid.T) {
		raked, err := r.Rake(genPositiveMatrix(t))
		if err != nil {
			t.Fatalf("rake: %v", err)
		}
		assertMarginsWithin(t, raked, r.Tolerance)
	})
}

func TestRaking_Table(t *testing.T) {
	tbl := gridTable(t, quant.ScaleRaw, map[string][][]float64{
		"R1": {{10, 20, 30, 40}, {5, 5, 10, math.NaN()}, {math.NaN(), math.NaN(), math.NaN(), math.NaN()}},
		"R2": {{100, 90, 80, 70}, {1, 2, 3, 4}},
	})
	out, err := NewRakingNormalizer().Normalize(context.Background(), tbl)
	require.NoError(t, err)
	assert.Equal(t, quant.ScaleRatio, out.Scale())
	assert.Equal(t, quant.ScaleRaw, tbl.Scale(), "input untouched")

	m, err := out.RunMatrix("R1")
	require.NoError(t, err)
	assert.InDelta(t, 1, numeric.Mean(m.Data[0]), 1e-5)
	assert.True(t, math.IsNaN(m.Data[1][3]), "missing stays missing")
	assert.True(t, math.IsNaN(numeric.Mean(m.Data[2])), "all-missing row untouched")
}

func TestRaking_Rejections(t *testing.T) {
	ctx := context.Background()

	logTbl := gridTable(t, quant.ScaleLog2, map[string][][]float64{"R1": {{1, 2}, {3, 4}}})
	_, err := NewRakingNormalizer().Normalize(ctx, logTbl)
	assert.True(t, errors.Is(err, core.ErrScaleMismatch))

	negTbl := gridTable(t, quant.ScaleRaw, map[string][][]float64{"R1": {{1, 2}, {-3, 4}}})
	_, err = NewRakingNormalizer().Normalize(ctx, negTbl)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))

	tbl := gridTable(t, quant.ScaleRaw, map[string][][]float64{"R7": {{1, 2}, {3, 1}}})
	_, err = (&RakingNormalizer{Tolerance: 1e-12, MaxIterations: 1}).Normalize(ctx, tbl)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConvergence))
	assert.Contains(t, err.Error(), "R7")
}
