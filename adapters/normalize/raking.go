package normalize

import (
	"context"
	"fmt"
	"math"

	"isoquant/domain/core"
	"isoquant/domain/quant"
	"isoquant/internal/numeric"
)

// RakingNormalizer scales each run matrix by iterative proportional fitting
// until every row and column mean is one.
type RakingNormalizer struct {
	Tolerance     float64
	MaxIterations int
	Workers       int
}

// NewRakingNormalizer creates a raking normalizer with default bounds
func NewRakingNormalizer() *RakingNormalizer {
	return &RakingNormalizer{Tolerance: 1e-5, MaxIterations: 50}
}

// Name returns the strategy name
func (n *RakingNormalizer) Name() string {
	return "raking"
}

// Params returns the settings that affect the output
func (n *RakingNormalizer) Params() map[string]interface{} {
	return map[string]interface{}{"tolerance": n.Tolerance, "max_iterations": n.MaxIterations}
}

// Normalize rakes every run independently. The output is on the ratio scale.
func (n *RakingNormalizer) Normalize(ctx context.Context, t *quant.Table) (*quant.Table, error) {
	if t.Scale().Additive() {
		return nil, core.NewScaleMismatchError("raking", t.Scale())
	}
	return perRun(ctx, t, n.Workers, func(_ context.Context, m quant.Matrix) (quant.Matrix, error) {
		return n.Rake(m)
	})
}

// Rake scales m in place and returns it.
func (n *RakingNormalizer) Rake(m quant.Matrix) (quant.Matrix, error) {
	for i, row := range m.Data {
		for j, v := range row {
			if !math.IsNaN(v) && v <= 0 {
				return m, fmt.Errorf("%w: run %s: non-positive value %g at %s/%s",
					core.ErrInvalidInput, m.Run, v, m.Features[i], m.Samples[j])
			}
		}
	}

	// A matrix already within tolerance is returned unchanged.
	rows, cols := m.Dims()
	for iter := 0; ; iter++ {
		if rakeDeviation(m) < n.Tolerance {
			m.Scale = quant.ScaleRatio
			logger.Trace("raking run %s converged after %d iterations", m.Run, iter)
			return m, nil
		}
		if iter == n.MaxIterations {
			break
		}
		for i := 0; i < rows; i++ {
			scaleSlice(m.Data[i], numeric.Mean(m.Data[i]))
		}
		for j := 0; j < cols; j++ {
			col := m.Column(j)
			scaleSlice(col, numeric.Mean(col))
			m.SetColumn(j, col)
		}
	}
	return m, core.NewConvergenceError("raking run "+m.Run, n.MaxIterations)
}

// scaleSlice divides the observed entries by mean; all-missing slices are left alone.
func scaleSlice(xs []float64, mean float64) {
	if math.IsNaN(mean) {
		return
	}
	for k, v := range xs {
		if !math.IsNaN(v) {
			xs[k] = v / mean
		}
	}
}

// rakeDeviation is the largest |mean - 1| over rows and columns.
func rakeDeviation(m quant.Matrix) float64 {
	worst := 0.0
	for _, row := range m.Data {
		if d := math.Abs(numeric.Mean(row) - 1); d > worst {
			worst = d
		}
	}
	_, cols := m.Dims()
	for j := 0; j < cols; j++ {
		if d := math.Abs(numeric.Mean(m.Column(j)) - 1); d > worst {
			worst = d
		}
	}
	return worst
}
