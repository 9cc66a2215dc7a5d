package normalize

import (
	"context"
	"fmt"
	"math"

	"isoquant/domain/core"
	"isoquant/domain/quant"
	"isoquant/internal/numeric"
)

// SweepOp is the centering operator.
type SweepOp int

const (
	// Subtract centers log2 data at median zero.
	Subtract SweepOp = iota
	// Divide centers raw or ratio data at median one.
	Divide
)

func (o SweepOp) String() string {
	if o == Divide {
		return "divide"
	}
	return "subtract"
}

// ParseSweepOp accepts "subtract" and "divide".
func ParseSweepOp(s string) (SweepOp, error) {
	switch s {
	case "subtract", "":
		return Subtract, nil
	case "divide":
		return Divide, nil
	}
	return Subtract, core.NewValidationError("op", fmt.Sprintf("unknown sweep operator %q", s))
}

// MedianSweepNormalizer centers rows and/or columns on their medians. With
// both enabled the sweeps alternate (median polish) until row and column
// medians settle or MaxIterations passes are done; a column sweep is always last.
type MedianSweepNormalizer struct {
	Op            SweepOp
	Rows          bool
	Columns       bool
	Scope         Scope
	Tolerance     float64
	MaxIterations int
	Workers       int
}

// NewMedianSweepNormalizer creates a sweep with polish defaults
func NewMedianSweepNormalizer(op SweepOp, rows, columns bool, scope Scope) *MedianSweepNormalizer {
	return &MedianSweepNormalizer{
		Op: op, Rows: rows, Columns: columns, Scope: scope,
		Tolerance: 1e-9, MaxIterations: 20,
	}
}

// Name returns the strategy name
func (n *MedianSweepNormalizer) Name() string {
	return "median_sweep"
}

// Params returns the settings that affect the output
func (n *MedianSweepNormalizer) Params() map[string]interface{} {
	return map[string]interface{}{
		"op": n.Op.String(), "rows": n.Rows, "columns": n.Columns, "scope": n.Scope.String(),
		"tolerance": n.Tolerance, "max_iterations": n.MaxIterations,
	}
}

// Normalize rejects an operator that does not match the table scale.
func (n *MedianSweepNormalizer) Normalize(ctx context.Context, t *quant.Table) (*quant.Table, error) {
	if (n.Op == Subtract) != t.Scale().Additive() {
		return nil, core.NewScaleMismatchError("median sweep "+n.Op.String(), t.Scale())
	}
	return byScope(ctx, t, n.Scope, n.Workers, func(_ context.Context, m quant.Matrix) (quant.Matrix, error) {
		return n.Sweep(m), nil
	})
}

// Sweep centers m in place and returns it.
func (n *MedianSweepNormalizer) Sweep(m quant.Matrix) quant.Matrix {
	passes := 1
	if n.Rows && n.Columns && n.MaxIterations > 1 {
		passes = n.MaxIterations
	}
	for pass := 0; pass < passes; pass++ {
		if n.Rows {
			n.sweepRows(m)
		}
		if n.Columns {
			n.sweepColumns(m)
		}
		if passes == 1 || n.centered(m) {
			break
		}
	}
	return m
}

func (n *MedianSweepNormalizer) sweepRows(m quant.Matrix) {
	for _, row := range m.Data {
		n.center(row, numeric.Median(row))
	}
}

func (n *MedianSweepNormalizer) sweepColumns(m quant.Matrix) {
	_, cols := m.Dims()
	for j := 0; j < cols; j++ {
		col := m.Column(j)
		n.center(col, numeric.Median(col))
		m.SetColumn(j, col)
	}
}

func (n *MedianSweepNormalizer) center(xs []float64, median float64) {
	if math.IsNaN(median) || (n.Op == Divide && median == 0) {
		return
	}
	for k, v := range xs {
		if math.IsNaN(v) {
			continue
		}
		if n.Op == Divide {
			xs[k] = v / median
		} else {
			xs[k] = v - median
		}
	}
}

// centered reports whether every row median is at the target.
func (n *MedianSweepNormalizer) centered(m quant.Matrix) bool {
	target := 0.0
	if n.Op == Divide {
		target = 1
	}
	for _, row := range m.Data {
		med := numeric.Median(row)
		if !math.IsNaN(med) && math.Abs(med-target) > n.Tolerance {
			return false
		}
	}
	return true
}
