// Package normalize implements the normalization strategies. Every strategy
// takes an immutable table and derives a new one; inputs are never mutated.
package normalize

import (
	"context"

	"golang.org/x/sync/errgroup"

	"isoquant/domain/quant"
	"isoquant/internal"
)

// Scope selects per-run or cross-run matrices.
type Scope int

const (
	PerRun Scope = iota
	Global
)

func (s Scope) String() string {
	if s == Global {
		return "global"
	}
	return "per_run"
}

// ParseScope accepts "per_run" and "global"; anything else is PerRun.
func ParseScope(s string) Scope {
	if s == "global" {
		return Global
	}
	return PerRun
}

var logger = internal.DefaultLogger.WithComponent("normalize")

type matrixFunc func(ctx context.Context, m quant.Matrix) (quant.Matrix, error)

// perRun applies fn to a clone of every run matrix concurrently and writes
// the results back into a new table.
func perRun(ctx context.Context, t *quant.Table, workers int, fn matrixFunc) (*quant.Table, error) {
	ms := t.RunMatrices()
	out := make([]quant.Matrix, len(ms))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, m := range ms {
		i, m := i, m
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := fn(gctx, m.Clone())
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return t.ApplyMatrices(out...)
}

// byScope dispatches to perRun or a single wide matrix.
func byScope(ctx context.Context, t *quant.Table, scope Scope, workers int, fn matrixFunc) (*quant.Table, error) {
	if scope == PerRun {
		return perRun(ctx, t, workers, fn)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := fn(ctx, t.WideMatrix())
	if err != nil {
		return nil, err
	}
	return t.ApplyMatrices(m)
}
