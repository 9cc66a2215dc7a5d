package ports

import (
	"context"

	"isoquant/domain/quant"
	"isoquant/domain/result"
)

// NormalizationStrategy removes systematic run/channel bias. Implementations
// are pure: they return a new table and never mutate their input.
type NormalizationStrategy interface {
	Name() string
	Normalize(ctx context.Context, t *quant.Table) (*quant.Table, error)
}

// SummarizationStrategy collapses PSM or peptide rows to protein level.
type SummarizationStrategy interface {
	Name() string
	Summarize(ctx context.Context, t *quant.Table) (*quant.Table, error)
}

// DifferentialTestEngine tests every protein in every non-reference contrast
// and returns BH-adjusted results.
type DifferentialTestEngine interface {
	Name() string
	Test(ctx context.Context, t *quant.Table, d *quant.Design) (*result.ResultSet, error)
}

// Describer exposes the parameters that identify a configured strategy, so
// pipeline runs can be fingerprinted.
type Describer interface {
	Params() map[string]interface{}
}
