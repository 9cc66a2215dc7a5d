package normalize

import (
	"context"
	"math"

	"isoquant/domain/core"
	"isoquant/domain/quant"
	"isoquant/internal/numeric"
)

// MeanSweepNormalizer removes effects by sequential mean subtraction on log2
// data: run means, then run:channel means, then feature means, and finally
// adds the grand mean back. Features are proteins at protein level and
// run:peptide otherwise.
type MeanSweepNormalizer struct{}

// NewMeanSweepNormalizer creates a mean sweep normalizer
func NewMeanSweepNormalizer() *MeanSweepNormalizer {
	return &MeanSweepNormalizer{}
}

// Name returns the strategy name
func (n *MeanSweepNormalizer) Name() string {
	return "mean_sweep"
}

// Normalize sweeps the effects in order.
func (n *MeanSweepNormalizer) Normalize(ctx context.Context, t *quant.Table) (*quant.Table, error) {
	if !t.Scale().Additive() {
		return nil, core.NewScaleMismatchError("mean sweep", t.Scale())
	}
	rows := t.Rows()
	values := t.Values()
	grand := numeric.Mean(values)

	keys := []func(quant.Row) string{
		func(r quant.Row) string { return r.Run },
		func(r quant.Row) string { return r.Run + "\x00" + r.Channel },
		featureKey(t.Level()),
	}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		subtractGroupMeans(rows, values, key)
	}
	for i, v := range values {
		if !math.IsNaN(v) {
			values[i] = v + grand
		}
	}
	return t.WithValues(values)
}

func featureKey(level quant.Level) func(quant.Row) string {
	if level == quant.LevelProtein {
		return func(r quant.Row) string { return r.Protein }
	}
	return func(r quant.Row) string { return r.Run + "\x00" + r.Protein + "\x00" + r.Peptide }
}

func subtractGroupMeans(rows []quant.Row, values []float64, key func(quant.Row) string) {
	groups := make(map[string][]float64)
	for i, r := range rows {
		k := key(r)
		groups[k] = append(groups[k], values[i])
	}
	means := make(map[string]float64, len(groups))
	for k, vs := range groups {
		means[k] = numeric.Mean(vs)
	}
	for i, r := range rows {
		if mean := means[key(r)]; !math.IsNaN(values[i]) && !math.IsNaN(mean) {
			values[i] -= mean
		}
	}
}
