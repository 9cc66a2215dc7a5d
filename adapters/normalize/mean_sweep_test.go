package normalize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isoquant/domain/core"
	"isoquant/domain/quant"
	"isoquant/internal/numeric"
)

func TestMeanSweep_RemovesSampleAndFeatureEffects(t *testing.T) {
	tbl := gridTable(t, quant.ScaleLog2, map[string][][]float64{
		"R1": {{10, 12, 11, 15}, {20, 21, 25, 22}, {5, 9, 6, 7}},
		"R2": {{30, 31, 29, 33}, {8, 8, 9, 10}, {14, 12, 13, 17}},
	})
	grand := numeric.Mean(tbl.Values())

	out, err := NewMeanSweepNormalizer().Normalize(context.Background(), tbl)
	require.NoError(t, err)
	assert.InDelta(t, grand, numeric.Mean(out.Values()), 1e-9)

	for _, m := range out.RunMatrices() {
		for j := range m.Samples {
			assert.InDelta(t, grand, numeric.Mean(m.Column(j)), 1e-9, "sample %s", m.Samples[j])
		}
		for i, row := range m.Data {
			assert.InDelta(t, grand, numeric.Mean(row), 1e-9, "feature %s", m.Features[i])
		}
	}
}

func TestMeanSweep_RequiresLog2(t *testing.T) {
	tbl := gridTable(t, quant.ScaleRaw, map[string][][]float64{"R1": {{1, 2}}})
	_, err := NewMeanSweepNormalizer().Normalize(context.Background(), tbl)
	assert.True(t, errors.Is(err, core.ErrScaleMismatch))
}
