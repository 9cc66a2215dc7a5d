package normalize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isoquant/domain/core"
	"isoquant/domain/quant"
	"isoquant/internal/numeric"
)

func nestedTable(t *testing.T) *quant.Table {
	rng := rand.New(rand.NewSource(11))
	var rows []quant.Row
	for p := 0; p < 8; p++ {
		protein := fmt.Sprintf("P%d", p)
		pEff := rng.NormFloat64() * 2
		for k := 0; k < 3; k++ {
			peptide := fmt.Sprintf("%s-pep%d", protein, k)
			for _, run := range []string{"R1", "R2"} {
				pepEff := rng.NormFloat64() * 0.7
				for c := 0; c < 4; c++ {
					v := 20 + pEff + pepEff + 0.3*float64(c) + rng.NormFloat64()*0.2
					if p == 0 && k == 0 && run == "R1" && c == 3 {
						v = math.NaN()
					}
					rows = append(rows, quant.Row{
						Run: run, Channel: fmt.Sprintf("c%d", c), Condition: []string{"ctrl", "trt"}[c/2],
						Protein: protein, Peptide: peptide, PSM: run + ":" + peptide, Value: v,
					})
				}
			}
		}
	}
	tbl, err := quant.NewTable(rows, quant.ScaleLog2, quant.LevelPSM)
	require.NoError(t, err)
	return tbl
}

func TestMixedResidual_ResidualsCenteredPerSample(t *testing.T) {
	tbl := nestedTable(t)
	for _, g := range []Grouping{ProteinPeptide, PeptideProtein} {
		t.Run(g.String(), func(t *testing.T) {
			out, err := NewMixedModelResidualNormalizer(g).Normalize(context.Background(), tbl)
			require.NoError(t, err)

			nonZero := 0
			for _, m := range out.RunMatrices() {
				for j := range m.Samples {
					assert.InDelta(t, 0, numeric.Mean(m.Column(j)), 1e-6, "sample %s", m.Samples[j])
				}
				for _, row := range m.Data {
					for _, v := range row {
						if !math.IsNaN(v) && math.Abs(v) > 1e-9 {
							nonZero++
						}
					}
				}
			}
			assert.Greater(t, nonZero, 0)

			m, err := out.RunMatrix("R1")
			require.NoError(t, err)
			assert.True(t, math.IsNaN(m.Data[0][3]), "missing stays missing")
		})
	}
}

func TestMixedResidual_Rejections(t *testing.T) {
	ctx := context.Background()
	raw := gridTable(t, quant.ScaleRaw, map[string][][]float64{"R1": {{1, 2}, {3, 4}}})
	_, err := NewMixedModelResidualNormalizer(ProteinPeptide).Normalize(ctx, raw)
	assert.True(t, errors.Is(err, core.ErrScaleMismatch))

	protein, err := quant.NewTable([]quant.Row{
		{Run: "R1", Channel: "c0", Protein: "P1", Value: 1},
		{Run: "R1", Channel: "c1", Protein: "P1", Value: 2},
	}, quant.ScaleLog2, quant.LevelProtein)
	require.NoError(t, err)
	_, err = NewMixedModelResidualNormalizer(ProteinPeptide).Normalize(ctx, protein)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
}
