package normalize

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"isoquant/domain/quant"
	"isoquant/internal/numeric"
)

// gridTable lays data out as one PSM per row and one channel per column
// for each run.
func gridTable(t testing.TB, scale quant.Scale, runs map[string][][]float64) *quant.Table {
	var rows []quant.Row
	for run, data := range runs {
		for i, vals := range data {
			for j, v := range vals {
				rows = append(rows, quant.Row{
					Run:       run,
					Channel:   fmt.Sprintf("c%d", j),
					Condition: []string{"ctrl", "trt"}[j%2],
					Protein:   fmt.Sprintf("P%02d", i),
					Peptide:   fmt.Sprintf("pep%02d", i),
					PSM:       fmt.Sprintf("%s-psm%02d", run, i),
					Value:     v,
				})
			}
		}
	}
	tbl, err := quant.NewTable(rows, scale, quant.LevelPSM)
	require.NoError(t, err)
	return tbl
}

func rowMedians(m quant.Matrix) []float64 {
	out := make([]float64, len(m.Data))
	for i, row := range m.Data {
		out[i] = numeric.Median(row)
	}
	return out
}

func colMedians(m quant.Matrix) []float64 {
	_, cols := m.Dims()
	out := make([]float64, cols)
	for j := range out {
		out[j] = numeric.Median(m.Column(j))
	}
	return out
}

func maxAbsDiff(a, b quant.Matrix) float64 {
	worst := 0.0
	for i := range a.Data {
		for j := range a.Data[i] {
			x, y := a.Data[i][j], b.Data[i][j]
			if math.IsNaN(x) && math.IsNaN(y) {
				continue
			}
			if d := math.Abs(x - y); d > worst || math.IsNaN(d) {
				worst = d
			}
		}
	}
	return worst
}
