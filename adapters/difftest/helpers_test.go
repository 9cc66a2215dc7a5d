package difftest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"isoquant/domain/quant"
)

// proteinTable builds a protein-level table for one run with channels
// c0..c{n-1}; the first nRef channels are the reference condition.
func proteinTable(t testing.TB, scale quant.Scale, nRef int, values map[string][]float64) (*quant.Table, *quant.Design) {
	var rows []quant.Row
	assign := make(map[quant.Sample]string)
	for protein, vs := range values {
		for j, v := range vs {
			cond := "trt"
			if j < nRef {
				cond = "ctrl"
			}
			s := quant.Sample{Run: "R1", Channel: fmt.Sprintf("c%d", j)}
			assign[s] = cond
			rows = append(rows, quant.Row{Run: s.Run, Channel: s.Channel, Condition: cond, Protein: protein, Value: v})
		}
	}
	tbl, err := quant.NewTable(rows, scale, quant.LevelProtein)
	require.NoError(t, err)
	d, err := quant.NewDesign(assign, "ctrl")
	require.NoError(t, err)
	return tbl, d
}
