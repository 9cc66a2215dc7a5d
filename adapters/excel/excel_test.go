package excel

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"isoquant/domain/core"
	"isoquant/domain/evaluation"
	"isoquant/domain/quant"
	"isoquant/domain/result"
	"isoquant/domain/run"
	"isoquant/internal/testkit"
)

func rowKey(r quant.Row) string { return r.Run + "|" + r.Channel + "|" + r.PSM }

func TestWorkbookRoundTrip(t *testing.T) {
	cfg := testkit.DefaultSpikeInConfig()
	cfg.MissingRate = 0.1
	data, err := testkit.GenerateSpikeIn(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "spikein.xlsx")
	require.NoError(t, WriteTable(path, data.Table, data.Design))

	xc := DefaultExcelConfig()
	xc.Reference = "ctrl"
	table, design, err := NewDataReader(path).ReadTable(xc)
	require.NoError(t, err)

	assert.Equal(t, data.Table.Len(), table.Len())
	assert.Equal(t, data.Table.Samples(), table.Samples())
	assert.Equal(t, data.Design.Contrasts(), design.Contrasts())

	want := make(map[string]quant.Row)
	for _, r := range data.Table.Rows() {
		want[rowKey(r)] = r
	}
	for _, got := range table.Rows() {
		w, ok := want[rowKey(got)]
		require.True(t, ok, rowKey(got))
		assert.Equal(t, w.Protein, got.Protein)
		assert.Equal(t, w.Peptide, got.Peptide)
		assert.Equal(t, w.Charge, got.Charge)
		assert.Equal(t, w.Condition, got.Condition)
		assert.InDelta(t, w.RetentionTime, got.RetentionTime, 1e-9)
		if math.IsNaN(w.Value) {
			assert.True(t, math.IsNaN(got.Value), rowKey(got))
		} else {
			assert.InDelta(t, w.Value, got.Value, 1e-9)
		}
	}
}

func TestReadTable_CSVWithAliases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "psms.csv")
	content := "Raw File,Label,Group,Accession,Sequence,Scan,z,Intensity\n" +
		"r1,126,ctrl,P1,PEPTIDEK,s1,+2,1024\n" +
		"r1,127,trt,P1,PEPTIDEK,s1,+2,2048\n" +
		"r1,126,ctrl,P2,SAMPLER,s2,3,NA\n" +
		"r1,127,trt,P2,SAMPLER,s2,3,512\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := DefaultExcelConfig()
	cfg.Reference = "ctrl"
	cfg.Log2Transform = true
	table, design, err := NewDataReader(path).ReadTable(cfg)
	require.NoError(t, err)

	assert.Equal(t, quant.ScaleLog2, table.Scale())
	assert.Equal(t, []string{"trt"}, design.Contrasts())
	values := make(map[string]float64)
	for _, r := range table.Rows() {
		values[r.Protein+"/"+r.Channel] = r.Value
		assert.Contains(t, []int{2, 3}, r.Charge)
	}
	assert.Equal(t, 10.0, values["P1/126"])
	assert.Equal(t, 11.0, values["P1/127"])
	assert.True(t, math.IsNaN(values["P2/126"]))
	assert.Equal(t, 9.0, values["P2/127"])
}

func TestReadTable_Errors(t *testing.T) {
	_, _, err := NewDataReader(filepath.Join(t.TempDir(), "absent.xlsx")).ReadTable(DefaultExcelConfig())
	assert.ErrorIs(t, err, core.ErrNotFound)

	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("run,channel,protein\nr1,126,P1\n"), 0o644))
	_, _, err = NewDataReader(path).ReadTable(DefaultExcelConfig())
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestWriteResults(t *testing.T) {
	ok := run.NewPipelineRun("median_sweep+median/with:odd*chars_and_a_long_name", nil, run.RunFingerprint{})
	res := result.NewUndefined("P1", "trt", "moderated_t", "degenerate design")
	ok.Complete(&result.ResultSet{Engine: "moderated_t", Contrasts: []result.ContrastResults{{Contrast: "trt", Results: []result.TestResult{res}}}})
	report := evaluation.Report{
		Criteria: evaluation.DefaultCriteria(),
		Scores: []evaluation.VariantScore{{
			Variant: ok.Variant, Contrast: "trt", Engine: "moderated_t",
			Confusion: evaluation.ConfusionMatrix{TN: 1},
			Metrics:   evaluation.MetricsOf(evaluation.ConfusionMatrix{TN: 1}),
		}},
	}

	path := filepath.Join(t.TempDir(), "results.xlsx")
	require.NoError(t, WriteResults(path, report, []*run.PipelineRun{ok}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	sheets := f.GetSheetList()
	require.Len(t, sheets, 3)
	assert.Equal(t, SheetMetrics, sheets[0])
	assert.Equal(t, SheetAgree, sheets[1])
	assert.LessOrEqual(t, len(sheets[2]), maxSheetName)
	assert.NotContains(t, sheets[2], "/")

	rows, err := f.GetRows(SheetMetrics)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[1][5])
}
