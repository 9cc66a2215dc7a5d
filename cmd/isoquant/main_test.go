package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"isoquant/adapters/excel"
	"isoquant/domain/quant"
	"isoquant/internal/config"
	"isoquant/internal/testkit"
)

func TestStarterExperimentParses(t *testing.T) {
	gen := testkit.DefaultSpikeInConfig()
	raw, err := yaml.Marshal(starterExperiment(gen, []string{"P00001", "P00002"}))
	require.NoError(t, err)

	exp, err := config.ParseExperiment(raw)
	require.NoError(t, err)
	assert.Equal(t, "ctrl", exp.Reference)
	assert.Equal(t, []string{"P00001", "P00002"}, exp.Truth)
	require.Len(t, exp.Variants, 3)
	assert.Equal(t, "median_sweep", exp.Variants[0].Normalize[0].Name)
	for _, v := range exp.Variants[:2] {
		require.Len(t, v.PostNormalize, 1, v.Name)
		assert.True(t, v.PostNormalize[0].Bool("columns", false), v.Name)
		assert.False(t, v.PostNormalize[0].Bool("rows", true), v.Name)
		assert.Equal(t, "global", v.PostNormalize[0].String("scope", ""), v.Name)
	}

	gen.Scale = quant.ScaleRaw
	raw, err = yaml.Marshal(starterExperiment(gen, nil))
	require.NoError(t, err)
	exp, err = config.ParseExperiment(raw)
	require.NoError(t, err)
	assert.Equal(t, "divide", exp.Variants[0].PostNormalize[0].String("op", ""))
}

func TestSynthMirroredFlag(t *testing.T) {
	synth := newSynthCmd()
	flag := synth.Flags().Lookup("mirrored")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)

	workbook := filepath.Join(t.TempDir(), "mirrored.xlsx")
	synth.SetArgs([]string{"--out", workbook, "--mirrored", "--spiked", "0"})
	synth.SetOut(&bytes.Buffer{})
	require.NoError(t, synth.Execute())

	xc := excel.DefaultExcelConfig()
	xc.Reference = "ctrl"
	table, _, err := excel.NewDataReader(workbook).ReadTable(xc)
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, r := range table.Rows() {
		values[r.Run+"|"+r.PSM+"|"+r.Channel] = r.Value
	}
	for _, r := range table.Rows() {
		if r.Channel == "126" {
			assert.InDelta(t, r.Value, values[r.Run+"|"+r.PSM+"|127C"], 1e-9, r.PSM)
		}
	}
}

func TestSynthThenEvaluate(t *testing.T) {
	t.Setenv("BADGER_DIR", "")
	t.Setenv("DATABASE_URL", "")
	dir := t.TempDir()
	workbook := filepath.Join(dir, "spikein.xlsx")
	grid := filepath.Join(dir, "grid.yaml")
	results := filepath.Join(dir, "results.xlsx")

	synth := newSynthCmd()
	synth.SetArgs([]string{"--out", workbook, "--experiment", grid})
	var out bytes.Buffer
	synth.SetOut(&out)
	require.NoError(t, synth.Execute())
	assert.Contains(t, out.String(), "spiked: ")

	evaluate := newEvaluateCmd()
	evaluate.SetArgs([]string{"--experiment", grid, "--input", workbook, "--out", results})
	out.Reset()
	evaluate.SetOut(&out)
	require.NoError(t, evaluate.Execute())
	assert.Contains(t, out.String(), "| median |")

	sheet, err := excel.NewDataReader(results).ReadSheet("metrics")
	require.NoError(t, err)
	assert.Len(t, sheet.Rows, 3)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"P1", "P2"}, splitList(" P1, ,P2,"))
	assert.Nil(t, splitList(""))
}
