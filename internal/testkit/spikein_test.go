package testkit

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isoquant/domain/quant"
)

func TestSpikeInGenerator_Basic(t *testing.T) {
	data, err := GenerateSpikeIn(DefaultSpikeInConfig())
	require.NoError(t, err)

	assert.Equal(t, quant.LevelPSM, data.Table.Level())
	assert.Equal(t, quant.ScaleLog2, data.Table.Scale())
	assert.Len(t, data.Table.Runs(), 2)
	assert.Len(t, data.Table.Samples(), 8)
	assert.Len(t, data.Table.Proteins(), 20)
	assert.Equal(t, 5, data.Truth.Len())
	// runs x channels x (proteins*peptides*psms + one interfering PSM per spiked protein)
	assert.Equal(t, 2*4*(20*3*2+5), data.Table.Len())
	assert.Equal(t, []string{"spike"}, data.Design.Contrasts())
	require.NoError(t, data.Design.Validate(data.Table.Samples()))
}

func TestSpikeInGenerator_Deterministic(t *testing.T) {
	a, err := GenerateSpikeIn(DefaultSpikeInConfig())
	require.NoError(t, err)
	b, err := GenerateSpikeIn(DefaultSpikeInConfig())
	require.NoError(t, err)
	if diff := cmp.Diff(a.Table.Rows(), b.Table.Rows(), cmpopts.EquateNaNs()); diff != "" {
		t.Fatalf("same seed produced different tables:\n%s", diff)
	}

	cfg := DefaultSpikeInConfig()
	cfg.Seed = 7
	c, err := GenerateSpikeIn(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, a.Table.Values(), c.Table.Values())
}

func TestSpikeInGenerator_MirroredNulls(t *testing.T) {
	cfg := DefaultSpikeInConfig()
	cfg.Mirrored = true
	data, err := GenerateSpikeIn(cfg)
	require.NoError(t, err)

	// Slot k of the reference is channel k, of the treatment channel k+2.
	treatmentOf := map[string]string{"126": "127C", "127N": "128N"}
	values := make(map[string]float64)
	for _, r := range data.Table.Rows() {
		values[r.Run+"|"+r.PSM+"|"+r.Channel] = r.Value
	}
	checked := 0
	for _, r := range data.Table.Rows() {
		trt, ok := treatmentOf[r.Channel]
		if !ok {
			continue
		}
		other := values[r.Run+"|"+r.PSM+"|"+trt]
		if data.Truth.Contains(r.Protein) {
			assert.NotEqual(t, r.Value, other)
			continue
		}
		assert.Equal(t, r.Value, other, "%s %s", r.Protein, r.PSM)
		checked++
	}
	assert.Positive(t, checked)
}

func TestSpikeInGenerator_ChannelsDrawIndependently(t *testing.T) {
	cfg := DefaultSpikeInConfig()
	cfg.MissingRate = 0.3
	data, err := GenerateSpikeIn(cfg)
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, r := range data.Table.Rows() {
		values[r.Run+"|"+r.PSM+"|"+r.Channel] = r.Value
	}
	differing, halfMissing := 0, 0
	for _, r := range data.Table.Rows() {
		if r.Channel != "126" || data.Truth.Contains(r.Protein) {
			continue
		}
		other := values[r.Run+"|"+r.PSM+"|127C"]
		if math.IsNaN(r.Value) != math.IsNaN(other) {
			halfMissing++
			continue
		}
		if !math.IsNaN(r.Value) && r.Value != other {
			differing++
		}
	}
	assert.Positive(t, differing, "null proteins should carry channel-level noise")
	assert.Positive(t, halfMissing, "missingness should be drawn per channel")
}

func TestSpikeInGenerator_RawScaleAndMissing(t *testing.T) {
	cfg := DefaultSpikeInConfig()
	cfg.Scale = quant.ScaleRaw
	cfg.MissingRate = 0.2
	data, err := GenerateSpikeIn(cfg)
	require.NoError(t, err)

	missing := 0
	for _, v := range data.Table.Values() {
		if math.IsNaN(v) {
			missing++
			continue
		}
		assert.Positive(t, v)
	}
	assert.Positive(t, missing)
}

func TestSpikeInGenerator_RejectsBadConfig(t *testing.T) {
	cfg := DefaultSpikeInConfig()
	cfg.Spiked = 30
	_, err := GenerateSpikeIn(cfg)
	assert.Error(t, err)

	cfg = DefaultSpikeInConfig()
	cfg.Runs = 0
	_, err = GenerateSpikeIn(cfg)
	assert.Error(t, err)
}
