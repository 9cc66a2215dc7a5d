package badger

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isoquant/domain/core"
	"isoquant/domain/quant"
	"isoquant/domain/result"
	"isoquant/domain/run"
)

func openStore(t *testing.T) *RunStore {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(variant string, fp core.Hash) *run.PipelineRun {
	stages := []run.StageChoice{{Stage: run.StageTest, Strategy: "moderated_t", Params: map[string]interface{}{"block_by_run": false}}}
	r := run.NewPipelineRun(variant, stages, run.RunFingerprint{Fingerprint: fp, CodeVersion: "test"})
	res := result.NewUndefined("P1", "trt", "moderated_t", "")
	res.LogFC = 0.8
	res.PValue, res.ModPValue, res.QValue = 0.01, 0.008, 0.02
	unstable := result.NewUndefined("P2", "trt", "moderated_t", "reference mean 0 is too close to zero for a fold change")
	unstable.Unstable = true
	r.Complete(&result.ResultSet{
		Engine: "moderated_t", Reference: "ctrl", Scale: quant.ScaleRaw,
		Contrasts: []result.ContrastResults{{Contrast: "trt", Results: []result.TestResult{res, unstable}}},
	})
	return r
}

func TestRunStore_RoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	r := sampleRun("median", "fp-1")
	require.NoError(t, s.Save(ctx, r))

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Variant, got.Variant)
	assert.Equal(t, run.StatusCompleted, got.Status)
	assert.Equal(t, r.Stages[0].Strategy, got.Stages[0].Strategy)
	assert.Equal(t, quant.ScaleRaw, got.Results.Scale)
	assert.True(t, r.StartedAt.Time().Equal(got.StartedAt.Time()))

	byProtein := got.Results.Contrasts[0].ByProtein()
	assert.Equal(t, 0.8, byProtein["P1"].LogFC)
	assert.Equal(t, 0.02, byProtein["P1"].QValue)
	assert.True(t, byProtein["P2"].Unstable)
	assert.True(t, math.IsNaN(byProtein["P2"].LogFC))

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRunStore_FindByFingerprint(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	older := sampleRun("a", "fp-shared")
	newer := sampleRun("b", "fp-shared")
	failed := run.NewPipelineRun("c", nil, run.RunFingerprint{Fingerprint: "fp-shared"})
	failed.Fail(core.NewConvergenceError("raking run r1", 50), "CONVERGENCE_FAILURE")
	for _, r := range []*run.PipelineRun{older, newer, failed} {
		require.NoError(t, s.Save(ctx, r))
	}

	got, err := s.FindByFingerprint(ctx, "fp-shared")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID, "newest completed run wins")

	_, err = s.FindByFingerprint(ctx, "fp-other")
	assert.True(t, core.IsNotFoundError(err))
}

func TestRunStore_List(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	var ids []core.RunID
	for _, v := range []string{"a", "b", "c"} {
		r := sampleRun(v, core.Hash("fp-"+v))
		require.NoError(t, s.Save(ctx, r))
		ids = append(ids, r.ID)
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[0], all[2].ID)

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)

	s, err := Open(Config{Path: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
