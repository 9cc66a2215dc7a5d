package app

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isoquant/adapters/rng"
	"isoquant/domain/evaluation"
	"isoquant/domain/run"
	"isoquant/internal/config"
	"isoquant/internal/errors"
	"isoquant/internal/metrics"
	"isoquant/internal/testkit"
	"isoquant/ports"
)

func step(name string, params map[string]interface{}) config.StepConfig {
	return config.StepConfig{Name: name, Params: params}
}

func rowSweep() []config.StepConfig {
	return []config.StepConfig{step("median_sweep", map[string]interface{}{"op": "subtract", "rows": true})}
}

// columnSweep recenters every protein-level sample on its median.
func columnSweep() []config.StepConfig {
	return []config.StepConfig{step("median_sweep", map[string]interface{}{"rows": false, "columns": true, "scope": "global"})}
}

func benchmarkVariants() []config.VariantConfig {
	return []config.VariantConfig{
		{Name: "median", Normalize: rowSweep(), Summarize: step("median", nil), PostNormalize: columnSweep(), Test: step("moderated_t", nil)},
		{Name: "sum", Normalize: rowSweep(), Summarize: step("sum", nil), PostNormalize: columnSweep(), Test: step("moderated_t", nil)},
		{Name: "weighted", Normalize: rowSweep(), Summarize: step("weighted", nil), Test: step("rank_sum", nil)},
		{Name: "psm_mixed", Normalize: rowSweep(), Test: step("mixed_model", nil), TestLevel: "psm"},
		{Name: "raking_on_log2", Normalize: []config.StepConfig{step("raking", nil)}, Summarize: step("median", nil), Test: step("moderated_t", nil)},
		{Name: "unknown_engine", Summarize: step("median", nil), Test: step("bogus", nil)},
	}
}

func newTestService(t *testing.T, repo ports.RunRepository) (*PipelineService, *metrics.Recorder) {
	t.Helper()
	rec := metrics.NewRecorder()
	factory := NewStrategyFactory(config.PipelineConfig{Workers: 4, QThreshold: 0.05}, 42, rng.NewStreams())
	return NewPipelineService(factory, repo, rec, 3), rec
}

func TestPipelineService_SpikeInBenchmark(t *testing.T) {
	data, err := testkit.GenerateSpikeIn(testkit.DefaultSpikeInConfig())
	require.NoError(t, err)
	svc, rec := newTestService(t, nil)

	runs, err := svc.RunAll(context.Background(), RunRequest{
		Table: data.Table, Design: data.Design, Variants: benchmarkVariants(), Seed: 42,
	})
	require.NoError(t, err)
	require.Len(t, runs, 6)

	byName := make(map[string]*run.PipelineRun)
	for _, r := range runs {
		byName[r.Variant] = r
	}
	for _, name := range []string{"median", "sum", "weighted", "psm_mixed"} {
		require.Equal(t, run.StatusCompleted, byName[name].Status, "%s: %s", name, byName[name].Error)
	}

	// A failing variant is recorded and never aborts its siblings.
	assert.Equal(t, run.StatusFailed, byName["raking_on_log2"].Status)
	assert.Equal(t, errors.CodeScaleMismatch, byName["raking_on_log2"].ErrorCode)
	assert.Equal(t, run.StatusFailed, byName["unknown_engine"].Status)
	assert.Equal(t, errors.CodeConfigInvalid, byName["unknown_engine"].ErrorCode)

	report := NewEvaluationService().Evaluate(runs, data.Truth, EvalConfig{Criteria: evaluation.DefaultCriteria()})
	assert.Len(t, report.Failures, 2)

	median, ok := report.Score("median", "spike")
	require.True(t, ok)
	assert.GreaterOrEqual(t, median.Confusion.TP, 4)
	assert.LessOrEqual(t, 1-median.Metrics.Specificity, 0.05, "false positive rate")

	// Summing centered log values lets one interfering PSM cancel the change.
	sum, ok := report.Score("sum", "spike")
	require.True(t, ok)
	assert.Less(t, sum.Metrics.Sensitivity, median.Metrics.Sensitivity)

	// 4 completed variants, 6 pairs, 2 fields each.
	assert.Len(t, report.Agreement, 12)
	for _, a := range report.Agreement {
		assert.LessOrEqual(t, a.N, 20)
		if a.VariantA == "median" && a.VariantB == "sum" && a.Field == evaluation.FieldLogFC {
			assert.Equal(t, 20, a.N)
		}
	}

	n, err := testutil.GatherAndCount(rec.Registry, "isoquant_variant_runs_total", "isoquant_stage_duration_seconds")
	require.NoError(t, err)
	assert.Positive(t, n)
}

// spikeInScores runs the median and sum variants on one table per seed and
// pools their confusion matrices.
func spikeInScores(t *testing.T, cfg testkit.SpikeInConfig, seeds []int64) (median, sum evaluation.ConfusionMatrix, minMedianTP int) {
	t.Helper()
	svc, _ := newTestService(t, nil)
	minMedianTP = cfg.Spiked
	for _, seed := range seeds {
		cfg.Seed = seed
		data, err := testkit.GenerateSpikeIn(cfg)
		require.NoError(t, err)

		runs, err := svc.RunAll(context.Background(), RunRequest{
			Table: data.Table, Design: data.Design, Variants: benchmarkVariants()[:2], Seed: seed,
		})
		require.NoError(t, err)
		report := NewEvaluationService().Evaluate(runs, data.Truth, EvalConfig{Criteria: evaluation.DefaultCriteria()})
		require.Empty(t, report.Failures, "seed %d", seed)

		m, ok := report.Score("median", "spike")
		require.True(t, ok)
		s, ok := report.Score("sum", "spike")
		require.True(t, ok)
		median = pooled(median, m.Confusion)
		sum = pooled(sum, s.Confusion)
		if m.Confusion.TP < minMedianTP {
			minMedianTP = m.Confusion.TP
		}
	}
	return median, sum, minMedianTP
}

func pooled(a, b evaluation.ConfusionMatrix) evaluation.ConfusionMatrix {
	return evaluation.ConfusionMatrix{TP: a.TP + b.TP, FP: a.FP + b.FP, TN: a.TN + b.TN, FN: a.FN + b.FN}
}

func sensitivity(m evaluation.ConfusionMatrix) float64 {
	return evaluation.MetricsOf(m).Sensitivity
}

func seedRange(from, to int64) []int64 {
	var seeds []int64
	for s := from; s <= to; s++ {
		seeds = append(seeds, s)
	}
	return seeds
}

func TestPipelineService_SpikeInAcrossSeeds(t *testing.T) {
	cfg := testkit.DefaultSpikeInConfig()
	require.False(t, cfg.Mirrored, "null proteins need channel-level noise")
	seeds := seedRange(1, 30)

	median, sum, minTP := spikeInScores(t, cfg, seeds)
	assert.GreaterOrEqual(t, minTP, 4, "every seed should recover at least 4 of 5 spike-ins")
	assert.Equal(t, len(seeds)*cfg.Spiked, median.TP+median.FN)

	// A quarter of the proteins are spiked, so the column medians carry part
	// of the change and the null calls run somewhat above 5%.
	fpr := float64(median.FP) / float64(median.FP+median.TN)
	assert.Positive(t, median.FP+median.TN)
	assert.LessOrEqual(t, fpr, 0.15, "pooled false positive rate %d/%d", median.FP, median.FP+median.TN)

	// The interfering PSM cancels the summed change but not the median.
	assert.Less(t, sensitivity(sum), sensitivity(median))
	assert.Less(t, sensitivity(sum), 0.6)
}

func TestPipelineService_SumMatchesMedianWithoutInterference(t *testing.T) {
	cfg := testkit.DefaultSpikeInConfig()
	cfg.Interference = false

	median, sum, _ := spikeInScores(t, cfg, seedRange(1, 10))
	assert.GreaterOrEqual(t, sensitivity(median), 0.9)
	assert.GreaterOrEqual(t, sensitivity(sum), 0.9)
}

func TestPipelineService_ReusesCachedRuns(t *testing.T) {
	data, err := testkit.GenerateSpikeIn(testkit.DefaultSpikeInConfig())
	require.NoError(t, err)
	repo := testkit.NewInMemoryRunRepository()
	svc, _ := newTestService(t, repo)

	req := RunRequest{Table: data.Table, Design: data.Design, Variants: benchmarkVariants()[:2], Seed: 1}
	first, err := svc.RunAll(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.Len())

	second, err := svc.RunAll(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.Len())
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Fingerprint.Fingerprint, second[i].Fingerprint.Fingerprint)
	}

	req.Seed = 2
	third, err := svc.RunAll(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first[0].Fingerprint.Fingerprint, third[0].Fingerprint.Fingerprint)
	assert.Equal(t, 4, repo.Len())
}

func TestPipelineService_Cancelled(t *testing.T) {
	data, err := testkit.GenerateSpikeIn(testkit.DefaultSpikeInConfig())
	require.NoError(t, err)
	svc, _ := newTestService(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runs, err := svc.RunAll(ctx, RunRequest{Table: data.Table, Design: data.Design, Variants: benchmarkVariants()[:1]})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, runs, 1)
	assert.Equal(t, run.StatusFailed, runs[0].Status)
}

func TestPipelineService_SummarizeFirstAndPostNormalize(t *testing.T) {
	data, err := testkit.GenerateSpikeIn(testkit.DefaultSpikeInConfig())
	require.NoError(t, err)
	svc, _ := newTestService(t, nil)

	exp, err := config.ParseExperiment([]byte(`
reference: ctrl
variants:
  - name: protein_first
    summarize_first: true
    summarize: {name: median}
    normalize:
      - name: median_sweep
        params: {rows: false, columns: true, scope: global}
    test: {name: moderated_t, params: {block_by_run: true}}
  - name: quantile_then_polish
    normalize:
      - name: quantile
    summarize: {name: median}
    post_normalize:
      - name: median_sweep
        params: {rows: true, columns: true, scope: global}
    test: {name: permutation, params: {permutations: 200}}
`))
	require.NoError(t, err)

	runs, err := svc.RunAll(context.Background(), RunRequest{Table: data.Table, Design: data.Design, Variants: exp.Variants, Seed: exp.Seed})
	require.NoError(t, err)
	for _, r := range runs {
		require.Equal(t, run.StatusCompleted, r.Status, "%s: %s", r.Variant, r.Error)
		assert.Len(t, r.Results.Contrasts, 1)
	}

	assert.Equal(t, []run.StageChoice{
		{Stage: run.StageSummarize, Strategy: "median"},
		{Stage: run.StageNormalize, Strategy: "median_sweep", Params: runs[0].Stages[1].Params},
		{Stage: run.StageTest, Strategy: "moderated_t", Params: runs[0].Stages[2].Params},
	}, runs[0].Stages)
}

func TestStrategyFactory_Names(t *testing.T) {
	f := NewStrategyFactory(config.PipelineConfig{Workers: 2}, 1, nil)

	for _, name := range []string{"raking", "median_sweep", "quantile", "mean_sweep", "mixed_residual"} {
		n, err := f.Normalizer(step(name, nil))
		require.NoError(t, err, name)
		assert.Equal(t, name, n.Name())
	}
	for _, name := range []string{"median", "sum", "weighted"} {
		s, err := f.Summarizer(step(name, nil))
		require.NoError(t, err, name)
		assert.Equal(t, name, s.Name())
	}
	for _, name := range []string{"moderated_t", "rank_sum", "permutation", "mixed_model", "anova"} {
		e, err := f.Engine(step(name, nil))
		require.NoError(t, err, name)
		assert.Equal(t, name, e.Name())
	}

	e, err := f.Engine(step("mixed_model", map[string]interface{}{"random_sample": false}))
	require.NoError(t, err)
	assert.Equal(t, "anova", e.Name())

	_, err = f.Normalizer(step("median_sweep", map[string]interface{}{"rows": false}))
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	_, err = f.Normalizer(step("median_sweep", map[string]interface{}{"op": "multiply"}))
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	_, err = f.Summarizer(step("mode", nil))
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}
