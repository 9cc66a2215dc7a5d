package app

import (
	"fmt"
	"time"

	"isoquant/adapters/difftest"
	"isoquant/adapters/normalize"
	"isoquant/adapters/summarize"
	"isoquant/domain/quant"
	"isoquant/domain/run"
	"isoquant/internal/config"
	"isoquant/internal/errors"
	"isoquant/ports"
)

// StrategyFactory builds strategies from typed step configuration
type StrategyFactory struct {
	workers     int
	unitTimeout time.Duration
	seed        int64
	rngPort     ports.RNGPort
}

// NewStrategyFactory creates a factory that applies the pipeline limits to
// every strategy it builds
func NewStrategyFactory(cfg config.PipelineConfig, seed int64, rngPort ports.RNGPort) *StrategyFactory {
	return &StrategyFactory{
		workers:     cfg.Workers,
		unitTimeout: cfg.UnitTimeout,
		seed:        seed,
		rngPort:     rngPort,
	}
}

// Normalizer builds a normalization strategy by name
func (f *StrategyFactory) Normalizer(step config.StepConfig) (ports.NormalizationStrategy, error) {
	switch step.Name {
	case "raking":
		n := normalize.NewRakingNormalizer()
		n.Tolerance = step.Float("tolerance", n.Tolerance)
		n.MaxIterations = step.Int("max_iterations", n.MaxIterations)
		n.Workers = f.workers
		return n, nil

	case "median_sweep":
		op, err := normalize.ParseSweepOp(step.String("op", "subtract"))
		if err != nil {
			return nil, errors.WithCode(errors.CodeConfigInvalid, err)
		}
		n := normalize.NewMedianSweepNormalizer(op,
			step.Bool("rows", true),
			step.Bool("columns", false),
			normalize.ParseScope(step.String("scope", "per_run")))
		n.MaxIterations = step.Int("max_iterations", n.MaxIterations)
		n.Workers = f.workers
		if !n.Rows && !n.Columns {
			return nil, errors.ConfigInvalid("median_sweep needs rows or columns")
		}
		return n, nil

	case "quantile":
		n := normalize.NewQuantileNormalizer(
			normalize.ParseScope(step.String("scope", "per_run")),
			step.Bool("rescale", false))
		n.GrandMean = step.Float("grand_mean", 0)
		n.Workers = f.workers
		return n, nil

	case "mean_sweep":
		return normalize.NewMeanSweepNormalizer(), nil

	case "mixed_residual":
		n := normalize.NewMixedModelResidualNormalizer(normalize.ParseGrouping(step.String("grouping", "protein_peptide")))
		n.Options.MaxIterations = step.Int("max_iterations", n.Options.MaxIterations)
		return n, nil
	}
	return nil, errors.ConfigInvalid(fmt.Sprintf("unknown normalizer %q", step.Name))
}

// Summarizer builds a summarization strategy by name
func (f *StrategyFactory) Summarizer(step config.StepConfig) (ports.SummarizationStrategy, error) {
	switch step.Name {
	case "median":
		return summarize.NewMedianAggregate(), nil
	case "sum":
		return summarize.NewSumAggregate(), nil
	case "weighted", "ipqf":
		s := summarize.NewWeightedFeatureAggregate()
		s.Workers = f.workers
		return s, nil
	}
	return nil, errors.ConfigInvalid(fmt.Sprintf("unknown summarizer %q", step.Name))
}

// Engine builds a differential test engine by name
func (f *StrategyFactory) Engine(step config.StepConfig) (ports.DifferentialTestEngine, error) {
	opts := difftest.DefaultOptions()
	opts.Workers = f.workers
	opts.UnitTimeout = f.unitTimeout
	opts.Epsilon = step.Float("epsilon", opts.Epsilon)

	switch step.Name {
	case "moderated_t", "limma":
		e := difftest.NewModeratedTTest(step.Bool("block_by_run", false))
		e.Options = opts
		return e, nil

	case "rank_sum", "wilcoxon":
		e := difftest.NewRankSumTest()
		e.Options = opts
		return e, nil

	case "permutation":
		e := difftest.NewPermutationTest(int64(step.Int("seed", int(f.seed))))
		e.Permutations = step.Int("permutations", e.Permutations)
		e.Options = opts
		if f.rngPort != nil {
			e.WithRNG(f.rngPort)
		}
		if e.Permutations < 1 {
			return nil, errors.ConfigInvalid("permutation needs at least one permutation")
		}
		return e, nil

	case "mixed_model", "anova":
		e := difftest.NewMixedModelTest(step.Name == "mixed_model" && step.Bool("random_sample", true))
		e.REML.MaxIterations = step.Int("max_iterations", e.REML.MaxIterations)
		e.Options = opts
		return e, nil
	}
	return nil, errors.ConfigInvalid(fmt.Sprintf("unknown test engine %q", step.Name))
}

// Pipeline is one configured variant, ready to execute
type Pipeline struct {
	Variant        string
	Normalize      []ports.NormalizationStrategy
	Summarize      ports.SummarizationStrategy
	PostNormalize  []ports.NormalizationStrategy
	Test           ports.DifferentialTestEngine
	SummarizeFirst bool
	Level          quant.Level
}

// Build resolves every step of a variant
func (f *StrategyFactory) Build(v config.VariantConfig) (*Pipeline, error) {
	p := &Pipeline{Variant: v.Name, SummarizeFirst: v.SummarizeFirst, Level: v.Level()}
	for _, step := range v.Normalize {
		n, err := f.Normalizer(step)
		if err != nil {
			return nil, errors.Wrapf(err, "variant %s", v.Name)
		}
		p.Normalize = append(p.Normalize, n)
	}
	if v.Summarize.Name != "" {
		s, err := f.Summarizer(v.Summarize)
		if err != nil {
			return nil, errors.Wrapf(err, "variant %s", v.Name)
		}
		p.Summarize = s
	}
	for _, step := range v.PostNormalize {
		n, err := f.Normalizer(step)
		if err != nil {
			return nil, errors.Wrapf(err, "variant %s", v.Name)
		}
		p.PostNormalize = append(p.PostNormalize, n)
	}
	e, err := f.Engine(v.Test)
	if err != nil {
		return nil, errors.Wrapf(err, "variant %s", v.Name)
	}
	p.Test = e
	return p, nil
}

// Stages lists the strategy choices in execution order
func (p *Pipeline) Stages() []run.StageChoice {
	var stages []run.StageChoice
	add := func(stage, name string, s interface{}) {
		c := run.StageChoice{Stage: stage, Strategy: name}
		if d, ok := s.(ports.Describer); ok {
			c.Params = d.Params()
		}
		stages = append(stages, c)
	}
	summarizeStage := func() {
		if p.Summarize != nil && p.Level == quant.LevelProtein {
			add(run.StageSummarize, p.Summarize.Name(), p.Summarize)
		}
	}

	if p.SummarizeFirst {
		summarizeStage()
	}
	for _, n := range p.Normalize {
		add(run.StageNormalize, n.Name(), n)
	}
	if !p.SummarizeFirst {
		summarizeStage()
	}
	for _, n := range p.PostNormalize {
		add(run.StagePostNormalize, n.Name(), n)
	}
	add(run.StageTest, p.Test.Name(), p.Test)
	return stages
}
