package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"isoquant/adapters/difftest"
	"isoquant/domain/core"
	"isoquant/domain/quant"
	"isoquant/domain/result"
	"isoquant/domain/run"
	"isoquant/internal"
	"isoquant/internal/config"
	"isoquant/internal/errors"
	"isoquant/internal/metrics"
	"isoquant/ports"
)

// CodeVersion is recorded in every run fingerprint.
const CodeVersion = "isoquant/v0.3.0"

var pipelineLog = internal.DefaultLogger.WithComponent("pipeline")

// PipelineService executes pipeline variants against one input table
type PipelineService struct {
	factory  *StrategyFactory
	runRepo  ports.RunRepository
	recorder *metrics.Recorder
	workers  int
}

// RunRequest is one benchmark invocation
type RunRequest struct {
	Table    *quant.Table
	Design   *quant.Design
	Variants []config.VariantConfig
	Seed     int64
}

// NewPipelineService creates a pipeline service. runRepo and recorder may be nil.
func NewPipelineService(factory *StrategyFactory, runRepo ports.RunRepository, recorder *metrics.Recorder, workers int) *PipelineService {
	if workers < 1 {
		workers = 1
	}
	return &PipelineService{
		factory:  factory,
		runRepo:  runRepo,
		recorder: recorder,
		workers:  workers,
	}
}

// RunAll executes every variant concurrently. A failing variant is recorded
// as failed and never aborts its siblings; only cancellation of ctx is
// returned as an error. Runs are returned in variant order.
func (s *PipelineService) RunAll(ctx context.Context, req RunRequest) ([]*run.PipelineRun, error) {
	if req.Table == nil || req.Design == nil {
		return nil, errors.InvalidInput("run request needs a table and a design")
	}
	start := time.Now()
	runs := make([]*run.PipelineRun, len(req.Variants))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, v := range req.Variants {
		i, v := i, v
		g.Go(func() error {
			runs[i] = s.RunVariant(ctx, req, v)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range runs {
		if r.Status == run.StatusFailed {
			failed++
		}
	}
	pipelineLog.Info("%d variants finished in %s (%d failed)", len(runs), time.Since(start).Round(time.Millisecond), failed)

	if err := ctx.Err(); err != nil {
		return runs, err
	}
	return runs, nil
}

// RunVariant executes one variant and returns its record. Errors are captured
// on the record.
func (s *PipelineService) RunVariant(ctx context.Context, req RunRequest, v config.VariantConfig) *run.PipelineRun {
	log := internal.DefaultLogger.WithComponent("pipeline/" + v.Name)

	p, err := s.factory.Build(v)
	if err != nil {
		r := run.NewPipelineRun(v.Name, nil, run.RunFingerprint{})
		return s.fail(r, err)
	}
	stages := p.Stages()
	fp := run.NewRunFingerprint(req.Table.Hash(), req.Design.Hash(), run.StrategyHashOf(stages), req.Seed, CodeVersion)

	if cached := s.cached(ctx, fp); cached != nil {
		log.Debug("reusing run %s for fingerprint %s", cached.ID, fp.Fingerprint.Short())
		s.recorder.VariantFinished("cached")
		cached.Variant = v.Name
		return cached
	}

	r := run.NewPipelineRun(v.Name, stages, fp)
	rs, err := s.execute(ctx, p, req.Table, req.Design)
	if err != nil {
		log.Warn("variant failed: %v", err)
		return s.fail(r, err)
	}
	r.Complete(rs)
	s.recorder.VariantFinished(string(run.StatusCompleted))
	s.recorder.ModelFallbacks(countNotes(rs, difftest.NoteFallback))
	log.Debug("completed in %s", r.Duration)
	s.save(ctx, r)
	return r
}

func (s *PipelineService) fail(r *run.PipelineRun, err error) *run.PipelineRun {
	r.Fail(err, errors.CodeFor(err))
	s.recorder.VariantFinished(string(run.StatusFailed))
	return r
}

func (s *PipelineService) cached(ctx context.Context, fp run.RunFingerprint) *run.PipelineRun {
	if s.runRepo == nil {
		return nil
	}
	r, err := s.runRepo.FindByFingerprint(ctx, fp.Fingerprint)
	if err != nil {
		if !stderrors.Is(err, core.ErrNotFound) {
			pipelineLog.Warn("run cache lookup failed: %v", err)
		}
		return nil
	}
	return r
}

func (s *PipelineService) save(ctx context.Context, r *run.PipelineRun) {
	if s.runRepo == nil {
		return
	}
	if err := s.runRepo.Save(ctx, r); err != nil {
		pipelineLog.Warn("could not store run %s: %v", r.ID, err)
	}
}

// execute runs the stages in order. Summarization is skipped for tests below
// protein level.
func (s *PipelineService) execute(ctx context.Context, p *Pipeline, t *quant.Table, d *quant.Design) (*result.ResultSet, error) {
	if p.Level != quant.LevelProtein && t.Level() != p.Level {
		return nil, core.NewValidationError("test_level",
			fmt.Sprintf("variant tests at %s level but the input is %s level", p.Level, t.Level()))
	}

	var err error
	summarizeStep := func() error {
		if p.Level != quant.LevelProtein || t.Level() == quant.LevelProtein {
			return nil
		}
		if p.Summarize == nil {
			return core.NewValidationError("summarize", "protein-level test needs a summarization step")
		}
		t, err = s.timed(run.StageSummarize, func() (*quant.Table, error) { return p.Summarize.Summarize(ctx, t) })
		if err != nil {
			return fmt.Errorf("summarize %s: %w", p.Summarize.Name(), err)
		}
		return nil
	}
	normalizeSteps := func(stage string, steps []ports.NormalizationStrategy) error {
		for _, n := range steps {
			t, err = s.timed(stage, func() (*quant.Table, error) { return n.Normalize(ctx, t) })
			if err != nil {
				return fmt.Errorf("%s %s: %w", stage, n.Name(), err)
			}
		}
		return nil
	}

	if p.SummarizeFirst {
		if err := summarizeStep(); err != nil {
			return nil, err
		}
	}
	if err := normalizeSteps(run.StageNormalize, p.Normalize); err != nil {
		return nil, err
	}
	if !p.SummarizeFirst {
		if err := summarizeStep(); err != nil {
			return nil, err
		}
	}
	if err := normalizeSteps(run.StagePostNormalize, p.PostNormalize); err != nil {
		return nil, err
	}

	start := time.Now()
	rs, err := p.Test.Test(ctx, t, d)
	s.recorder.ObserveStage(run.StageTest, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("test %s: %w", p.Test.Name(), err)
	}
	return rs, nil
}

func (s *PipelineService) timed(stage string, fn func() (*quant.Table, error)) (*quant.Table, error) {
	start := time.Now()
	t, err := fn()
	s.recorder.ObserveStage(stage, time.Since(start))
	return t, err
}

func countNotes(rs *result.ResultSet, note string) int {
	n := 0
	for _, c := range rs.Contrasts {
		for _, r := range c.Results {
			if strings.HasPrefix(r.Note, note) {
				n++
			}
		}
	}
	return n
}
