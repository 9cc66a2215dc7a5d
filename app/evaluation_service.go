package app

import (
	"sort"

	"isoquant/domain/evaluation"
	"isoquant/domain/result"
	"isoquant/domain/run"
)

// EvalConfig configures scoring
type EvalConfig struct {
	Criteria evaluation.Criteria
	// RestrictToTruth limits agreement correlations to ground-truth proteins.
	RestrictToTruth bool
}

// EvaluationService scores pipeline runs against a ground truth
type EvaluationService struct{}

// NewEvaluationService creates an evaluation service
func NewEvaluationService() *EvaluationService {
	return &EvaluationService{}
}

// Evaluate builds the confusion matrix and metrics for every completed run
// and contrast, plus pairwise agreement between variants on each contrast.
// Failed runs are listed in Failures.
func (s *EvaluationService) Evaluate(runs []*run.PipelineRun, truth evaluation.GroundTruth, cfg EvalConfig) evaluation.Report {
	if cfg.Criteria.Threshold <= 0 {
		cfg.Criteria.Threshold = evaluation.DefaultCriteria().Threshold
	}
	report := evaluation.Report{Criteria: cfg.Criteria}

	var completed []*run.PipelineRun
	for _, r := range runs {
		if r == nil {
			continue
		}
		if !r.Succeeded() {
			report.Failures = append(report.Failures, evaluation.VariantFailure{
				Variant: r.Variant, Code: r.ErrorCode, Error: r.Error,
			})
			continue
		}
		completed = append(completed, r)
	}

	for _, r := range completed {
		for _, cr := range r.Results.Contrasts {
			cm := evaluation.Classify(cr, truth, cfg.Criteria)
			report.Scores = append(report.Scores, evaluation.VariantScore{
				Variant:   r.Variant,
				Contrast:  cr.Contrast,
				Engine:    r.Results.Engine,
				Confusion: cm,
				Metrics:   evaluation.MetricsOf(cm),
				Unstable:  countUnstable(cr),
			})
		}
	}

	var restrict *evaluation.GroundTruth
	if cfg.RestrictToTruth {
		restrict = &truth
	}
	for i := 0; i < len(completed); i++ {
		for j := i + 1; j < len(completed); j++ {
			a, b := completed[i], completed[j]
			for _, name := range sharedContrasts(a.Results, b.Results) {
				ca, _ := a.Results.Contrast(name)
				cb, _ := b.Results.Contrast(name)
				for _, field := range []evaluation.Field{evaluation.FieldLogFC, evaluation.FieldQValue} {
					pearson, spearman, n := evaluation.Compare(ca, cb, field, restrict)
					report.Agreement = append(report.Agreement, evaluation.Agreement{
						Contrast: name, VariantA: a.Variant, VariantB: b.Variant, Field: field,
						Pearson: pearson, Spearman: spearman, N: n,
					})
				}
			}
		}
	}

	sort.SliceStable(report.Scores, func(i, j int) bool {
		if report.Scores[i].Contrast != report.Scores[j].Contrast {
			return report.Scores[i].Contrast < report.Scores[j].Contrast
		}
		return report.Scores[i].Variant < report.Scores[j].Variant
	})
	return report
}

func countUnstable(cr result.ContrastResults) int {
	n := 0
	for _, r := range cr.Results {
		if r.Unstable {
			n++
		}
	}
	return n
}

func sharedContrasts(a, b *result.ResultSet) []string {
	in := make(map[string]bool)
	for _, name := range a.ContrastNames() {
		in[name] = true
	}
	var out []string
	for _, name := range b.ContrastNames() {
		if in[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
