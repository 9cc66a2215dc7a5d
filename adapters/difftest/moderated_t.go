package difftest

import (
	"context"
	"errors"
	"math"

	"isoquant/domain/core"
	"isoquant/domain/quant"
	"isoquant/domain/result"
	"isoquant/internal/linmod"
	"isoquant/internal/numeric"
)

// ModeratedTTest fits a treatment-coded linear model per protein and
// moderates the residual variances with an empirical Bayes prior shared
// across proteins.
type ModeratedTTest struct {
	BlockByRun bool
	Options
}

// NewModeratedTTest creates the engine with default options
func NewModeratedTTest(blockByRun bool) *ModeratedTTest {
	return &ModeratedTTest{BlockByRun: blockByRun, Options: DefaultOptions()}
}

// Name returns the engine name
func (m *ModeratedTTest) Name() string {
	return "moderated_t"
}

// Params returns the settings that affect the output
func (m *ModeratedTTest) Params() map[string]interface{} {
	return map[string]interface{}{"block_by_run": m.BlockByRun, "epsilon": m.Epsilon}
}

type linearFit struct {
	ok      bool
	note    string
	coef    map[int]float64
	std     map[int]float64
	refMean float64
	s2      float64
	df      float64
}

// Test fits every protein, estimates the prior and reports moderated statistics.
func (m *ModeratedTTest) Test(ctx context.Context, t *quant.Table, d *quant.Design) (*result.ResultSet, error) {
	units, contrasts, err := layout(t, d)
	if err != nil {
		return nil, err
	}

	fits := make([]linearFit, len(units))
	err = m.forEach(ctx, len(units), func(_ context.Context, i int) error {
		fits[i] = m.fit(units[i], len(contrasts))
		return nil
	}, func(i int) {
		fits[i] = linearFit{note: NoteTimeout}
	})
	if err != nil {
		return nil, err
	}

	var s2, df []float64
	for _, f := range fits {
		if f.ok {
			s2 = append(s2, f.s2)
			df = append(df, f.df)
		}
	}
	pr := fitPrior(s2, df)
	logger.Debug("moderated t prior from %d proteins: d0=%.4g s0^2=%.4g", len(s2), pr.d0, pr.s02)

	per := make([][]result.TestResult, len(units))
	for i, u := range units {
		per[i] = m.results(u.protein, contrasts, fits[i], pr, t.Scale())
	}
	return assemble(m.Name(), t, d, contrasts, per), nil
}

func (m *ModeratedTTest) fit(u proteinUnit, nContrasts int) linearFit {
	compact, index, ok := compactLevels(u.level)
	if !ok {
		return linearFit{note: "reference condition not observed"}
	}
	var extra [][]float64
	if m.BlockByRun {
		extra = runBlocks(u.samples)
	}
	X := linmod.TreatmentDesign(compact, len(index), extra)
	ols, err := linmod.OLS(X, u.values)
	if err != nil {
		if errors.Is(err, core.ErrDegenerate) {
			return linearFit{note: "degenerate design"}
		}
		return linearFit{note: err.Error()}
	}

	f := linearFit{
		ok:      true,
		coef:    make(map[int]float64, nContrasts),
		std:     make(map[int]float64, nContrasts),
		refMean: numeric.Mean(u.group(0)),
		s2:      ols.Sigma2,
		df:      float64(ols.DF),
	}
	for c := 0; c < nContrasts; c++ {
		if j, ok := index[c+1]; ok {
			f.coef[c] = ols.Coef[j]
			f.std[c] = ols.StdUnscaled(j)
		}
	}
	return f
}

func (m *ModeratedTTest) results(protein string, contrasts []string, f linearFit, pr prior, scale quant.Scale) []result.TestResult {
	out := undefinedAll(protein, contrasts, m.Name(), f.note)
	if !f.ok {
		return out
	}
	s2post, dpost := pr.posterior(f.s2, f.df)
	for c := range contrasts {
		coef, ok := f.coef[c]
		if !ok {
			out[c].Note = "condition not observed"
			continue
		}
		r := &out[c]
		r.LogFC, r.Unstable, r.Note = foldChange(scale, f.refMean, coef, m.Epsilon)

		sd := f.std[c]
		if f.df > 0 && f.s2 > 0 {
			r.OrdinaryT = coef / (math.Sqrt(f.s2) * sd)
			r.PValue = twoSidedP(r.OrdinaryT, f.df)
		}
		if s2post > 0 && dpost > 0 {
			r.Statistic = coef / (math.Sqrt(s2post) * sd)
			r.DF = dpost
			r.ModPValue = twoSidedP(r.Statistic, dpost)
		}
	}
	return out
}
