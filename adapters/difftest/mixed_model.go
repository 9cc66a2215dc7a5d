package difftest

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"isoquant/domain/core"
	"isoquant/domain/quant"
	"isoquant/domain/result"
	"isoquant/internal/linmod"
	"isoquant/internal/numeric"
)

// NoteFallback marks a protein tested with the fixed-effects model because
// its repeated measurements could not support the random sample effect.
const NoteFallback = "insufficient replication"

// MixedModelTest fits value ~ condition + (1 | sample) per protein by REML
// on repeated measurements. Without RandomSample it is a fixed-effects ANOVA.
type MixedModelTest struct {
	RandomSample bool
	REML         linmod.REMLOptions
	Options
}

// NewMixedModelTest creates the engine with default REML bounds
func NewMixedModelTest(randomSample bool) *MixedModelTest {
	return &MixedModelTest{RandomSample: randomSample, REML: linmod.DefaultREMLOptions(), Options: DefaultOptions()}
}

// Name returns the engine name
func (m *MixedModelTest) Name() string {
	if m.RandomSample {
		return "mixed_model"
	}
	return "anova"
}

// Params returns the settings that affect the output
func (m *MixedModelTest) Params() map[string]interface{} {
	return map[string]interface{}{"random_sample": m.RandomSample, "max_iterations": m.REML.MaxIterations}
}

// Test fits every protein. Insufficient replication falls back per protein;
// it never fails the engine.
func (m *MixedModelTest) Test(ctx context.Context, t *quant.Table, d *quant.Design) (*result.ResultSet, error) {
	units, contrasts, err := layout(t, d)
	if err != nil {
		return nil, err
	}
	per := make([][]result.TestResult, len(units))
	err = m.forEach(ctx, len(units), func(ctx context.Context, i int) error {
		res, err := m.testUnit(ctx, units[i], contrasts, t.Scale())
		if err != nil {
			return err
		}
		per[i] = res
		return nil
	}, func(i int) {
		per[i] = undefinedAll(units[i].protein, contrasts, m.Name(), NoteTimeout)
	})
	if err != nil {
		return nil, err
	}
	return assemble(m.Name(), t, d, contrasts, per), nil
}

// coefTest is the estimate of one condition coefficient.
type coefTest struct {
	estimate, se, df float64
}

func (m *MixedModelTest) testUnit(ctx context.Context, u proteinUnit, contrasts []string, scale quant.Scale) ([]result.TestResult, error) {
	compact, index, ok := compactLevels(u.level)
	if !ok {
		return undefinedAll(u.protein, contrasts, m.Name(), "reference condition not observed"), nil
	}
	X := linmod.TreatmentDesign(compact, len(index), nil)

	var coefs map[int]coefTest
	note := ""
	if m.RandomSample {
		var err error
		coefs, err = m.fitMixed(ctx, u, X, index)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, core.ErrInsufficientReplication), errors.Is(err, core.ErrConvergence),
			errors.Is(err, core.ErrDegenerate), errors.Is(err, core.ErrInvalidInput):
			logger.Trace("protein %s: mixed fit unavailable (%v), using fixed effects", u.protein, err)
			coefs, note = nil, NoteFallback
		default:
			return nil, err
		}
	}
	if coefs == nil {
		ols, err := linmod.OLS(X, u.values)
		if err != nil {
			if errors.Is(err, core.ErrDegenerate) {
				return undefinedAll(u.protein, contrasts, m.Name(), joinNote(note, "degenerate design")), nil
			}
			return nil, err
		}
		coefs = make(map[int]coefTest, len(index))
		for l, j := range index {
			coefs[l] = coefTest{estimate: ols.Coef[j], se: math.Sqrt(ols.Sigma2) * ols.StdUnscaled(j), df: float64(ols.DF)}
		}
	}

	refMean := numeric.Mean(u.group(0))
	out := undefinedAll(u.protein, contrasts, m.Name(), note)
	for c := range contrasts {
		ct, ok := coefs[c+1]
		if !ok {
			out[c].Note = joinNote(note, "condition not observed")
			continue
		}
		r := &out[c]
		var fcNote string
		r.LogFC, r.Unstable, fcNote = foldChange(scale, refMean, ct.estimate, m.Epsilon)
		r.Note = joinNote(note, fcNote)
		if ct.df > 0 && ct.se > 0 {
			r.Statistic = ct.estimate / ct.se
			r.OrdinaryT = r.Statistic
			r.DF = ct.df
			r.PValue = twoSidedP(r.Statistic, ct.df)
			r.ModPValue = r.PValue
		}
	}
	return out, nil
}

// fitMixed fits the random sample intercept model. At least two samples must
// carry repeated values and the between-sample df must be positive.
func (m *MixedModelTest) fitMixed(ctx context.Context, u proteinUnit, X *mat.Dense, index map[int]int) (map[int]coefTest, error) {
	ids := make(map[quant.Sample]int)
	counts := make(map[quant.Sample]int)
	groups := make([]int, len(u.samples))
	for i, s := range u.samples {
		if _, ok := ids[s]; !ok {
			ids[s] = len(ids)
		}
		groups[i] = ids[s]
		counts[s]++
	}
	repeated := 0
	for _, c := range counts {
		if c > 1 {
			repeated++
		}
	}
	_, p := X.Dims()
	betweenDF := len(ids) - p
	if repeated < 2 || betweenDF < 1 {
		return nil, core.ErrInsufficientReplication
	}

	fit, err := linmod.FitREML(ctx, linmod.MixedModel{
		Y:      u.values,
		X:      X,
		Groups: [][]int{groups},
		Levels: []int{len(ids)},
	}, m.REML)
	if err != nil {
		return nil, err
	}
	out := make(map[int]coefTest, len(index))
	for l, j := range index {
		out[l] = coefTest{estimate: fit.Beta[j], se: math.Sqrt(fit.BetaCov.At(j, j)), df: float64(betweenDF)}
	}
	return out, nil
}
