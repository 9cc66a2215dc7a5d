package difftest

import (
	"context"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"isoquant/domain/quant"
	"isoquant/domain/result"
	"isoquant/internal/numeric"
)

// exactLimit is the group size below which tie-free samples use the exact
// null distribution.
const exactLimit = 50

// RankSumTest is the Wilcoxon-Mann-Whitney test of each condition against
// the reference.
type RankSumTest struct {
	Options
}

// NewRankSumTest creates the engine with default options
func NewRankSumTest() *RankSumTest {
	return &RankSumTest{Options: DefaultOptions()}
}

// Name returns the engine name
func (r *RankSumTest) Name() string {
	return "rank_sum"
}

// Test runs the rank-sum test per protein and contrast.
func (r *RankSumTest) Test(ctx context.Context, t *quant.Table, d *quant.Design) (*result.ResultSet, error) {
	units, contrasts, err := layout(t, d)
	if err != nil {
		return nil, err
	}
	per := make([][]result.TestResult, len(units))
	err = r.forEach(ctx, len(units), func(_ context.Context, i int) error {
		u := units[i]
		ref := u.group(0)
		out := undefinedAll(u.protein, contrasts, r.Name(), "")
		for c := range contrasts {
			out[c] = r.testOne(u.protein, contrasts[c], u.group(c+1), ref, t.Scale())
		}
		per[i] = out
		return nil
	}, func(i int) {
		per[i] = undefinedAll(units[i].protein, contrasts, r.Name(), NoteTimeout)
	})
	if err != nil {
		return nil, err
	}
	return assemble(r.Name(), t, d, contrasts, per), nil
}

func (r *RankSumTest) testOne(protein, contrast string, x, y []float64, scale quant.Scale) result.TestResult {
	res := result.NewUndefined(protein, contrast, r.Name(), "")
	if len(x) == 0 || len(y) == 0 {
		res.Note = "condition not observed"
		return res
	}
	refMean := numeric.Mean(y)
	res.LogFC, res.Unstable, res.Note = foldChange(scale, refMean, numeric.Mean(x)-refMean, r.Epsilon)

	u, p := MannWhitney(x, y)
	res.Statistic = u
	res.PValue = p
	res.ModPValue = p
	return res
}

// MannWhitney returns U for x and the two-sided p-value.
func MannWhitney(x, y []float64) (float64, float64) {
	m, n := len(x), len(y)
	pooled := append(append([]float64(nil), x...), y...)
	ranks := numeric.Ranks(pooled)
	w := 0.0
	for i := 0; i < m; i++ {
		w += ranks[i]
	}
	u := w - float64(m*(m+1))/2
	ties := numeric.TieGroups(pooled)

	if len(ties) == 0 && m < exactLimit && n < exactLimit {
		return u, exactMannWhitneyP(u, m, n)
	}

	N := float64(m + n)
	mu := float64(m*n) / 2
	tieSum := 0.0
	for _, t := range ties {
		ft := float64(t)
		tieSum += ft*ft*ft - ft
	}
	variance := float64(m*n) / 12 * ((N + 1) - tieSum/(N*(N-1)))
	if variance <= 0 {
		return u, math.NaN()
	}
	diff := u - mu
	correction := 0.0
	if diff > 0 {
		correction = 0.5
	} else if diff < 0 {
		correction = -0.5
	}
	z := (diff - correction) / math.Sqrt(variance)
	return u, math.Min(1, 2*distuv.UnitNormal.Survival(math.Abs(z)))
}

// exactMannWhitneyP uses the U distribution, whose generating function is
// the Gaussian binomial coefficient [m+n choose m]_q.
func exactMannWhitneyP(u float64, m, n int) float64 {
	counts := gaussianBinomial(m, n)
	total := 0.0
	for _, c := range counts {
		total += c
	}
	k := int(math.Round(u))
	lower, upper := 0.0, 0.0
	for i, c := range counts {
		if i <= k {
			lower += c
		}
		if i >= k {
			upper += c
		}
	}
	return math.Min(1, 2*math.Min(lower, upper)/total)
}

// gaussianBinomial returns the coefficients of prod_{i=1..m} (1-q^{n+i})/(1-q^i).
func gaussianBinomial(m, n int) []float64 {
	coef := make([]float64, m*n+1)
	coef[0] = 1
	deg := 0
	for i := 1; i <= m; i++ {
		// Multiply by (1 - q^(n+i)).
		shift := n + i
		for j := deg + shift; j >= shift; j-- {
			if j < len(coef) {
				coef[j] -= coef[j-shift]
			}
		}
		deg += shift
		// Divide by (1 - q^i).
		for j := i; j < len(coef); j++ {
			coef[j] += coef[j-i]
		}
		deg -= i
	}
	return coef
}
