package difftest

import (
	"context"
	"math"

	"isoquant/adapters/rng"
	"isoquant/domain/quant"
	"isoquant/domain/result"
	"isoquant/internal/numeric"
	"isoquant/ports"
)

// permutationBatch is how many shuffles run between cancellation checks.
const permutationBatch = 100

// PermutationTest compares the difference of condition means with its
// label-permutation distribution. Each protein and contrast draws from its
// own stream so results do not depend on scheduling.
type PermutationTest struct {
	Permutations int
	Seed         int64
	Options

	rng ports.RNGPort
}

// NewPermutationTest creates a permutation engine with 1000 shuffles
func NewPermutationTest(seed int64) *PermutationTest {
	return &PermutationTest{Permutations: 1000, Seed: seed, Options: DefaultOptions(), rng: rng.NewStreams()}
}

// WithRNG replaces the stream source.
func (p *PermutationTest) WithRNG(r ports.RNGPort) *PermutationTest {
	p.rng = r
	return p
}

// Name returns the engine name
func (p *PermutationTest) Name() string {
	return "permutation"
}

// Params returns the settings that affect the output
func (p *PermutationTest) Params() map[string]interface{} {
	return map[string]interface{}{"permutations": p.Permutations, "seed": p.Seed}
}

// Test permutes labels per protein and contrast.
func (p *PermutationTest) Test(ctx context.Context, t *quant.Table, d *quant.Design) (*result.ResultSet, error) {
	units, contrasts, err := layout(t, d)
	if err != nil {
		return nil, err
	}
	if p.rng == nil {
		p.rng = rng.NewStreams()
	}
	per := make([][]result.TestResult, len(units))
	err = p.forEach(ctx, len(units), func(ctx context.Context, i int) error {
		u := units[i]
		ref := u.group(0)
		out := make([]result.TestResult, len(contrasts))
		for c, name := range contrasts {
			res, err := p.testOne(ctx, u.protein, name, u.group(c+1), ref, t.Scale())
			if err != nil {
				return err
			}
			out[c] = res
		}
		per[i] = out
		return nil
	}, func(i int) {
		per[i] = undefinedAll(units[i].protein, contrasts, p.Name(), NoteTimeout)
	})
	if err != nil {
		return nil, err
	}
	return assemble(p.Name(), t, d, contrasts, per), nil
}

func (p *PermutationTest) testOne(ctx context.Context, protein, contrast string, x, y []float64, scale quant.Scale) (result.TestResult, error) {
	res := result.NewUndefined(protein, contrast, p.Name(), "")
	if len(x) == 0 || len(y) == 0 {
		res.Note = "condition not observed"
		return res, nil
	}
	refMean := numeric.Mean(y)
	observed := numeric.Mean(x) - refMean
	res.Statistic = observed
	res.LogFC, res.Unstable, res.Note = foldChange(scale, refMean, observed, p.Epsilon)

	r := p.rng.Stream(p.Seed, p.Name(), protein+"|"+contrast)
	pooled := append(append([]float64(nil), x...), y...)
	m := len(x)
	target := math.Abs(observed) - 1e-12*math.Max(1, math.Abs(observed))
	extreme := 0
	for b := 0; b < p.Permutations; b++ {
		if b%permutationBatch == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}
		r.Shuffle(len(pooled), func(i, j int) { pooled[i], pooled[j] = pooled[j], pooled[i] })
		if diff := numeric.Mean(pooled[:m]) - numeric.Mean(pooled[m:]); math.Abs(diff) >= target {
			extreme++
		}
	}
	res.PValue = float64(extreme+1) / float64(p.Permutations+1)
	res.ModPValue = res.PValue
	return res, nil
}
