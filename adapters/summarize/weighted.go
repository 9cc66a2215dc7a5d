package summarize

import (
	"context"
	"math"
	"sort"
	"unicode"

	"golang.org/x/sync/errgroup"

	"isoquant/domain/quant"
	"isoquant/internal/numeric"
)

// WeightedFeatureAggregate is an iPQF-style summarizer: each PSM of a protein
// is weighted by how well it ranks on its identification and quantification
// covariates, and the protein value per channel is the weighted mean of the
// observed PSM values.
type WeightedFeatureAggregate struct {
	Workers int
}

// NewWeightedFeatureAggregate creates a weighted summarizer
func NewWeightedFeatureAggregate() *WeightedFeatureAggregate {
	return &WeightedFeatureAggregate{}
}

// Name returns the strategy name
func (s *WeightedFeatureAggregate) Name() string {
	return "weighted"
}

// Summarize weights and aggregates every run concurrently.
func (s *WeightedFeatureAggregate) Summarize(ctx context.Context, t *quant.Table) (*quant.Table, error) {
	if err := checkLevel(t); err != nil {
		return nil, err
	}
	byRun := t.RowsByRun()
	runs := t.Runs()
	out := make([][]quant.Row, len(runs))

	g, gctx := errgroup.WithContext(ctx)
	if s.Workers > 0 {
		g.SetLimit(s.Workers)
	}
	for i, run := range runs {
		i, run := i, run
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = weightRun(byRun[run], t.Level(), t.Scale().Additive())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var rows []quant.Row
	for _, rs := range out {
		rows = append(rows, rs...)
	}
	return t.Derive(rows, quant.LevelProtein)
}

// psm is one quantified feature of a protein within a run.
type psm struct {
	peptide string
	charge  int
	score   float64
	massDev float64
	rt      float64
	values  map[string]float64
	profile map[string]float64
	weight  float64
}

func weightRun(rows []quant.Row, level quant.Level, additive bool) []quant.Row {
	conditions := make(map[string]string)
	proteins := make(map[string]map[quant.Feature]*psm)
	for _, r := range rows {
		conditions[r.Channel] = r.Condition
		feats, ok := proteins[r.Protein]
		if !ok {
			feats = make(map[quant.Feature]*psm)
			proteins[r.Protein] = feats
		}
		f := r.Feature(level)
		p, ok := feats[f]
		if !ok {
			p = &psm{
				peptide: r.Peptide, charge: r.Charge, score: r.Score,
				massDev: r.MassDeviation, rt: r.RetentionTime,
				values: make(map[string]float64),
			}
			feats[f] = p
		}
		p.values[r.Channel] = r.Value
	}

	channels := make([]string, 0, len(conditions))
	for c := range conditions {
		channels = append(channels, c)
	}
	sort.Strings(channels)
	names := make([]string, 0, len(proteins))
	for name := range proteins {
		names = append(names, name)
	}
	sort.Strings(names)

	run := rows[0].Run
	var out []quant.Row
	for _, name := range names {
		feats := proteins[name]
		keys := make([]quant.Feature, 0, len(feats))
		for f := range feats {
			keys = append(keys, f)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		psms := make([]*psm, len(keys))
		for i, k := range keys {
			psms[i] = feats[k]
		}
		assignWeights(psms, channels, additive)

		for _, ch := range channels {
			num, den := 0.0, 0.0
			for _, p := range psms {
				v, ok := p.values[ch]
				if !ok || math.IsNaN(v) {
					continue
				}
				num += p.weight * v
				den += p.weight
			}
			value := math.NaN()
			if den > 0 {
				value = num / den
			}
			out = append(out, quant.Row{
				Run: run, Channel: ch, Condition: conditions[ch], Protein: name, Value: value,
			})
		}
	}
	return out
}

// assignWeights sets each PSM's weight to the mean of its rank-scaled
// covariates, every covariate oriented so that larger is better.
func assignWeights(psms []*psm, channels []string, additive bool) {
	n := len(psms)
	if n == 1 {
		psms[0].weight = 1
		return
	}
	for _, p := range psms {
		p.profile = centeredProfile(p.values, channels, additive)
	}
	rtDist := retentionDistances(psms)
	consensus := profileDistances(psms, channels)

	covariates := [][]float64{
		make([]float64, n), make([]float64, n), make([]float64, n),
		make([]float64, n), make([]float64, n), make([]float64, n),
	}
	for i, p := range psms {
		charge := math.Inf(-1)
		if p.charge > 0 {
			charge = -float64(p.charge)
		}
		covariates[0][i] = charge
		covariates[1][i] = float64(sequenceLength(p.peptide))
		covariates[2][i] = orWorst(p.score)
		covariates[3][i] = orWorst(-math.Abs(p.massDev))
		covariates[4][i] = orWorst(-rtDist[i])
		covariates[5][i] = orWorst(-consensus[i])
	}

	for _, p := range psms {
		p.weight = 0
	}
	for _, cov := range covariates {
		ranks := numeric.Ranks(cov)
		for i, r := range ranks {
			psms[i].weight += r / float64(n)
		}
	}
	for _, p := range psms {
		p.weight /= float64(len(covariates))
	}
}

func orWorst(v float64) float64 {
	if math.IsNaN(v) {
		return math.Inf(-1)
	}
	return v
}

// centeredProfile removes the PSM's own level: a difference on log2 data,
// a log ratio otherwise.
func centeredProfile(values map[string]float64, channels []string, additive bool) map[string]float64 {
	obs := make([]float64, 0, len(channels))
	for _, ch := range channels {
		if v, ok := values[ch]; ok && !math.IsNaN(v) {
			obs = append(obs, v)
		}
	}
	mean := numeric.Mean(obs)
	out := make(map[string]float64, len(obs))
	if math.IsNaN(mean) || (!additive && mean <= 0) {
		return out
	}
	for _, ch := range channels {
		v, ok := values[ch]
		if !ok || math.IsNaN(v) {
			continue
		}
		if additive {
			out[ch] = v - mean
		} else if v > 0 {
			out[ch] = math.Log2(v / mean)
		}
	}
	return out
}

// profileDistances is the RMS distance of each profile to the per-channel
// median profile of the protein; PSMs without a profile are NaN.
func profileDistances(psms []*psm, channels []string) []float64 {
	median := make(map[string]float64, len(channels))
	for _, ch := range channels {
		var col []float64
		for _, p := range psms {
			if v, ok := p.profile[ch]; ok {
				col = append(col, v)
			}
		}
		median[ch] = numeric.Median(col)
	}
	out := make([]float64, len(psms))
	for i, p := range psms {
		ss, k := 0.0, 0
		for ch, v := range p.profile {
			d := v - median[ch]
			ss += d * d
			k++
		}
		if k == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Sqrt(ss / float64(k))
	}
	return out
}

// retentionDistances measures each PSM's distance to the median retention
// time of the PSMs sharing its peptide. Singletons are at distance zero.
func retentionDistances(psms []*psm) []float64 {
	byPeptide := make(map[string][]float64)
	for _, p := range psms {
		if p.rt > 0 {
			byPeptide[p.peptide] = append(byPeptide[p.peptide], p.rt)
		}
	}
	out := make([]float64, len(psms))
	for i, p := range psms {
		if p.rt <= 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Abs(p.rt - numeric.Median(byPeptide[p.peptide]))
	}
	return out
}

// sequenceLength counts residues, skipping modification annotations.
func sequenceLength(peptide string) int {
	n := 0
	for _, r := range peptide {
		if unicode.IsUpper(r) {
			n++
		}
	}
	return n
}
