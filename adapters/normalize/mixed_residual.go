package normalize

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"isoquant/domain/core"
	"isoquant/domain/quant"
	"isoquant/internal/linmod"
)

// Grouping selects the random-effect structure of the residual model.
type Grouping int

const (
	// ProteinPeptide: random protein plus random run:peptide.
	ProteinPeptide Grouping = iota
	// PeptideProtein: random peptide plus random run:protein.
	PeptideProtein
)

func (g Grouping) String() string {
	if g == PeptideProtein {
		return "peptide_protein"
	}
	return "protein_peptide"
}

// ParseGrouping accepts "protein_peptide" and "peptide_protein".
func ParseGrouping(s string) Grouping {
	if s == "peptide_protein" {
		return PeptideProtein
	}
	return ProteinPeptide
}

// MixedModelResidualNormalizer fits run:channel cell means as fixed effects
// with two nested random factors by REML and returns the conditional residuals.
type MixedModelResidualNormalizer struct {
	Grouping Grouping
	Options  linmod.REMLOptions
}

// NewMixedModelResidualNormalizer creates the normalizer with default REML bounds
func NewMixedModelResidualNormalizer(g Grouping) *MixedModelResidualNormalizer {
	return &MixedModelResidualNormalizer{Grouping: g, Options: linmod.DefaultREMLOptions()}
}

// Name returns the strategy name
func (n *MixedModelResidualNormalizer) Name() string {
	return "mixed_residual"
}

// Params returns the settings that affect the output
func (n *MixedModelResidualNormalizer) Params() map[string]interface{} {
	return map[string]interface{}{"grouping": n.Grouping.String(), "max_iterations": n.Options.MaxIterations}
}

// Normalize replaces every observed value by its residual. Missing values stay missing.
func (n *MixedModelResidualNormalizer) Normalize(ctx context.Context, t *quant.Table) (*quant.Table, error) {
	if !t.Scale().Additive() {
		return nil, core.NewScaleMismatchError("mixed-model residuals", t.Scale())
	}
	if t.Level() == quant.LevelProtein {
		return nil, core.NewValidationError("level", "mixed-model residuals need peptide or PSM level input")
	}

	rows := t.Rows()
	var obs []int
	for i, r := range rows {
		if !r.Missing() {
			obs = append(obs, i)
		}
	}

	cells := newIndexer()
	outer := newIndexer()
	inner := newIndexer()
	y := make([]float64, len(obs))
	cellOf := make([]int, len(obs))
	g1 := make([]int, len(obs))
	g2 := make([]int, len(obs))
	for k, i := range obs {
		r := rows[i]
		y[k] = r.Value
		cellOf[k] = cells.index(r.Run + "\x00" + r.Channel)
		if n.Grouping == PeptideProtein {
			g1[k] = outer.index(r.Protein + "\x00" + r.Peptide)
			g2[k] = inner.index(r.Run + "\x00" + r.Protein)
		} else {
			g1[k] = outer.index(r.Protein)
			g2[k] = inner.index(r.Run + "\x00" + r.Protein + "\x00" + r.Peptide)
		}
	}

	x := mat.NewDense(len(obs), cells.len(), nil)
	for k, c := range cellOf {
		x.Set(k, c, 1)
	}
	fit, err := linmod.FitREML(ctx, linmod.MixedModel{
		Y:      y,
		X:      x,
		Groups: [][]int{g1, g2},
		Levels: []int{outer.len(), inner.len()},
	}, n.Options)
	if err != nil {
		return nil, fmt.Errorf("mixed-model residuals (%s): %w", n.Grouping, err)
	}
	logger.Debug("mixed residual fit: sigma2=%.4g varcomp=%v after %d iterations", fit.Sigma2, fit.VarComp, fit.Iterations)

	values := make([]float64, len(rows))
	for i := range values {
		values[i] = math.NaN()
	}
	for k, i := range obs {
		values[i] = fit.Residuals[k]
	}
	return t.WithValues(values)
}

// indexer assigns dense indices to keys in first-seen order.
type indexer struct {
	ids map[string]int
}

func newIndexer() *indexer { return &indexer{ids: make(map[string]int)} }

func (x *indexer) index(key string) int {
	if id, ok := x.ids[key]; ok {
		return id
	}
	id := len(x.ids)
	x.ids[key] = id
	return id
}

func (x *indexer) len() int { return len(x.ids) }
