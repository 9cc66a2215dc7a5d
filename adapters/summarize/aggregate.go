// Package summarize collapses PSM or peptide rows to one value per protein
// and sample.
package summarize

import (
	"context"
	"sort"

	"isoquant/domain/core"
	"isoquant/domain/quant"
	"isoquant/internal"
)

var logger = internal.DefaultLogger.WithComponent("summarize")

type groupKey struct {
	run, channel, protein, peptide string
}

type group struct {
	key       groupKey
	condition string
	values    []float64
}

// collect groups rows by key in sorted key order.
func collect(rows []quant.Row, key func(quant.Row) groupKey) []*group {
	idx := make(map[groupKey]*group)
	for _, r := range rows {
		k := key(r)
		g, ok := idx[k]
		if !ok {
			g = &group{key: k, condition: r.Condition}
			idx[k] = g
		}
		g.values = append(g.values, r.Value)
	}
	out := make([]*group, 0, len(idx))
	for _, g := range idx {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].key, out[j].key
		if a.run != b.run {
			return a.run < b.run
		}
		if a.channel != b.channel {
			return a.channel < b.channel
		}
		if a.protein != b.protein {
			return a.protein < b.protein
		}
		return a.peptide < b.peptide
	})
	return out
}

func byPeptide(r quant.Row) groupKey {
	return groupKey{run: r.Run, channel: r.Channel, protein: r.Protein, peptide: r.Peptide}
}

func byProtein(r quant.Row) groupKey {
	return groupKey{run: r.Run, channel: r.Channel, protein: r.Protein}
}

// twoStage reduces PSMs to peptides and peptides to proteins with fn.
func twoStage(ctx context.Context, t *quant.Table, fn func([]float64) float64) (*quant.Table, error) {
	if err := checkLevel(t); err != nil {
		return nil, err
	}
	peptides := make([]quant.Row, 0)
	for _, g := range collect(t.Rows(), byPeptide) {
		peptides = append(peptides, quant.Row{
			Run: g.key.run, Channel: g.key.channel, Condition: g.condition,
			Protein: g.key.protein, Peptide: g.key.peptide, Value: fn(g.values),
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	proteins := make([]quant.Row, 0)
	for _, g := range collect(peptides, byProtein) {
		proteins = append(proteins, quant.Row{
			Run: g.key.run, Channel: g.key.channel, Condition: g.condition,
			Protein: g.key.protein, Value: fn(g.values),
		})
	}
	return t.Derive(proteins, quant.LevelProtein)
}

func checkLevel(t *quant.Table) error {
	if t.Level() == quant.LevelProtein {
		return core.NewValidationError("level", "summarization needs PSM or peptide level input")
	}
	return nil
}
