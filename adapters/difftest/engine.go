// Package difftest implements the differential expression engines. Every
// engine returns one result per protein and contrast, adjusted with
// Benjamini-Hochberg within each contrast.
package difftest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"isoquant/domain/quant"
	"isoquant/domain/result"
	"isoquant/internal"
	"isoquant/internal/numeric"
)

var logger = internal.DefaultLogger.WithComponent("difftest")

// NoteTimeout marks a protein whose test exceeded the per-unit timeout.
const NoteTimeout = "unit timeout"

// Options are shared by every engine.
type Options struct {
	Workers     int
	UnitTimeout time.Duration
	// Epsilon bounds the reference mean below which a ratio-scale fold
	// change is reported as unstable.
	Epsilon float64
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{Epsilon: 1e-9}
}

// proteinUnit is the observed data of one protein.
type proteinUnit struct {
	protein string
	values  []float64
	samples []quant.Sample
	// level is 0 for the reference condition and i+1 for contrast i.
	level []int
	rows  []quant.Row
}

// layout prepares the per-protein units in protein order.
func layout(t *quant.Table, d *quant.Design) ([]proteinUnit, []string, error) {
	if err := d.Validate(t.Samples()); err != nil {
		return nil, nil, err
	}
	contrasts := d.Contrasts()
	levelOf := map[string]int{d.Reference(): 0}
	for i, c := range contrasts {
		levelOf[c] = i + 1
	}

	byProtein := t.RowsByProtein()
	proteins := t.Proteins()
	units := make([]proteinUnit, len(proteins))
	for i, p := range proteins {
		u := proteinUnit{protein: p}
		for _, r := range byProtein[p] {
			if r.Missing() || math.IsInf(r.Value, 0) {
				continue
			}
			cond, _ := d.Condition(r.Sample())
			u.values = append(u.values, r.Value)
			u.samples = append(u.samples, r.Sample())
			u.level = append(u.level, levelOf[cond])
			u.rows = append(u.rows, r)
		}
		units[i] = u
	}
	return units, contrasts, nil
}

// group returns the values at level l.
func (u proteinUnit) group(l int) []float64 {
	var out []float64
	for i, v := range u.values {
		if u.level[i] == l {
			out = append(out, v)
		}
	}
	return out
}

// forEach runs fn for every unit concurrently. A unit that runs past
// UnitTimeout is handed to onTimeout instead of failing the engine.
func (o Options) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error, onTimeout func(i int)) error {
	g, gctx := errgroup.WithContext(ctx)
	if o.Workers > 0 {
		g.SetLimit(o.Workers)
	}
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			uctx := gctx
			if o.UnitTimeout > 0 {
				var cancel context.CancelFunc
				uctx, cancel = context.WithTimeout(gctx, o.UnitTimeout)
				defer cancel()
			}
			err := fn(uctx, i)
			if err != nil && errors.Is(err, context.DeadlineExceeded) && gctx.Err() == nil {
				onTimeout(i)
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// assemble arranges per-protein results (one slice entry per contrast) into
// contrasts, sorts by protein and applies BH within each contrast.
func assemble(engine string, t *quant.Table, d *quant.Design, contrasts []string, perProtein [][]result.TestResult) *result.ResultSet {
	rs := &result.ResultSet{Engine: engine, Reference: d.Reference(), Scale: t.Scale()}
	for c, name := range contrasts {
		cr := result.ContrastResults{Contrast: name}
		for _, res := range perProtein {
			cr.Results = append(cr.Results, res[c])
		}
		cr.SortByProtein()
		cr.AdjustWith(numeric.AdjustBH)
		rs.Contrasts = append(rs.Contrasts, cr)
	}
	return rs
}

// undefinedAll returns one undefined result per contrast.
func undefinedAll(protein string, contrasts []string, method, note string) []result.TestResult {
	out := make([]result.TestResult, len(contrasts))
	for c, name := range contrasts {
		out[c] = result.NewUndefined(protein, name, method, note)
	}
	return out
}

// foldChange reports the log2 fold change of a contrast. On log2 data it is
// the mean difference; otherwise log2((m + diff) / m) for reference mean m,
// flagged unstable when m is near zero or the ratio is not positive.
func foldChange(scale quant.Scale, refMean, diff, eps float64) (logFC float64, unstable bool, note string) {
	if scale.Additive() {
		return diff, false, ""
	}
	if math.IsNaN(refMean) || math.Abs(refMean) <= eps {
		return math.NaN(), true, fmt.Sprintf("reference mean %.3g is too close to zero for a fold change", refMean)
	}
	ratio := (refMean + diff) / refMean
	if ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return math.NaN(), true, fmt.Sprintf("fold-change ratio %.3g is not positive", ratio)
	}
	lfc := math.Log2(ratio)
	if math.IsNaN(lfc) || math.IsInf(lfc, 0) {
		return math.NaN(), true, "fold change is not finite"
	}
	return lfc, false, ""
}

func joinNote(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "; " + b
}
