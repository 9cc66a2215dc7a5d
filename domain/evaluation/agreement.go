package evaluation

import (
	"sort"

	"isoquant/domain/result"
	"isoquant/internal/numeric"
)

// Compare correlates field between a and b over the union of their
// proteins, or over truth only when restrict is non-nil.
func Compare(a, b result.ContrastResults, field Field, restrict *GroundTruth) (pearson, spearman float64, n int) {
	proteins := unionProteins(a, b)
	if restrict != nil {
		kept := proteins[:0]
		for _, p := range proteins {
			if restrict.Contains(p) {
				kept = append(kept, p)
			}
		}
		proteins = kept
	}
	x := field.Extract(a, proteins)
	y := field.Extract(b, proteins)
	px, _ := numeric.PairedObserved(x, y)
	return numeric.Pearson(x, y), numeric.Spearman(x, y), len(px)
}

func unionProteins(a, b result.ContrastResults) []string {
	seen := make(map[string]struct{}, len(a.Results))
	for _, r := range a.Results {
		seen[r.Protein] = struct{}{}
	}
	for _, r := range b.Results {
		seen[r.Protein] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
