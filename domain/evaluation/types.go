// Package evaluation scores differential-test results against known spike-ins.
package evaluation

import (
	"math"
	"sort"

	"isoquant/domain/result"
)

// GroundTruth is the set of truly differential proteins.
type GroundTruth struct {
	ids map[string]struct{}
}

// NewGroundTruth builds a truth set from protein IDs.
func NewGroundTruth(proteins ...string) GroundTruth {
	g := GroundTruth{ids: make(map[string]struct{}, len(proteins))}
	for _, p := range proteins {
		g.ids[p] = struct{}{}
	}
	return g
}

func (g GroundTruth) Contains(protein string) bool {
	_, ok := g.ids[protein]
	return ok
}

func (g GroundTruth) Len() int { return len(g.ids) }

// Proteins returns the members sorted.
func (g GroundTruth) Proteins() []string {
	out := make([]string, 0, len(g.ids))
	for p := range g.ids {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Criteria decides which results count as calls.
type Criteria struct {
	Threshold   float64 `json:"threshold"`
	MinAbsLogFC float64 `json:"min_abs_log_fc"`
}

// DefaultCriteria calls q < 0.05 with no fold-change filter.
func DefaultCriteria() Criteria {
	return Criteria{Threshold: 0.05}
}

// Called reports whether r is a positive call. NaN q or NaN logFC under a
// fold-change filter is never called.
func (c Criteria) Called(r result.TestResult) bool {
	if !r.Significant(c.Threshold) {
		return false
	}
	if c.MinAbsLogFC > 0 {
		return !math.IsNaN(r.LogFC) && math.Abs(r.LogFC) >= c.MinAbsLogFC
	}
	return true
}

// ConfusionMatrix counts calls against truth.
type ConfusionMatrix struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	TN int `json:"tn"`
	FN int `json:"fn"`
}

func (m ConfusionMatrix) Total() int { return m.TP + m.FP + m.TN + m.FN }

// Classify builds the confusion matrix over the proteins present in cr.
func Classify(cr result.ContrastResults, truth GroundTruth, c Criteria) ConfusionMatrix {
	var m ConfusionMatrix
	for _, r := range cr.Results {
		called := c.Called(r)
		switch actual := truth.Contains(r.Protein); {
		case called && actual:
			m.TP++
		case called && !actual:
			m.FP++
		case !called && actual:
			m.FN++
		default:
			m.TN++
		}
	}
	return m
}

// Metrics are ratios derived from a confusion matrix; undefined ratios are NaN.
type Metrics struct {
	Accuracy    float64 `json:"accuracy"`
	Sensitivity float64 `json:"sensitivity"`
	Specificity float64 `json:"specificity"`
	PPV         float64 `json:"ppv"`
	NPV         float64 `json:"npv"`
}

// MetricsOf derives Metrics from m.
func MetricsOf(m ConfusionMatrix) Metrics {
	return Metrics{
		Accuracy:    ratio(m.TP+m.TN, m.Total()),
		Sensitivity: ratio(m.TP, m.TP+m.FN),
		Specificity: ratio(m.TN, m.TN+m.FP),
		PPV:         ratio(m.TP, m.TP+m.FP),
		NPV:         ratio(m.TN, m.TN+m.FN),
	}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return math.NaN()
	}
	return float64(num) / float64(den)
}

// VariantScore is one variant's performance on one contrast.
type VariantScore struct {
	Variant   string          `json:"variant"`
	Contrast  string          `json:"contrast"`
	Engine    string          `json:"engine"`
	Confusion ConfusionMatrix `json:"confusion"`
	Metrics   Metrics         `json:"metrics"`
	Unstable  int             `json:"unstable"`
}

// Field names a TestResult column compared across variants.
type Field string

const (
	FieldLogFC  Field = "log_fc"
	FieldQValue Field = "q_value"
)

// Extract returns the field's values aligned to proteins; absent proteins are NaN.
func (f Field) Extract(cr result.ContrastResults, proteins []string) []float64 {
	byProtein := cr.ByProtein()
	out := make([]float64, len(proteins))
	for i, p := range proteins {
		r, ok := byProtein[p]
		switch {
		case !ok:
			out[i] = math.NaN()
		case f == FieldQValue:
			out[i] = r.QValue
		default:
			out[i] = r.LogFC
		}
	}
	return out
}

// Agreement is the correlation of one field between two variants.
type Agreement struct {
	Contrast string  `json:"contrast"`
	VariantA string  `json:"variant_a"`
	VariantB string  `json:"variant_b"`
	Field    Field   `json:"field"`
	Pearson  float64 `json:"pearson"`
	Spearman float64 `json:"spearman"`
	N        int     `json:"n"`
}

// VariantFailure records a variant that produced no results.
type VariantFailure struct {
	Variant string `json:"variant"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

// Report is the evaluation harness output.
type Report struct {
	Criteria  Criteria         `json:"criteria"`
	Scores    []VariantScore   `json:"scores"`
	Agreement []Agreement      `json:"agreement"`
	Failures  []VariantFailure `json:"failures,omitempty"`
}

// Score returns the score for variant and contrast.
func (r *Report) Score(variant, contrast string) (VariantScore, bool) {
	for _, s := range r.Scores {
		if s.Variant == variant && s.Contrast == contrast {
			return s, true
		}
	}
	return VariantScore{}, false
}
