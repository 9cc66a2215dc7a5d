package result

import (
	"math"
	"sort"

	"isoquant/domain/core"
	"isoquant/domain/quant"
)

// TestResult is the outcome for one protein in one contrast. NaN fields are
// undefined; Unstable marks a numerically degenerate estimate.
//
// QValue adjusts ModPValue and QValueOrdinary adjusts PValue, each by BH
// within the contrast. Engines without moderation set ModPValue = PValue.
type TestResult struct {
	Protein        string  `json:"protein"`
	Contrast       string  `json:"contrast"`
	LogFC          float64 `json:"log_fc"`
	Statistic      float64 `json:"statistic"`
	OrdinaryT      float64 `json:"ordinary_t"`
	DF             float64 `json:"df"`
	PValue         float64 `json:"p_value"`
	ModPValue      float64 `json:"mod_p_value"`
	QValue         float64 `json:"q_value"`
	QValueOrdinary float64 `json:"q_value_ordinary"`
	Unstable       bool    `json:"unstable,omitempty"`
	Method         string  `json:"method"`
	Note           string  `json:"note,omitempty"`
}

// NewUndefined returns a result with every numeric field NaN.
func NewUndefined(protein, contrast, method, note string) TestResult {
	nan := math.NaN()
	return TestResult{
		Protein: protein, Contrast: contrast, Method: method, Note: note,
		LogFC: nan, Statistic: nan, OrdinaryT: nan, DF: nan,
		PValue: nan, ModPValue: nan, QValue: nan, QValueOrdinary: nan,
	}
}

// Significant reports q < threshold; an undefined q is never significant.
func (r TestResult) Significant(threshold float64) bool {
	return !math.IsNaN(r.QValue) && r.QValue < threshold
}

// ContrastResults holds every protein's result for one contrast.
type ContrastResults struct {
	Contrast string       `json:"contrast"`
	Results  []TestResult `json:"results"`
}

// ResultSet is the output of one differential test engine.
type ResultSet struct {
	Engine    string            `json:"engine"`
	Reference string            `json:"reference"`
	Scale     quant.Scale       `json:"scale"`
	Contrasts []ContrastResults `json:"contrasts"`
}

// Contrast returns the results for name.
func (rs *ResultSet) Contrast(name string) (ContrastResults, error) {
	for _, c := range rs.Contrasts {
		if c.Contrast == name {
			return c, nil
		}
	}
	return ContrastResults{}, core.NewNotFoundError("contrast", name)
}

// ContrastNames returns the contrast names in stored order.
func (rs *ResultSet) ContrastNames() []string {
	out := make([]string, len(rs.Contrasts))
	for i, c := range rs.Contrasts {
		out[i] = c.Contrast
	}
	return out
}

// ByProtein indexes one contrast's results by protein.
func (c ContrastResults) ByProtein() map[string]TestResult {
	out := make(map[string]TestResult, len(c.Results))
	for _, r := range c.Results {
		out[r.Protein] = r
	}
	return out
}

// SortByProtein orders results by protein identifier.
func (c *ContrastResults) SortByProtein() {
	sort.Slice(c.Results, func(i, j int) bool { return c.Results[i].Protein < c.Results[j].Protein })
}

// ModPValues returns the moderated p-values in result order.
func (c ContrastResults) ModPValues() []float64 {
	out := make([]float64, len(c.Results))
	for i, r := range c.Results {
		out[i] = r.ModPValue
	}
	return out
}

// PValues returns the ordinary p-values in result order.
func (c ContrastResults) PValues() []float64 {
	out := make([]float64, len(c.Results))
	for i, r := range c.Results {
		out[i] = r.PValue
	}
	return out
}

// AdjustWith sets QValue from the moderated and QValueOrdinary from the
// ordinary p-values using adjust, which must return a slice aligned with its
// input.
func (c *ContrastResults) AdjustWith(adjust func([]float64) []float64) {
	q := adjust(c.ModPValues())
	qo := adjust(c.PValues())
	for i := range c.Results {
		c.Results[i].QValue = q[i]
		c.Results[i].QValueOrdinary = qo[i]
	}
}
