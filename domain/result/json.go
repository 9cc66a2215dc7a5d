package result

import (
	"encoding/json"
	"math"

	"isoquant/domain/core"
)

type testResultJSON struct {
	Protein   string         `json:"protein"`
	Contrast  string         `json:"contrast"`
	LogFC     core.NullFloat `json:"log_fc"`
	Statistic core.NullFloat `json:"statistic"`
	OrdinaryT core.NullFloat `json:"ordinary_t"`
	DF        core.NullFloat `json:"df"`
	PValue    core.NullFloat `json:"p_value"`
	ModPValue core.NullFloat `json:"mod_p_value"`
	QValue    core.NullFloat `json:"q_value"`
	QValueOrd core.NullFloat `json:"q_value_ordinary"`
	Unstable  bool           `json:"unstable,omitempty"`
	Method    string         `json:"method"`
	Note      string         `json:"note,omitempty"`
}

// MarshalJSON writes undefined numbers as null.
func (r TestResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(testResultJSON{
		Protein: r.Protein, Contrast: r.Contrast,
		LogFC: core.NullFloat(r.LogFC), Statistic: core.NullFloat(r.Statistic),
		OrdinaryT: core.NullFloat(r.OrdinaryT), DF: core.NullFloat(r.DF),
		PValue: core.NullFloat(r.PValue), ModPValue: core.NullFloat(r.ModPValue),
		QValue: core.NullFloat(r.QValue), QValueOrd: core.NullFloat(r.QValueOrdinary),
		Unstable: r.Unstable, Method: r.Method, Note: r.Note,
	})
}

// UnmarshalJSON reads null and absent numbers as NaN.
func (r *TestResult) UnmarshalJSON(b []byte) error {
	nan := core.NullFloat(math.NaN())
	v := testResultJSON{
		LogFC: nan, Statistic: nan, OrdinaryT: nan, DF: nan,
		PValue: nan, ModPValue: nan, QValue: nan, QValueOrd: nan,
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = TestResult{
		Protein: v.Protein, Contrast: v.Contrast,
		LogFC: float64(v.LogFC), Statistic: float64(v.Statistic),
		OrdinaryT: float64(v.OrdinaryT), DF: float64(v.DF),
		PValue: float64(v.PValue), ModPValue: float64(v.ModPValue),
		QValue: float64(v.QValue), QValueOrdinary: float64(v.QValueOrd),
		Unstable: v.Unstable, Method: v.Method, Note: v.Note,
	}
	return nil
}
