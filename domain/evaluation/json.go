package evaluation

import (
	"encoding/json"

	"isoquant/domain/core"
)

type metricsJSON struct {
	Accuracy    core.NullFloat `json:"accuracy"`
	Sensitivity core.NullFloat `json:"sensitivity"`
	Specificity core.NullFloat `json:"specificity"`
	PPV         core.NullFloat `json:"ppv"`
	NPV         core.NullFloat `json:"npv"`
}

// MarshalJSON writes undefined ratios as null.
func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(metricsJSON{
		Accuracy: core.NullFloat(m.Accuracy), Sensitivity: core.NullFloat(m.Sensitivity),
		Specificity: core.NullFloat(m.Specificity), PPV: core.NullFloat(m.PPV), NPV: core.NullFloat(m.NPV),
	})
}

func (m *Metrics) UnmarshalJSON(b []byte) error {
	var v metricsJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*m = Metrics{
		Accuracy: float64(v.Accuracy), Sensitivity: float64(v.Sensitivity),
		Specificity: float64(v.Specificity), PPV: float64(v.PPV), NPV: float64(v.NPV),
	}
	return nil
}

type agreementJSON struct {
	Contrast string         `json:"contrast"`
	VariantA string         `json:"variant_a"`
	VariantB string         `json:"variant_b"`
	Field    Field          `json:"field"`
	Pearson  core.NullFloat `json:"pearson"`
	Spearman core.NullFloat `json:"spearman"`
	N        int            `json:"n"`
}

// MarshalJSON writes undefined correlations as null.
func (a Agreement) MarshalJSON() ([]byte, error) {
	return json.Marshal(agreementJSON{
		Contrast: a.Contrast, VariantA: a.VariantA, VariantB: a.VariantB, Field: a.Field,
		Pearson: core.NullFloat(a.Pearson), Spearman: core.NullFloat(a.Spearman), N: a.N,
	})
}

func (a *Agreement) UnmarshalJSON(b []byte) error {
	var v agreementJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*a = Agreement{
		Contrast: v.Contrast, VariantA: v.VariantA, VariantB: v.VariantB, Field: v.Field,
		Pearson: float64(v.Pearson), Spearman: float64(v.Spearman), N: v.N,
	}
	return nil
}
