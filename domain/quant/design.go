package quant

import (
	"fmt"
	"sort"

	"isoquant/domain/core"
)

// Design assigns every sample to a condition and names the reference
// condition every contrast is taken against.
type Design struct {
	assign     map[Sample]string
	reference  string
	conditions []string
}

// NewDesign validates and copies the assignment.
func NewDesign(assign map[Sample]string, reference string) (*Design, error) {
	if len(assign) == 0 {
		return nil, core.NewValidationError("design", "no samples assigned")
	}
	cp := make(map[Sample]string, len(assign))
	set := make(map[string]struct{})
	for s, c := range assign {
		if c == "" {
			return nil, core.NewValidationError("design", fmt.Sprintf("sample %s has an empty condition", s))
		}
		cp[s] = c
		set[c] = struct{}{}
	}
	if _, ok := set[reference]; !ok {
		return nil, core.NewValidationError("design", fmt.Sprintf("reference condition %q is not assigned to any sample", reference))
	}
	if len(set) < 2 {
		return nil, core.NewValidationError("design", "at least one non-reference condition is required")
	}
	conds := make([]string, 0, len(set))
	for c := range set {
		conds = append(conds, c)
	}
	sort.Strings(conds)
	return &Design{assign: cp, reference: reference, conditions: conds}, nil
}

// DesignFromTable reads the assignment from the table's Condition column.
func DesignFromTable(t *Table, reference string) (*Design, error) {
	assign := make(map[Sample]string)
	for _, r := range t.rows {
		s := r.Sample()
		if prev, ok := assign[s]; ok && prev != r.Condition {
			return nil, core.NewValidationError("design",
				fmt.Sprintf("sample %s carries conditions %q and %q", s, prev, r.Condition))
		}
		assign[s] = r.Condition
	}
	return NewDesign(assign, reference)
}

// Condition returns the condition of s.
func (d *Design) Condition(s Sample) (string, bool) {
	c, ok := d.assign[s]
	return c, ok
}

func (d *Design) Reference() string { return d.reference }

// Conditions returns every condition, sorted.
func (d *Design) Conditions() []string {
	return append([]string(nil), d.conditions...)
}

// Contrasts returns the sorted non-reference conditions.
func (d *Design) Contrasts() []string {
	out := make([]string, 0, len(d.conditions)-1)
	for _, c := range d.conditions {
		if c != d.reference {
			out = append(out, c)
		}
	}
	return out
}

// Samples returns every assigned sample, sorted.
func (d *Design) Samples() []Sample {
	out := make([]Sample, 0, len(d.assign))
	for s := range d.assign {
		out = append(out, s)
	}
	SortSamples(out)
	return out
}

// SamplesOf returns the sorted samples assigned to condition.
func (d *Design) SamplesOf(condition string) []Sample {
	var out []Sample
	for s, c := range d.assign {
		if c == condition {
			out = append(out, s)
		}
	}
	SortSamples(out)
	return out
}

// Validate fails with ErrMissingDesign for the first sample not in the design.
func (d *Design) Validate(samples []Sample) error {
	for _, s := range samples {
		if _, ok := d.assign[s]; !ok {
			return core.NewMissingDesignError(s.String())
		}
	}
	return nil
}

// Hash fingerprints the assignment and reference.
func (d *Design) Hash() core.Hash {
	samples := d.Samples()
	h := core.NewHasher().String(d.reference).Int(int64(len(samples)))
	for _, s := range samples {
		h.String(s.Run).String(s.Channel).String(d.assign[s])
	}
	return h.Sum()
}
