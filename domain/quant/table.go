package quant

import (
	"fmt"
	"math"
	"sort"

	"isoquant/domain/core"
)

// Sample identifies one reporter channel in one run.
type Sample struct {
	Run     string `json:"run"`
	Channel string `json:"channel"`
}

func (s Sample) String() string { return s.Run + "/" + s.Channel }

// SortSamples orders samples by run, then channel.
func SortSamples(samples []Sample) {
	sort.Slice(samples, func(i, j int) bool {
		if samples[i].Run != samples[j].Run {
			return samples[i].Run < samples[j].Run
		}
		return samples[i].Channel < samples[j].Channel
	})
}

// Row is one long-format measurement. Value is NaN when missing.
type Row struct {
	Run           string  `json:"run"`
	Channel       string  `json:"channel"`
	Condition     string  `json:"condition"`
	Protein       string  `json:"protein"`
	Peptide       string  `json:"peptide,omitempty"`
	PSM           string  `json:"psm,omitempty"`
	Charge        int     `json:"charge,omitempty"`
	Modification  string  `json:"modification,omitempty"`
	RetentionTime float64 `json:"retention_time,omitempty"`
	Score         float64 `json:"score,omitempty"`
	MassDeviation float64 `json:"mass_deviation,omitempty"`
	Value         float64 `json:"value"`
}

// Sample returns the (run, channel) the row was measured in.
func (r Row) Sample() Sample { return Sample{Run: r.Run, Channel: r.Channel} }

// Missing reports whether the row carries no value.
func (r Row) Missing() bool { return math.IsNaN(r.Value) }

// Feature is the row key of a matrix at a given level.
type Feature struct {
	Protein string `json:"protein"`
	Peptide string `json:"peptide,omitempty"`
	PSM     string `json:"psm,omitempty"`
}

func (f Feature) String() string {
	switch {
	case f.PSM != "":
		return f.Protein + ":" + f.Peptide + ":" + f.PSM
	case f.Peptide != "":
		return f.Protein + ":" + f.Peptide
	default:
		return f.Protein
	}
}

// Feature projects the row onto the key used at level.
func (r Row) Feature(level Level) Feature {
	switch level {
	case LevelPSM:
		return Feature{Protein: r.Protein, Peptide: r.Peptide, PSM: r.PSM}
	case LevelPeptide:
		return Feature{Protein: r.Protein, Peptide: r.Peptide}
	default:
		return Feature{Protein: r.Protein}
	}
}

func sortFeatures(fs []Feature) {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].Protein != fs[j].Protein {
			return fs[i].Protein < fs[j].Protein
		}
		if fs[i].Peptide != fs[j].Peptide {
			return fs[i].Peptide < fs[j].Peptide
		}
		return fs[i].PSM < fs[j].PSM
	})
}

type cellKey struct {
	run     string
	channel string
	feature Feature
}

type runKey struct {
	run string
	id  string
}

// Table is the immutable long-format quantification relation shared by every
// pipeline stage. Strategies never mutate a Table; they derive new ones.
type Table struct {
	rows  []Row
	scale Scale
	level Level
}

// NewTable validates rows and returns an immutable table holding a copy of them.
func NewTable(rows []Row, scale Scale, level Level) (*Table, error) {
	if len(rows) == 0 {
		return nil, core.ErrEmptyTable
	}

	seen := make(map[cellKey]struct{}, len(rows))
	psmPeptide := make(map[runKey]string)
	peptideProtein := make(map[runKey]string)

	for i, r := range rows {
		if r.Run == "" || r.Channel == "" || r.Protein == "" {
			return nil, core.NewValidationError(fmt.Sprintf("row %d", i), "run, channel and protein are required")
		}
		if level <= LevelPeptide && r.Peptide == "" {
			return nil, core.NewValidationError(fmt.Sprintf("row %d", i), "peptide is required below protein level")
		}
		if level == LevelPSM && r.PSM == "" {
			return nil, core.NewValidationError(fmt.Sprintf("row %d", i), "psm is required at psm level")
		}

		key := cellKey{run: r.Run, channel: r.Channel, feature: r.Feature(level)}
		if _, dup := seen[key]; dup {
			return nil, core.NewValidationError(key.feature.String(),
				fmt.Sprintf("more than one value in sample %s", r.Sample()))
		}
		seen[key] = struct{}{}

		if level == LevelPSM {
			pk := runKey{run: r.Run, id: r.PSM}
			if pep, ok := psmPeptide[pk]; ok && pep != r.Peptide {
				return nil, core.NewValidationError("psm "+r.PSM,
					fmt.Sprintf("assigned to peptides %s and %s in run %s", pep, r.Peptide, r.Run))
			}
			psmPeptide[pk] = r.Peptide
		}
		if level <= LevelPeptide {
			pk := runKey{run: r.Run, id: r.Peptide}
			if prot, ok := peptideProtein[pk]; ok && prot != r.Protein {
				return nil, core.NewValidationError("peptide "+r.Peptide,
					fmt.Sprintf("shared by proteins %s and %s in run %s", prot, r.Protein, r.Run))
			}
			peptideProtein[pk] = r.Protein
		}
	}

	cp := make([]Row, len(rows))
	copy(cp, rows)
	return &Table{rows: cp, scale: scale, level: level}, nil
}

// Rows returns a copy of the table rows.
func (t *Table) Rows() []Row {
	cp := make([]Row, len(t.rows))
	copy(cp, t.rows)
	return cp
}

func (t *Table) Scale() Scale { return t.scale }
func (t *Table) Level() Level { return t.level }
func (t *Table) Len() int     { return len(t.rows) }

// Values returns the value column in row order.
func (t *Table) Values() []float64 {
	out := make([]float64, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Value
	}
	return out
}

// WithValues returns a new table whose value column is replaced, row for row.
func (t *Table) WithValues(values []float64) (*Table, error) {
	if len(values) != len(t.rows) {
		return nil, core.NewValidationError("values", fmt.Sprintf("expected %d values, got %d", len(t.rows), len(values)))
	}
	cp := t.Rows()
	for i := range cp {
		cp[i].Value = values[i]
	}
	return &Table{rows: cp, scale: t.scale, level: t.level}, nil
}

// Derive builds a validated table at another level with the same scale.
func (t *Table) Derive(rows []Row, level Level) (*Table, error) {
	return NewTable(rows, t.scale, level)
}

// Runs returns the sorted distinct runs.
func (t *Table) Runs() []string {
	set := make(map[string]struct{})
	for _, r := range t.rows {
		set[r.Run] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Samples returns the sorted distinct samples.
func (t *Table) Samples() []Sample {
	set := make(map[Sample]struct{})
	for _, r := range t.rows {
		set[r.Sample()] = struct{}{}
	}
	out := make([]Sample, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	SortSamples(out)
	return out
}

// Proteins returns the sorted distinct protein identifiers.
func (t *Table) Proteins() []string {
	set := make(map[string]struct{})
	for _, r := range t.rows {
		set[r.Protein] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RowsByProtein groups row copies by protein.
func (t *Table) RowsByProtein() map[string][]Row {
	out := make(map[string][]Row)
	for _, r := range t.rows {
		out[r.Protein] = append(out[r.Protein], r)
	}
	return out
}

// RowsByRun groups row copies by run.
func (t *Table) RowsByRun() map[string][]Row {
	out := make(map[string][]Row)
	for _, r := range t.rows {
		out[r.Run] = append(out[r.Run], r)
	}
	return out
}

// RunMatrix builds the feature x sample matrix of one run.
func (t *Table) RunMatrix(run string) (Matrix, error) {
	var rows []Row
	for _, r := range t.rows {
		if r.Run == run {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return Matrix{}, core.NewNotFoundError("run", run)
	}
	return buildMatrix(run, rows, t.level, t.scale), nil
}

// RunMatrices builds one matrix per run, in run order.
func (t *Table) RunMatrices() []Matrix {
	byRun := t.RowsByRun()
	runs := t.Runs()
	out := make([]Matrix, 0, len(runs))
	for _, run := range runs {
		out = append(out, buildMatrix(run, byRun[run], t.level, t.scale))
	}
	return out
}

// WideMatrix builds a single cross-run matrix keyed by feature. It is meaningful
// at peptide and protein level, where features are comparable across runs.
func (t *Table) WideMatrix() Matrix {
	return buildMatrix("", t.rows, t.level, t.scale)
}

func buildMatrix(run string, rows []Row, level Level, scale Scale) Matrix {
	fset := make(map[Feature]struct{})
	sset := make(map[Sample]struct{})
	for _, r := range rows {
		fset[r.Feature(level)] = struct{}{}
		sset[r.Sample()] = struct{}{}
	}
	features := make([]Feature, 0, len(fset))
	for f := range fset {
		features = append(features, f)
	}
	sortFeatures(features)
	samples := make([]Sample, 0, len(sset))
	for s := range sset {
		samples = append(samples, s)
	}
	SortSamples(samples)

	m := NewMatrix(run, features, samples, scale)
	fi := m.featureIndex()
	si := m.sampleIndex()
	for _, r := range rows {
		m.Data[fi[r.Feature(level)]][si[r.Sample()]] = r.Value
	}
	return m
}

// ApplyMatrices returns a new table whose values are taken from the matrices
// wherever a matrix holds a cell for the row. Cells a matrix leaves NaN become
// missing. Rows not covered by any matrix keep their value.
func (t *Table) ApplyMatrices(ms ...Matrix) (*Table, error) {
	if len(ms) == 0 {
		return t, nil
	}
	scale := ms[0].Scale
	for _, m := range ms[1:] {
		if m.Scale != scale {
			return nil, core.NewValidationError("matrices", "mixed scales")
		}
	}

	type lookup struct {
		m  *Matrix
		fi map[Feature]int
		si map[Sample]int
	}
	byRun := make(map[string]lookup, len(ms))
	var wide *lookup
	for i := range ms {
		m := &ms[i]
		l := lookup{m: m, fi: m.featureIndex(), si: m.sampleIndex()}
		if m.Run == "" {
			wide = &l
			continue
		}
		byRun[m.Run] = l
	}

	cp := t.Rows()
	for i, r := range cp {
		l, ok := byRun[r.Run]
		if !ok {
			if wide == nil {
				continue
			}
			l = *wide
		}
		fIdx, okF := l.fi[r.Feature(t.level)]
		sIdx, okS := l.si[r.Sample()]
		if okF && okS {
			cp[i].Value = l.m.Data[fIdx][sIdx]
		}
	}
	return &Table{rows: cp, scale: scale, level: t.level}, nil
}

// Hash fingerprints the table contents, scale and level. Row order matters:
// tables are constructed once from validated input and never reordered.
func (t *Table) Hash() core.TableHash {
	h := core.NewHasher().Int(int64(t.scale)).Int(int64(t.level)).Int(int64(len(t.rows)))
	for _, r := range t.rows {
		h.String(r.Run).String(r.Channel).String(r.Condition).
			String(r.Protein).String(r.Peptide).String(r.PSM).Float(r.Value)
	}
	return core.TableHash(h.Sum())
}
