package excel

import (
	"fmt"
	"math"
	"strings"

	"github.com/xuri/excelize/v2"

	"isoquant/domain/evaluation"
	"isoquant/domain/quant"
	"isoquant/domain/run"
)

// maxSheetName is the Excel limit on sheet name length.
const maxSheetName = 31

// Writer writes input and results workbooks
type Writer struct {
	f      *excelize.File
	sheets map[string]bool
}

// NewWriter starts an empty workbook
func NewWriter() *Writer {
	return &Writer{f: excelize.NewFile(), sheets: make(map[string]bool)}
}

// WriteTable writes a psm sheet and a design sheet that ReadTable accepts
func WriteTable(path string, t *quant.Table, d *quant.Design) error {
	w := NewWriter()
	defer w.Close()

	rows := make([][]interface{}, 0, t.Len())
	for _, r := range t.Rows() {
		rows = append(rows, []interface{}{
			r.Run, r.Channel, r.Condition, r.Protein, r.Peptide, r.PSM,
			r.Charge, r.Modification, r.RetentionTime, r.Score, r.MassDeviation, cell(r.Value),
		})
	}
	if err := w.sheet(SheetPSM, []string{
		ColRun, ColChannel, ColCondition, ColProtein, ColPeptide, ColPSM,
		ColCharge, ColModification, ColRetentionTime, ColScore, ColMassDeviation, ColValue,
	}, rows); err != nil {
		return err
	}

	design := make([][]interface{}, 0)
	for _, s := range d.Samples() {
		cond, _ := d.Condition(s)
		design = append(design, []interface{}{s.Run, s.Channel, cond})
	}
	if err := w.sheet(SheetDesign, []string{ColRun, ColChannel, ColCondition}, design); err != nil {
		return err
	}
	return w.Save(path)
}

// WriteResults writes the metrics and agreement sheets plus one sheet per
// completed run and contrast
func WriteResults(path string, report evaluation.Report, runs []*run.PipelineRun) error {
	w := NewWriter()
	defer w.Close()

	metrics := make([][]interface{}, 0, len(report.Scores))
	for _, s := range report.Scores {
		m, c := s.Metrics, s.Confusion
		metrics = append(metrics, []interface{}{
			s.Variant, s.Contrast, s.Engine, c.TP, c.FP, c.TN, c.FN,
			cell(m.Accuracy), cell(m.Sensitivity), cell(m.Specificity), cell(m.PPV), cell(m.NPV), s.Unstable,
		})
	}
	if err := w.sheet(SheetMetrics, []string{
		"variant", "contrast", "engine", "tp", "fp", "tn", "fn",
		"accuracy", "sensitivity", "specificity", "ppv", "npv", "unstable",
	}, metrics); err != nil {
		return err
	}

	agreement := make([][]interface{}, 0, len(report.Agreement))
	for _, a := range report.Agreement {
		agreement = append(agreement, []interface{}{
			a.Contrast, a.VariantA, a.VariantB, string(a.Field), cell(a.Pearson), cell(a.Spearman), a.N,
		})
	}
	if err := w.sheet(SheetAgree, []string{"contrast", "variant_a", "variant_b", "field", "pearson", "spearman", "n"}, agreement); err != nil {
		return err
	}

	for _, r := range runs {
		if r == nil || !r.Succeeded() {
			continue
		}
		for _, cr := range r.Results.Contrasts {
			rows := make([][]interface{}, 0, len(cr.Results))
			for _, res := range cr.Results {
				rows = append(rows, []interface{}{
					res.Protein, cell(res.LogFC), cell(res.Statistic), cell(res.OrdinaryT), cell(res.DF),
					cell(res.PValue), cell(res.ModPValue), cell(res.QValue), cell(res.QValueOrdinary), res.Unstable, res.Method, res.Note,
				})
			}
			name := w.uniqueName(r.Variant + "_" + cr.Contrast)
			if err := w.sheet(name, []string{
				"protein", "log_fc", "statistic", "ordinary_t", "df",
				"p_value", "mod_p_value", "q_value", "q_value_ordinary", "unstable", "method", "note",
			}, rows); err != nil {
				return err
			}
		}
	}
	return w.Save(path)
}

// sheet creates a sheet with a header row followed by rows
func (w *Writer) sheet(name string, headers []string, rows [][]interface{}) error {
	if len(w.sheets) == 0 {
		// Reuse the default sheet so the workbook has no empty first tab.
		if err := w.f.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.sheets[name] = true

	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := w.f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("write header of %s: %w", name, err)
	}
	for i := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := w.f.SetSheetRow(name, addr, &rows[i]); err != nil {
			return fmt.Errorf("write row %d of %s: %w", i+2, name, err)
		}
	}
	return nil
}

// uniqueName makes a valid sheet name that does not collide
func (w *Writer) uniqueName(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, name)
	if len([]rune(name)) > maxSheetName {
		name = string([]rune(name)[:maxSheetName])
	}
	candidate := name
	for i := 2; w.sheets[candidate]; i++ {
		suffix := fmt.Sprintf("~%d", i)
		base := []rune(name)
		if len(base)+len(suffix) > maxSheetName {
			base = base[:maxSheetName-len(suffix)]
		}
		candidate = string(base) + suffix
	}
	return candidate
}

// Save writes the workbook to path
func (w *Writer) Save(path string) error {
	if err := w.f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	logger.Info("wrote %d sheets to %s", len(w.sheets), path)
	return nil
}

// Close releases the workbook
func (w *Writer) Close() error {
	return w.f.Close()
}

// cell leaves undefined numbers empty; Excel has no NaN.
func cell(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
