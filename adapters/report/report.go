// Package report renders an evaluation report as markdown tables and HTML.
package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"isoquant/domain/evaluation"
)

// Markdown renders the metrics, agreement and failure tables
func Markdown(r evaluation.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Benchmark metrics\n\nCalls: q < %s", num(r.Criteria.Threshold))
	if r.Criteria.MinAbsLogFC > 0 {
		fmt.Fprintf(&b, ", |logFC| >= %s", num(r.Criteria.MinAbsLogFC))
	}
	b.WriteString("\n\n")

	b.WriteString("| Variant | Contrast | Engine | TP | FP | TN | FN | Accuracy | Sensitivity | Specificity | PPV | NPV | Unstable |\n")
	b.WriteString("|---|---|---|---:|---:|---:|---:|---:|---:|---:|---:|---:|---:|\n")
	for _, s := range r.Scores {
		m, c := s.Metrics, s.Confusion
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %d | %d | %d | %s | %s | %s | %s | %s | %d |\n",
			escape(s.Variant), escape(s.Contrast), escape(s.Engine), c.TP, c.FP, c.TN, c.FN,
			num(m.Accuracy), num(m.Sensitivity), num(m.Specificity), num(m.PPV), num(m.NPV), s.Unstable)
	}

	if len(r.Agreement) > 0 {
		b.WriteString("\n## Agreement\n\n")
		b.WriteString("| Contrast | Variant A | Variant B | Field | Pearson | Spearman | N |\n")
		b.WriteString("|---|---|---|---|---:|---:|---:|\n")
		for _, a := range r.Agreement {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %d |\n",
				escape(a.Contrast), escape(a.VariantA), escape(a.VariantB), a.Field,
				num(a.Pearson), num(a.Spearman), a.N)
		}
	}

	if len(r.Failures) > 0 {
		b.WriteString("\n## Failed variants\n\n")
		b.WriteString("| Variant | Code | Error |\n|---|---|---|\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", escape(f.Variant), f.Code, escape(f.Error))
		}
	}
	return b.String()
}

// HTML renders the report as a standalone HTML page
func HTML(r evaluation.Report) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: "isoquant benchmark",
	})
	return markdown.ToHTML([]byte(Markdown(r)), p, renderer)
}

// num prints NaN as a dash.
func num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return fmt.Sprintf("%.3f", v)
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
