package report

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"isoquant/domain/evaluation"
)

func sampleReport() evaluation.Report {
	cm := evaluation.ConfusionMatrix{TP: 4, FP: 1, TN: 14, FN: 1}
	return evaluation.Report{
		Criteria: evaluation.Criteria{Threshold: 0.05, MinAbsLogFC: 0.5},
		Scores: []evaluation.VariantScore{{
			Variant: "median", Contrast: "spike", Engine: "moderated_t",
			Confusion: cm, Metrics: evaluation.MetricsOf(cm), Unstable: 2,
		}, {
			Variant: "empty", Contrast: "spike", Engine: "rank_sum",
			Metrics: evaluation.MetricsOf(evaluation.ConfusionMatrix{}),
		}},
		Agreement: []evaluation.Agreement{{
			Contrast: "spike", VariantA: "empty", VariantB: "median", Field: evaluation.FieldLogFC,
			Pearson: 0.91, Spearman: math.NaN(), N: 20,
		}},
		Failures: []evaluation.VariantFailure{{Variant: "raking|log2", Code: "SCALE_MISMATCH", Error: "raking needs raw intensities"}},
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleReport())

	assert.Contains(t, md, "Calls: q < 0.050, |logFC| >= 0.500")
	assert.Contains(t, md, "| median | spike | moderated_t | 4 | 1 | 14 | 1 | 0.900 | 0.800 | 0.933 | 0.800 | 0.933 | 2 |")
	assert.Contains(t, md, "| empty | spike | rank_sum | 0 | 0 | 0 | 0 | - | - | - | - | - | 0 |")
	assert.Contains(t, md, "| spike | empty | median | log_fc | 0.910 | - | 20 |")
	assert.Contains(t, md, `raking\|log2`)
}

func TestMarkdown_OmitsEmptySections(t *testing.T) {
	md := Markdown(evaluation.Report{Criteria: evaluation.DefaultCriteria()})
	assert.NotContains(t, md, "## Agreement")
	assert.NotContains(t, md, "## Failed variants")
	assert.NotContains(t, md, "|logFC|")
}

func TestHTML(t *testing.T) {
	page := string(HTML(sampleReport()))
	assert.True(t, strings.HasPrefix(strings.TrimSpace(page), "<!DOCTYPE html>"))
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "<title>isoquant benchmark</title>")
	assert.Contains(t, page, "<td>median</td>")
}
