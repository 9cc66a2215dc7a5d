package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isoquant/domain/core"
	"isoquant/domain/evaluation"
	"isoquant/domain/quant"
	"isoquant/domain/result"
	"isoquant/domain/run"
	"isoquant/internal/metrics"
	"isoquant/internal/testkit"
)

func storedRun(t *testing.T, repo *testkit.InMemoryRunRepository, variant string) *run.PipelineRun {
	t.Helper()
	r := run.NewPipelineRun(variant, nil, run.RunFingerprint{Fingerprint: core.Hash("fp-" + variant)})
	res := result.NewUndefined("P1", "spike", "moderated_t", "")
	res.LogFC, res.PValue, res.ModPValue, res.QValue = 1, 0.001, 0.001, 0.01
	r.Complete(&result.ResultSet{
		Engine: "moderated_t", Reference: "ctrl", Scale: quant.ScaleLog2,
		Contrasts: []result.ContrastResults{{Contrast: "spike", Results: []result.TestResult{res}}},
	})
	require.NoError(t, repo.Save(context.Background(), r))
	return r
}

func newTestServer(t *testing.T) (*Server, *testkit.InMemoryRunRepository, *metrics.Recorder) {
	t.Helper()
	repo := testkit.NewInMemoryRunRepository()
	rec := metrics.NewRecorder()
	evaluate := func(runs []*run.PipelineRun) evaluation.Report {
		rep := evaluation.Report{Criteria: evaluation.DefaultCriteria()}
		for _, r := range runs {
			for _, cr := range r.Results.Contrasts {
				cm := evaluation.Classify(cr, evaluation.NewGroundTruth("P1"), rep.Criteria)
				rep.Scores = append(rep.Scores, evaluation.VariantScore{
					Variant: r.Variant, Contrast: cr.Contrast, Confusion: cm, Metrics: evaluation.MetricsOf(cm),
				})
			}
		}
		return rep
	}
	return NewServer(repo, evaluate, rec), repo, rec
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestServer_Runs(t *testing.T) {
	s, repo, _ := newTestServer(t)
	first := storedRun(t, repo, "median")
	storedRun(t, repo, "sum")

	w := get(t, s, "/runs?limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Runs []runSummary `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, []string{"spike"}, list.Runs[0].Contrasts)

	w = get(t, s, "/runs/"+first.ID.String())
	require.Equal(t, http.StatusOK, w.Code)
	var got run.PipelineRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "median", got.Variant)
	assert.Equal(t, 0.01, got.Results.Contrasts[0].Results[0].QValue)

	w = get(t, s, "/runs/"+core.NewRunID().String())
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")

	w = get(t, s, "/runs/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = get(t, s, "/runs?limit=-3")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_Report(t *testing.T) {
	s, repo, _ := newTestServer(t)
	storedRun(t, repo, "median")

	w := get(t, s, "/report")
	require.Equal(t, http.StatusOK, w.Code)
	var rep evaluation.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	require.Len(t, rep.Scores, 1)
	assert.Equal(t, 1, rep.Scores[0].Confusion.TP)

	w = get(t, s, "/report?format=md")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "| median | spike |")

	w = get(t, s, "/report?format=html")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, w.Body.String(), "<table>")

	w = get(t, s, "/report?format=pdf")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_MetricsAndHealth(t *testing.T) {
	s, _, rec := newTestServer(t)
	rec.VariantFinished("completed")

	w := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "isoquant_variant_runs_total")

	w = get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(t, s, "/nowhere")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}
