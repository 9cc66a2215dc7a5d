// Package api serves stored pipeline runs, evaluation reports and metrics
// over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"isoquant/adapters/report"
	"isoquant/domain/core"
	"isoquant/domain/evaluation"
	"isoquant/domain/run"
	"isoquant/internal"
	"isoquant/internal/errors"
	"isoquant/internal/metrics"
	"isoquant/ports"
)

var logger = internal.DefaultLogger.WithComponent("api")

const defaultListLimit = 50

// ReportFunc scores a set of runs
type ReportFunc func(runs []*run.PipelineRun) evaluation.Report

// Server is the read API over a run repository
type Server struct {
	router   *chi.Mux
	runs     ports.RunReader
	evaluate ReportFunc
	recorder *metrics.Recorder
}

// NewServer creates the server and registers its routes. recorder may be nil.
func NewServer(runs ports.RunReader, evaluate ReportFunc, recorder *metrics.Recorder) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		runs:     runs,
		evaluate: evaluate,
		recorder: recorder,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.router.Get("/runs", s.handleListRuns)
	s.router.Get("/runs/{id}", s.handleGetRun)
	s.router.Get("/report", s.handleReport)
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, errors.NotFound("route "+r.URL.Path))
	})
	if s.recorder != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.recorder.Registry, promhttp.HandlerOpts{}))
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// runSummary is a run without its results
type runSummary struct {
	ID          core.RunID     `json:"id"`
	Variant     string         `json:"variant"`
	Status      run.Status     `json:"status"`
	ErrorCode   string         `json:"error_code,omitempty"`
	Fingerprint core.Hash      `json:"fingerprint"`
	StartedAt   core.Timestamp `json:"started_at"`
	DurationMS  int64          `json:"duration_ms"`
	Contrasts   []string       `json:"contrasts,omitempty"`
}

func summarize(r *run.PipelineRun) runSummary {
	sum := runSummary{
		ID:          r.ID,
		Variant:     r.Variant,
		Status:      r.Status,
		ErrorCode:   r.ErrorCode,
		Fingerprint: r.Fingerprint.Fingerprint,
		StartedAt:   r.StartedAt,
		DurationMS:  r.Duration.Milliseconds(),
	}
	if r.Results != nil {
		sum.Contrasts = r.Results.ContrastNames()
	}
	return sum
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	runs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]runSummary, 0, len(runs))
	for _, pr := range runs {
		out = append(out, summarize(pr))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": out})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errors.WithCode(errors.CodeInvalidInput, err))
		return
	}
	pr, err := s.runs.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

// handleReport scores the latest runs. format is json (default), md or html.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	runs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	rep := s.evaluate(runs)

	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSON(w, http.StatusOK, rep)
	case "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(report.Markdown(rep)))
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(report.HTML(rep))
	default:
		writeError(w, errors.InvalidInput("format must be json, md or html"))
	}
}

func limitParam(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.InvalidInput("limit must be a non-negative integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeFor(err)
	status := http.StatusInternalServerError
	switch {
	case code == errors.CodeNotFound:
		status = http.StatusNotFound
	case code == errors.CodeInvalidInput, code == errors.CodeConfigInvalid, core.IsInputError(err):
		status = http.StatusBadRequest
	case code == errors.CodeDeadlineExceeded:
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}
