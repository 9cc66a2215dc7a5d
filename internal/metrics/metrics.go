// Package metrics exposes pipeline counters and stage timings for prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder owns the collectors of one registry.
type Recorder struct {
	Registry *prometheus.Registry

	variantRuns    *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	modelFallbacks prometheus.Counter
}

// NewRecorder registers the isoquant collectors on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		Registry: reg,
		variantRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "isoquant_variant_runs_total",
			Help: "Pipeline variant runs by final status",
		}, []string{"status"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "isoquant_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"stage"}),
		modelFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "isoquant_model_fallbacks_total",
			Help: "Proteins tested with the fixed-effects fallback instead of the mixed model",
		}),
	}
}

// VariantFinished counts a run by status.
func (r *Recorder) VariantFinished(status string) {
	if r == nil {
		return
	}
	r.variantRuns.WithLabelValues(status).Inc()
}

// ObserveStage records how long a stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ModelFallbacks adds n fallback fits.
func (r *Recorder) ModelFallbacks(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.modelFallbacks.Add(float64(n))
}

// Default is shared by the binaries.
var Default = NewRecorder()
