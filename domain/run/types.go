package run

import (
	"time"

	"isoquant/domain/core"
	"isoquant/domain/result"
)

// Status is the lifecycle state of a pipeline run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Stage names used in StageChoice.
const (
	StageNormalize     = "normalize"
	StageSummarize     = "summarize"
	StagePostNormalize = "post_normalize"
	StageTest          = "test"
)

// StageChoice records which strategy ran at one stage and with what parameters.
type StageChoice struct {
	Stage    string                 `json:"stage"`
	Strategy string                 `json:"strategy"`
	Params   map[string]interface{} `json:"params,omitempty"`
}

// PipelineRun is the record of one pipeline variant executed against one
// input table: what went in, which strategies were chosen, and what came out.
type PipelineRun struct {
	ID          core.RunID        `json:"id"`
	Variant     string            `json:"variant"`
	Stages      []StageChoice     `json:"stages"`
	Fingerprint RunFingerprint    `json:"fingerprint"`
	Status      Status            `json:"status"`
	Error       string            `json:"error,omitempty"`
	ErrorCode   string            `json:"error_code,omitempty"`
	Results     *result.ResultSet `json:"results,omitempty"`
	StartedAt   core.Timestamp    `json:"started_at"`
	FinishedAt  core.Timestamp    `json:"finished_at"`
	Duration    time.Duration     `json:"duration"`
}

// NewPipelineRun starts a pending run record.
func NewPipelineRun(variant string, stages []StageChoice, fp RunFingerprint) *PipelineRun {
	return &PipelineRun{
		ID:          core.NewRunID(),
		Variant:     variant,
		Stages:      stages,
		Fingerprint: fp,
		Status:      StatusPending,
		StartedAt:   core.Now(),
	}
}

// Complete attaches results and marks the run completed.
func (r *PipelineRun) Complete(rs *result.ResultSet) {
	r.Results = rs
	r.Status = StatusCompleted
	r.finish()
}

// Fail marks the run failed with err; code is the application error code.
func (r *PipelineRun) Fail(err error, code string) {
	r.Status = StatusFailed
	r.Error = err.Error()
	r.ErrorCode = code
	r.finish()
}

func (r *PipelineRun) finish() {
	r.FinishedAt = core.Now()
	r.Duration = r.FinishedAt.Time().Sub(r.StartedAt.Time())
}

// Succeeded reports whether results are available.
func (r *PipelineRun) Succeeded() bool {
	return r.Status == StatusCompleted && r.Results != nil
}
