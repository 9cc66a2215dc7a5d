package ports

import (
	"context"

	"isoquant/domain/core"
	"isoquant/domain/run"
)

// RunRepository persists pipeline-run records so reports can be regenerated
// without recomputing every variant.
type RunRepository interface {
	RunReader
	Save(ctx context.Context, r *run.PipelineRun) error
	// FindByFingerprint returns the most recent completed run with the fingerprint.
	FindByFingerprint(ctx context.Context, fp core.Hash) (*run.PipelineRun, error)
}
