package ports

import (
	"context"

	"isoquant/domain/core"
	"isoquant/domain/run"
)

// RunReader provides read-only access to stored runs for the API.
// The API cannot write or overwrite run records.
type RunReader interface {
	Get(ctx context.Context, id core.RunID) (*run.PipelineRun, error)
	// List returns up to limit runs, newest first. A limit of zero lists all.
	List(ctx context.Context, limit int) ([]*run.PipelineRun, error)
}
