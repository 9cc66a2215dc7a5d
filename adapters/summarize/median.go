package summarize

import (
	"context"

	"isoquant/domain/quant"
	"isoquant/internal/numeric"
)

// MedianAggregate takes the median of PSMs per peptide, then the median of
// peptides per protein.
type MedianAggregate struct{}

// NewMedianAggregate creates a median summarizer
func NewMedianAggregate() *MedianAggregate {
	return &MedianAggregate{}
}

// Name returns the strategy name
func (s *MedianAggregate) Name() string {
	return "median"
}

// Summarize returns a protein-level table on the input scale.
func (s *MedianAggregate) Summarize(ctx context.Context, t *quant.Table) (*quant.Table, error) {
	return twoStage(ctx, t, numeric.Median)
}
