package summarize

import (
	"context"

	"isoquant/domain/quant"
	"isoquant/internal/numeric"
)

// SumAggregate sums PSMs per peptide and peptides per protein. Summing
// centered log values is a known artifact; it is allowed and only logged.
type SumAggregate struct{}

// NewSumAggregate creates a sum summarizer
func NewSumAggregate() *SumAggregate {
	return &SumAggregate{}
}

// Name returns the strategy name
func (s *SumAggregate) Name() string {
	return "sum"
}

// Summarize returns a protein-level table on the input scale.
func (s *SumAggregate) Summarize(ctx context.Context, t *quant.Table) (*quant.Table, error) {
	negative := 0
	for _, v := range t.Values() {
		if v < 0 {
			negative++
		}
	}
	if negative > 0 {
		logger.Warn("summing %d negative values; protein totals may change sign", negative)
	}
	return twoStage(ctx, t, numeric.Sum)
}
