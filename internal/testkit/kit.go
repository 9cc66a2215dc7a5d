package testkit

import (
	"context"
	"sort"
	"sync"

	"isoquant/domain/core"
	"isoquant/domain/run"
)

// InMemoryRunRepository implements ports.RunRepository with in-memory storage
type InMemoryRunRepository struct {
	runs          map[core.RunID]*run.PipelineRun
	byFingerprint map[core.Hash][]core.RunID
	mu            sync.RWMutex
}

func NewInMemoryRunRepository() *InMemoryRunRepository {
	return &InMemoryRunRepository{
		runs:          make(map[core.RunID]*run.PipelineRun),
		byFingerprint: make(map[core.Hash][]core.RunID),
	}
}

func (s *InMemoryRunRepository) Save(ctx context.Context, r *run.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[r.ID]; !exists {
		fp := r.Fingerprint.Fingerprint
		s.byFingerprint[fp] = append(s.byFingerprint[fp], r.ID)
	}
	stored := *r
	s.runs[r.ID] = &stored
	return nil
}

func (s *InMemoryRunRepository) Get(ctx context.Context, id core.RunID) (*run.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, core.NewNotFoundError("run", id.String())
	}
	out := *r
	return &out, nil
}

func (s *InMemoryRunRepository) FindByFingerprint(ctx context.Context, fp core.Hash) (*run.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byFingerprint[fp]
	for i := len(ids) - 1; i >= 0; i-- {
		if r := s.runs[ids[i]]; r.Status == run.StatusCompleted {
			out := *r
			return &out, nil
		}
	}
	return nil, core.NewNotFoundError("run fingerprint", fp.Short())
}

func (s *InMemoryRunRepository) List(ctx context.Context, limit int) ([]*run.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*run.PipelineRun, 0, len(s.runs))
	for _, r := range s.runs {
		out := *r
		results = append(results, &out)
	}
	// Newest first
	sort.Slice(results, func(i, j int) bool {
		return results[j].StartedAt.Before(results[i].StartedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Len returns the number of stored runs
func (s *InMemoryRunRepository) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}
