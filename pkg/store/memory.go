package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStorage keeps runs in memory. It is used by tests and by one-shot
// runs that do not persist history.
type MemoryStorage struct {
	runs     map[string]*Run
	findings map[string][]*Finding
	mu       sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		runs:     make(map[string]*Run),
		findings: make(map[string][]*Finding),
	}
}

// SaveRun stores copies of run and findings.
func (s *MemoryStorage) SaveRun(ctx context.Context, run *Run, findings []*Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; ok {
		return NewStorageError("memory", "save", fmt.Errorf("%w: %s", ErrDuplicateRun, run.ID))
	}
	runCopy := *run
	s.runs[run.ID] = &runCopy

	fs := make([]*Finding, len(findings))
	for i, f := range findings {
		fc := *f
		fc.RunID = run.ID
		fs[i] = &fc
	}
	sortFindings(fs)
	s.findings[run.ID] = fs
	return nil
}

// GetRun returns a copy of the run with the given id.
func (s *MemoryStorage) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	runCopy := *run
	return &runCopy, nil
}

// ListRuns returns the runs matching query, sorted and paginated.
func (s *MemoryStorage) ListRuns(ctx context.Context, query *Query) ([]*Run, error) {
	q, err := prepare(query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	results := []*Run{}
	for _, run := range s.runs {
		if matches(run, q) {
			runCopy := *run
			results = append(results, &runCopy)
		}
	}
	s.mu.RUnlock()

	sortRuns(results, q)

	if q.Offset >= len(results) {
		return []*Run{}, nil
	}
	end := q.Offset + q.Limit
	if end > len(results) {
		end = len(results)
	}
	return results[q.Offset:end], nil
}

// Findings returns copies of the findings of a run.
func (s *MemoryStorage) Findings(ctx context.Context, runID string) ([]*Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.runs[runID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	out := make([]*Finding, len(s.findings[runID]))
	for i, f := range s.findings[runID] {
		fc := *f
		out[i] = &fc
	}
	return out, nil
}

// FindingsStream streams the findings of a run.
func (s *MemoryStorage) FindingsStream(ctx context.Context, runID string) (<-chan *Finding, <-chan error, error) {
	findings, err := s.Findings(ctx, runID)
	if err != nil {
		return nil, nil, err
	}

	findingsCh := make(chan *Finding, 100)
	errCh := make(chan error, 1)
	go func() {
		defer close(findingsCh)
		defer close(errCh)
		for _, f := range findings {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case findingsCh <- f:
			}
		}
	}()
	return findingsCh, errCh, nil
}

// CountRuns returns the number of runs matching query.
func (s *MemoryStorage) CountRuns(ctx context.Context, query *Query) (int64, error) {
	q, err := prepare(query)
	if err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, run := range s.runs {
		if matches(run, q) {
			count++
		}
	}
	return count, nil
}

// DeleteRuns removes matching runs and their findings.
func (s *MemoryStorage) DeleteRuns(ctx context.Context, query *Query) (int64, error) {
	q, err := prepare(query)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, run := range s.runs {
		if matches(run, q) {
			delete(s.runs, id)
			delete(s.findings, id)
			deleted++
		}
	}
	return deleted, nil
}

// Close drops all stored runs.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = make(map[string]*Run)
	s.findings = make(map[string][]*Finding)
	return nil
}

// Size returns the number of stored runs.
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.runs)
}
