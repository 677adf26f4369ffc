package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/finance-assistant/internal/jobs"
)

// Store is an in-memory JobStore. Data is lost on restart.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.IngestDocumentJob
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*jobs.IngestDocumentJob),
	}
}

// SaveJob saves or updates a copy of job.
func (s *Store) SaveJob(_ context.Context, job *jobs.IngestDocumentJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobCopy := *job
	s.jobs[job.JobID] = &jobCopy
	return nil
}

// GetJob returns a copy of the job.
func (s *Store) GetJob(_ context.Context, jobID string) (*jobs.IngestDocumentJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}

	jobCopy := *job
	return &jobCopy, nil
}

// ListJobs returns copies of matching jobs, newest first.
func (s *Store) ListJobs(_ context.Context, filter jobs.JobFilter) ([]*jobs.IngestDocumentJob, error) {
	s.mu.RLock()
	result := []*jobs.IngestDocumentJob{}
	for _, job := range s.jobs {
		if filter.Location != "" && job.Location != filter.Location {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		jobCopy := *job
		result = append(result, &jobCopy)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].JobID < result[j].JobID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.IngestDocumentJob{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

var _ jobs.JobStore = (*Store)(nil)
