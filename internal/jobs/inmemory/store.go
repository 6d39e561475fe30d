package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/ledger-processor/internal/jobs"
)

// Store is an in-memory implementation of JobStore.
// It stores jobs in memory and is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.ProcessSessionJob
	// active maps a session ID to the ID of its pending or running job.
	active map[string]string
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		jobs:   make(map[string]*jobs.ProcessSessionJob),
		active: make(map[string]string),
	}
}

// CreateJob implements the JobStore interface.
func (s *Store) CreateJob(ctx context.Context, job *jobs.ProcessSessionJob) error {
	if job.JobID == "" {
		return fmt.Errorf("CreateJob: job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.active[job.SessionID]; ok && owner != job.JobID {
		return fmt.Errorf("CreateJob: session %s (job %s): %w", job.SessionID, owner, jobs.ErrDuplicateJob)
	}
	s.put(job)
	return nil
}

// SaveJob implements the JobStore interface.
// It saves or updates a job in memory.
func (s *Store) SaveJob(ctx context.Context, job *jobs.ProcessSessionJob) error {
	if job.JobID == "" {
		return fmt.Errorf("SaveJob: job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(job)
	return nil
}

func (s *Store) put(job *jobs.ProcessSessionJob) {
	jobCopy := *job
	s.jobs[job.JobID] = &jobCopy

	switch {
	case job.Status.IsActive():
		s.active[job.SessionID] = job.JobID
	case s.active[job.SessionID] == job.JobID:
		delete(s.active, job.SessionID)
	}
}

// GetJob implements the JobStore interface.
// It retrieves a job by ID from memory.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.ProcessSessionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("GetJob: %s: %w", jobID, jobs.ErrJobNotFound)
	}

	jobCopy := *job
	return &jobCopy, nil
}

// ListJobs implements the JobStore interface.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.ProcessSessionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*jobs.ProcessSessionJob{}
	for _, job := range s.jobs {
		if filter.SessionID != "" && job.SessionID != filter.SessionID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}

		jobCopy := *job
		result = append(result, &jobCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].JobID < result[j].JobID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.ProcessSessionJob{}, nil
		}
		result = result[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Ensure Store implements JobStore interface.
var _ jobs.JobStore = (*Store)(nil)
