// Package memory provides an in-memory JobStore for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/omnicore/content-scraper/internal/scraper"
)

// JobStore keeps job records in process memory. Safe for concurrent use.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]scraper.Job
	seq  map[string]int
	next int
}

// NewJobStore constructs an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]scraper.Job),
		seq:  make(map[string]int),
	}
}

// Create stores a new job record.
func (s *JobStore) Create(_ context.Context, job scraper.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return scraper.ErrJobExists
	}
	s.jobs[job.ID] = job.Clone()
	s.next++
	s.seq[job.ID] = s.next
	return nil
}

// Get fetches a deep copy of the job by ID.
func (s *JobStore) Get(_ context.Context, jobID string) (scraper.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scraper.Job{}, scraper.ErrJobNotFound
	}
	return job.Clone(), nil
}

// List returns jobs in submission order, newest first, optionally narrowed
// by owner and status.
func (s *JobStore) List(_ context.Context, owner string, filter scraper.JobFilter) ([]scraper.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]scraper.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if owner != "" && job.Owner != owner {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		matched = append(matched, job)
	}
	sort.Slice(matched, func(i, j int) bool {
		return s.seq[matched[i].ID] > s.seq[matched[j].ID]
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []scraper.Job{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	out := make([]scraper.Job, len(matched))
	for i, job := range matched {
		out[i] = job.Clone()
	}
	return out, nil
}

// Update persists job metadata. The Results field on the incoming job is
// ignored; stored results are owned by AppendResult.
func (s *JobStore) Update(_ context.Context, job scraper.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[job.ID]
	if !ok {
		return scraper.ErrJobNotFound
	}
	updated := job.Clone()
	updated.Results = current.Results
	s.jobs[job.ID] = updated
	return nil
}

// AppendResult adds one result to the job's result list.
func (s *JobStore) AppendResult(_ context.Context, jobID string, result scraper.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scraper.ErrJobNotFound
	}
	job.Results = append(job.Results, result)
	s.jobs[jobID] = job
	return nil
}

// Delete removes a job record entirely.
func (s *JobStore) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return scraper.ErrJobNotFound
	}
	delete(s.jobs, jobID)
	delete(s.seq, jobID)
	return nil
}
