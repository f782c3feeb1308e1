package scraper

import (
	"context"
	"errors"
	"time"
)

// Store errors shared by all JobStore implementations.
var (
	ErrJobNotFound    = errors.New("job not found")
	ErrJobExists      = errors.New("job already exists")
	ErrJobNotTerminal = errors.New("job is still active; cancel it first")
)

// JobStore persists job records and their accumulated results. Update
// covers job metadata (status, progress, step, timestamps, error text):
// the Results field on the passed job is ignored. Results grow only
// through AppendResult and are returned by Get.
type JobStore interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, jobID string) (Job, error)
	List(ctx context.Context, owner string, filter JobFilter) ([]Job, error)
	Update(ctx context.Context, job Job) error
	AppendResult(ctx context.Context, jobID string, result Result) error
	Delete(ctx context.Context, jobID string) error
}

// JobFilter narrows List results.
type JobFilter struct {
	Status JobStatus
	Offset int
	Limit  int
}

// Executor runs the full pipeline for one URL and never fails past its
// boundary; per-URL errors are absorbed into the Result.
type Executor interface {
	ScrapeOne(ctx context.Context, request Request) Result
}

// Validator decides whether a URL is safe to fetch.
type Validator interface {
	Validate(rawURL string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
