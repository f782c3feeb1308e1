// Package postgres provides a Postgres-backed JobStore built on pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnicore/content-scraper/internal/scraper"
)

const uniqueViolation = "23505"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// JobStore persists jobs in a single scrape_jobs table. URLs, the request,
// and results are stored as jsonb so the row tracks the API shape.
type JobStore struct {
	pool dbPool
}

// NewJobStore connects a pool and returns the store.
func NewJobStore(ctx context.Context, cfg Config) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobStore{pool: pool}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewJobStoreWithPool(pool dbPool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the jobs table when it does not exist.
func (s *JobStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS scrape_jobs (
	id           text PRIMARY KEY,
	kind         text NOT NULL,
	status       text NOT NULL,
	progress     integer NOT NULL DEFAULT 0,
	current_step text NOT NULL DEFAULT '',
	urls         jsonb NOT NULL,
	request      jsonb NOT NULL,
	results      jsonb NOT NULL DEFAULT '[]'::jsonb,
	error_text   text NOT NULL DEFAULT '',
	owner        text NOT NULL DEFAULT '',
	created_at   timestamptz NOT NULL,
	started_at   timestamptz,
	completed_at timestamptz
)`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Create inserts a new job row.
func (s *JobStore) Create(ctx context.Context, job scraper.Job) error {
	urls, err := json.Marshal(job.URLs)
	if err != nil {
		return fmt.Errorf("marshal urls: %w", err)
	}
	request, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO scrape_jobs (id, kind, status, progress, current_step, urls, request, results, error_text, owner, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, '[]'::jsonb, $8, $9, $10)`,
		job.ID,
		string(job.Kind),
		string(job.Status),
		job.Progress,
		job.CurrentStep,
		urls,
		request,
		job.ErrorText,
		job.Owner,
		job.Created,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return scraper.ErrJobExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, kind, status, progress, current_step, urls, request, results, error_text, owner, created_at, started_at, completed_at`

// Get fetches one job by ID.
func (s *JobStore) Get(ctx context.Context, jobID string) (scraper.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM scrape_jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scraper.Job{}, scraper.ErrJobNotFound
		}
		return scraper.Job{}, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// List returns jobs newest first, optionally narrowed by owner and status.
func (s *JobStore) List(ctx context.Context, owner string, filter scraper.JobFilter) ([]scraper.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scrape_jobs WHERE 1=1`
	args := []any{}
	if owner != "" {
		args = append(args, owner)
		query += fmt.Sprintf(" AND owner = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []scraper.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Update persists job metadata. Results are intentionally untouched; they
// grow only through AppendResult.
func (s *JobStore) Update(ctx context.Context, job scraper.Job) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE scrape_jobs
SET status = $2, progress = $3, current_step = $4, error_text = $5, started_at = $6, completed_at = $7
WHERE id = $1`,
		job.ID,
		string(job.Status),
		job.Progress,
		job.CurrentStep,
		job.ErrorText,
		job.Started,
		job.Completed,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scraper.ErrJobNotFound
	}
	return nil
}

// AppendResult appends one result to the job's jsonb result array.
func (s *JobStore) AppendResult(ctx context.Context, jobID string, result scraper.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE scrape_jobs
SET results = results || $2::jsonb
WHERE id = $1`,
		jobID,
		payload,
	)
	if err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scraper.ErrJobNotFound
	}
	return nil
}

// Delete removes the job row.
func (s *JobStore) Delete(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scrape_jobs WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scraper.ErrJobNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (scraper.Job, error) {
	var (
		job       scraper.Job
		kind      string
		status    string
		urls      []byte
		request   []byte
		results   []byte
		started   *time.Time
		completed *time.Time
	)
	err := row.Scan(
		&job.ID,
		&kind,
		&status,
		&job.Progress,
		&job.CurrentStep,
		&urls,
		&request,
		&results,
		&job.ErrorText,
		&job.Owner,
		&job.Created,
		&started,
		&completed,
	)
	if err != nil {
		return scraper.Job{}, err
	}
	job.Kind = scraper.JobKind(kind)
	job.Status = scraper.JobStatus(status)
	job.Started = started
	job.Completed = completed
	if err := json.Unmarshal(urls, &job.URLs); err != nil {
		return scraper.Job{}, fmt.Errorf("unmarshal urls: %w", err)
	}
	if err := json.Unmarshal(request, &job.Request); err != nil {
		return scraper.Job{}, fmt.Errorf("unmarshal request: %w", err)
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &job.Results); err != nil {
			return scraper.Job{}, fmt.Errorf("unmarshal results: %w", err)
		}
	}
	return job, nil
}
