package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/omnicore/content-scraper/internal/batch"
	"github.com/omnicore/content-scraper/internal/metrics"
	"github.com/omnicore/content-scraper/internal/scraper"
)

// Runner is the batch execution dependency.
type Runner interface {
	Run(ctx context.Context, urls []string, base scraper.Request, onResult batch.OnResult) []scraper.Result
}

// Orchestrator accepts jobs and drives them to a terminal state. Each job
// runs on one background goroutine; only that goroutine mutates the job
// record after creation.
type Orchestrator struct {
	store  scraper.JobStore
	runner Runner
	clock  scraper.Clock
	ids    scraper.IDGenerator
	logger *zap.Logger

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New builds an Orchestrator. Workers outlive the submitting request; they
// stop when their job is cancelled or when Close is called.
func New(store scraper.JobStore, runner Runner, clock scraper.Clock, ids scraper.IDGenerator, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	rootCtx, rootCancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:      store,
		runner:     runner,
		clock:      clock,
		ids:        ids,
		logger:     logger,
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// Close cancels every active job and waits for their workers to drain.
func (o *Orchestrator) Close() {
	o.rootCancel()
	o.wg.Wait()
}

// Submit registers a job and starts its worker. It returns as soon as the
// pending record is persisted; callers poll the store for progress.
func (o *Orchestrator) Submit(ctx context.Context, kind scraper.JobKind, urls []string, base scraper.Request, owner string) (scraper.Job, error) {
	id, err := o.ids.NewID()
	if err != nil {
		return scraper.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	job := scraper.Job{
		ID:          id,
		Kind:        kind,
		Status:      scraper.JobStatusPending,
		CurrentStep: "queued",
		URLs:        append([]string(nil), urls...),
		Request:     base,
		Owner:       owner,
		Created:     o.clock.Now(),
	}
	if err := o.store.Create(ctx, job); err != nil {
		return scraper.Job{}, fmt.Errorf("persist job: %w", err)
	}
	metrics.ObserveJob(string(job.Status))

	jobCtx, cancel := context.WithCancel(o.rootCtx)
	o.mu.Lock()
	o.cancels[job.ID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go o.runJob(jobCtx, job)

	o.logger.Info("job accepted",
		zap.String("job_id", job.ID),
		zap.String("kind", string(kind)),
		zap.Int("urls", len(urls)))
	return job.Clone(), nil
}

// Cancel requests cancellation of an active job. Terminal jobs cannot be
// cancelled. The in-flight URL is allowed to finish but its result is
// discarded; no further URLs start.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("job %s is already %s", jobID, job.Status)
	}

	o.mu.Lock()
	cancel, ok := o.cancels[jobID]
	o.mu.Unlock()
	if ok {
		cancel()
		return nil
	}

	// No worker registered. Either the worker finished between the status
	// check above and the lookup, or the process restarted with the job
	// mid-flight. Workers deregister only after writing their terminal
	// state, so a re-read tells the two apart.
	job, err = o.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("job %s is already %s", jobID, job.Status)
	}
	return o.finalize(ctx, job, scraper.JobStatusCancelled, "cancelled")
}

// Delete removes a terminal job's record. Active jobs must be cancelled
// before deletion.
func (o *Orchestrator) Delete(ctx context.Context, jobID string) error {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.IsTerminal() {
		return scraper.ErrJobNotTerminal
	}
	return o.store.Delete(ctx, jobID)
}

func (o *Orchestrator) runJob(ctx context.Context, job scraper.Job) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		delete(o.cancels, job.ID)
		o.mu.Unlock()
	}()
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("job worker panicked",
				zap.String("job_id", job.ID),
				zap.Any("panic", rec))
			job.ErrorText = fmt.Sprintf("internal error: %v", rec)
			if err := o.finalize(context.Background(), job, scraper.JobStatusFailed, "failed"); err != nil {
				o.logger.Error("finalize panicked job", zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}()

	// A cancel that lands before any work starts takes the job straight
	// from pending to cancelled.
	if ctx.Err() != nil {
		o.mustFinalize(job, scraper.JobStatusCancelled, "cancelled")
		return
	}

	now := o.clock.Now()
	job.Status = scraper.JobStatusInProgress
	job.Started = &now
	job.CurrentStep = stepLabel(0, len(job.URLs), job.URLs)
	if err := o.store.Update(context.Background(), job); err != nil {
		o.logger.Error("mark job in progress", zap.String("job_id", job.ID), zap.Error(err))
	}
	metrics.ObserveJob(string(job.Status))

	total := len(job.URLs)
	if total == 0 {
		o.mustFinalize(job, scraper.JobStatusCompleted, "completed")
		return
	}

	// Workers finish in completion order but the stored result list must
	// follow input order. Out-of-order results are held back until every
	// earlier slot has been persisted. Callbacks are serialized by the
	// runner, so held and next need no lock.
	held := make(map[int]scraper.Result, total)
	next := 0
	o.runner.Run(ctx, job.URLs, job.Request, func(index, done, _ int, result scraper.Result) {
		// Results that land after a cancel are discarded.
		if ctx.Err() != nil {
			return
		}
		held[index] = result
		for {
			r, ok := held[next]
			if !ok {
				break
			}
			if err := o.store.AppendResult(context.Background(), job.ID, r); err != nil {
				o.logger.Error("append result", zap.String("job_id", job.ID), zap.Error(err))
			}
			delete(held, next)
			next++
		}
		job.Progress = done * 100 / total
		job.CurrentStep = stepLabel(done, total, job.URLs)
		if err := o.store.Update(context.Background(), job); err != nil {
			o.logger.Error("update progress", zap.String("job_id", job.ID), zap.Error(err))
		}
	})

	if ctx.Err() != nil {
		o.mustFinalize(job, scraper.JobStatusCancelled, "cancelled")
		return
	}

	job.Progress = 100
	o.mustFinalize(job, scraper.JobStatusCompleted, "completed")
}

// finalize writes the terminal state. The job's Results are preserved as
// already persisted; only status fields change here.
func (o *Orchestrator) finalize(ctx context.Context, job scraper.Job, status scraper.JobStatus, step string) error {
	now := o.clock.Now()
	job.Status = status
	job.CurrentStep = step
	job.Completed = &now
	if status == scraper.JobStatusCompleted {
		job.Progress = 100
	}
	metrics.ObserveJob(string(status))
	if err := o.store.Update(ctx, job); err != nil {
		return fmt.Errorf("finalize job %s: %w", job.ID, err)
	}
	o.logger.Info("job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(status)),
		zap.Int("progress", job.Progress))
	return nil
}

func (o *Orchestrator) mustFinalize(job scraper.Job, status scraper.JobStatus, step string) {
	if err := o.finalize(context.Background(), job, status, step); err != nil {
		o.logger.Error("finalize job", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func stepLabel(done, total int, urls []string) string {
	if done >= total || done >= len(urls) {
		return "finishing"
	}
	return fmt.Sprintf("scraping url %d of %d: %s", done+1, total, urls[done])
}
