package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/omnicore/content-scraper/internal/scraper"
)

// Config tunes batch execution.
type Config struct {
	// MaxConcurrent bounds the number of simultaneous scrapes.
	MaxConcurrent int
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 3
	}
}

// OnResult is invoked after each URL finishes, successfully or not. index
// is the URL's position in the input slice, done is the number of completed
// URLs so far. Calls are serialized but arrive in completion order, not
// input order.
type OnResult func(index, done, total int, result scraper.Result)

// Runner executes batches against a single-URL executor.
type Runner struct {
	exec   scraper.Executor
	cfg    Config
	logger *zap.Logger
}

// NewRunner builds a Runner.
func NewRunner(exec scraper.Executor, cfg Config, logger *zap.Logger) *Runner {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{exec: exec, cfg: cfg, logger: logger}
}

// Run scrapes every URL with the shared request settings and returns one
// result per input URL, in input order. A worker holds its permit through
// the pacing delay, so the delay throttles each concurrency slot rather
// than the batch as a whole. Cancellation stops admitting new URLs; URLs
// never admitted come back as failed results.
func (r *Runner) Run(ctx context.Context, urls []string, base scraper.Request, onResult OnResult) []scraper.Result {
	results := make([]scraper.Result, len(urls))
	permits := make(chan struct{}, r.cfg.MaxConcurrent)
	pacing := pacingDelay(base.DelaySeconds)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)

	for i, rawURL := range urls {
		select {
		case <-ctx.Done():
			for j := i; j < len(urls); j++ {
				results[j] = scraper.Result{
					URL:   urls[j],
					Error: "batch cancelled before this url was scraped",
				}
			}
			wg.Wait()
			return results
		case permits <- struct{}{}:
		}

		wg.Add(1)
		go func(idx int, target string) {
			defer wg.Done()
			defer func() { <-permits }()
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("scrape worker panicked",
						zap.String("url", target),
						zap.Any("panic", rec))
					results[idx] = scraper.Result{
						URL:   target,
						Error: fmt.Sprintf("internal error: %v", rec),
					}
				}
				mu.Lock()
				done++
				if onResult != nil {
					onResult(idx, done, len(urls), results[idx])
				}
				mu.Unlock()
			}()

			req := base
			req.URL = target
			results[idx] = r.exec.ScrapeOne(ctx, req)

			if pacing > 0 {
				select {
				case <-time.After(pacing):
				case <-ctx.Done():
				}
			}
		}(i, rawURL)
	}

	wg.Wait()
	return results
}

// pacingDelay converts the request's delay setting into the pause each
// worker takes before picking up its next URL.
func pacingDelay(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
