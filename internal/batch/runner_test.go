package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnicore/content-scraper/internal/scraper"
)

type fakeExecutor struct {
	delay time.Duration

	active  atomic.Int32
	peak    atomic.Int32
	scraped atomic.Int32

	panicOn string
	blockOn string
	release chan struct{}
}

func (f *fakeExecutor) ScrapeOne(ctx context.Context, req scraper.Request) scraper.Result {
	cur := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		old := f.peak.Load()
		if cur <= old || f.peak.CompareAndSwap(old, cur) {
			break
		}
	}
	f.scraped.Add(1)

	if req.URL == f.panicOn {
		panic("extraction blew up")
	}
	if req.URL == f.blockOn {
		<-f.release
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return scraper.Result{URL: req.URL, Success: true}
}

func urlsForTest(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/page/%d", i)
	}
	return urls
}

func TestRunPreservesInputOrder(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{delay: time.Millisecond}
	runner := NewRunner(exec, Config{MaxConcurrent: 4}, nil)
	urls := urlsForTest(12)

	results := runner.Run(context.Background(), urls, scraper.Request{}, nil)

	require.Len(t, results, len(urls))
	for i, res := range results {
		assert.Equal(t, urls[i], res.URL)
		assert.True(t, res.Success)
	}
}

func TestRunHonorsConcurrencyLimit(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{delay: 5 * time.Millisecond}
	runner := NewRunner(exec, Config{MaxConcurrent: 2}, nil)

	runner.Run(context.Background(), urlsForTest(10), scraper.Request{}, nil)

	assert.LessOrEqual(t, exec.peak.Load(), int32(2))
	assert.Equal(t, int32(10), exec.scraped.Load())
}

func TestRunRecoversWorkerPanic(t *testing.T) {
	t.Parallel()

	urls := urlsForTest(3)
	exec := &fakeExecutor{panicOn: urls[1]}
	runner := NewRunner(exec, Config{MaxConcurrent: 1}, nil)

	results := runner.Run(context.Background(), urls, scraper.Request{}, nil)

	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "internal error")
	assert.True(t, results[2].Success, "a panic must not poison later urls")
}

func TestRunReportsSerializedProgress(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{delay: time.Millisecond}
	runner := NewRunner(exec, Config{MaxConcurrent: 3}, nil)
	urls := urlsForTest(9)

	var mu sync.Mutex
	var seen []int
	indexes := make(map[int]bool)
	runner.Run(context.Background(), urls, scraper.Request{}, func(index, done, total int, res scraper.Result) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, len(urls), total)
		assert.Equal(t, urls[index], res.URL, "index must identify the input slot")
		indexes[index] = true
		seen = append(seen, done)
	})

	require.Len(t, seen, len(urls))
	for i, done := range seen {
		assert.Equal(t, i+1, done, "done counts must be strictly increasing")
	}
	assert.Len(t, indexes, len(urls), "every input index reported exactly once")
}

func TestRunStopsAdmittingAfterCancel(t *testing.T) {
	t.Parallel()

	urls := urlsForTest(6)
	exec := &fakeExecutor{blockOn: urls[0], release: make(chan struct{})}
	runner := NewRunner(exec, Config{MaxConcurrent: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := make(chan []scraper.Result, 1)
	go func() {
		resultCh <- runner.Run(ctx, urls, scraper.Request{}, nil)
	}()

	// Let the first URL occupy the only permit, cancel while it still
	// holds it, then release the worker.
	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(exec.release)

	results := <-resultCh
	require.Len(t, results, len(urls))
	admitted := int(exec.scraped.Load())
	assert.Less(t, admitted, len(urls))
	for _, res := range results[admitted:] {
		assert.False(t, res.Success)
		assert.True(t, strings.Contains(res.Error, "cancelled"), "unadmitted urls report cancellation")
	}
}

func TestPacingDelay(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Duration(0), pacingDelay(0))
	assert.Equal(t, time.Duration(0), pacingDelay(-1))
	assert.Equal(t, 1500*time.Millisecond, pacingDelay(1.5))
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	cfg.applyDefaults()
	assert.Equal(t, 3, cfg.MaxConcurrent)
}
