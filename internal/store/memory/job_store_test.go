package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnicore/content-scraper/internal/scraper"
)

func newJob(id, owner string, status scraper.JobStatus) scraper.Job {
	return scraper.Job{
		ID:      id,
		Kind:    scraper.JobKindSingle,
		Status:  status,
		URLs:    []string{"https://example.com/" + id},
		Owner:   owner,
		Created: time.Now().UTC(),
	}
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newJob("a", "alice", scraper.JobStatusPending)))
	assert.ErrorIs(t, store.Create(ctx, newJob("a", "alice", scraper.JobStatusPending)), scraper.ErrJobExists)

	job, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, scraper.JobStatusPending, job.Status)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, scraper.ErrJobNotFound)
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newJob("a", "alice", scraper.JobStatusPending)))

	job, err := store.Get(ctx, "a")
	require.NoError(t, err)
	job.URLs[0] = "mutated"
	job.Status = scraper.JobStatusFailed

	again, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", again.URLs[0])
	assert.Equal(t, scraper.JobStatusPending, again.Status)
}

func TestUpdatePreservesResults(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newJob("a", "alice", scraper.JobStatusInProgress)))
	require.NoError(t, store.AppendResult(ctx, "a", scraper.Result{URL: "https://example.com/a", Success: true}))

	updated := newJob("a", "alice", scraper.JobStatusCompleted)
	updated.Progress = 100
	updated.Results = nil
	require.NoError(t, store.Update(ctx, updated))

	job, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, scraper.JobStatusCompleted, job.Status)
	require.Len(t, job.Results, 1, "results survive metadata updates")
	assert.True(t, job.Results[0].Success)
}

func TestUpdateMissingJob(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	err := store.Update(context.Background(), newJob("ghost", "alice", scraper.JobStatusFailed))
	assert.ErrorIs(t, err, scraper.ErrJobNotFound)
}

func TestAppendResultOrder(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newJob("a", "alice", scraper.JobStatusInProgress)))
	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendResult(ctx, "a", scraper.Result{URL: fmt.Sprintf("u%d", i)}))
	}

	job, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.Len(t, job.Results, 3)
	assert.Equal(t, "u0", job.Results[0].URL)
	assert.Equal(t, "u2", job.Results[2].URL)

	assert.ErrorIs(t, store.AppendResult(ctx, "ghost", scraper.Result{}), scraper.ErrJobNotFound)
}

func TestListFiltersAndPaginates(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newJob("a", "alice", scraper.JobStatusCompleted)))
	require.NoError(t, store.Create(ctx, newJob("b", "bob", scraper.JobStatusPending)))
	require.NoError(t, store.Create(ctx, newJob("c", "alice", scraper.JobStatusPending)))
	require.NoError(t, store.Create(ctx, newJob("d", "alice", scraper.JobStatusPending)))

	all, err := store.List(ctx, "", scraper.JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "d", all[0].ID, "newest first")

	alice, err := store.List(ctx, "alice", scraper.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, alice, 3)

	pending, err := store.List(ctx, "alice", scraper.JobFilter{Status: scraper.JobStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	page, err := store.List(ctx, "", scraper.JobFilter{Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].ID)
	assert.Equal(t, "b", page[1].ID)

	empty, err := store.List(ctx, "", scraper.JobFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newJob("a", "alice", scraper.JobStatusCompleted)))
	require.NoError(t, store.Delete(ctx, "a"))
	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, scraper.ErrJobNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "a"), scraper.ErrJobNotFound)
}
