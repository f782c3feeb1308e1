package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnicore/content-scraper/internal/scraper"
)

func newMockStore(t *testing.T) (*JobStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestCreateInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	created := time.Unix(1750000000, 0).UTC()
	job := scraper.Job{
		ID:          "job-1",
		Kind:        scraper.JobKindSingle,
		Status:      scraper.JobStatusPending,
		CurrentStep: "queued",
		URLs:        []string{"https://example.com/a"},
		Request:     scraper.Request{URL: "https://example.com/a", DelaySeconds: 1},
		Owner:       "alice",
		Created:     created,
	}

	mock.ExpectExec("INSERT INTO scrape_jobs").
		WithArgs(
			"job-1",
			"single",
			"pending",
			0,
			"queued",
			[]byte(`["https://example.com/a"]`),
			[]byte(`{"url":"https://example.com/a","extract_images":false,"extract_links":false,"follow_redirects":false,"delay_seconds":1}`),
			"",
			"alice",
			created,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDuplicateMapsToErrJobExists(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO scrape_jobs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	err := store.Create(context.Background(), scraper.Job{ID: "job-1"})
	assert.ErrorIs(t, err, scraper.ErrJobExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func jobRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "kind", "status", "progress", "current_step", "urls", "request",
		"results", "error_text", "owner", "created_at", "started_at", "completed_at",
	})
}

func TestGetScansRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	created := time.Unix(1750000000, 0).UTC()
	started := created.Add(time.Second)

	mock.ExpectQuery("SELECT (.+) FROM scrape_jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(jobRows().AddRow(
			"job-1", "batch", "in_progress", 50, "scraping url 2 of 2: https://b.example.com/",
			[]byte(`["https://a.example.com/","https://b.example.com/"]`),
			[]byte(`{"url":"","extract_images":true,"extract_links":false,"follow_redirects":true,"delay_seconds":1}`),
			[]byte(`[{"url":"https://a.example.com/","content":"hello","metadata":{},"duration_ms":1200,"success":true}]`),
			"", "alice", created, &started, (*time.Time)(nil),
		))

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, scraper.JobKindBatch, job.Kind)
	assert.Equal(t, scraper.JobStatusInProgress, job.Status)
	assert.Equal(t, 50, job.Progress)
	assert.Len(t, job.URLs, 2)
	assert.True(t, job.Request.ExtractImages)
	require.Len(t, job.Results, 1)
	require.NotNil(t, job.Results[0].Content)
	assert.Equal(t, "hello", *job.Results[0].Content)
	assert.Equal(t, 1200*time.Millisecond, job.Results[0].Duration)
	require.NotNil(t, job.Started)
	assert.Nil(t, job.Completed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM scrape_jobs WHERE id").
		WithArgs("ghost").
		WillReturnRows(jobRows())

	_, err := store.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, scraper.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAppliesFilters(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	created := time.Unix(1750000000, 0).UTC()

	mock.ExpectQuery("SELECT (.+) FROM scrape_jobs WHERE 1=1 AND owner = \\$1 AND status = \\$2 ORDER BY created_at DESC, id DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs("alice", "completed", 10, 5).
		WillReturnRows(jobRows().AddRow(
			"job-9", "single", "completed", 100, "completed",
			[]byte(`["https://a.example.com/"]`),
			[]byte(`{"url":"https://a.example.com/","extract_images":false,"extract_links":false,"follow_redirects":false,"delay_seconds":1}`),
			[]byte(`[]`),
			"", "alice", created, (*time.Time)(nil), (*time.Time)(nil),
		))

	jobs, err := store.List(context.Background(), "alice", scraper.JobFilter{
		Status: scraper.JobStatusCompleted,
		Offset: 5,
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-9", jobs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTouchesMetadataOnly(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	completed := time.Unix(1750000100, 0).UTC()
	job := scraper.Job{
		ID:          "job-1",
		Status:      scraper.JobStatusCompleted,
		Progress:    100,
		CurrentStep: "completed",
		Completed:   &completed,
	}

	mock.ExpectExec("UPDATE scrape_jobs").
		WithArgs("job-1", "completed", 100, "completed", "", (*time.Time)(nil), &completed).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.Update(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingJob(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE scrape_jobs").
		WithArgs("ghost", "failed", 0, "", "boom", (*time.Time)(nil), (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.Update(context.Background(), scraper.Job{ID: "ghost", Status: scraper.JobStatusFailed, ErrorText: "boom"})
	assert.ErrorIs(t, err, scraper.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendResultConcatenatesJSON(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE scrape_jobs").
		WithArgs("job-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.AppendResult(context.Background(), "job-1", scraper.Result{
		URL:     "https://a.example.com/",
		Success: true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRemovesRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM scrape_jobs").
		WithArgs("job-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, store.Delete(context.Background(), "job-1"))

	mock.ExpectExec("DELETE FROM scrape_jobs").
		WithArgs("ghost").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, store.Delete(context.Background(), "ghost"), scraper.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS scrape_jobs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
