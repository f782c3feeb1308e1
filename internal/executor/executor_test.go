package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omnicore/content-scraper/internal/extract"
	"github.com/omnicore/content-scraper/internal/scraper"
	"github.com/omnicore/content-scraper/internal/session"
)

const renderedPage = `<!DOCTYPE html>
<html>
<head><title>Release Notes</title></head>
<body>
<article>
<h1>Release Notes</h1>
<p>The storage layer gained a write-ahead log so crash recovery replays committed batches instead of discarding them.</p>
<p>Query planning now folds constant predicates before index selection, which removes a full scan on three common filters.</p>
<p>Operators can drain a node with a single command and the scheduler rebalances partitions within a minute of the drain.</p>
</article>
</body>
</html>`

type stubContext struct {
	capture    session.Capture
	navErr     error
	images     []string
	links      []scraper.Link
	collectErr error

	navigated string
	settle    time.Duration
	closed    bool
	imagesMax int
	linksMax  int
}

func (s *stubContext) Navigate(url string, settle time.Duration) (session.Capture, error) {
	s.navigated = url
	s.settle = settle
	return s.capture, s.navErr
}

func (s *stubContext) CollectImages(max int) ([]string, error) {
	s.imagesMax = max
	return s.images, s.collectErr
}

func (s *stubContext) CollectLinks(max int) ([]scraper.Link, error) {
	s.linksMax = max
	return s.links, s.collectErr
}

func (s *stubContext) Close() { s.closed = true }

type stubEngine struct {
	ctx  *stubContext
	err  error
	opts session.ContextOptions
}

func (s *stubEngine) NewContext(_ context.Context, opts session.ContextOptions) (BrowsingContext, error) {
	s.opts = opts
	if s.err != nil {
		return nil, s.err
	}
	return s.ctx, nil
}

type allowAllValidator struct{}

func (allowAllValidator) Validate(string) error { return nil }

type denyAllValidator struct{ err error }

func (v denyAllValidator) Validate(string) error { return v.err }

func newTestExecutor(engine BrowserEngine, v scraper.Validator) *Executor {
	e := New(engine, v, extract.NewChain(zap.NewNop()), Config{}, zap.NewNop())
	e.settle = func() time.Duration { return 0 }
	return e
}

func TestScrapeOneSuccess(t *testing.T) {
	t.Parallel()

	stub := &stubContext{
		capture: session.Capture{
			HTML:       renderedPage,
			FinalURL:   "https://docs.example.com/releases/latest",
			StatusCode: 200,
			Title:      "Release Notes",
		},
		images: []string{"https://docs.example.com/diagram.png"},
		links:  []scraper.Link{{URL: "https://docs.example.com/", Text: "Home"}},
	}
	engine := &stubEngine{ctx: stub}
	exec := newTestExecutor(engine, allowAllValidator{})

	res := exec.ScrapeOne(context.Background(), scraper.Request{
		URL:           "https://docs.example.com/releases",
		ExtractImages: true,
		ExtractLinks:  true,
	})

	assert.True(t, res.Success)
	assert.Empty(t, res.Error)
	assert.Equal(t, "https://docs.example.com/releases", res.URL)
	assert.Equal(t, "https://docs.example.com/releases/latest", res.FinalURL)
	assert.Equal(t, 200, res.StatusCode)
	require.NotNil(t, res.Content)
	assert.Contains(t, *res.Content, "write-ahead log")
	assert.NotEmpty(t, res.ExtractionMethod)
	assert.NotEqual(t, extract.MethodFailed, res.ExtractionMethod)
	assert.Equal(t, []string{"https://docs.example.com/diagram.png"}, res.Images)
	require.Len(t, res.Links, 1)
	assert.Equal(t, "Home", res.Links[0].Text)
	assert.Equal(t, 100, stub.imagesMax)
	assert.Equal(t, 200, stub.linksMax)
	assert.True(t, stub.closed)
}

func TestScrapeOneSkipsCollectionUnlessRequested(t *testing.T) {
	t.Parallel()

	stub := &stubContext{
		capture: session.Capture{HTML: renderedPage, FinalURL: "https://a.example.com/x", StatusCode: 200},
		images:  []string{"https://a.example.com/pic.png"},
	}
	exec := newTestExecutor(&stubEngine{ctx: stub}, allowAllValidator{})

	res := exec.ScrapeOne(context.Background(), scraper.Request{URL: "https://a.example.com/x"})

	assert.True(t, res.Success)
	assert.Nil(t, res.Images)
	assert.Nil(t, res.Links)
	assert.Zero(t, stub.imagesMax)
}

func TestScrapeOneValidationFailureSkipsBrowser(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{ctx: &stubContext{}}
	exec := newTestExecutor(engine, denyAllValidator{err: errors.New("resolves to a private address")})

	res := exec.ScrapeOne(context.Background(), scraper.Request{URL: "http://internal.example.com/"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "url validation")
	assert.Contains(t, res.Error, "private address")
	assert.Empty(t, engine.ctx.navigated, "browser must not be touched for rejected URLs")
}

func TestScrapeOneNavigationFailure(t *testing.T) {
	t.Parallel()

	stub := &stubContext{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	exec := newTestExecutor(&stubEngine{ctx: stub}, allowAllValidator{})

	res := exec.ScrapeOne(context.Background(), scraper.Request{URL: "https://gone.example.com/"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "navigation")
	assert.Nil(t, res.Content)
	assert.True(t, stub.closed, "context must be closed even on failure")
}

func TestScrapeOneHTTPErrorStatusSkipsExtraction(t *testing.T) {
	t.Parallel()

	stub := &stubContext{
		capture: session.Capture{
			HTML:       "<html><body>Access Denied</body></html>",
			FinalURL:   "https://blocked.example.com/page",
			StatusCode: 403,
		},
	}
	exec := newTestExecutor(&stubEngine{ctx: stub}, allowAllValidator{})

	res := exec.ScrapeOne(context.Background(), scraper.Request{URL: "https://blocked.example.com/page", ExtractImages: true})

	assert.False(t, res.Success)
	assert.Equal(t, 403, res.StatusCode)
	assert.Contains(t, res.Error, "403")
	assert.Empty(t, res.ExtractionMethod)
	assert.Empty(t, res.Attempts)
	assert.Zero(t, stub.imagesMax, "no collection after an error status")
	assert.True(t, stub.closed)
}

func TestScrapeOneEngineFailure(t *testing.T) {
	t.Parallel()

	exec := newTestExecutor(&stubEngine{err: errors.New("browser exited")}, allowAllValidator{})

	res := exec.ScrapeOne(context.Background(), scraper.Request{URL: "https://a.example.com/"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "browser session")
}

func TestScrapeOnePassesContextOptions(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{ctx: &stubContext{capture: session.Capture{HTML: renderedPage, StatusCode: 200}}}
	exec := newTestExecutor(engine, allowAllValidator{})

	exec.ScrapeOne(context.Background(), scraper.Request{
		URL:             "https://a.example.com/",
		UserAgent:       "curl/8.5.0",
		FollowRedirects: true,
	})
	assert.Equal(t, "curl/8.5.0", engine.opts.UserAgent)
	assert.True(t, engine.opts.FollowRedirects)

	exec.ScrapeOne(context.Background(), scraper.Request{URL: "https://a.example.com/"})
	assert.False(t, engine.opts.FollowRedirects)
}

func TestScrapeOneSuccessWhenExtractionExhausted(t *testing.T) {
	t.Parallel()

	stub := &stubContext{
		capture: session.Capture{
			HTML:       "<html><head><title>Thin</title></head><body><p>hi</p></body></html>",
			FinalURL:   "https://thin.example.com/",
			StatusCode: 200,
			Title:      "Thin",
		},
	}
	exec := newTestExecutor(&stubEngine{ctx: stub}, allowAllValidator{})

	res := exec.ScrapeOne(context.Background(), scraper.Request{URL: "https://thin.example.com/"})

	assert.True(t, res.Success, "navigation success outweighs extraction failure")
	assert.Nil(t, res.Content)
	assert.Equal(t, extract.MethodFailed, res.ExtractionMethod)
	assert.Equal(t, "Thin", res.Title)
	assert.NotEmpty(t, res.Attempts)
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	cfg.applyDefaults()
	assert.Equal(t, 100, cfg.MaxImages)
	assert.Equal(t, 200, cfg.MaxLinks)
	assert.Equal(t, time.Second, cfg.MinSettle)
	assert.Equal(t, 2*time.Second, cfg.MaxSettle)

	cfg = Config{MinSettle: 5 * time.Second, MaxSettle: time.Second}
	cfg.applyDefaults()
	assert.Equal(t, cfg.MinSettle, cfg.MaxSettle)
}
