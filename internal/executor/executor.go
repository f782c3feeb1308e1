package executor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/omnicore/content-scraper/internal/extract"
	"github.com/omnicore/content-scraper/internal/metrics"
	"github.com/omnicore/content-scraper/internal/scraper"
	"github.com/omnicore/content-scraper/internal/session"
)

// BrowsingContext is one isolated browser tab bound to a randomized identity.
type BrowsingContext interface {
	Navigate(url string, settle time.Duration) (session.Capture, error)
	CollectImages(max int) ([]string, error)
	CollectLinks(max int) ([]scraper.Link, error)
	Close()
}

// BrowserEngine creates browsing contexts against a shared browser process.
type BrowserEngine interface {
	NewContext(ctx context.Context, opts session.ContextOptions) (BrowsingContext, error)
}

// ChromeEngine adapts a session.Engine to the BrowserEngine interface.
type ChromeEngine struct {
	engine *session.Engine
}

// NewChromeEngine wraps an engine for use by the executor.
func NewChromeEngine(engine *session.Engine) *ChromeEngine {
	return &ChromeEngine{engine: engine}
}

// NewContext opens a fresh tab with a randomized identity.
func (e *ChromeEngine) NewContext(ctx context.Context, opts session.ContextOptions) (BrowsingContext, error) {
	return e.engine.NewContext(ctx, opts)
}

// Config tunes per-URL execution limits.
type Config struct {
	// MaxImages caps the number of image URLs collected per page.
	MaxImages int
	// MaxLinks caps the number of hyperlinks collected per page.
	MaxLinks int
	// MinSettle and MaxSettle bound the post-navigation pause that lets
	// scripts finish and keeps request timing irregular.
	MinSettle time.Duration
	MaxSettle time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxImages <= 0 {
		c.MaxImages = 100
	}
	if c.MaxLinks <= 0 {
		c.MaxLinks = 200
	}
	if c.MinSettle <= 0 {
		c.MinSettle = time.Second
	}
	if c.MaxSettle <= 0 {
		c.MaxSettle = 2 * time.Second
	}
	if c.MaxSettle < c.MinSettle {
		c.MaxSettle = c.MinSettle
	}
}

// Executor validates, renders, and extracts a single URL.
type Executor struct {
	engine    BrowserEngine
	validator scraper.Validator
	chain     *extract.Chain
	cfg       Config
	logger    *zap.Logger

	// settle is swappable in tests.
	settle func() time.Duration
}

// New builds an Executor over the given engine, validator, and chain.
func New(engine BrowserEngine, validator scraper.Validator, chain *extract.Chain, cfg Config, logger *zap.Logger) *Executor {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		engine:    engine,
		validator: validator,
		chain:     chain,
		cfg:       cfg,
		logger:    logger,
	}
	e.settle = func() time.Duration {
		spread := cfg.MaxSettle - cfg.MinSettle
		if spread <= 0 {
			return cfg.MinSettle
		}
		return cfg.MinSettle + rand.N(spread)
	}
	return e
}

// ScrapeOne processes one URL end to end. It never returns an error: every
// failure mode is folded into the result so batch callers keep positional
// results for every input URL.
func (e *Executor) ScrapeOne(ctx context.Context, req scraper.Request) scraper.Result {
	start := time.Now()
	metrics.IncActiveScrapes()
	defer metrics.DecActiveScrapes()

	if err := e.validator.Validate(req.URL); err != nil {
		metrics.ObserveValidatorRejection(req.URL)
		e.logger.Warn("url rejected",
			zap.String("url", req.URL),
			zap.Error(err))
		return e.failed(req.URL, start, fmt.Errorf("url validation: %w", err))
	}

	bc, err := e.engine.NewContext(ctx, session.ContextOptions{
		UserAgent:       req.UserAgent,
		FollowRedirects: req.FollowRedirects,
	})
	if err != nil {
		return e.failed(req.URL, start, fmt.Errorf("browser session: %w", err))
	}
	defer bc.Close()

	capture, err := bc.Navigate(req.URL, e.settle())
	if err != nil {
		return e.failed(req.URL, start, fmt.Errorf("navigation: %w", err))
	}

	res := scraper.Result{
		URL:        req.URL,
		FinalURL:   capture.FinalURL,
		StatusCode: capture.StatusCode,
	}

	if capture.StatusCode >= 400 {
		res.Error = fmt.Sprintf("http status %d", capture.StatusCode)
		res.Duration = time.Since(start)
		metrics.ObserveScrape(req.URL, false, res.Duration)
		e.logger.Info("scrape refused by origin",
			zap.String("url", req.URL),
			zap.Int("status", capture.StatusCode))
		return res
	}

	outcome := e.chain.Extract(capture.HTML, capture.FinalURL)
	res.Content = outcome.Content
	res.Metadata = outcome.Metadata
	res.ExtractionMethod = outcome.Method
	res.Attempts = outcome.Attempts
	res.Title = outcome.Title
	if res.Title == "" {
		res.Title = capture.Title
	}
	metrics.ObserveExtraction(outcome.Method)

	if req.ExtractImages {
		images, err := bc.CollectImages(e.cfg.MaxImages)
		if err != nil {
			e.logger.Warn("image collection failed",
				zap.String("url", req.URL),
				zap.Error(err))
		} else {
			res.Images = images
		}
	}
	if req.ExtractLinks {
		links, err := bc.CollectLinks(e.cfg.MaxLinks)
		if err != nil {
			e.logger.Warn("link collection failed",
				zap.String("url", req.URL),
				zap.Error(err))
		} else {
			res.Links = links
		}
	}

	// Navigation succeeded, so the scrape is a success even when no
	// strategy produced usable content. The attempt log tells the story.
	res.Success = true
	res.Duration = time.Since(start)
	metrics.ObserveScrape(req.URL, true, res.Duration)
	e.logger.Debug("scrape complete",
		zap.String("url", req.URL),
		zap.String("method", res.ExtractionMethod),
		zap.Duration("duration", res.Duration))
	return res
}

func (e *Executor) failed(url string, start time.Time, err error) scraper.Result {
	duration := time.Since(start)
	metrics.ObserveScrape(url, false, duration)
	return scraper.Result{
		URL:      url,
		Duration: duration,
		Error:    err.Error(),
	}
}
