package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/omnicore/content-scraper/internal/scraper"
)

// MethodFailed marks an outcome where every strategy was exhausted.
const MethodFailed = "failed"

// defaultMinContentLength is the smallest normalized extraction accepted as
// success. Anything shorter is a near-empty page shell, not content.
const defaultMinContentLength = 50

// Candidate is what a single strategy yields before the chain judges it.
type Candidate struct {
	Content  string
	Title    string
	Metadata scraper.Metadata
}

// Strategy extracts content from a parsed document. rawHTML carries the
// original markup for strategies that re-parse it themselves.
type Strategy interface {
	Name() string
	Extract(doc *goquery.Document, rawHTML string, pageURL *url.URL) (Candidate, error)
}

// Outcome is the chain's final verdict for one page.
type Outcome struct {
	Content  *string
	Title    string
	Metadata scraper.Metadata
	Method   string
	Attempts []scraper.ExtractionAttempt
}

// Chain runs strategies in priority order.
type Chain struct {
	strategies []Strategy
	minLength  int
	logger     *zap.Logger
}

// Option customizes a Chain.
type Option func(*Chain)

// WithMinContentLength overrides the acceptance threshold.
func WithMinContentLength(n int) Option {
	return func(c *Chain) {
		if n > 0 {
			c.minLength = n
		}
	}
}

// WithStrategies replaces the default strategy order.
func WithStrategies(strategies ...Strategy) Option {
	return func(c *Chain) {
		c.strategies = strategies
	}
}

// NewChain builds the default chain: structured document extraction, then
// readability, then the article-schema parser, then the generic fallback.
func NewChain(logger *zap.Logger, opts ...Option) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Chain{
		strategies: []Strategy{
			NewStructured(),
			NewReadability(),
			NewArticle(),
			NewFallback(),
		},
		minLength: defaultMinContentLength,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extract tries each strategy until one yields content at or above the
// minimum length. Every attempt, including failures, is recorded for
// diagnostics. Exhausting all strategies is not an error: the outcome
// carries nil content and the failure marker.
func (c *Chain) Extract(rawHTML string, canonicalURL string) Outcome {
	pageURL, err := url.Parse(canonicalURL)
	if err != nil {
		pageURL = &url.URL{}
	}

	doc, docErr := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))

	outcome := Outcome{Method: MethodFailed}
	for _, strategy := range c.strategies {
		attempt := scraper.ExtractionAttempt{Method: strategy.Name()}

		if docErr != nil {
			attempt.Error = fmt.Sprintf("parse document: %v", docErr)
			outcome.Attempts = append(outcome.Attempts, attempt)
			continue
		}

		candidate, err := strategy.Extract(doc, rawHTML, pageURL)
		if err != nil {
			attempt.Error = err.Error()
			outcome.Attempts = append(outcome.Attempts, attempt)
			c.logger.Debug("extraction strategy failed",
				zap.String("method", strategy.Name()),
				zap.String("url", canonicalURL),
				zap.Error(err),
			)
			continue
		}

		content := normalizeText(candidate.Content)
		attempt.ContentLength = len(content)
		if len(content) < c.minLength {
			attempt.Error = "content too short"
			outcome.Attempts = append(outcome.Attempts, attempt)
			continue
		}

		attempt.Success = true
		outcome.Attempts = append(outcome.Attempts, attempt)
		outcome.Content = &content
		outcome.Title = candidate.Title
		outcome.Metadata = candidate.Metadata
		outcome.Method = strategy.Name()
		return outcome
	}
	return outcome
}
