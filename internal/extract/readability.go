package extract

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/omnicore/content-scraper/internal/scraper"
)

// Readability applies the arc90-style heuristic: strip obvious boilerplate
// and keep the densest remaining text block. Second in priority, used when
// the structured extractor yields nothing.
type Readability struct{}

// NewReadability builds the readability strategy.
func NewReadability() *Readability {
	return &Readability{}
}

// Name implements Strategy.
func (r *Readability) Name() string {
	return "readability"
}

// Extract implements Strategy.
func (r *Readability) Extract(_ *goquery.Document, rawHTML string, pageURL *url.URL) (Candidate, error) {
	article, err := readability.FromReader(strings.NewReader(rawHTML), pageURL)
	if err != nil {
		return Candidate{}, fmt.Errorf("readability parse: %w", err)
	}

	candidate := Candidate{
		Content: article.TextContent,
		Title:   article.Title,
		Metadata: scraper.Metadata{
			Author:      article.Byline,
			Description: article.Excerpt,
			SiteName:    article.SiteName,
		},
	}
	if article.PublishedTime != nil {
		candidate.Metadata.Date = article.PublishedTime.Format(time.RFC3339)
	}
	return candidate, nil
}
