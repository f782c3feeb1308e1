package extract

import (
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// contentSelectors are common content-container markers tried in order
// before giving up and taking the whole body.
var contentSelectors = []string{
	"article",
	"main",
	`[role="main"]`,
	".content",
	"#content",
	".post-content",
	".article-content",
	".entry-content",
}

// boilerplateSelector matches tags stripped before body-text extraction.
const boilerplateSelector = "script, style, nav, header, footer, aside, iframe, noscript"

// Fallback is the last-resort strategy: select by common content-container
// markers, or failing that return the full body text with boilerplate
// removed.
type Fallback struct{}

// NewFallback builds the generic structural fallback.
func NewFallback() *Fallback {
	return &Fallback{}
}

// Name implements Strategy.
func (f *Fallback) Name() string {
	return "fallback"
}

// Extract implements Strategy.
func (f *Fallback) Extract(doc *goquery.Document, _ string, _ *url.URL) (Candidate, error) {
	title := strings.TrimSpace(doc.Find("title").First().Text())

	for _, selector := range contentSelectors {
		if text := selectionText(doc.Find(selector)); text != "" {
			return Candidate{Content: text, Title: title}, nil
		}
	}

	body := doc.Find("body").Clone()
	if body.Length() == 0 {
		return Candidate{}, errors.New("document has no body")
	}
	body.Find(boilerplateSelector).Remove()
	text := strings.TrimSpace(body.Text())
	if text == "" {
		return Candidate{}, errors.New("body has no text content")
	}
	return Candidate{Content: text, Title: title}, nil
}
