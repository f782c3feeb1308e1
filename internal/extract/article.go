package extract

import (
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/omnicore/content-scraper/internal/scraper"
)

// minParagraphWords filters navigation fragments and captions out of the
// paragraph scan.
const minParagraphWords = 5

// Article parses a document assuming a news/article shape: a headline, a
// byline, a dateline, and body paragraphs. Third in priority.
type Article struct{}

// NewArticle builds the article-schema strategy.
func NewArticle() *Article {
	return &Article{}
}

// Name implements Strategy.
func (a *Article) Name() string {
	return "article"
}

// Extract implements Strategy.
func (a *Article) Extract(doc *goquery.Document, _ string, _ *url.URL) (Candidate, error) {
	scope := doc.Find("article").First()
	if scope.Length() == 0 {
		scope = doc.Selection
	}

	paragraphs := make([]string, 0, 16)
	scope.Find("p").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if len(strings.Fields(text)) >= minParagraphWords {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		return Candidate{}, errors.New("no body paragraphs found")
	}

	candidate := Candidate{
		Content: strings.Join(paragraphs, "\n"),
		Title: firstNonEmpty(
			strings.TrimSpace(doc.Find("h1").First().Text()),
			strings.TrimSpace(doc.Find("title").First().Text()),
		),
		Metadata: scraper.Metadata{
			Author: firstNonEmpty(
				strings.TrimSpace(doc.Find(`[rel="author"]`).First().Text()),
				strings.TrimSpace(doc.Find(".byline, .author").First().Text()),
			),
			Date: firstNonEmpty(
				doc.Find("time[datetime]").First().AttrOr("datetime", ""),
				strings.TrimSpace(doc.Find("time").First().Text()),
			),
		},
	}
	return candidate, nil
}
