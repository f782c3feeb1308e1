package extract

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/omnicore/content-scraper/internal/scraper"
)

// Structured is the highest-priority strategy. It only engages when the page
// carries semantic hints (an article element, an itemprop body, Open Graph
// article tags, or a schema.org Article in JSON-LD) and then returns the
// marked-up main content along with document metadata.
type Structured struct{}

// NewStructured builds the structured full-document extractor.
func NewStructured() *Structured {
	return &Structured{}
}

// Name implements Strategy.
func (s *Structured) Name() string {
	return "structured"
}

// Extract implements Strategy.
func (s *Structured) Extract(doc *goquery.Document, _ string, _ *url.URL) (Candidate, error) {
	meta := collectMetaTags(doc)
	ld := parseJSONLD(doc)

	body := firstNonEmpty(
		selectionText(doc.Find(`[itemprop="articleBody"]`)),
		selectionText(doc.Find("article")),
	)
	hasHints := body != "" || meta["og:type"] == "article" || ld != nil
	if !hasHints {
		return Candidate{}, errors.New("no semantic document markers")
	}
	if body == "" {
		// Semantic metadata without a marked body: take main content.
		body = selectionText(doc.Find("main"))
	}
	if body == "" {
		return Candidate{}, errors.New("semantic markers present but no content body")
	}

	candidate := Candidate{
		Content: body,
		Title: firstNonEmpty(
			meta["og:title"],
			ld.headline(),
			strings.TrimSpace(doc.Find("title").First().Text()),
		),
		Metadata: scraper.Metadata{
			Author:      firstNonEmpty(meta["author"], ld.author()),
			Date:        firstNonEmpty(meta["article:published_time"], ld.datePublished()),
			Description: firstNonEmpty(meta["og:description"], meta["description"]),
			SiteName:    firstNonEmpty(meta["og:site_name"], ld.publisher()),
		},
	}
	return candidate, nil
}

// collectMetaTags gathers name/property meta tags into one lookup map.
func collectMetaTags(doc *goquery.Document) map[string]string {
	meta := make(map[string]string)
	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		key, ok := sel.Attr("property")
		if !ok {
			key, ok = sel.Attr("name")
		}
		if !ok {
			return
		}
		content, ok := sel.Attr("content")
		if !ok {
			return
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if _, seen := meta[key]; !seen {
			meta[key] = strings.TrimSpace(content)
		}
	})
	return meta
}

// jsonLD is a loosely-shaped schema.org document. Field accessors are nil
// safe so callers can chain them without checks.
type jsonLD map[string]any

var articleLDTypes = map[string]struct{}{
	"Article":     {},
	"NewsArticle": {},
	"BlogPosting": {},
}

// parseJSONLD returns the first schema.org Article-like object, or nil.
func parseJSONLD(doc *goquery.Document) jsonLD {
	var found jsonLD
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(sel.Text()), &payload); err != nil {
			return true
		}
		candidates := []any{payload}
		if list, ok := payload.([]any); ok {
			candidates = list
		}
		for _, entry := range candidates {
			obj, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			typeName, _ := obj["@type"].(string)
			if _, isArticle := articleLDTypes[typeName]; isArticle {
				found = jsonLD(obj)
				return false
			}
		}
		return true
	})
	return found
}

func (ld jsonLD) headline() string {
	if ld == nil {
		return ""
	}
	s, _ := ld["headline"].(string)
	return s
}

func (ld jsonLD) datePublished() string {
	if ld == nil {
		return ""
	}
	s, _ := ld["datePublished"].(string)
	return s
}

func (ld jsonLD) author() string {
	if ld == nil {
		return ""
	}
	switch author := ld["author"].(type) {
	case string:
		return author
	case map[string]any:
		name, _ := author["name"].(string)
		return name
	case []any:
		names := make([]string, 0, len(author))
		for _, entry := range author {
			if obj, ok := entry.(map[string]any); ok {
				if name, ok := obj["name"].(string); ok && name != "" {
					names = append(names, name)
				}
			}
		}
		return strings.Join(names, ", ")
	default:
		return ""
	}
}

func (ld jsonLD) publisher() string {
	if ld == nil {
		return ""
	}
	switch pub := ld["publisher"].(type) {
	case string:
		return pub
	case map[string]any:
		name, _ := pub["name"].(string)
		return name
	default:
		return ""
	}
}

func selectionText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	parts := make([]string, 0, sel.Length())
	sel.Each(func(_ int, node *goquery.Selection) {
		cleaned := node.Clone()
		cleaned.Find("script, style, noscript").Remove()
		if text := strings.TrimSpace(cleaned.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
