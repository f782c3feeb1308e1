package executor

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/omnicore/content-scraper/internal/scraper"
	"github.com/omnicore/content-scraper/internal/session"
)

// HTTPEngine is a plain-HTTP BrowserEngine built on Colly. It renders no
// JavaScript, so pages that assemble content client-side come back thin,
// but it runs without a Chrome binary and suits static documents.
type HTTPEngine struct {
	baseCollector *colly.Collector
	timeout       time.Duration
	logger        *zap.Logger
}

// HTTPEngineConfig tunes the plain-HTTP engine.
type HTTPEngineConfig struct {
	RequestTimeout  time.Duration
	MaxConnsPerHost int
}

// NewHTTPEngine constructs a Colly-backed engine.
func NewHTTPEngine(cfg HTTPEngineConfig, logger *zap.Logger) *HTTPEngine {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base := colly.NewCollector()
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.RequestTimeout)
	return &HTTPEngine{
		baseCollector: base,
		timeout:       cfg.RequestTimeout,
		logger:        logger,
	}
}

// NewContext clones the collector for one fetch. The identity pool is still
// consulted so user agents rotate the same way they do in browser sessions.
func (e *HTTPEngine) NewContext(ctx context.Context, opts session.ContextOptions) (BrowsingContext, error) {
	collector := e.baseCollector.Clone()
	collector.UserAgent = session.PickUserAgent(opts.UserAgent)
	if !opts.FollowRedirects {
		// The client hands back the redirect response itself, which
		// colly then surfaces through OnError with its 3xx status.
		collector.SetRedirectHandler(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		})
	}
	return &httpContext{
		ctx:       ctx,
		collector: collector,
		logger:    e.logger,
	}, nil
}

type httpContext struct {
	ctx       context.Context
	collector *colly.Collector
	logger    *zap.Logger

	mu      sync.Mutex
	capture session.Capture
	doc     *goquery.Document
}

// Navigate fetches the URL once. The settle pause is honored so batch
// pacing behaves identically across engines.
func (c *httpContext) Navigate(rawURL string, settle time.Duration) (session.Capture, error) {
	collector := c.collector.Clone()
	resultCh := make(chan session.Capture, 1)
	errCh := make(chan error, 1)
	var once sync.Once

	collector.OnResponse(func(r *colly.Response) {
		once.Do(func() {
			resultCh <- session.Capture{
				HTML:       string(r.Body),
				FinalURL:   r.Request.URL.String(),
				StatusCode: r.StatusCode,
			}
		})
	})
	collector.OnError(func(r *colly.Response, err error) {
		once.Do(func() {
			// Error and unfollowed redirect statuses are valid captures,
			// not transport failures. Keep the status so callers can
			// report it.
			if r != nil && r.StatusCode >= 300 {
				finalURL := rawURL
				if r.Request != nil && r.Request.URL != nil {
					finalURL = r.Request.URL.String()
				}
				resultCh <- session.Capture{
					HTML:       string(r.Body),
					FinalURL:   finalURL,
					StatusCode: r.StatusCode,
				}
				return
			}
			if err == nil {
				err = errors.New("unknown fetch error")
			}
			errCh <- err
		})
	})

	if err := collector.Visit(rawURL); err != nil {
		return session.Capture{}, err
	}
	collector.Wait()

	select {
	case capture := <-resultCh:
		if err := c.ctx.Err(); err != nil {
			return session.Capture{}, err
		}
		if settle > 0 {
			select {
			case <-time.After(settle):
			case <-c.ctx.Done():
				return session.Capture{}, c.ctx.Err()
			}
		}
		c.finishCapture(capture)
		return capture, nil
	case err := <-errCh:
		return session.Capture{}, err
	default:
		return session.Capture{}, errors.New("fetch produced no response")
	}
}

func (c *httpContext) finishCapture(capture session.Capture) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(capture.HTML))
	if err != nil {
		c.logger.Warn("parse fetched document", zap.Error(err))
		doc = nil
	}
	if doc != nil {
		capture.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	c.mu.Lock()
	c.capture = capture
	c.doc = doc
	c.mu.Unlock()
}

// CollectImages gathers absolute image URLs from the fetched document.
func (c *httpContext) CollectImages(max int) ([]string, error) {
	doc, base, err := c.document()
	if err != nil {
		return nil, err
	}
	var images []string
	doc.Find("img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, ok := s.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			return true
		}
		if abs := resolveRef(base, src); abs != "" {
			images = append(images, abs)
		}
		return len(images) < max
	})
	return images, nil
}

// CollectLinks gathers absolute hyperlinks with their anchor text.
func (c *httpContext) CollectLinks(max int) ([]scraper.Link, error) {
	doc, base, err := c.document()
	if err != nil {
		return nil, err
	}
	var links []scraper.Link
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}
		abs := resolveRef(base, href)
		if abs == "" {
			return true
		}
		links = append(links, scraper.Link{
			URL:  abs,
			Text: strings.TrimSpace(s.Text()),
		})
		return len(links) < max
	})
	return links, nil
}

// Close releases nothing for the plain-HTTP engine but completes the
// BrowsingContext contract.
func (c *httpContext) Close() {}

func (c *httpContext) document() (*goquery.Document, *url.URL, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc == nil {
		return nil, nil, errors.New("no document captured")
	}
	base, err := url.Parse(c.capture.FinalURL)
	if err != nil {
		base = nil
	}
	return c.doc, base, nil
}

func resolveRef(base *url.URL, ref string) string {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	return parsed.String()
}
