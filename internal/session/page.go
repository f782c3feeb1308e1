package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/omnicore/content-scraper/internal/scraper"
)

// Capture is everything recorded from one rendered page.
type Capture struct {
	HTML       string
	FinalURL   string
	Title      string
	StatusCode int
}

// Navigate loads the URL, waits for a minimal readiness signal plus the
// given settle delay, and captures the rendered document. The navigation is
// bounded by the engine's timeout.
func (c *Context) Navigate(url string, settle time.Duration) (Capture, error) {
	navCtx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(navCtx, meta.captureEvent)

	// With redirect following disabled, abort the navigation on the first
	// document redirect and surface the redirect response itself.
	redirect := newResponseMeta()
	if !c.follow {
		chromedp.ListenTarget(navCtx, func(ev any) {
			req, ok := ev.(*network.EventRequestWillBeSent)
			if !ok || req.Type != network.ResourceTypeDocument || req.RedirectResponse == nil {
				return
			}
			redirect.record(int(req.RedirectResponse.Status), req.RedirectResponse.URL)
			// Cancel from a new goroutine so the event loop is not
			// blocked by its own listener.
			go cancel()
		})
	}

	var (
		html     string
		finalURL string
		title    string
	)
	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.Location(&finalURL),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(navCtx, actions...); err != nil {
		if status, redirectURL := redirect.snapshot(); status != 0 {
			return Capture{FinalURL: redirectURL, StatusCode: status}, nil
		}
		return Capture{}, fmt.Errorf("navigate %s: %w", url, err)
	}

	status, responseURL := meta.snapshot()
	if responseURL == "" {
		responseURL = finalURL
	}
	if responseURL == "" {
		responseURL = url
	}
	if status == 0 {
		status = http.StatusOK
	}
	return Capture{
		HTML:       html,
		FinalURL:   responseURL,
		Title:      title,
		StatusCode: status,
	}, nil
}

// CollectImages returns up to max absolute image URLs from the rendered
// page. The browser resolves relative sources before we read them.
func (c *Context) CollectImages(max int) ([]string, error) {
	evalCtx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	var images []string
	script := fmt.Sprintf(
		`Array.from(document.querySelectorAll('img[src]')).map(img => img.src).slice(0, %d)`, max)
	if err := chromedp.Run(evalCtx, chromedp.Evaluate(script, &images)); err != nil {
		return nil, fmt.Errorf("collect images: %w", err)
	}
	return images, nil
}

// CollectLinks returns up to max absolute links with their anchor text.
func (c *Context) CollectLinks(max int) ([]scraper.Link, error) {
	evalCtx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	var links []scraper.Link
	script := fmt.Sprintf(
		`Array.from(document.querySelectorAll('a[href]'))
			.map(a => ({url: a.href, text: (a.textContent || '').trim()}))
			.slice(0, %d)`, max)
	if err := chromedp.Run(evalCtx, chromedp.Evaluate(script, &links)); err != nil {
		return nil, fmt.Errorf("collect links: %w", err)
	}
	return links, nil
}

// responseMeta records the status of the top-level document response as CDP
// events arrive.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.url = resp.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) record(status int, url string) {
	m.mu.Lock()
	m.status = status
	m.url = url
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.url
}
