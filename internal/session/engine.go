package session

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Config controls the shared browser engine.
type Config struct {
	NavigationTimeout time.Duration
}

// Engine owns the process-wide Chrome allocator. It is created once at
// startup, passed by reference into the components that open contexts, and
// released with an explicit Close.
type Engine struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewEngine launches the allocator with stealth-oriented Chrome flags.
func NewEngine(cfg Config) *Engine {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-background-timer-throttling", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Engine{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}
}

// Close releases the allocator and every Chrome process it owns.
func (e *Engine) Close() {
	e.allocCancel()
}

// NavigationTimeout reports the configured per-navigation budget.
func (e *Engine) NavigationTimeout() time.Duration {
	return e.cfg.NavigationTimeout
}

// ContextOptions carries the per-scrape settings a browsing context is
// opened with. UserAgent, when non-empty, pins the client identity string
// instead of drawing from the rotating pool.
type ContextOptions struct {
	UserAgent       string
	FollowRedirects bool
}

// NewContext opens an isolated browsing context with a randomized identity.
// The caller owns the context exclusively and must Close it on every exit
// path.
func (e *Engine) NewContext(ctx context.Context, opts ContextOptions) (*Context, error) {
	identity := newIdentity(opts.UserAgent)

	taskCtx, taskCancel := chromedp.NewContext(e.allocator)
	bc := &Context{
		ctx:      taskCtx,
		cancel:   taskCancel,
		identity: identity,
		timeout:  e.cfg.NavigationTimeout,
		follow:   opts.FollowRedirects,
	}

	setupCtx, cancel := context.WithTimeout(taskCtx, e.cfg.NavigationTimeout)
	defer cancel()

	if err := chromedp.Run(setupCtx, bc.setupActions()...); err != nil {
		bc.Close()
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context setup canceled: %w", ctx.Err())
		default:
		}
		return nil, fmt.Errorf("apply stealth setup: %w", err)
	}
	return bc, nil
}

// Context is one exclusively-owned stealth browsing context.
type Context struct {
	ctx      context.Context
	cancel   context.CancelFunc
	identity Identity
	timeout  time.Duration
	follow   bool
}

// Identity reports the fingerprint this context presents.
func (c *Context) Identity() Identity {
	return c.identity
}

// Close tears the context down. Safe to call more than once.
func (c *Context) Close() {
	c.cancel()
}

// setupActions applies the identity and injects the stealth init script.
// Everything here runs before the first navigation.
func (c *Context) setupActions() []chromedp.Action {
	return []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := network.Enable().Do(ctx); err != nil {
				return fmt.Errorf("enable network domain: %w", err)
			}
			if err := network.SetExtraHTTPHeaders(network.Headers(interactiveHeaders)).Do(ctx); err != nil {
				return fmt.Errorf("set headers: %w", err)
			}
			if err := emulation.SetUserAgentOverride(c.identity.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
			if err := emulation.SetDeviceMetricsOverride(
				c.identity.Viewport.Width, c.identity.Viewport.Height, 1.0, false,
			).Do(ctx); err != nil {
				return fmt.Errorf("set viewport: %w", err)
			}
			if err := emulation.SetTimezoneOverride(c.identity.Timezone).Do(ctx); err != nil {
				return fmt.Errorf("set timezone: %w", err)
			}
			if err := emulation.SetLocaleOverride().WithLocale(c.identity.Locale).Do(ctx); err != nil {
				return fmt.Errorf("set locale: %w", err)
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx); err != nil {
				return fmt.Errorf("inject stealth script: %w", err)
			}
			return nil
		}),
	}
}
