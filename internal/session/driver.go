package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Driver is the browser the interactive scrapers steer. Selectors are CSS.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	// Count returns how many elements match selector (0 when none).
	Count(ctx context.Context, selector string) (int, error)
	// Text returns the rendered text of the first match, "" when none.
	Text(ctx context.Context, selector string) (string, error)
	// Submit replaces the value of the input at selector and presses Enter.
	Submit(ctx context.Context, selector, query string) error
	Click(ctx context.Context, selector string) error
	// Eval runs a JavaScript expression and decodes its result into out.
	Eval(ctx context.Context, expr string, out any) error
	// HTML returns the outer HTML of the whole document.
	HTML(ctx context.Context) (string, error)
	Close() error
}

// ChromeOptions configures NewChrome.
type ChromeOptions struct {
	// ProfileDir keeps cookies between runs so a login survives restarts.
	ProfileDir string
	UserAgent  string
	Headless   bool
	Width      int
	Height     int
}

// Chrome drives a local Chrome via the DevTools protocol.
type Chrome struct {
	ctx    context.Context
	cancel []context.CancelFunc
}

var _ Driver = (*Chrome)(nil)

// NewChrome starts a browser. Call Close to shut it down.
func NewChrome(parent context.Context, opts ChromeOptions) (*Chrome, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1280, 900
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ProfileDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.ProfileDir))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, allocOpts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx)

	// Start the browser now so a missing binary fails here, not mid-run.
	if err := chromedp.Run(ctx); err != nil {
		cancelCtx()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return &Chrome{ctx: ctx, cancel: []context.CancelFunc{cancelCtx, cancelAlloc}}, nil
}

// run executes actions on the browser tab, aborting when ctx ends.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	tctx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(tctx, actions...)
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, chromedp.Navigate(url))
}

func (c *Chrome) Reload(ctx context.Context) error {
	return c.run(ctx, chromedp.Reload())
}

func (c *Chrome) Count(ctx context.Context, selector string) (int, error) {
	var n int
	err := c.run(ctx, chromedp.Evaluate(
		fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector)), &n))
	return n, err
}

func (c *Chrome) Text(ctx context.Context, selector string) (string, error) {
	var s string
	err := c.run(ctx, chromedp.Evaluate(fmt.Sprintf(
		`(() => { const el = document.querySelector(%s); return el ? el.innerText : ""; })()`,
		jsString(selector)), &s))
	return s, err
}

func (c *Chrome) Submit(ctx context.Context, selector, query string) error {
	return c.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, query+kb.Enter, chromedp.ByQuery),
	)
}

func (c *Chrome) Click(ctx context.Context, selector string) error {
	return c.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (c *Chrome) Eval(ctx context.Context, expr string, out any) error {
	return c.run(ctx, chromedp.Evaluate(expr, out))
}

func (c *Chrome) HTML(ctx context.Context) (string, error) {
	var s string
	err := c.run(ctx, chromedp.OuterHTML("html", &s, chromedp.ByQuery))
	return s, err
}

func (c *Chrome) Close() error {
	for _, cancel := range c.cancel {
		cancel()
	}
	return nil
}

// WaitFor polls Count until selector matches or timeout elapses.
func WaitFor(ctx context.Context, d Driver, selector string, timeout, every time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		n, err := d.Count(ctx, selector)
		if err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		if !sleepContext(ctx, every) {
			return false, ctx.Err()
		}
	}
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
