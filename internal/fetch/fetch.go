// Package fetch retrieves pages for the scrapers: a resty-based Fetcher with a
// byte cap and a single back-off on throttling, a robots.txt gate, a per-host
// politeness pacer and URL helpers.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"harvest/internal/metrics"
)

// DefaultUserAgent identifies the scrapers to site operators.
const DefaultUserAgent = "UTD-CatalogBot/1.0 (+mailto:team@example.com)"

// Defaults applied by NewFetcher for zero Options fields.
const (
	DefaultTimeout   = 20 * time.Second
	DefaultMaxBytes  = 10 << 20
	DefaultRetryWait = 2 * time.Second
	errorBodyLimit   = 4 << 10
)

var (
	// ErrTooLarge is returned when a body exceeds Options.MaxBytes.
	ErrTooLarge = errors.New("response exceeds byte cap")
	// ErrDisallowed is returned by callers when robots.txt denies a URL.
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// StatusError is a non-2xx response. Body holds up to 4 KiB for debugging.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.Code)
	}
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// Page is a fetched document.
type Page struct {
	URL         string
	Status      int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
}

// Options configures a Fetcher.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	MaxBytes  int64
	// RetryWait is slept once after a 429/403 that carries no Retry-After.
	RetryWait time.Duration
	// Job labels HTTP metrics.
	Job string
	// Client overrides the underlying http.Client (tests use httptest clients).
	Client *http.Client
}

// Fetcher performs GET requests with a fixed user agent, timeout and byte cap.
// It is safe for concurrent use.
type Fetcher struct {
	client    *resty.Client
	ua        string
	maxBytes  int64
	retryWait time.Duration
	job       string

	// sleep is a seam for tests; it returns false when ctx ended first.
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewFetcher builds a Fetcher, filling defaults for zero fields.
func NewFetcher(opts Options) *Fetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = DefaultRetryWait
	}
	if opts.Job == "" {
		opts.Job = "fetch"
	}

	var c *resty.Client
	if opts.Client != nil {
		c = resty.NewWithClient(opts.Client)
	} else {
		c = resty.New()
	}
	c.SetTimeout(opts.Timeout)
	c.SetHeader("User-Agent", opts.UserAgent)

	return &Fetcher{
		client:    c,
		ua:        opts.UserAgent,
		maxBytes:  opts.MaxBytes,
		retryWait: opts.RetryWait,
		job:       opts.Job,
		sleep:     sleepContext,
	}
}

// UserAgent returns the agent string sent with every request.
func (f *Fetcher) UserAgent() string { return f.ua }

// Resty exposes the underlying client for JSON APIs that share the same
// user agent and timeout.
func (f *Fetcher) Resty() *resty.Client { return f.client }

// Get fetches rawURL. On 429 or 403 it sleeps once (Retry-After when given)
// and tries one more time. Every attempt is recorded in metrics.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Page, error) {
	page, retryAfter, err := f.attempt(ctx, rawURL)
	var se *StatusError
	if err == nil || !errors.As(err, &se) || !throttled(se.Code) {
		return page, err
	}

	wait := retryAfter
	if wait <= 0 {
		wait = f.retryWait
	}
	if !f.sleep(ctx, wait) {
		return nil, fmt.Errorf("get %s: %w", rawURL, ctx.Err())
	}
	page, _, err = f.attempt(ctx, rawURL)
	return page, err
}

func throttled(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusForbidden
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string) (*Page, time.Duration, error) {
	start := time.Now()
	reqDur, respDur := time.Duration(-1), time.Duration(-1)
	size := int64(-1)
	status := 0

	var err error
	defer func() {
		metrics.RecordHTTP(f.job, status, err, reqDur, respDur, size)
	}()

	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		err = fmt.Errorf("get %s: %w", rawURL, err)
		return nil, 0, err
	}
	reqDur = time.Since(start)

	body := resp.RawBody()
	defer body.Close()
	status = resp.StatusCode()

	if status < 200 || status >= 300 {
		b, _ := io.ReadAll(io.LimitReader(body, errorBodyLimit))
		size = int64(len(b))
		respDur = time.Since(start)
		err = &StatusError{URL: rawURL, Code: status, Body: strings.TrimSpace(string(b))}
		return nil, parseRetryAfter(resp.Header()), err
	}

	b, rerr := io.ReadAll(io.LimitReader(body, f.maxBytes+1))
	size = int64(len(b))
	respDur = time.Since(start)
	if rerr != nil {
		err = fmt.Errorf("read body %s: %w", rawURL, rerr)
		return nil, 0, err
	}
	if int64(len(b)) > f.maxBytes {
		err = fmt.Errorf("%s: %w (%d bytes)", rawURL, ErrTooLarge, f.maxBytes)
		return nil, 0, err
	}

	return &Page{
		URL:         rawURL,
		Status:      status,
		ContentType: resp.Header().Get("Content-Type"),
		Body:        b,
		FetchedAt:   time.Now().UTC(),
	}, 0, nil
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func parseRetryAfter(h http.Header) time.Duration {
	ra := strings.TrimSpace(h.Get("Retry-After"))
	if ra == "" {
		return 0
	}

	// delta-seconds
	if secs, err := strconv.Atoi(ra); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	// HTTP-date
	if t, err := http.ParseTime(ra); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}
