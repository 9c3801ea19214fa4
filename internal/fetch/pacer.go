package fetch

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// Pacer enforces a fixed politeness delay before each request to a host that
// was already contacted during the run. It is a plain sleep, not a shared
// rate limiter.
type Pacer struct {
	delay time.Duration

	mu   sync.Mutex
	seen map[string]bool

	sleep func(ctx context.Context, d time.Duration) bool
}

// NewPacer returns a Pacer with the given delay. A delay <= 0 disables it.
func NewPacer(delay time.Duration) *Pacer {
	return &Pacer{delay: delay, seen: make(map[string]bool), sleep: sleepContext}
}

// Wait sleeps when rawURL's host has been seen before, then marks it seen.
// It returns ctx's error if ctx ends during the sleep.
func (p *Pacer) Wait(ctx context.Context, rawURL string) error {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	p.mu.Lock()
	again := p.seen[host]
	p.seen[host] = true
	p.mu.Unlock()

	if !again || p.delay <= 0 {
		return nil
	}
	if !p.sleep(ctx, p.delay) {
		return ctx.Err()
	}
	return nil
}
