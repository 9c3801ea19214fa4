package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsGate answers robots.txt questions, fetching each host's file once.
// A missing file, a non-200 answer or a transport failure allows everything.
type RobotsGate struct {
	fetcher *Fetcher
	log     logrus.FieldLogger

	mu    sync.Mutex
	hosts map[string]*robotstxt.Group // nil group means allow all
}

// NewRobotsGate uses f's client and user agent.
func NewRobotsGate(f *Fetcher, log logrus.FieldLogger) *RobotsGate {
	return &RobotsGate{
		fetcher: f,
		log:     log,
		hosts:   make(map[string]*robotstxt.Group),
	}
}

// Allowed reports whether the gate's user agent may fetch rawURL.
// Unparseable URLs are denied.
func (g *RobotsGate) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	base := u.Scheme + "://" + u.Host

	grp := g.group(ctx, base)
	if grp == nil {
		return true
	}
	return grp.Test(u.RequestURI())
}

func (g *RobotsGate) group(ctx context.Context, base string) *robotstxt.Group {
	g.mu.Lock()
	defer g.mu.Unlock()

	if grp, ok := g.hosts[base]; ok {
		return grp
	}
	grp := g.load(ctx, base)
	g.hosts[base] = grp
	return grp
}

func (g *RobotsGate) load(ctx context.Context, base string) *robotstxt.Group {
	robotsURL := base + "/robots.txt"
	log := g.log.WithField("url", robotsURL)

	resp, err := g.fetcher.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(robotsURL)
	if err != nil {
		log.WithField("reason", err).Debug("robots.txt unavailable, allowing all")
		return nil
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		log.WithField("status", resp.StatusCode()).Debug("robots.txt not found, allowing all")
		return nil
	}
	b, err := io.ReadAll(io.LimitReader(body, g.fetcher.maxBytes))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromBytes(b)
	if err != nil {
		log.WithField("reason", err).Debug("robots.txt unparseable, allowing all")
		return nil
	}
	return data.FindGroup(g.fetcher.ua)
}
