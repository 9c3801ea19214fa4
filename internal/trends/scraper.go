package trends

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"harvest/internal/dedupe"
	"harvest/internal/extract"
	"harvest/internal/metrics"
	"harvest/internal/output"
	"harvest/internal/session"
)

// ItemsKey is the JSONL key lookups for day are appended to.
func ItemsKey(day string) string { return "clean/utdtrends/trends_" + day + ".jsonl" }

// RawKey is where the rendered dashboard for courseID is kept.
func RawKey(courseID string) string { return "raw/utdtrends/html/" + RawName(courseID) }

// Scraper renders the dashboard for each course id and records its blurb.
type Scraper struct {
	Driver session.Driver
	Sink   output.Sink
	Log    logrus.FieldLogger

	BaseURL string
	// Limit stops after this many written items; <= 0 means no limit.
	Limit int
	// Delay is slept between courses; Settle after each navigation.
	Delay  time.Duration
	Settle time.Duration
	Now    func() time.Time

	sleep func(ctx context.Context, d time.Duration) bool
}

// Result summarises a run.
type Result struct {
	Items     []Item
	Attempted int
	Failed    int
	Key       string
}

// Run looks up every id in order. A failure on one course is logged and the
// run continues; only ctx cancellation or a sink failure stop it.
func (s *Scraper) Run(ctx context.Context, ids []string) (Result, error) {
	res := Result{Key: ItemsKey(output.DateStamp(s.now()))}
	for i, cid := range ids {
		if s.Limit > 0 && len(res.Items) >= s.Limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempted++
		log := s.Log.WithFields(logrus.Fields{"course_id": cid, "n": fmt.Sprintf("%d/%d", i+1, len(ids))})

		item, err := s.one(ctx, cid)
		switch {
		case err == nil:
			if err := output.AppendJSON(ctx, s.Sink, res.Key, item); err != nil {
				return res, fmt.Errorf("append trends item: %w", err)
			}
			res.Items = append(res.Items, item)
			metrics.RecordDocument("trends", "ok")
			log.WithField("title", item.Title).Info("trends item")
		case ctx.Err() != nil:
			return res, ctx.Err()
		default:
			res.Failed++
			metrics.RecordDocument("trends", "error")
			log.WithField("reason", err).Warn("skip course")
		}

		if !s.pause(ctx, s.Delay) {
			return res, ctx.Err()
		}
	}
	metrics.RecordRecords("trends_item", len(res.Items))
	return res, nil
}

func (s *Scraper) one(ctx context.Context, cid string) (Item, error) {
	u := BuildURL(s.BaseURL, cid)
	if err := s.Driver.Navigate(ctx, u); err != nil {
		return Item{}, fmt.Errorf("open %s: %w", u, err)
	}
	if !s.pause(ctx, s.Settle) {
		return Item{}, ctx.Err()
	}
	page, err := s.Driver.HTML(ctx)
	if err != nil {
		return Item{}, fmt.Errorf("read page: %w", err)
	}
	if err := s.Sink.Write(ctx, RawKey(cid), []byte(page)); err != nil {
		return Item{}, fmt.Errorf("save snapshot: %w", err)
	}
	doc, err := extract.ParseString(page)
	if err != nil {
		return Item{}, err
	}
	return ParseBlurb(doc, cid, u, s.now()), nil
}

func (s *Scraper) pause(ctx context.Context, d time.Duration) bool {
	if s.sleep != nil {
		return s.sleep(ctx, d)
	}
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

func (s *Scraper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// UniqueIDs keeps the first spelling of each course id, compared upper-cased.
func UniqueIDs(ids []string) []string {
	var seen dedupe.Set[string]
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && seen.Add(strings.ToUpper(id)) {
			out = append(out, id)
		}
	}
	return out
}
