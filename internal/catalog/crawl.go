package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"harvest/internal/extract"
	"harvest/internal/fetch"
	"harvest/internal/metrics"
	"harvest/internal/output"
)

// Output keys, relative to the sink root.
const (
	CoursesJSONLKey = "clean/catalog/courses.jsonl"
	CoursesJSONKey  = "clean/catalog/courses.json"
	SnapshotKey     = "curated/catalog/snapshot.json"
)

// RawKey is where the raw program page for day is stored.
func RawKey(day, pageURL string) string {
	return "raw/catalog/" + day + "/" + fetch.FlatFilename(pageURL)
}

// Getter fetches one page.
type Getter interface {
	Get(ctx context.Context, url string) (*fetch.Page, error)
}

// Gate answers robots.txt questions.
type Gate interface {
	Allowed(ctx context.Context, url string) bool
}

// Crawler fetches program pages politely and parses their course anchors.
type Crawler struct {
	Getter Getter
	Robots Gate
	Pacer  *fetch.Pacer
	Sink   output.Sink
	Log    logrus.FieldLogger
	Now    func() time.Time
}

// Result summarises a crawl.
type Result struct {
	Courses   []Course
	RawKeys   []string
	Attempted int
	Failed    int
}

// Crawl visits each URL in order. A page that is disallowed, fails to fetch
// or cannot be parsed is logged and skipped; the crawl only stops early when
// ctx ends.
func (c *Crawler) Crawl(ctx context.Context, urls []string) (Result, error) {
	now := c.now()
	day := output.DateStamp(now)
	var res Result

	for i, u := range urls {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempted++
		log := c.Log.WithFields(logrus.Fields{"url": u, "page": fmt.Sprintf("%d/%d", i+1, len(urls))})

		courses, key, err := c.page(ctx, u, day)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return res, err
			}
			res.Failed++
			metrics.RecordDocument("catalog", outcome(err))
			log.WithField("reason", err).Warn("skip program page")
			continue
		}

		metrics.RecordDocument("catalog", "ok")
		res.RawKeys = append(res.RawKeys, key)
		res.Courses = append(res.Courses, courses...)
		log.WithField("courses", len(courses)).Info("found course anchors")
	}

	metrics.RecordRecords("course", len(res.Courses))
	return res, nil
}

func (c *Crawler) page(ctx context.Context, u, day string) ([]Course, string, error) {
	doc, key, err := c.fetchDoc(ctx, u, day)
	if err != nil {
		return nil, "", err
	}
	return ParseProgramPage(doc, u, c.now()), key, nil
}

// fetchDoc checks robots, paces, fetches u, saves the raw page and parses it.
func (c *Crawler) fetchDoc(ctx context.Context, u, day string) (*goquery.Document, string, error) {
	if c.Robots != nil && !c.Robots.Allowed(ctx, u) {
		return nil, "", fetch.ErrDisallowed
	}
	if c.Pacer != nil {
		if err := c.Pacer.Wait(ctx, u); err != nil {
			return nil, "", err
		}
	}

	page, err := c.Getter.Get(ctx, u)
	if err != nil {
		return nil, "", err
	}

	key := RawKey(day, u)
	if err := c.Sink.Write(ctx, key, page.Body); err != nil {
		return nil, "", fmt.Errorf("save raw page: %w", err)
	}

	doc, err := extract.ParseDocument(page.Body, page.ContentType)
	if err != nil {
		return nil, "", err
	}
	return doc, key, nil
}

func (c *Crawler) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func outcome(err error) string {
	var se *fetch.StatusError
	switch {
	case errors.Is(err, fetch.ErrDisallowed):
		return "disallowed"
	case errors.Is(err, extract.ErrUnparseable):
		return "unparseable"
	case errors.Is(err, fetch.ErrTooLarge):
		return "too_large"
	case errors.As(err, &se):
		return "http_error"
	default:
		return "error"
	}
}

// Snapshot is the curated summary of a catalog run.
type Snapshot struct {
	ProgramPages int    `json:"program_pages"`
	Courses      int    `json:"courses"`
	UpdatedAt    string `json:"updated_at"`
}

// WriteOutputs writes the course JSONL and JSON files and the snapshot.
// programPages is the number of configured program URLs.
func WriteOutputs(ctx context.Context, sink output.Sink, courses []Course, programPages int, now time.Time) (Snapshot, error) {
	if courses == nil {
		courses = []Course{}
	}
	snap := Snapshot{ProgramPages: programPages, Courses: len(courses), UpdatedAt: output.ISOTime(now)}

	if err := output.WriteJSONL(ctx, sink, CoursesJSONLKey, courses); err != nil {
		return snap, err
	}
	if err := output.WriteJSON(ctx, sink, CoursesJSONKey, courses); err != nil {
		return snap, err
	}
	if err := output.WriteJSON(ctx, sink, SnapshotKey, snap); err != nil {
		return snap, err
	}
	return snap, nil
}
