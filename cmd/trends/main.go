// Command trends reads the course blurb for every catalog course from the
// UTD Trends dashboard, then merges catalog and Trends data into knowledge
// base documents.
//
// Usage (scrape and merge):
//
//	trends -limit 20
//
// Usage (merge an earlier scrape only, as JSONL):
//
//	trends -items data/clean/utdtrends/trends_20250820.jsonl -jsonl
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"harvest/internal/app"
	"harvest/internal/catalog"
	"harvest/internal/logging"
	"harvest/internal/output"
	"harvest/internal/session"
	"harvest/internal/storage"
	"harvest/internal/trends"
)

type driverFunc func(ctx context.Context, opts session.ChromeOptions) (session.Driver, error)

func newChrome(ctx context.Context, opts session.ChromeOptions) (session.Driver, error) {
	return session.NewChrome(ctx, opts)
}

func main() {
	os.Exit(run(
		context.Background(),
		os.Args[1:],
		os.Stdout,
		os.Stderr,
		newChrome,
	))
}

// run returns 0 on success, 2 for usage/config errors and 1 for runtime
// errors.
func run(
	ctx context.Context,
	args []string,
	stdout io.Writer,
	stderr io.Writer,
	openDriver driverFunc,
) int {
	fs := flag.NewFlagSet("trends", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common app.Flags
	common.Register(fs)
	coursesPath := fs.String("courses", "", "courses JSONL from the catalog command (default <out>/"+catalog.CoursesJSONLKey+")")
	itemsPath := fs.String("items", "", "merge this trends JSONL instead of scraping")
	limit := fs.Int("limit", 0, "stop after this many trends items (0 = all)")
	jsonl := fs.Bool("jsonl", false, "write merged documents as JSONL instead of a JSON array")
	delay := fs.Duration("delay", -1, "pause between courses (default from config)")
	settle := fs.Duration("settle", 3*time.Second, "wait after each page load for the dashboard to render")
	headed := fs.Bool("headed", false, "show the browser window")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *limit < 0 {
		fmt.Fprintf(stderr, "-limit must be >= 0\n")
		return 2
	}

	cfg, err := app.LoadConfig(common, os.Getenv)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}
	if *delay >= 0 {
		cfg.PolitenessDelay = *delay
	}

	env, err := app.Start(ctx, "trends", cfg, common.S3, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "start: %v\n", err)
		return 1
	}
	defer env.Close()

	path := *coursesPath
	if path == "" {
		path = env.Local.Path(catalog.CoursesJSONLKey)
	}
	courses, err := readCourses(path)
	if err != nil {
		fmt.Fprintf(stderr, "load courses: %v\n", err)
		return 1
	}

	now := time.Now()
	var (
		items     []trends.Item
		published []string
	)
	if *itemsPath != "" {
		if items, err = readItems(*itemsPath); err != nil {
			fmt.Fprintf(stderr, "load items: %v\n", err)
			return 1
		}
	} else {
		ids := make([]string, 0, len(courses))
		for _, c := range courses {
			ids = append(ids, c.CourseID)
		}
		ids = trends.UniqueIDs(ids)

		drv, err := openDriver(ctx, session.ChromeOptions{
			UserAgent: trends.DefaultUserAgent,
			Headless:  !*headed,
		})
		if err != nil {
			fmt.Fprintf(stderr, "open browser: %v\n", err)
			return 1
		}
		defer drv.Close()

		s := &trends.Scraper{
			Driver:  drv,
			Sink:    env.Local,
			Log:     env.Log,
			BaseURL: cfg.Trends.BaseURL,
			Limit:   *limit,
			Delay:   cfg.PolitenessDelay,
			Settle:  *settle,
		}
		res, err := s.Run(ctx, ids)
		logging.Batch(env.Log, "trends", res.Attempted, len(res.Items), res.Failed)
		if err != nil {
			fmt.Fprintf(stderr, "trends: %v\n", err)
			return 1
		}
		items = res.Items
		if len(items) > 0 {
			published = append(published, res.Key)
		}
		for _, it := range items {
			published = append(published, trends.RawKey(it.CourseID))
		}
	}

	docs := trends.Merge(courses, items)
	key := trends.MergedKey(output.DateStamp(now), *jsonl)
	if *jsonl {
		err = output.WriteJSONL(ctx, env.Local, key, docs)
	} else {
		err = output.WriteJSON(ctx, env.Local, key, docs)
	}
	if err != nil {
		fmt.Fprintf(stderr, "write merged: %v\n", err)
		return 1
	}
	published = append(published, key)
	env.Log.WithFields(logrus.Fields{"docs": len(docs), "with_blurb": len(items), "key": key}).Info("merged course documents")

	rec := env.Recorder("course_doc")
	for _, d := range docs {
		if err := rec.Add(storage.NaturalKey(d.ID, key), d, now); err != nil {
			fmt.Fprintf(stderr, "store: %v\n", err)
			return 1
		}
	}
	if err := env.Flush(ctx, rec); err != nil {
		fmt.Fprintf(stderr, "store: %v\n", err)
		return 1
	}
	if err := env.Publish(ctx, published...); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "items=%d docs=%d out=%s\n", len(items), len(docs), env.Local.Path(key))
	return 0
}

func readCourses(path string) ([]catalog.Course, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return catalog.ReadCourses(f)
}

func readItems(path string) ([]trends.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return trends.ReadItems(f)
}
