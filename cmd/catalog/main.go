// Command catalog crawls UTD catalog program pages and writes the course
// list found on them.
//
// Usage (configured program pages):
//
//	catalog
//
// Usage (explicit pages, mirrored to S3 and stored in SQLite):
//
//	catalog -urls "https://catalog.utdallas.edu/2025/graduate/programs/ecs/computer-science" \
//	  -s3 -storage-kind sqlite -storage-dsn data/records.db
//
// Usage (program item pages: headings, credit hours, requirement sections):
//
//	catalog -items -urls "https://catalog.utdallas.edu/2023/graduate/programs/jsom/information-technology-management"
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"harvest/internal/app"
	"harvest/internal/catalog"
	"harvest/internal/fetch"
	"harvest/internal/logging"
	"harvest/internal/output"
	"harvest/internal/storage"
)

func main() {
	os.Exit(run(
		context.Background(),
		os.Args[1:],
		os.Stdout,
		os.Stderr,
		http.DefaultClient,
	))
}

// run returns 0 on success, 2 for usage/config errors and 1 for runtime
// errors.
func run(
	ctx context.Context,
	args []string,
	stdout io.Writer,
	stderr io.Writer,
	httpClient *http.Client,
) int {
	fs := flag.NewFlagSet("catalog", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common app.Flags
	common.Register(fs)
	urlsFlag := fs.String("urls", "", "comma separated program page URLs (default from config)")
	delay := fs.Duration("delay", -1, "politeness delay between requests to one host (default from config)")
	noRobots := fs.Bool("no-robots", false, "skip robots.txt checks")
	items := fs.Bool("items", false, "parse the pages as program item pages instead of collecting courses")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := app.LoadConfig(common, os.Getenv)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}
	urls := cfg.Catalog.ProgramURLs
	if *urlsFlag != "" {
		urls = splitList(*urlsFlag)
	}
	if len(urls) == 0 {
		fmt.Fprintf(stderr, "no program URLs\n")
		return 2
	}
	if *delay >= 0 {
		cfg.PolitenessDelay = *delay
	}

	env, err := app.Start(ctx, "catalog", cfg, common.S3, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "start: %v\n", err)
		return 1
	}
	defer env.Close()

	fetcher := fetch.NewFetcher(fetch.Options{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.HTTPTimeout,
		MaxBytes:  cfg.MaxBytes,
		Job:       "catalog",
		Client:    httpClient,
	})
	crawler := &catalog.Crawler{
		Getter: fetcher,
		Pacer:  fetch.NewPacer(cfg.PolitenessDelay),
		Sink:   env.Local,
		Log:    env.Log,
	}
	if !*noRobots {
		crawler.Robots = fetch.NewRobotsGate(fetcher, env.Log)
	}

	if *items {
		return runItems(ctx, env, crawler, urls, stdout, stderr)
	}

	res, err := crawler.Crawl(ctx, urls)
	if err != nil {
		fmt.Fprintf(stderr, "crawl: %v\n", err)
		return 1
	}

	now := time.Now()
	snap, err := catalog.WriteOutputs(ctx, env.Local, res.Courses, len(urls), now)
	if err != nil {
		fmt.Fprintf(stderr, "write outputs: %v\n", err)
		return 1
	}
	logging.Batch(env.Log, "catalog", res.Attempted, len(res.Courses), res.Failed)

	rec := env.Recorder("course")
	for _, c := range res.Courses {
		if err := rec.Add(storage.NaturalKey("course", c.CourseID, c.CatalogURL), c, now); err != nil {
			fmt.Fprintf(stderr, "store: %v\n", err)
			return 1
		}
	}
	if err := env.Flush(ctx, rec); err != nil {
		fmt.Fprintf(stderr, "store: %v\n", err)
		return 1
	}

	keys := append([]string{catalog.CoursesJSONLKey, catalog.CoursesJSONKey, catalog.SnapshotKey}, res.RawKeys...)
	if err := env.Publish(ctx, keys...); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "courses=%d program_pages=%d out=%s\n", snap.Courses, snap.ProgramPages, env.Local.Path(catalog.CoursesJSONLKey))
	return 0
}

func runItems(ctx context.Context, env *app.Env, crawler *catalog.Crawler, urls []string, stdout, stderr io.Writer) int {
	res, err := crawler.CrawlItems(ctx, urls)
	if err != nil {
		fmt.Fprintf(stderr, "crawl: %v\n", err)
		return 1
	}
	if err := output.WriteJSONL(ctx, env.Local, catalog.ItemPagesKey, res.Pages); err != nil {
		fmt.Fprintf(stderr, "write outputs: %v\n", err)
		return 1
	}
	logging.Batch(env.Log, "catalog_item", res.Attempted, len(res.Pages), res.Failed)

	now := time.Now()
	rec := env.Recorder("catalog_item")
	courses := 0
	for _, p := range res.Pages {
		courses += len(p.CoursesFound)
		if err := rec.Add(storage.NaturalKey("item", p.SourceURL), p, now); err != nil {
			fmt.Fprintf(stderr, "store: %v\n", err)
			return 1
		}
	}
	if err := env.Flush(ctx, rec); err != nil {
		fmt.Fprintf(stderr, "store: %v\n", err)
		return 1
	}
	if err := env.Publish(ctx, append([]string{catalog.ItemPagesKey}, res.RawKeys...)...); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "item_pages=%d courses=%d out=%s\n", len(res.Pages), courses, env.Local.Path(catalog.ItemPagesKey))
	return 0
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
