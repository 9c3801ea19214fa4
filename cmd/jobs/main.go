// Command jobs collects matching postings from Greenhouse company boards and
// writes the links, the raw postings and a heuristic summary of each.
//
// Usage (board pages, default company list):
//
//	jobs -role "data engineer" -city "Dallas, TX"
//
// Usage (JSON API, selected companies, exact city match):
//
//	jobs -api -companies stripe,airbnb -city "San Francisco, CA" -strict -limit 25
//
// Usage (fields extracted by Gemini, GEMINI_API_KEY set):
//
//	jobs -role engineer -model
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

	"harvest/internal/agent"
	"harvest/internal/app"
	"harvest/internal/fetch"
	"harvest/internal/jobs"
	"harvest/internal/logging"
	"harvest/internal/storage"
)

func main() {
	os.Exit(run(
		context.Background(),
		os.Args[1:],
		os.Stdout,
		os.Stderr,
		http.DefaultClient,
		newGemini,
	))
}

type modelFunc func(ctx context.Context, apiKey, model string) (jobs.Generator, error)

func newGemini(ctx context.Context, apiKey, model string) (jobs.Generator, error) {
	return agent.NewGemini(ctx, apiKey, model)
}

// run returns 0 on success, 2 for usage/config errors and 1 for runtime
// errors.
func run(
	ctx context.Context,
	args []string,
	stdout io.Writer,
	stderr io.Writer,
	httpClient *http.Client,
	newModel modelFunc,
) int {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common app.Flags
	common.Register(fs)
	role := fs.String("role", "", "words that must all appear in the posting title (empty or \"all\" = any)")
	city := fs.String("city", "", "location filter, e.g. \"Dallas, TX\" (empty or \"all\" = any)")
	strict := fs.Bool("strict", false, "require the full -city text instead of its first part")
	limit := fs.Int("limit", 0, "stop after this many postings (0 = no cap)")
	companiesFlag := fs.String("companies", "", "comma separated board slugs (default built-in list)")
	useAPI := fs.Bool("api", false, "use the Greenhouse JSON API instead of board pages")
	apiBase := fs.String("api-base", jobs.DefaultAPIBase, "Greenhouse boards API base URL")
	delay := fs.Duration("delay", -1, "pause between boards and postings (default from config)")
	useModel := fs.Bool("model", false, "extract posting fields with Gemini, keeping the heuristic on failure")

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

	var gen jobs.Generator
	if *useModel {
		gen, err = newModel(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			fmt.Fprintf(stderr, "model: %v\n", err)
			return 2
		}
	}

	env, err := app.Start(ctx, "jobs", cfg, common.S3, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "start: %v\n", err)
		return 1
	}
	defer env.Close()

	fetcher := fetch.NewFetcher(fetch.Options{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.HTTPTimeout,
		MaxBytes:  cfg.MaxBytes,
		Job:       "jobs",
		Client:    httpClient,
	})

	s := &jobs.Scraper{
		Getter:       fetcher,
		Sink:         env.Local,
		Log:          env.Log,
		Filter:       jobs.Filter{Role: *role, City: *city, Strict: *strict},
		Companies:    splitList(*companiesFlag),
		Limit:        *limit,
		BoardDelay:   cfg.PolitenessDelay,
		PostingDelay: cfg.PolitenessDelay,
	}
	if *useAPI {
		s.API = jobs.NewAPIClient(fetcher.Resty(), *apiBase)
	}
	if gen != nil {
		s.Model = &jobs.ModelExtractor{Model: gen}
	}

	res, err := s.Run(ctx)
	logging.Batch(env.Log, "jobs", len(res.Raw)+res.Failed, len(res.Extracted), res.Failed)
	if err != nil {
		fmt.Fprintf(stderr, "jobs: %v\n", err)
		return 1
	}

	now := time.Now()
	rec := env.Recorder("job_posting")
	for _, ex := range res.Extracted {
		if err := rec.Add(storage.NaturalKey("job", ex.URL), ex, now); err != nil {
			fmt.Fprintf(stderr, "store: %v\n", err)
			return 1
		}
	}
	if err := env.Flush(ctx, rec); err != nil {
		fmt.Fprintf(stderr, "store: %v\n", err)
		return 1
	}
	if err := env.Publish(ctx, jobs.LinksKey, jobs.RawKey, jobs.ExtractedKey); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "boards=%d postings=%d out=%s\n", res.Boards, len(res.Extracted), env.Local.Path(jobs.ExtractedKey))
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
