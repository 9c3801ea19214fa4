// Command coursebook looks up every catalog course in CourseBook and appends
// the parsed class sections to the day's JSONL file. It drives a visible
// Chrome window with a persistent profile so the operator can log in once.
//
// Usage (course ids from the catalog output):
//
//	coursebook
//
// Usage (explicit ids, three sections each):
//
//	coursebook -ids cs6313,cs6350 -limit 3
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"harvest/internal/app"
	"harvest/internal/catalog"
	"harvest/internal/coursebook"
	"harvest/internal/logging"
	"harvest/internal/session"
)

// driverFunc opens the browser the runner steers.
type driverFunc func(ctx context.Context, opts session.ChromeOptions) (session.Driver, error)

func newChrome(ctx context.Context, opts session.ChromeOptions) (session.Driver, error) {
	return session.NewChrome(ctx, opts)
}

func main() {
	os.Exit(run(
		context.Background(),
		os.Args[1:],
		os.Stdin,
		os.Stdout,
		os.Stderr,
		newChrome,
		coursebook.Waits{},
	))
}

// run returns 0 on success, 2 for usage/config errors and 1 for runtime
// errors. Zero waits use the runner defaults.
func run(
	ctx context.Context,
	args []string,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
	openDriver driverFunc,
	waits coursebook.Waits,
) int {
	fs := flag.NewFlagSet("coursebook", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common app.Flags
	common.Register(fs)
	coursesPath := fs.String("courses", "", "courses JSONL from the catalog command (default <out>/"+catalog.CoursesJSONLKey+")")
	idsFlag := fs.String("ids", "", "comma separated course ids (e.g. cs6313), overrides -courses")
	limit := fs.Int("limit", 0, "max sections per course id (default from config, 50)")
	profile := fs.String("profile", "", "Chrome profile directory (default from config)")
	headless := fs.Bool("headless", false, "run Chrome headless (login must already be stored in the profile)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := app.LoadConfig(common, os.Getenv)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}
	if *limit < 0 {
		fmt.Fprintf(stderr, "-limit must be >= 0\n")
		return 2
	}
	if *limit > 0 {
		cfg.CourseBook.Limit = *limit
	}
	if *profile != "" {
		cfg.CourseBook.ProfileDir = *profile
	}

	env, err := app.Start(ctx, "coursebook", cfg, common.S3, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "start: %v\n", err)
		return 1
	}
	defer env.Close()

	var ids []string
	if *idsFlag != "" {
		for _, id := range strings.Split(*idsFlag, ",") {
			if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
				ids = append(ids, id)
			}
		}
	} else {
		path := *coursesPath
		if path == "" {
			path = env.Local.Path(catalog.CoursesJSONLKey)
		}
		if ids, err = courseIDs(path); err != nil {
			fmt.Fprintf(stderr, "load courses: %v\n", err)
			return 1
		}
	}
	if len(ids) == 0 {
		fmt.Fprintf(stderr, "no course ids to look up\n")
		return 1
	}
	env.Log.WithField("ids", len(ids)).Info("loaded course ids")

	drv, err := openDriver(ctx, session.ChromeOptions{
		ProfileDir: cfg.CourseBook.ProfileDir,
		UserAgent:  cfg.CourseBookUserAgent,
		Headless:   *headless,
	})
	if err != nil {
		fmt.Fprintf(stderr, "open browser: %v\n", err)
		return 1
	}
	defer drv.Close()

	if waits.Politeness == 0 {
		waits.Politeness = cfg.PolitenessDelay
	}
	rec := env.Recorder("section")
	runner := &coursebook.Runner{
		Driver: drv,
		Session: session.New(drv, session.PromptSignal{
			In:      stdin,
			Out:     stdout,
			Message: "CourseBook needs a login. Log in in the browser window, then press ENTER here...",
		}, env.Log),
		Sink:    env.Local,
		Log:     env.Log,
		Store:   rec,
		BaseURL: cfg.CourseBook.BaseURL,
		Limit:   cfg.CourseBook.Limit,
		Waits:   waits,
	}

	res, err := runner.Run(ctx, ids)
	logging.Batch(env.Log, "coursebook", res.Attempted, res.Sections, len(res.NoRows)+res.Failed)
	if err != nil {
		fmt.Fprintf(stderr, "coursebook: %v\n", err)
		return 1
	}
	if err := env.Flush(ctx, rec); err != nil {
		fmt.Fprintf(stderr, "store: %v\n", err)
		return 1
	}

	keys := []string{}
	if res.Sections > 0 {
		keys = append(keys, res.Key)
	}
	for _, cid := range res.NoRows {
		keys = append(keys, coursebook.DebugKey(cid))
	}
	if err := env.Publish(ctx, keys...); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "sections=%d no_rows=%d out=%s\n", res.Sections, len(res.NoRows), env.Local.Path(res.Key))
	return 0
}

func courseIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	courses, err := catalog.ReadCourses(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return catalog.CourseIDs(courses), nil
}
