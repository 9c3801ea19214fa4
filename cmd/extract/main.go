// Command extract reads HTML (from stdin, a URL, or a directory of saved
// pages), applies a locator file, and prints JSON.
//
// Usage (stdin):
//
//	cat page.html | extract -locators coursebook.json
//
// Usage (fetch URL):
//
//	extract -url "https://catalog.utdallas.edu/2025/graduate/programs/ecs/computer-science" -locators catalog.json
//
// Usage (directory mode, e.g. re-extracting raw snapshots):
//
//	extract -dir data/raw/utdtrends/html -locators trends.json
//
// Debug (print outer HTML blocks):
//
//	cat page.html | extract -selector "table.courseinfo__overviewtable"
//
// Debug (print text for selector matches):
//
//	cat page.html | extract -selector "#content" -text
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/PuerkitoBio/goquery"

	"harvest/internal/extract"
	"harvest/internal/fetch"
	"harvest/internal/logging"
)

func main() {
	os.Exit(run(
		context.Background(),
		os.Args[1:],
		os.Stdin,
		os.Stdout,
		os.Stderr,
		http.DefaultClient,
	))
}

// run is split out from main so the command can be tested without spawning
// a process. It returns 0 on success, 2 for usage/config errors and 1 for
// runtime errors.
func run(
	ctx context.Context,
	args []string,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
	httpClient *http.Client,
) int {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(stderr)

	onlyText := fs.Bool("text", false, "Debug: print text blocks for -selector matches (not JSON)")
	debugSelector := fs.String("selector", "", "Debug: CSS selector to print matches for (not JSON)")
	locatorsPath := fs.String("locators", "", "Path to locator JSON file (required for JSON extraction)")
	urlFlag := fs.String("url", "", "Optional: fetch HTML from URL instead of stdin")
	timeout := fs.Duration("timeout", 20*time.Second, "Timeout for -url fetch")
	dirFlag := fs.String("dir", "", "Optional: directory containing HTML files to parse (one record per file)")
	logLevel := fs.String("log-level", "warn", "log level for skipped files and ambiguous labels")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	log, err := logging.New(*logLevel, "text", stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}
	load := func() (*goquery.Document, error) {
		if *urlFlag == "" {
			b, err := io.ReadAll(stdin)
			if err != nil {
				return nil, fmt.Errorf("read stdin: %w", err)
			}
			return extract.ParseDocument(b, "")
		}
		f := fetch.NewFetcher(fetch.Options{Timeout: *timeout, Job: "extract", Client: httpClient})
		page, err := f.Get(ctx, *urlFlag)
		if err != nil {
			return nil, err
		}
		return extract.ParseDocument(page.Body, page.ContentType)
	}

	// Debug selector mode needs HTML input (stdin or url) but NOT locators.
	if *debugSelector != "" {
		doc, err := load()
		if err != nil {
			fmt.Fprintf(stderr, "load html: %v\n", err)
			return 1
		}
		extract.DebugPrintSelector(stdout, doc, *debugSelector, *onlyText)
		return 0
	}

	if *locatorsPath == "" {
		fmt.Fprintf(stderr, "missing -locators\n")
		return 2
	}
	lf, err := extract.LoadLocatorFile(*locatorsPath)
	if err != nil {
		fmt.Fprintf(stderr, "load locators: %v\n", err)
		return 2
	}

	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)

	// Directory mode: stream output as a single JSON array.
	if *dirFlag != "" {
		if err := extract.StreamFromDir(stdout, *dirFlag, lf, enc, log); err != nil {
			fmt.Fprintf(stderr, "dir extract: %v\n", err)
			return 1
		}
		return 0
	}

	doc, err := load()
	if err != nil {
		fmt.Fprintf(stderr, "load html: %v\n", err)
		return 1
	}

	// Record mode: one object per record container.
	if lf.RecordSelector != "" {
		results := extract.ExtractRecords(doc, lf.RecordSelector, lf.Table)
		records := make([]extract.Record, 0, len(results))
		for _, r := range results {
			extract.LogAmbiguities(log, r.Ambiguities)
			records = append(records, r.Record)
		}
		if err := enc.Encode(records); err != nil {
			fmt.Fprintf(stderr, "encode json: %v\n", err)
			return 1
		}
		return 0
	}

	res := extract.Extract(doc, lf.Table)
	extract.LogAmbiguities(log, res.Ambiguities)
	if err := enc.Encode(res.Record); err != nil {
		fmt.Fprintf(stderr, "encode json: %v\n", err)
		return 1
	}
	return 0
}
