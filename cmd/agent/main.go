// Command agent answers a question about UTD courses from the merged course
// documents, using Gemini to write the reply. The answer is printed as JSON.
//
// Usage (question as arguments):
//
//	agent "Which course covers Spark?"
//
// Usage (question on stdin, explicit knowledge base):
//
//	echo "What does CS 6313 teach?" | agent -kb data/clean/courses_merged_20250820.json
//
// Debug (print retrieved passages, no model call):
//
//	agent -retrieve "hypothesis testing"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"harvest/internal/agent"
	"harvest/internal/app"
)

type modelFunc func(ctx context.Context, apiKey, model string) (agent.Model, error)

func newGemini(ctx context.Context, apiKey, model string) (agent.Model, error) {
	return agent.NewGemini(ctx, apiKey, model)
}

func main() {
	os.Exit(run(
		context.Background(),
		os.Args[1:],
		os.Stdin,
		os.Stdout,
		os.Stderr,
		newGemini,
	))
}

// run returns 0 on success, 2 for usage/config errors and 1 for runtime
// errors.
func run(
	ctx context.Context,
	args []string,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
	newModel modelFunc,
) int {
	fs := flag.NewFlagSet("agent", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common app.Flags
	common.Register(fs)
	kbPath := fs.String("kb", "", "merged course documents, JSON or JSONL (default newest <out>/clean/courses_merged_*)")
	topK := fs.Int("k", agent.DefaultTopK, "passages to retrieve")
	model := fs.String("model", "", "Gemini model (default from config)")
	retrieveOnly := fs.Bool("retrieve", false, "Debug: print the retrieved passages instead of asking the model")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := app.LoadConfig(common, os.Getenv)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}
	if *model != "" {
		cfg.Gemini.Model = *model
	}

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			fmt.Fprintf(stderr, "read question: %v\n", err)
			return 1
		}
		question = strings.TrimSpace(string(b))
	}
	if question == "" {
		fmt.Fprintf(stderr, "missing question\n")
		return 2
	}

	env, err := app.Start(ctx, "agent", cfg, false, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "start: %v\n", err)
		return 1
	}
	defer env.Close()

	path := *kbPath
	if path == "" {
		if path, err = newestMerged(filepath.Join(cfg.OutDir, "clean")); err != nil {
			fmt.Fprintf(stderr, "find knowledge base: %v\n", err)
			return 1
		}
	}
	kb, err := agent.LoadKBFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "load knowledge base: %v\n", err)
		return 1
	}
	env.Log.WithField("docs", kb.Len()).Debug("knowledge base loaded")

	if *retrieveOnly {
		fmt.Fprintln(stdout, agent.FormatPassages(kb.Retrieve(question, *topK)))
		return 0
	}

	m, err := newModel(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	if err != nil {
		fmt.Fprintf(stderr, "model: %v\n", err)
		return 2
	}
	a := &agent.Agent{KB: kb, Model: m, TopK: *topK, Log: env.Log}
	ans, err := a.Ask(ctx, question)
	if err != nil {
		fmt.Fprintf(stderr, "ask: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ans); err != nil {
		fmt.Fprintf(stderr, "encode json: %v\n", err)
		return 1
	}
	return 0
}

// newestMerged picks the latest dated merge output in dir.
func newestMerged(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "courses_merged_*.json*"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no courses_merged_* file in %s", dir)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}
