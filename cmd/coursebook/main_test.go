package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"harvest/internal/coursebook"
	"harvest/internal/session"
)

const panelHTML = `<table class="courseinfo__overviewtable"><tbody>
<tr><th>Status:</th><td>Enrollment Status: OPEN Available Seats: 4 Enrolled Total: 56 Waitlist: 0</td></tr>
</tbody></table>`

var markerRE = regexp.MustCompile(`^/\*(\w+)\*/.*\)\[(\d+)\]`)

// stubBrowser is already logged in and returns one row for cs6313 only.
type stubBrowser struct {
	session.Driver

	query  string
	closed bool
}

func (b *stubBrowser) Navigate(context.Context, string) error { return nil }
func (b *stubBrowser) Text(context.Context, string) (string, error) {
	return "Jane Doe", nil
}
func (b *stubBrowser) HTML(context.Context) (string, error) { return "<html></html>", nil }
func (b *stubBrowser) Close() error                          { b.closed = true; return nil }

func (b *stubBrowser) Submit(_ context.Context, _, query string) error {
	b.query = query
	return nil
}

func (b *stubBrowser) Count(_ context.Context, sel string) (int, error) {
	switch {
	case strings.Contains(sel, "reCAPTCHA"):
		return 0, nil
	case strings.Contains(sel, "tr.cb-row"):
		if b.query == "now cs6313" {
			return 1, nil
		}
		return 0, nil
	}
	return 1, nil
}

func (b *stubBrowser) Eval(_ context.Context, expr string, out any) error {
	var v any
	if m := markerRE.FindStringSubmatch(expr); m != nil {
		j, _ := strconv.Atoi(m[2])
		switch m[1] {
		case "cells":
			v = []string{"", "cs 6313.001", "", "Statistical Methods " + strconv.Itoa(j)}
		case "detail":
			v = true
		case "syllabus":
			v = false
		case "expanded":
			v = panelHTML
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func fastWaits() coursebook.Waits {
	ms := time.Millisecond
	return coursebook.Waits{
		Politeness: ms, Results: ms, ResultsAlt: ms, Populate: ms, Retry: ms,
		Expand: ms, SyllabusTab: ms, BetweenIDs: ms, Poll: ms,
	}
}

func TestRun_ScrapesCoursesFile(t *testing.T) {
	t.Parallel()

	out := t.TempDir()
	courses := filepath.Join(out, "courses.jsonl")
	err := os.WriteFile(courses, []byte(
		`{"course_id":"CS 6313","catalog_url":"https://catalog.example/cs6313"}`+"\n"+
			`{"course_id":"CS 9999","catalog_url":"https://catalog.example/cs9999"}`+"\n"), 0o600)
	if err != nil {
		t.Fatalf("write courses: %v", err)
	}

	drv := &stubBrowser{}
	var gotOpts session.ChromeOptions
	open := func(_ context.Context, opts session.ChromeOptions) (session.Driver, error) {
		gotOpts = opts
		return drv, nil
	}

	var stdout, stderr bytes.Buffer
	code := run(
		context.Background(),
		[]string{"-out", out, "-env-file", "", "-courses", courses, "-profile", filepath.Join(out, "profile")},
		strings.NewReader(""),
		&stdout,
		&stderr,
		open,
		fastWaits(),
	)
	if code != 0 {
		t.Fatalf("run returned %d; stderr=%s", code, stderr.String())
	}
	if !drv.closed {
		t.Fatalf("browser was not closed")
	}
	if gotOpts.Headless || gotOpts.ProfileDir != filepath.Join(out, "profile") {
		t.Fatalf("unexpected chrome options: %+v", gotOpts)
	}
	if !strings.Contains(stdout.String(), "sections=1 no_rows=1") {
		t.Fatalf("unexpected stdout: %s", stdout.String())
	}

	matches, _ := filepath.Glob(filepath.Join(out, "clean", "coursebook", "sections_*.jsonl"))
	if len(matches) != 1 {
		t.Fatalf("sections files: %v", matches)
	}
	b, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read sections: %v", err)
	}
	var sec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(b), &sec); err != nil {
		t.Fatalf("sections line is not json: %v; %s", err, b)
	}
	if sec["query"] != "now cs6313" || sec["section"] != "cs 6313.001" || sec["enrollment_status"] != "OPEN" {
		t.Fatalf("unexpected section: %v", sec)
	}
	if _, err := os.Stat(filepath.Join(out, "debug", "no_rows_cs9999.html")); err != nil {
		t.Fatalf("debug page missing: %v", err)
	}
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	noDriver := func(context.Context, session.ChromeOptions) (session.Driver, error) {
		return nil, errors.New("chrome not found")
	}
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"bad flag", []string{"-nope"}, 2},
		{"negative limit", []string{"-env-file", "", "-limit", "-1"}, 2},
		{"missing courses file", []string{"-env-file", "", "-courses", "does-not-exist.jsonl"}, 1},
		{"browser fails", []string{"-env-file", "", "-ids", "cs6313"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var stdout, stderr bytes.Buffer
			args := append([]string{"-out", t.TempDir()}, tt.args...)
			code := run(context.Background(), args, strings.NewReader(""), &stdout, &stderr, noDriver, fastWaits())
			if code != tt.want {
				t.Fatalf("run returned %d, want %d; stderr=%s", code, tt.want, stderr.String())
			}
		})
	}
}
