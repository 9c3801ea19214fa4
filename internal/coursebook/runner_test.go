package coursebook

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvest/internal/output"
	"harvest/internal/session"
)

// fakeBrowser serves canned search results keyed by the submitted query.
type fakeBrowser struct {
	session.Driver

	loggedIn bool
	rows     map[string][][]string // query -> row cells
	panel    string
	syllabus string
	// staleRow makes the detail click fail for one row of a query.
	staleRow map[string]int
	// brokenCount makes the row count fail for a query.
	brokenCount map[string]bool

	query    string
	expanded map[int]bool
	tabbed   map[int]bool
	reloads  int
	submits  []string
}

var evalRE = regexp.MustCompile(`^/\*(\w+)\*/.*\)\[(\d+)\]`)

func (f *fakeBrowser) Navigate(context.Context, string) error { return nil }

func (f *fakeBrowser) Reload(context.Context) error {
	f.reloads++
	f.loggedIn = true
	return nil
}

func (f *fakeBrowser) Count(_ context.Context, sel string) (int, error) {
	switch sel {
	case authMenuSel:
		return 1, nil
	case captchaSel:
		return 0, nil
	case searchInput:
		return 1, nil
	case rowSel:
		if f.brokenCount[f.query] {
			return 0, errors.New("results table detached")
		}
		return len(f.rows[f.query]), nil
	case resultsSel:
		return len(f.rows[f.query]), nil
	}
	return 0, nil
}

func (f *fakeBrowser) Text(_ context.Context, sel string) (string, error) {
	if sel == authMenuSel && !f.loggedIn {
		return "Login", nil
	}
	return "Jane Doe", nil
}

func (f *fakeBrowser) Submit(_ context.Context, _ string, query string) error {
	f.query = query
	f.submits = append(f.submits, query)
	f.expanded, f.tabbed = map[int]bool{}, map[int]bool{}
	return nil
}

func (f *fakeBrowser) HTML(context.Context) (string, error) {
	return "<html><body>empty</body></html>", nil
}

func (f *fakeBrowser) Eval(_ context.Context, expr string, out any) error {
	m := evalRE.FindStringSubmatch(expr)
	if m == nil {
		return json.Unmarshal([]byte("null"), out)
	}
	j, _ := strconv.Atoi(m[2])
	var v any
	switch m[1] {
	case "cells":
		v = f.rows[f.query][j]
	case "detail":
		if row, ok := f.staleRow[f.query]; ok && row == j {
			return errors.New("stale element")
		}
		f.expanded[j] = true
		v = true
	case "syllabus":
		f.tabbed[j] = f.syllabus != ""
		v = f.tabbed[j]
	case "expanded":
		switch {
		case f.tabbed[j]:
			v = f.syllabus
		case f.expanded[j]:
			v = f.panel
		default:
			v = ""
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func newTestRunner(t *testing.T, d session.Driver) (*Runner, *output.LocalSink) {
	t.Helper()
	log, _ := test.NewNullLogger()
	sess := session.New(d, signalFunc(func(context.Context) error { return nil }), log)
	sess.Settle = 0
	sink := output.NewLocalSink(t.TempDir())
	return &Runner{
		Driver:  d,
		Session: sess,
		Sink:    sink,
		Log:     log,
		Waits:   Waits{Results: time.Millisecond, ResultsAlt: time.Millisecond, Poll: time.Millisecond},
		Now:     func() time.Time { return time.Date(2025, 8, 20, 15, 0, 0, 0, time.UTC) },
		sleep:   func(context.Context, time.Duration) bool { return true },
	}, sink
}

type signalFunc func(ctx context.Context) error

func (f signalFunc) Wait(ctx context.Context) error { return f(ctx) }

func readSections(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	panel := loadPanel(t)
	d := &fakeBrowser{
		loggedIn: false,
		rows: map[string][][]string{
			"now cs6313": {
				{"", "CS 6313.001", "85642", "Statistical Methods for Data Science"},
				{"", "CS 6313.002", "85643", "Statistical Methods for Data Science"},
			},
		},
		panel:    panel,
		syllabus: `<table><tr><th>Syllabus:</th><td><a href="https://dox.utdallas.edu/syl123">View</a></td></tr></table>`,
	}
	r, sink := newTestRunner(t, d)

	res, err := r.Run(context.Background(), []string{"cs6313", "cs9999"})
	require.NoError(t, err)

	assert.Equal(t, 1, d.reloads, "login wait reloads once")
	assert.Equal(t, 2, res.Attempted)
	assert.Equal(t, 2, res.Sections)
	assert.Equal(t, []string{"cs9999"}, res.NoRows)
	assert.Equal(t, "clean/coursebook/sections_20250820.jsonl", res.Key)
	assert.Equal(t, []string{"now cs6313", "now cs9999", "now cs9999"}, d.submits)

	rows := readSections(t, sink.Path(res.Key))
	require.Len(t, rows, 2)
	assert.Equal(t, "now cs6313", rows[0]["query"])
	assert.Equal(t, "CS 6313.001", rows[0]["section"])
	assert.Equal(t, "Statistical Methods for Data Science", rows[0]["class_title"])
	assert.Equal(t, "https://dox.utdallas.edu/syl123", rows[0]["syllabus_url"])
	assert.Equal(t, "OPEN", rows[0]["enrollment_status"])
	assert.Equal(t, "CS 6313.002", rows[1]["section"])

	_, err = os.Stat(sink.Path(DebugKey("cs9999")))
	assert.NoError(t, err)
}

func TestRunner_Limit(t *testing.T) {
	t.Parallel()

	d := &fakeBrowser{
		loggedIn: true,
		rows: map[string][][]string{
			"now cs1337": {{"", "A", "", "T"}, {"", "B", "", "T"}, {"", "C", "", "T"}},
		},
		panel: "<p>nothing</p>",
	}
	r, sink := newTestRunner(t, d)
	r.Limit = 2

	res, err := r.Run(context.Background(), []string{"cs1337"})
	require.NoError(t, err)
	assert.Zero(t, d.reloads)
	assert.Equal(t, 2, res.Sections)

	rows := readSections(t, sink.Path(res.Key))
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0]["syllabus_url"])
	assert.Equal(t, []any{}, rows[0]["instructors"])
}

func TestRunner_SkipsFailedRowsAndIDs(t *testing.T) {
	t.Parallel()

	d := &fakeBrowser{
		loggedIn: true,
		rows: map[string][][]string{
			"now cs1": {{"", "CS 1.001", "", "T"}, {"", "CS 1.002", "", "T"}},
			"now cs2": {{"", "CS 2.001", "", "T"}},
			"now cs3": {{"", "CS 3.001", "", "T"}},
		},
		panel:       "<p>nothing</p>",
		staleRow:    map[string]int{"now cs1": 0},
		brokenCount: map[string]bool{"now cs2": true},
	}
	r, sink := newTestRunner(t, d)
	log, hook := test.NewNullLogger()
	r.Log = log

	res, err := r.Run(context.Background(), []string{"cs1", "cs2", "cs3"})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Attempted)
	assert.Equal(t, 2, res.Sections)
	assert.Equal(t, 2, res.Failed)
	assert.Empty(t, res.NoRows)
	assert.Equal(t, []string{"now cs1", "now cs2", "now cs3"}, d.submits)

	rows := readSections(t, sink.Path(res.Key))
	require.Len(t, rows, 2)
	assert.Equal(t, "CS 1.002", rows[0]["section"])
	assert.Equal(t, "CS 3.001", rows[1]["section"])

	var msgs []string
	for _, e := range hook.AllEntries() {
		msgs = append(msgs, e.Message)
	}
	assert.Contains(t, msgs, "skip row")
	assert.Contains(t, msgs, "skip course id")
}

func TestRunner_Cancelled(t *testing.T) {
	t.Parallel()

	d := &fakeBrowser{loggedIn: true}
	r, _ := newTestRunner(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, []string{"cs1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvalScriptsCarryMarkers(t *testing.T) {
	t.Parallel()

	for marker, js := range map[string]string{
		"cells":    rowCellsJS(3),
		"detail":   clickDetailJS(3),
		"syllabus": clickSyllabusJS(3),
		"expanded": expandedJS(3),
	} {
		m := evalRE.FindStringSubmatch(js)
		require.NotNil(t, m, marker)
		assert.Equal(t, marker, m[1])
		assert.Equal(t, "3", m[2])
	}
}
