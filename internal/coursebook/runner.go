package coursebook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"harvest/internal/extract"
	"harvest/internal/metrics"
	"harvest/internal/normalize"
	"harvest/internal/output"
	"harvest/internal/session"
	"harvest/internal/storage"
)

// DefaultBaseURL is the CourseBook search page.
const DefaultBaseURL = "https://coursebook.utdallas.edu/search"

// DefaultUserAgent is sent by the CourseBook browser.
const DefaultUserAgent = "UTD-CourseBookBot/1.0 (+mailto:team@example.com)"

const (
	searchInput      = "input#srch"
	searchFallback   = "input[placeholder='Search for classes']"
	resultsSel       = "#searchresults"
	resultsTableSel  = "#sr table"
	rowSel           = "#sr table tbody tr.cb-row"
	authMenuSel      = "#pauth_menu"
	captchaSel       = "iframe[title='reCAPTCHA']"
	searchAttempts   = 2
	defaultRowsLimit = 50
)

// SectionsKey is the JSONL key sections are appended to for day.
func SectionsKey(day string) string {
	return "clean/coursebook/sections_" + day + ".jsonl"
}

// DebugKey is where the page is saved when a query yields no rows.
func DebugKey(courseID string) string {
	return "debug/no_rows_" + courseID + ".html"
}

// Section is one CourseBook result row with its parsed detail panel.
type Section struct {
	Query      string `json:"query"`
	Section    string `json:"section"`
	ClassTitle string `json:"class_title"`
	Detail
}

// Waits used by the runner. Zero values are replaced by the defaults.
type Waits struct {
	Politeness  time.Duration // after opening the search page
	Results     time.Duration // for #searchresults
	ResultsAlt  time.Duration // for the results table
	Populate    time.Duration // after results appear
	Retry       time.Duration // between empty attempts
	Expand      time.Duration // after clicking Class Detail
	SyllabusTab time.Duration // after opening the syllabus tab
	BetweenIDs  time.Duration
	Poll        time.Duration
}

func (w Waits) withDefaults() Waits {
	def := func(d *time.Duration, v time.Duration) {
		if *d <= 0 {
			*d = v
		}
	}
	def(&w.Politeness, 1200*time.Millisecond)
	def(&w.Results, 12*time.Second)
	def(&w.ResultsAlt, 7*time.Second)
	def(&w.Populate, 2*time.Second)
	def(&w.Retry, 3*time.Second)
	def(&w.Expand, 800*time.Millisecond)
	def(&w.SyllabusTab, 400*time.Millisecond)
	def(&w.BetweenIDs, 1500*time.Millisecond)
	def(&w.Poll, 250*time.Millisecond)
	return w
}

// Runner queries CourseBook once per course id and appends every parsed
// section to the day's JSONL.
type Runner struct {
	Driver  session.Driver
	Session *session.Session
	Sink    output.Sink
	Norm    *normalize.Normalizer
	Log     logrus.FieldLogger
	// Store receives every section as well; nil skips it.
	Store *storage.Recorder

	BaseURL string
	// Limit caps rows per course id; <= 0 means 50.
	Limit int
	Waits Waits
	Now   func() time.Time

	sleep func(ctx context.Context, d time.Duration) bool
}

// Result summarises a run.
type Result struct {
	Attempted int
	Sections  int
	// NoRows lists course ids whose query never produced rows.
	NoRows []string
	// Failed counts course ids whose search failed plus rows that could
	// not be read.
	Failed int
	Key    string
}

// Run opens the search page, makes sure the operator is logged in and then
// scrapes ids in order.
func (r *Runner) Run(ctx context.Context, ids []string) (Result, error) {
	w := r.Waits.withDefaults()
	base := r.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	limit := r.Limit
	if limit <= 0 {
		limit = defaultRowsLimit
	}
	if r.Norm == nil {
		r.Norm = normalize.New(nil)
	}
	res := Result{Key: SectionsKey(output.DateStamp(r.now()))}

	if err := r.Driver.Navigate(ctx, base); err != nil {
		return res, fmt.Errorf("open %s: %w", base, err)
	}
	if !r.pause(ctx, w.Politeness) {
		return res, ctx.Err()
	}
	if err := r.Session.Ensure(ctx, r.loggedIn); err != nil {
		return res, err
	}

	for n, cid := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempted++
		query := "now " + cid
		log := r.Log.WithFields(logrus.Fields{"query": query, "id": fmt.Sprintf("%d/%d", n+1, len(ids))})

		rows, err := r.search(ctx, query, w, log)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			metrics.RecordDocument("coursebook", "error")
			log.WithField("reason", err).Warn("skip course id")
			continue
		}
		if rows == 0 {
			res.NoRows = append(res.NoRows, cid)
			metrics.RecordDocument("coursebook", "no_rows")
			r.saveDebug(ctx, cid, log)
			continue
		}

		total := min(rows, limit)
		log.WithField("rows", total).Info("found rows")
		stored := 0
		for j := 0; j < total; j++ {
			sec, err := r.section(ctx, j, query, w, log)
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				res.Failed++
				metrics.RecordDocument("coursebook", "error")
				log.WithFields(logrus.Fields{"row": j, "reason": err}).Warn("skip row")
				continue
			}
			if err := output.AppendJSON(ctx, r.Sink, res.Key, sec); err != nil {
				return res, fmt.Errorf("append section: %w", err)
			}
			if err := r.Store.Add(storage.NaturalKey("section", res.Key, sec.Section), sec, r.now()); err != nil {
				return res, err
			}
			res.Sections++
			stored++
		}
		if stored > 0 {
			metrics.RecordDocument("coursebook", "ok")
			metrics.RecordRecords("section", stored)
		}

		if !r.pause(ctx, w.BetweenIDs) {
			return res, ctx.Err()
		}
	}
	return res, nil
}

// loggedIn treats a missing auth menu, a LOGIN link or a visible reCAPTCHA
// as "needs login".
func (r *Runner) loggedIn(ctx context.Context) (bool, error) {
	n, err := r.Driver.Count(ctx, authMenuSel)
	if err != nil || n == 0 {
		return false, err
	}
	txt, err := r.Driver.Text(ctx, authMenuSel)
	if err != nil {
		return false, err
	}
	if strings.Contains(strings.ToUpper(txt), "LOGIN") {
		return false, nil
	}
	captcha, err := r.Driver.Count(ctx, captchaSel)
	if err != nil {
		return false, err
	}
	return captcha == 0, nil
}

// search submits query up to searchAttempts times and returns the row count.
func (r *Runner) search(ctx context.Context, query string, w Waits, log logrus.FieldLogger) (int, error) {
	for attempt := 1; attempt <= searchAttempts; attempt++ {
		input := searchInput
		if n, err := r.Driver.Count(ctx, searchInput); err != nil {
			return 0, err
		} else if n == 0 {
			input = searchFallback
		}
		if err := r.Driver.Submit(ctx, input, query); err != nil {
			log.WithField("reason", err).Warn("submit search")
		}

		ok, err := session.WaitFor(ctx, r.Driver, resultsSel, w.Results, w.Poll)
		if err != nil {
			return 0, err
		}
		if !ok {
			if _, err := session.WaitFor(ctx, r.Driver, resultsTableSel, w.ResultsAlt, w.Poll); err != nil {
				return 0, err
			}
		}
		if !r.pause(ctx, w.Populate) {
			return 0, ctx.Err()
		}

		rows, err := r.Driver.Count(ctx, rowSel)
		if err != nil {
			return 0, err
		}
		if rows > 0 {
			return rows, nil
		}
		log.WithField("attempt", attempt).Info("no rows yet, waiting")
		if !r.pause(ctx, w.Retry) {
			return 0, ctx.Err()
		}
	}
	return 0, nil
}

func (r *Runner) section(ctx context.Context, j int, query string, w Waits, log logrus.FieldLogger) (Section, error) {
	var cells []string
	if err := r.Driver.Eval(ctx, rowCellsJS(j), &cells); err != nil {
		return Section{}, fmt.Errorf("read row %d: %w", j, err)
	}
	sec := Section{Query: query, Section: cell(cells, 1), ClassTitle: cell(cells, 3)}

	var clicked bool
	if err := r.Driver.Eval(ctx, clickDetailJS(j), &clicked); err != nil {
		return sec, fmt.Errorf("expand row %d: %w", j, err)
	}
	if clicked && !r.pause(ctx, w.Expand) {
		return sec, ctx.Err()
	}

	panel, err := r.panelHTML(ctx, j)
	if err != nil {
		return sec, err
	}
	detail, amb := ParseDetail(r.Norm, panel)
	extract.LogAmbiguities(log, amb)

	if err := r.Driver.Eval(ctx, clickSyllabusJS(j), &clicked); err != nil {
		return sec, fmt.Errorf("open syllabus tab %d: %w", j, err)
	}
	if clicked {
		if !r.pause(ctx, w.SyllabusTab) {
			return sec, ctx.Err()
		}
		panel, err := r.panelHTML(ctx, j)
		if err != nil {
			return sec, err
		}
		if u := SyllabusURL(panel); u != nil {
			detail.SyllabusURL = u
		}
	}

	sec.Detail = detail
	return sec, nil
}

func (r *Runner) panelHTML(ctx context.Context, j int) (string, error) {
	var s string
	if err := r.Driver.Eval(ctx, expandedJS(j), &s); err != nil {
		return "", fmt.Errorf("read detail panel %d: %w", j, err)
	}
	return s, nil
}

func (r *Runner) saveDebug(ctx context.Context, cid string, log logrus.FieldLogger) {
	page, err := r.Driver.HTML(ctx)
	if err == nil {
		err = r.Sink.Write(ctx, DebugKey(cid), []byte(page))
	}
	if err != nil {
		log.WithField("reason", err).Warn("no rows, debug page not saved")
		return
	}
	log.WithField("debug", DebugKey(cid)).Warn("no rows parsed, saved debug page")
}

func (r *Runner) pause(ctx context.Context, d time.Duration) bool {
	if r.sleep != nil {
		return r.sleep(ctx, d)
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

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func cell(cells []string, i int) string {
	if i < len(cells) {
		return strings.TrimSpace(cells[i])
	}
	return ""
}

func jsQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// rowJS wraps body in a function receiving row j of the results table as r.
func rowJS(marker string, j int, body string) string {
	return fmt.Sprintf(`/*%s*/(() => { const r = document.querySelectorAll(%s)[%d]; if (!r) return %s; %s })()`,
		marker, jsQuote(rowSel), j, zeroFor(marker), body)
}

func zeroFor(marker string) string {
	switch marker {
	case "cells":
		return "[]"
	case "expanded":
		return `""`
	default:
		return "false"
	}
}

func rowCellsJS(j int) string {
	return rowJS("cells", j, `return Array.from(r.querySelectorAll("td")).map(td => td.innerText);`)
}

func clickDetailJS(j int) string {
	return rowJS("detail", j, `
		const pick = sel => Array.from(r.querySelectorAll(sel)).find(b => b.innerText.includes("Class Detail"));
		const b = pick("button.has-cb-row-action") || pick("td button");
		if (!b) return false;
		b.click();
		return true;`)
}

func clickSyllabusJS(j int) string {
	return rowJS("syllabus", j, `
		const b = Array.from(r.querySelectorAll("button.has-cb-action.is-tab")).find(b => /syllabus/i.test(b.innerText));
		if (!b) return false;
		b.click();
		return true;`)
}

func expandedJS(j int) string {
	return rowJS("expanded", j, `
		const next = r.nextElementSibling;
		if (!next) return "";
		const td = next.querySelector("td");
		return td ? td.innerHTML : "";`)
}
