package trends

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvest/internal/catalog"
	"harvest/internal/extract"
	"harvest/internal/output"
	"harvest/internal/session"
)

const dashboard = `<html><body>
<header><input placeholder="Search"><a>My Planner</a></header>
<article><h2>CS 1337 Computer Science I</h2><p>Intro course that is not the one we asked about at all.</p></article>
<article>
  <h2>CS 6313 Statistical Methods for Data Science</h2>
  <p>Search Results</p>
  <p>CS 6313</p>
  <p>Statistical methods for data science including sampling, estimation and hypothesis testing.</p>
  <p>   </p>
  <p>Students apply regression and resampling techniques to real data sets.</p>
  <p>Offering Frequency: S</p>
  <p>This paragraph after the offering line is long enough to be kept.</p>
</article>
</body></html>`

var fixedNow = time.Date(2025, 8, 20, 9, 30, 0, 0, time.UTC)

func TestTermsAndURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, terms, url string
	}{
		{"CS 6313", "CS+6313", "https://trends.utdnebula.com/dashboard?availability=true&searchTerms=CS%2B6313"},
		{"mis6382", "MIS+6382", "https://trends.utdnebula.com/dashboard?availability=true&searchTerms=MIS%2B6382"},
		{"seminar", "", "https://trends.utdnebula.com/dashboard?availability=true&searchTerms=seminar"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.terms, Terms(tc.in), tc.in)
		assert.Equal(t, tc.url, BuildURL("", tc.in), tc.in)
	}
	assert.Equal(t, "CS_6313.html", RawName("cs 6313"))
}

func TestParseBlurb(t *testing.T) {
	t.Parallel()

	doc, err := extract.ParseString(dashboard)
	require.NoError(t, err)

	it := ParseBlurb(doc, "cs 6313", "https://t/x", fixedNow)
	assert.Equal(t, "CS 6313", it.CourseID)
	assert.Equal(t, "CS 6313 Statistical Methods for Data Science", it.Title)
	assert.Equal(t, "Statistical methods for data science including sampling, estimation and hypothesis testing. "+
		"Students apply regression and resampling techniques to real data sets.", it.Blurb)
	assert.Equal(t, "https://t/x", it.URL)
	assert.Equal(t, "2025-08-20T09:30:00Z", it.ScrapedAt)
}

func TestParseBlurb_NoCard(t *testing.T) {
	t.Parallel()

	doc, err := extract.ParseString(`<html><body><h1>Nothing</h1><p>Search</p></body></html>`)
	require.NoError(t, err)

	it := ParseBlurb(doc, "CS 9999", "u", fixedNow)
	assert.Equal(t, "Nothing", it.Title)
	assert.Empty(t, it.Blurb)
}

func TestTags(t *testing.T) {
	t.Parallel()

	got := Tags("CS 6313", "Statistical Methods for Data Science",
		"This course covers Regression and Bayesian Inference in Practice. Students use Python.")
	assert.Equal(t, []string{
		"Bayesian", "CS 6313", "Data", "Inference", "Methods",
		"Practice", "Regression", "Science", "Statistical", "This",
	}, got)

	assert.Equal(t, []string{"MIS 6382"}, Tags("MIS 6382", "", ""))
}

func strp(s string) *string { return &s }

func TestMerge(t *testing.T) {
	t.Parallel()

	courses := []catalog.Course{
		{CourseID: "CS 6313", CourseName: strp("Statistical Methods"), CatalogURL: "https://c/cs6313",
			ProgramTitle: strp("Computer Science"), ProgramPage: "https://c/p", ScrapedAt: "2025-08-20T09:00:00Z"},
		{CourseID: "MIS 6382", CatalogURL: "https://c/mis6382", ProgramPage: "https://c/p2"},
	}
	items := []Item{{CourseID: "cs 6313", Blurb: "Covers Sampling theory.", URL: "https://t/cs"}}

	docs := Merge(courses, items)
	require.Len(t, docs, 2)

	assert.Equal(t, "courses:CS_6313", docs[0].ID)
	assert.Equal(t, "courses", docs[0].Domain)
	assert.Equal(t, "CS 6313 — Statistical Methods. Covers Sampling theory.", docs[0].Text)
	assert.Equal(t, Meta{URL: "https://c/cs6313", ScrapedAt: "2025-08-20T09:00:00Z",
		ProgramTitle: "Computer Science", ProgramPage: "https://c/p"}, docs[0].Meta)
	assert.Contains(t, docs[0].Tags, "Sampling")

	assert.Equal(t, "courses:MIS_6382", docs[1].ID)
	assert.Equal(t, "MIS 6382", docs[1].Text)
	assert.Equal(t, []string{"MIS 6382"}, docs[1].Tags)
}

func TestReadItemsAndDocs(t *testing.T) {
	t.Parallel()

	items, err := ReadItems(strings.NewReader("{\"course_id\":\"CS 1\",\"blurb\":\"b\"}\n\n{\"course_id\":\"CS 2\"}\n"))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].Blurb)

	_, err = ReadItems(strings.NewReader("{bad"))
	assert.ErrorContains(t, err, "trends line 1")

	arr, err := ReadDocs(strings.NewReader(`[{"id":"courses:A","text":"a"}]`))
	require.NoError(t, err)
	require.Len(t, arr, 1)

	lines, err := ReadDocs(strings.NewReader("{\"id\":\"courses:A\"}\n{\"id\":\"courses:B\"}\n"))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "courses:B", lines[1].ID)
}

func TestUniqueIDs(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"CS 6313", "MIS 6382"}, UniqueIDs([]string{"CS 6313", " ", "cs 6313", "MIS 6382"}))
}

type fakeDriver struct {
	session.Driver
	pages   map[string]string
	current string
	visited []string
}

func (f *fakeDriver) Navigate(_ context.Context, u string) error {
	f.visited = append(f.visited, u)
	f.current = u
	return nil
}

func (f *fakeDriver) HTML(context.Context) (string, error) {
	if p, ok := f.pages[f.current]; ok {
		return p, nil
	}
	return "", errors.New("page crashed")
}

func TestScraper_Run(t *testing.T) {
	t.Parallel()

	d := &fakeDriver{pages: map[string]string{BuildURL("", "CS 6313"): dashboard}}
	sink := output.NewLocalSink(t.TempDir())
	log, hook := test.NewNullLogger()

	s := &Scraper{
		Driver: d, Sink: sink, Log: log,
		Now:   func() time.Time { return fixedNow },
		sleep: func(context.Context, time.Duration) bool { return true },
	}
	res, err := s.Run(context.Background(), []string{"CS 6313", "CS 9999"})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Attempted)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "clean/utdtrends/trends_20250820.jsonl", res.Key)

	f, err := os.Open(sink.Path(res.Key))
	require.NoError(t, err)
	defer f.Close()
	items, err := ReadItems(f)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "CS 6313", items[0].CourseID)

	raw, err := os.ReadFile(sink.Path(RawKey("CS 6313")))
	require.NoError(t, err)
	assert.Equal(t, dashboard, string(raw))

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Message == "skip course" && e.Data["course_id"] == "CS 9999" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestScraper_Limit(t *testing.T) {
	t.Parallel()

	d := &fakeDriver{pages: map[string]string{
		BuildURL("", "CS 6313"): dashboard,
		BuildURL("", "CS 1337"): dashboard,
	}}
	log, _ := test.NewNullLogger()
	s := &Scraper{
		Driver: d, Sink: output.NewLocalSink(t.TempDir()), Log: log, Limit: 1,
		sleep: func(context.Context, time.Duration) bool { return true },
	}
	res, err := s.Run(context.Background(), []string{"CS 6313", "CS 1337"})
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
	assert.Len(t, d.visited, 1)
}
