package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvest/internal/extract"
	"harvest/internal/fetch"
	"harvest/internal/output"
)

const itemHTML = `<html><body>
<h1>Information Technology and Management</h1>
<h2>Master of Science in Information Technology and Management</h2>
<p>36 semester credit hours minimum</p>
<h3 id="degree-requirements">Degree Requirements</h3>
<p>The program requires core and elective courses.</p>
<ul><li>Core courses: 18 hours</li><li>Electives: 18 hours</li></ul>
<h3>Admission Prerequisites</h3>
<p>Students must complete the following prerequisite.</p>
<h3>Course Requirements</h3>
<p><a href="/2023/graduate/courses/mis6308">MIS 6308</a> System Analysis and Project Management</p>
<p><a href="/2023/graduate/courses/mis6326">MIS 6326 Data Management</a></p>
<p><a href="/2023/graduate/courses/mis6308">MIS 6308</a> again</p>
</body></html>`

func TestParseItemPage(t *testing.T) {
	t.Parallel()

	doc, err := extract.ParseString(itemHTML)
	require.NoError(t, err)

	pageURL := "https://catalog.utdallas.edu/2023/graduate/programs/jsom/information-technology-management"
	page, amb := ParseItemPage(doc, pageURL, fixedNow)
	assert.Empty(t, amb)

	assert.Equal(t, pageURL, page.SourceURL)
	assert.Equal(t, strp("Information Technology and Management"), page.PageTitle)
	assert.Equal(t, strp("Master of Science in Information Technology and Management"), page.DegreeName)
	assert.Equal(t, strp("36 semester credit hours minimum"), page.CreditHoursLine)
	assert.Equal(t, strp("The program requires core and elective courses.\nCore courses: 18 hours\nElectives: 18 hours"),
		page.Sections.DegreeRequirements)
	assert.Equal(t, strp("Students must complete the following prerequisite."), page.Sections.Prerequisite)
	assert.Equal(t, strp("MIS 6308 System Analysis and Project Management\nMIS 6326 Data Management\nMIS 6308 again"),
		page.Sections.CourseRequirements)
	assert.Equal(t, "2025-09-01T15:04:05Z", page.ScrapedAt)

	assert.Equal(t, []ItemCourse{
		{
			CourseID:   "MIS 6308",
			CourseName: strp("System Analysis and Project Management"),
			FullText:   "MIS 6308 System Analysis and Project Management",
			Href:       "https://catalog.utdallas.edu/2023/graduate/courses/mis6308",
		},
		{
			CourseID:   "MIS 6326",
			CourseName: strp("Data Management"),
			FullText:   "MIS 6326 Data Management",
			Href:       "https://catalog.utdallas.edu/2023/graduate/courses/mis6326",
		},
	}, page.CoursesFound)
}

func TestParseItemPage_Empty(t *testing.T) {
	t.Parallel()

	doc, err := extract.ParseString(`<html><body><p>Nothing to see</p></body></html>`)
	require.NoError(t, err)

	page, _ := ParseItemPage(doc, "https://c.example/p", fixedNow)
	assert.Nil(t, page.PageTitle)
	assert.Nil(t, page.DegreeName)
	assert.Nil(t, page.CreditHoursLine)
	assert.Equal(t, ItemSections{}, page.Sections)
	assert.Equal(t, []ItemCourse{}, page.CoursesFound)
}

func TestCrawlItems(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/programs/itm", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(itemHTML))
	})
	mux.HandleFunc("/programs/gone", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	sink := output.NewLocalSink(t.TempDir())
	log, hook := test.NewNullLogger()
	c := &Crawler{
		Getter: fetch.NewFetcher(fetch.Options{Client: srv.Client()}),
		Sink:   sink,
		Log:    log,
		Now:    func() time.Time { return fixedNow },
	}

	res, err := c.CrawlItems(context.Background(), []string{srv.URL + "/programs/gone", srv.URL + "/programs/itm"})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Attempted)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Pages, 1)
	assert.Len(t, res.Pages[0].CoursesFound, 2)
	assert.GreaterOrEqual(t, res.Pages[0].DownloadElapsedMS, int64(0))
	assert.Equal(t, []string{"raw/catalog/20250901/programs-itm.html"}, res.RawKeys)

	var skipped bool
	for _, e := range hook.AllEntries() {
		if e.Message == "skip item page" && e.Data["url"] == srv.URL+"/programs/gone" {
			skipped = true
		}
	}
	assert.True(t, skipped)
}

func strp(s string) *string { return &s }
