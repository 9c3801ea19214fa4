package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvest/internal/extract"
	"harvest/internal/fetch"
	"harvest/internal/normalize"
	"harvest/internal/output"
)

func parse(t *testing.T, s string) *goquery.Document {
	t.Helper()
	doc, err := extract.ParseString(s)
	require.NoError(t, err)
	return doc
}

func posting(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile("testdata/posting.html")
	require.NoError(t, err)
	return string(b)
}

func strp(s string) *string { return &s }

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	doc := parse(t, `<div>
		<a href="/acme/jobs/123">Engineer</a>
		<a href="https://boards.greenhouse.io/acme/jobs/123">dup</a>
		<a href="?gh_jid=456">Designer</a>
		<a href="https://example.com/jobs/9">elsewhere</a>
		<a href="/acme/about">About</a>
		<a href="">empty</a>
	</div>`)

	got := ExtractLinks(doc, "https://boards.greenhouse.io/acme")
	assert.Equal(t, []string{
		"https://boards.greenhouse.io/acme/jobs/123",
		"https://boards.greenhouse.io/acme?gh_jid=456",
	}, got)
}

func TestFilter_Match(t *testing.T) {
	t.Parallel()

	doc := parse(t, posting(t))
	tests := []struct {
		name string
		f    Filter
		want bool
	}{
		{"all", Filter{Role: "all", City: "all"}, true},
		{"role tokens", Filter{Role: "backend senior"}, true},
		{"role miss", Filter{Role: "frontend"}, false},
		{"strict city", Filter{City: "Austin, TX", Strict: true}, true},
		{"strict miss", Filter{City: "Austin, Texas", Strict: true}, false},
		{"loose city", Filter{City: "Austin, Texas"}, true},
		{"loose miss", Filter{City: "Dallas, TX"}, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.f.Match(doc), tc.name)
	}
}

func TestParsePosting(t *testing.T) {
	t.Parallel()

	html := posting(t)
	job := ParsePosting(parse(t, html), "https://boards.greenhouse.io/acme/jobs/1", html)
	assert.Equal(t, strp("Senior Backend Engineer"), job.Title)
	assert.Equal(t, strp("Acme"), job.Company)
	assert.Equal(t, strp("Austin, TX"), job.Location)
	assert.NotContains(t, job.Text, "dataLayer")
	assert.Contains(t, job.Text, "Build APIs in Go\nOwn services end to end")

	bare := `<html><body><h2>Data Analyst</h2><div class="opening">Remote; New York, NY</div></body></html>`
	job = ParsePosting(parse(t, bare), "https://job-boards.greenhouse.io/globex/jobs/2", bare)
	assert.Equal(t, strp("Data Analyst"), job.Title)
	assert.Equal(t, strp("globex"), job.Company)
	assert.Equal(t, strp("Remote; New York, NY"), job.Location)
}

func TestHeuristic(t *testing.T) {
	t.Parallel()

	html := posting(t)
	raw := ParsePosting(parse(t, html), "https://boards.greenhouse.io/acme/jobs/1", html)
	ex, amb := Heuristic(normalize.New(nil), raw)
	assert.Empty(t, amb)

	assert.Equal(t, strp("Hybrid"), ex.WorkMode)
	assert.Equal(t, strp("Full-Time"), ex.EmploymentType)
	assert.Equal(t, "senior", ex.ExperienceLevel)
	assert.Equal(t, []string{"Go", "Python", "SQL"}, ex.Skills)
	assert.Equal(t, []string{"Build APIs in Go", "Own services end to end"}, ex.Responsibilities)
	assert.Equal(t, []string{"5+ years of experience", "SQL and Python"}, ex.Qualifications)
	assert.Equal(t, []string{
		"Health insurance",
		"The base salary range for this role is $150,000 - $180,000 per year.",
	}, ex.Benefits)
	assert.Equal(t, strp("United States"), ex.Country)
	assert.Equal(t, strp("Austin, TX"), ex.CityState)
	require.NotNil(t, ex.SalaryMin)
	require.NotNil(t, ex.SalaryMax)
	assert.Equal(t, 150000, *ex.SalaryMin)
	assert.Equal(t, 180000, *ex.SalaryMax)
	assert.Equal(t, strp("year"), ex.SalaryUnit)
	assert.Equal(t, strp("USD"), ex.SalaryCurrency)
	assert.Nil(t, ex.Sector)
}

func TestHeuristic_TextFallback(t *testing.T) {
	t.Parallel()

	html := `<html><body><div>Requirements<br>• Go • Kubernetes<br>Benefits<br>Dental</div></body></html>`
	raw := RawJob{URL: "u", HTML: html, Text: "Requirements\n• Go • Kubernetes\nBenefits\nDental"}
	ex, _ := Heuristic(normalize.New(nil), raw)

	assert.Equal(t, []string{"Go", "Kubernetes"}, ex.Qualifications)
	assert.Equal(t, []string{}, ex.Responsibilities)
	assert.Nil(t, ex.WorkMode)
}

func TestAPIClient_Jobs(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/acme/jobs":
			assert.Equal(t, "true", r.URL.Query().Get("content"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"jobs":[
				{"id":1,"title":"Senior Data Engineer","absolute_url":"https://boards.greenhouse.io/acme/jobs/1",
				 "location":{"name":"Dallas, TX"},"content":"&lt;h3&gt;Qualifications&lt;/h3&gt;&lt;ul&gt;&lt;li&gt;Spark&lt;/li&gt;&lt;/ul&gt;"},
				{"id":2,"title":"Recruiter","absolute_url":"https://boards.greenhouse.io/acme/jobs/2","location":"Remote"}
			]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewAPIClient(resty.New(), srv.URL)
	jobs, err := c.Jobs(context.Background(), "Acme")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "Dallas, TX", jobs[0].Location.Name)
	assert.Equal(t, "Remote", jobs[1].Location.Name)

	raw := jobs[0].Raw("acme-corp")
	assert.Equal(t, strp("Acme Corp"), raw.Company)
	assert.Equal(t, "<h3>Qualifications</h3><ul><li>Spark</li></ul>", raw.HTML)
	assert.Equal(t, "Qualifications\nSpark", raw.Text)

	_, err = c.Jobs(context.Background(), "missing")
	assert.ErrorContains(t, err, "http status 404")
}

func TestFilter_MatchAPI(t *testing.T) {
	t.Parallel()

	job := func(title, loc string) APIJob {
		return APIJob{Title: title, Location: APILocation{Name: loc}}
	}
	tests := []struct {
		name string
		f    Filter
		j    APIJob
		want bool
	}{
		{"no filters", Filter{}, job("Anything", "Mars"), true},
		{"role substring", Filter{Role: "data engineer"}, job("Senior Data Engineer", ""), true},
		{"role order matters", Filter{Role: "engineer data"}, job("Senior Data Engineer", ""), false},
		{"loose any word", Filter{City: "Austin, TX"}, job("x", "Dallas, TX"), true},
		{"loose remote", Filter{City: "Austin"}, job("x", "Remote - US"), true},
		{"loose miss", Filter{City: "Austin"}, job("x", "Boston, MA"), false},
		{"strict", Filter{City: "austin, tx", Strict: true}, job("x", "Austin, TX"), true},
		{"strict remote not enough", Filter{City: "Austin", Strict: true}, job("x", "Remote"), false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.f.MatchAPI(tc.j), tc.name)
	}
}

// fakeGetter serves pages by URL; unknown URLs answer 404.
type fakeGetter map[string]string

func (f fakeGetter) Get(_ context.Context, u string) (*fetch.Page, error) {
	body, ok := f[u]
	if !ok {
		return nil, &fetch.StatusError{URL: u, Code: http.StatusNotFound}
	}
	return &fetch.Page{URL: u, Status: 200, ContentType: "text/html; charset=utf-8", Body: []byte(body)}, nil
}

func TestResolveBoard(t *testing.T) {
	t.Parallel()

	g := fakeGetter{"https://job-boards.greenhouse.io/acme": `<html><body>board</body></html>`}
	u, doc, err := ResolveBoard(context.Background(), g, " ACME ")
	require.NoError(t, err)
	assert.Equal(t, "https://job-boards.greenhouse.io/acme", u)
	assert.NotNil(t, doc)

	_, _, err = ResolveBoard(context.Background(), g, "nobody")
	assert.True(t, errors.Is(err, ErrNoBoard))
	var se *fetch.StatusError
	assert.True(t, errors.As(err, &se))
}

func TestScraper_Run(t *testing.T) {
	t.Parallel()

	g := fakeGetter{
		"https://boards.greenhouse.io/acme": `<html><body>
			<a href="/acme/jobs/1">Senior Backend Engineer</a>
			<a href="/acme/jobs/2">Office Manager</a>
			<a href="/acme/jobs/3">Broken</a>
		</body></html>`,
		"https://boards.greenhouse.io/acme/jobs/1": posting(t),
		"https://boards.greenhouse.io/acme/jobs/2": `<html><body><h1>Office Manager</h1></body></html>`,
	}
	sink := output.NewLocalSink(t.TempDir())
	log, hook := test.NewNullLogger()

	s := &Scraper{
		Getter:    g,
		Sink:      sink,
		Log:       log,
		Filter:    Filter{Role: "engineer"},
		Companies: []string{"acme", "ghost"},
	}
	res, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"https://boards.greenhouse.io/acme/jobs/1"}, res.Links)
	assert.Equal(t, 1, res.Boards)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Extracted, 1)
	assert.Equal(t, strp("Senior Backend Engineer"), res.Extracted[0].Title)

	links, err := os.ReadFile(sink.Path(LinksKey))
	require.NoError(t, err)
	assert.Equal(t, `{"source":"greenhouse","url":"https://boards.greenhouse.io/acme/jobs/1"}`+"\n", string(links))

	extracted, err := os.ReadFile(sink.Path(ExtractedKey))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(extracted), "\n"))
	assert.Contains(t, string(extracted), `"salary_min":150000`)

	_, err = os.Stat(sink.Path(RawKey))
	assert.NoError(t, err)

	var skipped bool
	for _, e := range hook.AllEntries() {
		if e.Message == "skip posting" && e.Data["url"] == "https://boards.greenhouse.io/acme/jobs/3" {
			skipped = true
		}
	}
	assert.True(t, skipped)
}

func TestScraper_RunAPILimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jobs":[
			{"id":1,"title":"Engineer I","absolute_url":"https://boards.greenhouse.io/acme/jobs/1","location":{"name":"Remote"}},
			{"id":2,"title":"Engineer II","absolute_url":"https://boards.greenhouse.io/acme/jobs/2","location":{"name":"Remote"}},
			{"id":3,"title":"Engineer III","absolute_url":"https://example.com/3","location":{"name":"Remote"}}
		]}`))
	}))
	defer srv.Close()

	log, _ := test.NewNullLogger()
	s := &Scraper{
		API:       NewAPIClient(resty.New(), srv.URL),
		Sink:      output.NewLocalSink(t.TempDir()),
		Log:       log,
		Companies: []string{"acme", "acme"},
		Limit:     1,
	}
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://boards.greenhouse.io/acme/jobs/1"}, res.Links)
	assert.Equal(t, 1, res.Boards)
}
