package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"harvest/internal/extract"
	"harvest/internal/metrics"
)

// DefaultAPIBase is the public Greenhouse job board API.
const DefaultAPIBase = "https://boards-api.greenhouse.io/v1/boards"

// APILocation accepts both {"name": "..."} and a bare string.
type APILocation struct {
	Name string `json:"name"`
}

func (l *APILocation) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &l.Name)
	}
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	type plain APILocation
	return json.Unmarshal(b, (*plain)(l))
}

// APIJob is one posting as returned by the board API.
type APIJob struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	AbsoluteURL string      `json:"absolute_url"`
	Location    APILocation `json:"location"`
	Content     string      `json:"content"`
	UpdatedAt   string      `json:"updated_at"`
}

type jobsResponse struct {
	Jobs []APIJob `json:"jobs"`
}

// APIClient lists postings through the JSON API instead of scraping boards.
type APIClient struct {
	http *resty.Client
	base string
}

// NewAPIClient uses c for requests; an empty base means DefaultAPIBase.
func NewAPIClient(c *resty.Client, base string) *APIClient {
	if base == "" {
		base = DefaultAPIBase
	}
	return &APIClient{http: c, base: strings.TrimRight(base, "/")}
}

// Jobs returns every posting on the company board, content included.
func (c *APIClient) Jobs(ctx context.Context, company string) ([]APIJob, error) {
	var out jobsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("company", strings.ToLower(strings.TrimSpace(company))).
		SetQueryParam("content", "true").
		SetResult(&out).
		Get(c.base + "/{company}/jobs")

	status, size, took := 0, int64(-1), time.Duration(-1)
	if resp != nil {
		status, size, took = resp.StatusCode(), resp.Size(), resp.Time()
	}
	metrics.RecordHTTP("jobs_api", status, err, took, took, size)

	if err != nil {
		return nil, fmt.Errorf("list %s jobs: %w", company, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("list %s jobs: http status %d", company, status)
	}
	return out.Jobs, nil
}

// MatchAPI applies the filter to an API posting. The role must appear in
// the title as typed. Without Strict any word of the city, or a remote
// location, is enough.
func (f Filter) MatchAPI(j APIJob) bool {
	if !f.anyRole() && !strings.Contains(strings.ToLower(j.Title), strings.ToLower(strings.TrimSpace(f.Role))) {
		return false
	}
	city := f.city()
	if city == "" {
		return true
	}
	loc := strings.ToLower(j.Location.Name)
	if f.Strict {
		return strings.Contains(loc, city)
	}
	if strings.Contains(loc, "remote") || strings.Contains(loc, "anywhere") {
		return true
	}
	for _, part := range strings.Fields(strings.ReplaceAll(city, ",", " ")) {
		if strings.Contains(loc, part) {
			return true
		}
	}
	return false
}

// Raw converts an API posting into the same shape as a scraped one.
func (j APIJob) Raw(company string) RawJob {
	body := html.UnescapeString(j.Content)
	raw := RawJob{
		URL:      j.AbsoluteURL,
		Title:    nonEmpty(j.Title),
		Location: nonEmpty(j.Location.Name),
		Company:  nonEmpty(cases.Title(language.English).String(strings.ReplaceAll(company, "-", " "))),
		HTML:     body,
	}
	if doc, err := extract.ParseString(body); err == nil {
		raw.Text = strings.Join(extract.Lines(doc.Selection), "\n")
	}
	return raw
}
