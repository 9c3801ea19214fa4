package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvest/internal/normalize"
	"harvest/internal/output"
)

type cannedModel struct {
	reply  string
	err    error
	prompt string
	system string
}

func (m *cannedModel) Generate(_ context.Context, system, prompt string) (string, error) {
	m.system, m.prompt = system, prompt
	return m.reply, m.err
}

func TestModelExtractor_Extract(t *testing.T) {
	t.Parallel()

	html := posting(t)
	raw := ParsePosting(parse(t, html), "https://boards.greenhouse.io/acme/jobs/1", html)
	m := &cannedModel{reply: "```json\n" + `{
		"title": "Staff Platform Engineer",
		"company": "Acme Corp",
		"location": "Denver, CO",
		"date_posted": "2025-08-01",
		"salary_low": 160000,
		"salary_high": null,
		"listed_skills": ["Go", "Terraform", "go", " "]
	}` + "\n```"}

	ex, err := (&ModelExtractor{Model: m, Norm: normalize.New(nil)}).Extract(context.Background(), raw)
	require.NoError(t, err)

	assert.Contains(t, m.prompt, "Job URL: https://boards.greenhouse.io/acme/jobs/1")
	assert.Contains(t, m.system, "valid JSON")

	assert.Equal(t, strp("Staff Platform Engineer"), ex.Title)
	assert.Equal(t, "staff", ex.ExperienceLevel)
	assert.Equal(t, strp("Acme Corp"), ex.Company)
	assert.Equal(t, strp("Denver, CO"), ex.Location)
	assert.Equal(t, strp("Denver, CO"), ex.CityState)
	assert.Equal(t, strp("2025-08-01"), ex.DatePosted)
	assert.Equal(t, []string{"Go", "Terraform"}, ex.Skills)
	require.NotNil(t, ex.SalaryMin)
	assert.Equal(t, 160000, *ex.SalaryMin)
	require.NotNil(t, ex.SalaryMax, "null keeps the heuristic value")
	assert.Equal(t, 180000, *ex.SalaryMax)
	assert.Equal(t, []string{"Build APIs in Go", "Own services end to end"}, ex.Responsibilities)
}

func TestModelExtractor_FallsBack(t *testing.T) {
	t.Parallel()

	html := posting(t)
	raw := ParsePosting(parse(t, html), "https://boards.greenhouse.io/acme/jobs/1", html)
	want, _ := Heuristic(normalize.New(nil), raw)

	tests := []struct {
		name  string
		model *cannedModel
	}{
		{name: "model error", model: &cannedModel{err: errors.New("quota exceeded")}},
		{name: "prose reply", model: &cannedModel{reply: "Sorry, I cannot help with that."}},
		{name: "broken json", model: &cannedModel{reply: `{"title": }`}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ex, err := (&ModelExtractor{Model: tc.model}).Extract(context.Background(), raw)
			require.Error(t, err)
			assert.Equal(t, want, ex)
		})
	}
}

func TestExtractPrompt_TruncatesHTML(t *testing.T) {
	t.Parallel()

	raw := RawJob{URL: "u", HTML: strings.Repeat("é", maxPromptHTML)}
	p := extractPrompt(raw)
	assert.Less(t, len(p), maxPromptHTML+500)
	assert.True(t, strings.Contains(p, "Job URL: u"))
}

func TestScraper_RunWithModel(t *testing.T) {
	t.Parallel()

	g := fakeGetter{
		"https://boards.greenhouse.io/acme": `<html><body>
			<a href="/acme/jobs/1">Senior Backend Engineer</a>
		</body></html>`,
		"https://boards.greenhouse.io/acme/jobs/1": posting(t),
	}
	sink := output.NewLocalSink(t.TempDir())
	log, hook := test.NewNullLogger()

	s := &Scraper{
		Getter:    g,
		Sink:      sink,
		Log:       log,
		Filter:    Filter{Role: "engineer"},
		Companies: []string{"acme"},
		Model:     &ModelExtractor{Model: &cannedModel{err: errors.New("unavailable")}},
	}
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Extracted, 1)
	assert.Equal(t, strp("Senior Backend Engineer"), res.Extracted[0].Title)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Message == "model extraction failed, using heuristic" {
			warned = true
		}
	}
	assert.True(t, warned)
}
