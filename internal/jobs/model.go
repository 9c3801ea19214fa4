package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"harvest/internal/normalize"
)

// maxPromptHTML caps the posting HTML sent to the model.
const maxPromptHTML = 15000

const extractSystem = `You are a job data extraction expert. Return only a valid JSON object, no other text.
Extract actual data from the posting and never invent values.
If a field is not found use null for numbers, "" for text and [] for lists.
For skills list programming languages, frameworks, tools and technologies.
For salary give plain numbers with k/K expanded to thousands.`

// Generator produces text for a system instruction and a user prompt.
// agent.Gemini satisfies it.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// ModelExtractor fills the posting summary from a language model. Fields the
// model leaves empty keep the heuristic value.
type ModelExtractor struct {
	Model Generator
	Norm  *normalize.Normalizer
}

type modelFields struct {
	Title        string   `json:"title"`
	Company      string   `json:"company"`
	Location     string   `json:"location"`
	DatePosted   string   `json:"date_posted"`
	SalaryLow    *float64 `json:"salary_low"`
	SalaryHigh   *float64 `json:"salary_high"`
	ListedSkills []string `json:"listed_skills"`
}

// Extract returns the heuristic summary of raw overlaid with the model's
// answer. On a model or decoding error the heuristic summary is returned
// together with the error.
func (m *ModelExtractor) Extract(ctx context.Context, raw RawJob) (Extracted, error) {
	n := m.Norm
	if n == nil {
		n = normalize.New(nil)
	}
	out, _ := Heuristic(n, raw)

	reply, err := m.Model.Generate(ctx, extractSystem, extractPrompt(raw))
	if err != nil {
		return out, fmt.Errorf("model extract %s: %w", raw.URL, err)
	}
	f, err := decodeModelFields(reply)
	if err != nil {
		return out, fmt.Errorf("model extract %s: %w", raw.URL, err)
	}

	if v := nonEmpty(f.Title); v != nil {
		out.Title = v
		out.ExperienceLevel = n.InferLevel(*v)
	}
	if v := nonEmpty(f.Company); v != nil {
		out.Company = v
	}
	if v := nonEmpty(f.Location); v != nil {
		out.Location = v
		place := n.InferLocation(*v, raw.Text)
		out.Country, out.CityState = place.Country, place.CityState
	}
	out.DatePosted = nonEmpty(f.DatePosted)
	if v, ok := salaryInt(f.SalaryLow); ok {
		out.SalaryMin = &v
	}
	if v, ok := salaryInt(f.SalaryHigh); ok {
		out.SalaryMax = &v
	}
	if skills := cleanSkills(f.ListedSkills); len(skills) > 0 {
		out.Skills = skills
	}
	return out, nil
}

func extractPrompt(raw RawJob) string {
	body := raw.HTML
	if body == "" {
		body = raw.Text
	}
	if len(body) > maxPromptHTML {
		body = strings.ToValidUTF8(body[:maxPromptHTML], "")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Job URL: %s\n\nHTML Content:\n%s\n\n", raw.URL, body)
	b.WriteString(`Return this JSON object:
{"title": "", "company": "", "location": "", "date_posted": "YYYY-MM-DD or empty",
 "salary_low": null, "salary_high": null, "listed_skills": []}`)
	return b.String()
}

var errNoJSON = errors.New("no JSON object in model reply")

// decodeModelFields reads the first JSON object in reply, ignoring code
// fences or prose around it.
func decodeModelFields(reply string) (modelFields, error) {
	var f modelFields
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return f, errNoJSON
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &f); err != nil {
		return f, fmt.Errorf("decode model reply: %w", err)
	}
	return f, nil
}

func salaryInt(f *float64) (int, bool) {
	if f == nil || math.IsNaN(*f) || *f <= 0 || *f > math.MaxInt32 {
		return 0, false
	}
	return int(math.Round(*f)), true
}

func cleanSkills(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	return out
}
