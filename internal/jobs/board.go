// Package jobs scrapes Greenhouse job boards: board discovery, posting
// download and heuristic extraction of the posting body.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"harvest/internal/dedupe"
	"harvest/internal/extract"
	"harvest/internal/fetch"
)

// BoardBases are tried in order when resolving a company board.
var BoardBases = []string{
	"https://boards.greenhouse.io/",
	"https://job-boards.greenhouse.io/",
}

// DefaultCompanies are the board slugs scanned when none are configured.
var DefaultCompanies = []string{
	"figma", "gitlab", "robinhood", "airtable", "affirm", "carta", "checkr", "earnin", "gusto", "mercury",
	"buildkite", "airbyte", "anthropic", "honehealth", "springhealth66", "vivian", "stellarhealth", "quince",
	"mejuri", "doordashusa", "aninebing", "coursera", "degreed", "cc", "aircompany", "weee", "acommerce",
	"bringg", "oliverusa", "6sense", "demandbase", "amplitude", "dovetail", "clutch", "automatticcareers",
	"netdocuments", "xai", "ethoslife", "pieinsurance", "constrafor", "apeel", "agoda", "blockchain",
	"fireblocks", "algolia",
}

const (
	locationSel = ".location, .posting-categories, [data-company-location]"
	headerSel   = ".app-title, .opening, .opening-header, .opening-title"
)

var jobHrefRE = regexp.MustCompile(`/job|/jobs/|gh_jid=|embed/job_app`)

// ErrNoBoard is returned when no base hosts a board for the company.
var ErrNoBoard = errors.New("no board found")

// Getter fetches one page.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*fetch.Page, error)
}

// ResolveBoard returns the first board URL that answers for company.
func ResolveBoard(ctx context.Context, g Getter, company string) (string, *goquery.Document, error) {
	slug := strings.ToLower(strings.TrimSpace(company))
	var errs []error
	for _, base := range BoardBases {
		u := fetch.ResolveString(base, slug)
		page, err := g.Get(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return "", nil, ctx.Err()
			}
			errs = append(errs, err)
			continue
		}
		doc, err := extract.ParseDocument(page.Body, page.ContentType)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return u, doc, nil
	}
	return "", nil, fmt.Errorf("%s: %w: %w", slug, ErrNoBoard, errors.Join(errs...))
}

// ExtractLinks returns the posting links on a board page: absolute,
// greenhouse.io only, first occurrence kept.
func ExtractLinks(doc *goquery.Document, boardURL string) []string {
	base, _ := url.Parse(boardURL)
	var seen dedupe.Set[string]
	var out []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || !jobHrefRE.MatchString(href) {
			return
		}
		u := fetch.ResolveHref(base, href)
		if strings.Contains(u, "greenhouse.io") && seen.Add(u) {
			out = append(out, u)
		}
	})
	return out
}

// Filter narrows postings by role keywords and city.
type Filter struct {
	// Role is a space separated keyword list; "" or "all" matches everything.
	Role string
	// City is matched against the posting location; "" or "all" disables it.
	City string
	// Strict requires the whole City as a substring. Otherwise only the part
	// before the first comma has to appear.
	Strict bool
}

func (f Filter) anyRole() bool {
	r := strings.TrimSpace(strings.ToLower(f.Role))
	return r == "" || r == "all"
}

func (f Filter) city() string {
	c := strings.TrimSpace(strings.ToLower(f.City))
	if c == "all" {
		return ""
	}
	return c
}

// Match applies the filter to a posting page.
func (f Filter) Match(doc *goquery.Document) bool {
	if !f.anyRole() {
		title := doc.Find("h1, h2").First()
		if title.Length() == 0 {
			title = doc.Find("title").First()
		}
		txt := strings.ToLower(extract.Collapse(title.Text()))
		for _, tok := range strings.Fields(strings.ToLower(f.Role)) {
			if !strings.Contains(txt, tok) {
				return false
			}
		}
	}

	city := f.city()
	if city == "" {
		return true
	}
	loc := strings.ToLower(locationText(doc))
	if f.Strict {
		return strings.Contains(loc, city)
	}
	first, _, _ := strings.Cut(city, ",")
	return strings.Contains(loc, first)
}

func locationText(doc *goquery.Document) string {
	var out string
	doc.Find(locationSel + ", .app-title").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out = extract.Collapse(s.Text())
		return out == ""
	})
	return out
}

// RawJob is a downloaded posting.
type RawJob struct {
	URL      string  `json:"url"`
	Company  *string `json:"company"`
	Title    *string `json:"title"`
	Location *string `json:"location"`
	HTML     string  `json:"html"`
	Text     string  `json:"text"`
}

// ParsePosting reads the header fields and the flattened text of a posting.
func ParsePosting(doc *goquery.Document, pageURL, rawHTML string) RawJob {
	job := RawJob{URL: pageURL, HTML: rawHTML}

	if h := doc.Find("h1").First(); h.Length() > 0 {
		job.Title = nonEmpty(h.Text())
	} else if h := doc.Find("h2").First(); h.Length() > 0 {
		job.Title = nonEmpty(h.Text())
	}

	if og, ok := doc.Find(`meta[property="og:site_name"]`).First().Attr("content"); ok {
		job.Company = nonEmpty(og)
	}
	if job.Company == nil {
		if u, err := url.Parse(pageURL); err == nil {
			seg, _, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
			job.Company = nonEmpty(seg)
		}
	}

	if loc := doc.Find(locationSel).First(); loc.Length() > 0 {
		job.Location = nonEmpty(loc.Text())
	}
	if job.Location == nil {
		if h := doc.Find(headerSel).First(); h.Length() > 0 {
			if t := extract.Collapse(h.Text()); strings.ContainsAny(t, ";,") {
				job.Location = &t
			}
		}
	}

	job.Text = strings.Join(extract.Lines(doc.Selection), "\n")
	return job
}

func nonEmpty(s string) *string {
	s = extract.Collapse(s)
	if s == "" {
		return nil
	}
	return &s
}
