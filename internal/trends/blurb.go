// Package trends reads course descriptions from the UTD Trends dashboard and
// merges them with catalog courses into knowledge-base documents.
package trends

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"harvest/internal/catalog"
	"harvest/internal/extract"
	"harvest/internal/output"
)

// DefaultBaseURL is the Trends dashboard.
const DefaultBaseURL = "https://trends.utdnebula.com/dashboard"

// DefaultUserAgent is sent by the Trends browser.
const DefaultUserAgent = "UTD-TrendsBot/1.0 (+mailto:team@example.com)"

// minLineLen drops short lines, which are almost always UI chrome.
const minLineLen = 30

var (
	noiseRE    = regexp.MustCompile(`(?i)\bSearch\b|\bMy Planner\b|\bMin Letter Grade\b|\bMin Rating\b|\bSemesters\b|\bAll selected\b|\bTeaching in\b|\bSearch Results\b|\bActions\b|\bName\b|\bGrades\b|\bRating\b|\(Overall\)$`)
	offeringRE = regexp.MustCompile(`(?i)^\s*Offering Frequency\s*:`)
	nonAlnumRE = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

// Item is one Trends lookup.
type Item struct {
	CourseID  string `json:"course_id"`
	Title     string `json:"title"`
	Blurb     string `json:"blurb"`
	URL       string `json:"url"`
	ScrapedAt string `json:"scraped_at"`
}

// Terms turns "CS 6313" into the dashboard search term "CS+6313". It returns
// "" when courseID carries no course code.
func Terms(courseID string) string {
	m := catalog.CourseCodeRE.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(courseID)))
	if m == nil {
		return ""
	}
	return m[1] + "+" + m[2]
}

// BuildURL is the dashboard search URL for courseID.
func BuildURL(base, courseID string) string {
	if base == "" {
		base = DefaultBaseURL
	}
	terms := Terms(courseID)
	if terms == "" {
		terms = courseID
	}
	q := url.Values{}
	q.Set("searchTerms", terms)
	q.Set("availability", "true")
	return base + "?" + q.Encode()
}

// RawName is the snapshot file name for courseID, e.g. "CS_6313.html".
func RawName(courseID string) string {
	return nonAlnumRE.ReplaceAllString(strings.ToUpper(courseID), "_") + ".html"
}

// ParseBlurb finds the card for courseID and joins its description
// paragraphs, stopping at "Offering Frequency:".
func ParseBlurb(doc *goquery.Document, courseID, pageURL string, now time.Time) Item {
	code := extract.Collapse(strings.ToUpper(courseID))
	card := findCard(doc, code)

	title := code
	if h := card.Find("h1, h2, h3").First(); h.Length() > 0 {
		if t := extract.Collapse(h.Text()); t != "" {
			title = t
		}
	}

	lines := cleanLines(paragraphs(card.Find("p")))
	if len(lines) == 0 {
		lines = cleanLines(paragraphs(doc.Find("article p, [role='article'] p, .MuiCard-root p, .MuiPaper-root p")))
	}

	return Item{
		CourseID:  code,
		Title:     title,
		Blurb:     extract.Collapse(strings.Join(lines, " ")),
		URL:       pageURL,
		ScrapedAt: output.ISOTime(now),
	}
}

func findCard(doc *goquery.Document, code string) *goquery.Selection {
	for _, sel := range []string{"article", "[role='article'], .MuiCard-root, .MuiPaper-root"} {
		var card *goquery.Selection
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if strings.Contains(extract.Collapse(s.Text()), code) {
				card = s
				return false
			}
			return true
		})
		if card != nil {
			return card
		}
	}
	return doc.Find("body")
}

// paragraphs returns the non-empty paragraph texts before the offering line.
func paragraphs(ps *goquery.Selection) []string {
	var out []string
	ps.EachWithBreak(func(_ int, p *goquery.Selection) bool {
		t := strings.TrimSpace(p.Text())
		if t == "" {
			return true
		}
		if offeringRE.MatchString(t) {
			return false
		}
		out = append(out, t)
		return true
	})
	return out
}

func cleanLines(lines []string) []string {
	var out []string
	for _, t := range lines {
		t = extract.Collapse(t)
		if t == "" || noiseRE.MatchString(t) || len(t) < minLineLen {
			continue
		}
		out = append(out, t)
	}
	return out
}
