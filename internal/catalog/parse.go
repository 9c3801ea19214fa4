// Package catalog crawls university catalog program pages and turns the
// course anchors on them into course records.
package catalog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"harvest/internal/dedupe"
	"harvest/internal/extract"
	"harvest/internal/fetch"
	"harvest/internal/output"
)

// CourseCodeRE matches a department code followed by a 4 digit number.
var CourseCodeRE = regexp.MustCompile(`(?i)\b([A-Z]{2,5})\s?(\d{4})\b`)

// Course is one course anchor found on a program page.
type Course struct {
	CourseID     string  `json:"course_id"`
	CourseName   *string `json:"course_name"`
	CatalogURL   string  `json:"catalog_url"`
	ProgramTitle *string `json:"program_title"`
	ProgramPage  string  `json:"program_page"`
	ScrapedAt    string  `json:"scraped_at"`
}

// courseNameAfterAnchor reads the inline text that follows a course anchor
// when the anchor itself only carries the code.
var courseNameAfterAnchor = extract.LocatorTable{Fields: []extract.FieldLocator{
	{Field: "course_name", Shape: extract.ShapePositionalFallback},
}}

// ParseProgramPage returns the courses linked from a program page in
// document order, one per (course id, catalog url).
func ParseProgramPage(doc *goquery.Document, pageURL string, now time.Time) []Course {
	base, _ := url.Parse(pageURL)

	var title *string
	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		if t := extract.Collapse(h1.Text()); t != "" {
			title = &t
		}
	}

	scrapedAt := output.ISOTime(now)
	var seen dedupe.Set[dedupe.CourseKey]
	var out []Course

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		text := extract.Collapse(a.Text())
		loc := CourseCodeRE.FindStringSubmatchIndex(text)
		if loc == nil {
			return
		}
		dept := strings.ToUpper(text[loc[2]:loc[3]])
		num := text[loc[4]:loc[5]]

		href, _ := a.Attr("href")
		c := Course{
			CourseID:     dept + " " + num,
			CourseName:   courseName(a, text[loc[1]:]),
			CatalogURL:   fetch.ResolveHref(base, href),
			ProgramTitle: title,
			ProgramPage:  pageURL,
			ScrapedAt:    scrapedAt,
		}
		if seen.Add(dedupe.CourseKey{CourseID: c.CourseID, URL: c.CatalogURL}) {
			out = append(out, c)
		}
	})
	return out
}

func courseName(a *goquery.Selection, leftover string) *string {
	if name := strings.Trim(strings.TrimSpace(leftover), " -:"); name != "" {
		return &name
	}
	res := extract.ExtractSelection(a, courseNameAfterAnchor)
	return res.Record.Str("course_name")
}

// CourseIDs turns course records into CourseBook query ids ("cs6313"),
// unique, in first-seen order.
func CourseIDs(courses []Course) []string {
	var seen dedupe.Set[string]
	var out []string
	for _, c := range courses {
		m := CourseCodeRE.FindStringSubmatch(c.CourseID)
		if m == nil {
			continue
		}
		id := strings.ToLower(m[1]) + m[2]
		if seen.Add(id) {
			out = append(out, id)
		}
	}
	return out
}

// ReadCourses decodes a courses JSONL stream. Blank lines are skipped.
func ReadCourses(r io.Reader) ([]Course, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4<<20)

	var out []Course
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var c Course
		if err := json.Unmarshal(line, &c); err != nil {
			return out, fmt.Errorf("line %d: %w", n, err)
		}
		out = append(out, c)
	}
	return out, sc.Err()
}
