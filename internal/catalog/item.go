package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"harvest/internal/dedupe"
	"harvest/internal/extract"
	"harvest/internal/fetch"
	"harvest/internal/metrics"
	"harvest/internal/output"
)

// ItemPagesKey collects one parsed program item page per line.
const ItemPagesKey = "clean/catalog/item_pages.jsonl"

// ItemTable locates the fields of a program item page: the headings, the
// credit hours line and the h3 delimited requirement sections.
var ItemTable = extract.LocatorTable{Fields: []extract.FieldLocator{
	{Field: "page_title", Shape: extract.ShapeKeyedTable, Value: extract.ValueSpec{Selector: "h1"}},
	{Field: "degree_name", Shape: extract.ShapeKeyedTable, Value: extract.ValueSpec{Selector: "h2"}},
	{
		Field:   "credit_hours_line",
		Shape:   extract.ShapeFreeTextPattern,
		Pattern: `(?i)[^\n]*\b\d+\s+semester\s+credit\s+hours?\b[^\n]*`,
	},
	itemSection("degree_requirements", "Degree Requirements", "Degree-Requirements"),
	itemSection("prerequisite", "Prerequisite", "Prerequisites", "Admission Prerequisites"),
	itemSection("course_requirements", "Course Requirements", "Course-Requirements"),
}}

func itemSection(field, label string, aliases ...string) extract.FieldLocator {
	return extract.FieldLocator{
		Field: field, Label: label, Aliases: aliases,
		Shape: extract.ShapeMultiLineBlock, Candidates: "h3",
	}
}

// ItemPage is a parsed program item page.
type ItemPage struct {
	SourceURL         string       `json:"source_url"`
	PageTitle         *string      `json:"page_title"`
	DegreeName        *string      `json:"degree_name"`
	CreditHoursLine   *string      `json:"credit_hours_line"`
	Sections          ItemSections `json:"sections"`
	CoursesFound      []ItemCourse `json:"courses_found"`
	DownloadElapsedMS int64        `json:"download_elapsed_ms"`
	ScrapedAt         string       `json:"scraped_at"`
}

// ItemSections holds the requirement sections, one line per paragraph or
// list item.
type ItemSections struct {
	DegreeRequirements *string `json:"degree_requirements"`
	Prerequisite       *string `json:"prerequisite"`
	CourseRequirements *string `json:"course_requirements"`
}

// ItemCourse is a course linked from an item page.
type ItemCourse struct {
	CourseID   string  `json:"course_id"`
	CourseName *string `json:"course_name"`
	FullText   string  `json:"full_text"`
	Href       string  `json:"href"`
}

// ParseItemPage reads a program item page. Missing parts stay nil and the
// course list is never nil.
func ParseItemPage(doc *goquery.Document, pageURL string, now time.Time) (ItemPage, []extract.Ambiguity) {
	res := extract.Extract(doc, ItemTable)
	rec := res.Record

	page := ItemPage{
		SourceURL:       pageURL,
		PageTitle:       rec.Str("page_title"),
		DegreeName:      rec.Str("degree_name"),
		CreditHoursLine: rec.Str("credit_hours_line"),
		Sections: ItemSections{
			DegreeRequirements: rec.Str("degree_requirements"),
			Prerequisite:       rec.Str("prerequisite"),
			CourseRequirements: rec.Str("course_requirements"),
		},
		CoursesFound: []ItemCourse{},
		ScrapedAt:    output.ISOTime(now),
	}

	base, _ := url.Parse(pageURL)
	var seen dedupe.Set[dedupe.CourseKey]
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		text := extract.Collapse(a.Text())
		loc := CourseCodeRE.FindStringSubmatchIndex(text)
		if loc == nil {
			return
		}
		href, _ := a.Attr("href")
		c := ItemCourse{
			CourseID: strings.ToUpper(text[loc[2]:loc[3]]) + " " + text[loc[4]:loc[5]],
			Href:     fetch.ResolveHref(base, href),
		}
		leftover := strings.Trim(strings.TrimSpace(text[loc[1]:]), " -:")
		c.CourseName = courseName(a, text[loc[1]:])
		c.FullText = text
		if leftover == "" && c.CourseName != nil {
			c.FullText = text + " " + *c.CourseName
		}
		if seen.Add(dedupe.CourseKey{CourseID: c.CourseID, URL: c.Href}) {
			page.CoursesFound = append(page.CoursesFound, c)
		}
	})
	return page, res.Ambiguities
}

// ItemResult summarises an item page crawl.
type ItemResult struct {
	Pages     []ItemPage
	RawKeys   []string
	Attempted int
	Failed    int
}

// CrawlItems fetches and parses program item pages with the same robots,
// pacing and per-page recovery as Crawl.
func (c *Crawler) CrawlItems(ctx context.Context, urls []string) (ItemResult, error) {
	day := output.DateStamp(c.now())
	var res ItemResult

	for i, u := range urls {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempted++
		log := c.Log.WithFields(logrus.Fields{"url": u, "page": fmt.Sprintf("%d/%d", i+1, len(urls))})

		start := time.Now()
		doc, key, err := c.fetchDoc(ctx, u, day)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			metrics.RecordDocument("catalog_item", outcome(err))
			log.WithField("reason", err).Warn("skip item page")
			continue
		}

		page, amb := ParseItemPage(doc, u, c.now())
		page.DownloadElapsedMS = time.Since(start).Milliseconds()
		extract.LogAmbiguities(log, amb)
		metrics.RecordDocument("catalog_item", "ok")
		res.RawKeys = append(res.RawKeys, key)
		res.Pages = append(res.Pages, page)
		log.WithField("courses", len(page.CoursesFound)).Info("parsed item page")
	}
	return res, nil
}
