package trends

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"harvest/internal/catalog"
)

// Domain is the knowledge-base domain of merged course documents.
const Domain = "courses"

// MergedKey is the merged document key for day; jsonl selects the line format.
func MergedKey(day string, jsonl bool) string {
	if jsonl {
		return "clean/courses_merged_" + day + ".jsonl"
	}
	return "clean/courses_merged_" + day + ".json"
}

// Doc is one knowledge-base document.
type Doc struct {
	ID     string   `json:"id"`
	Domain string   `json:"domain"`
	Text   string   `json:"text"`
	Tags   []string `json:"tags"`
	Meta   Meta     `json:"meta"`
}

// Meta points a document back at its source.
type Meta struct {
	URL          string `json:"url"`
	ScrapedAt    string `json:"scraped_at"`
	ProgramTitle string `json:"program_title"`
	ProgramPage  string `json:"program_page"`
}

var (
	nameWordRE    = regexp.MustCompile(`\b[A-Z][a-z]+\b`)
	descKeywordRE = regexp.MustCompile(`\b[A-Z][a-z]{2,}\b`)
	stopWords     = map[string]bool{
		"for": true, "and": true, "the": true, "a": true, "an": true, "in": true,
		"on": true, "at": true, "to": true, "with": true, "of": true,
	}
)

// maxDescKeywords caps the description keywords considered for tags.
const maxDescKeywords = 5

// Tags returns the course id, capitalised course-name words longer than three
// letters and the first few capitalised description words, unique and sorted.
func Tags(courseID, name, description string) []string {
	set := map[string]bool{courseID: true}
	for _, w := range nameWordRE.FindAllString(name, -1) {
		if !stopWords[strings.ToLower(w)] && len(w) > 3 {
			set[w] = true
		}
	}
	for _, kw := range descKeywordRE.FindAllString(description, maxDescKeywords) {
		set[kw] = true
	}
	tags := make([]string, 0, len(set))
	for t := range set {
		if t != "" {
			tags = append(tags, t)
		}
	}
	sort.Strings(tags)
	return tags
}

// NewDoc builds the document for a catalog course and its Trends item, if any.
func NewDoc(c catalog.Course, item *Item) Doc {
	id := strings.TrimSpace(c.CourseID)
	name := deref(c.CourseName)

	text := id
	if name != "" {
		text += " — " + name
	}
	desc := ""
	if item != nil {
		desc = item.Blurb
	}
	if desc != "" {
		text += ". " + desc
	}

	meta := Meta{
		URL:          c.CatalogURL,
		ScrapedAt:    c.ScrapedAt,
		ProgramTitle: deref(c.ProgramTitle),
		ProgramPage:  c.ProgramPage,
	}
	if meta.URL == "" && item != nil {
		meta.URL = item.URL
	}

	return Doc{
		ID:     Domain + ":" + strings.ReplaceAll(id, " ", "_"),
		Domain: Domain,
		Text:   text,
		Tags:   Tags(id, name, desc),
		Meta:   meta,
	}
}

// Merge pairs every catalog course with the Trends item for the same id.
func Merge(courses []catalog.Course, items []Item) []Doc {
	byID := make(map[string]*Item, len(items))
	for i := range items {
		if id := strings.ToUpper(strings.TrimSpace(items[i].CourseID)); id != "" {
			byID[id] = &items[i]
		}
	}
	docs := make([]Doc, 0, len(courses))
	for _, c := range courses {
		docs = append(docs, NewDoc(c, byID[strings.ToUpper(strings.TrimSpace(c.CourseID))]))
	}
	return docs
}

// ReadItems decodes a trends JSONL stream, skipping blank lines.
func ReadItems(r io.Reader) ([]Item, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 4<<20)
	var out []Item
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var it Item
		if err := json.Unmarshal(line, &it); err != nil {
			return nil, fmt.Errorf("trends line %d: %w", n, err)
		}
		out = append(out, it)
	}
	return out, sc.Err()
}

// ReadDocs decodes merged documents from either a JSON array or JSONL.
func ReadDocs(r io.Reader) ([]Doc, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, nil
	}
	if b[0] == '[' {
		var docs []Doc
		if err := json.Unmarshal(b, &docs); err != nil {
			return nil, fmt.Errorf("decode documents: %w", err)
		}
		return docs, nil
	}
	var docs []Doc
	for n, line := range bytes.Split(b, []byte("\n")) {
		if line = bytes.TrimSpace(line); len(line) == 0 {
			continue
		}
		var d Doc
		if err := json.Unmarshal(line, &d); err != nil {
			return nil, fmt.Errorf("document line %d: %w", n+1, err)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
