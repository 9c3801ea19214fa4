package jobs

import (
	"harvest/internal/extract"
	"harvest/internal/normalize"
)

var (
	respHeaders = []string{
		"responsibilities", "what you'll do", "what you will do",
		"in this role", "your impact", "what you’ll do",
	}
	qualHeaders = []string{
		"qualifications", "requirements", "what you'll bring",
		"who you are", "about you", "what we’re looking for", "what we're looking for",
	}
	benefitHeaders = []string{"benefits", "perks", "what we offer"}
)

func sectionHeaders() []string {
	var all []string
	for _, hs := range [][]string{respHeaders, qualHeaders, benefitHeaders} {
		all = append(all, hs...)
	}
	return all
}

func section(field string, aliases []string) extract.FieldLocator {
	return extract.FieldLocator{
		Field:      field,
		Label:      aliases[0],
		Aliases:    aliases[1:],
		Shape:      extract.ShapeMultiLineBlock,
		Dest:       extract.DestList,
		Candidates: "h2, h3, h4",
		Stop:       sectionHeaders(),
	}
}

// PostingTable pulls the body sections out of a posting. Each section tries
// an exact heading, then a heading containing the alias, then a plain-text
// header line.
var PostingTable = extract.LocatorTable{Fields: []extract.FieldLocator{
	section("responsibilities", respHeaders),
	section("qualifications", qualHeaders),
	section("benefits", benefitHeaders),
}}

// Extracted is the structured summary of a posting. List fields are never null.
type Extracted struct {
	URL              string   `json:"url"`
	Company          *string  `json:"company"`
	Title            *string  `json:"title"`
	Location         *string  `json:"location"`
	WorkMode         *string  `json:"work_mode"`
	EmploymentType   *string  `json:"employment_type"`
	Skills           []string `json:"skills"`
	Responsibilities []string `json:"responsibilities"`
	Qualifications   []string `json:"qualifications"`
	Benefits         []string `json:"benefits"`
	ExperienceLevel  string   `json:"experience_level"`
	Sector           *string  `json:"sector"`
	Country          *string  `json:"country"`
	CityState        *string  `json:"city_state"`
	SalaryMin        *int     `json:"salary_min"`
	SalaryMax        *int     `json:"salary_max"`
	SalaryUnit       *string  `json:"salary_unit"`
	SalaryCurrency   *string  `json:"salary_currency"`
	// DatePosted is only filled by ModelExtractor.
	DatePosted *string `json:"date_posted,omitempty"`
}

// Heuristic derives the structured summary of raw. The posting HTML is parsed
// again so the section extractor sees the original headings.
func Heuristic(n *normalize.Normalizer, raw RawJob) (Extracted, []extract.Ambiguity) {
	loc := deref(raw.Location)
	place := n.InferLocation(loc, raw.Text)
	pay := n.ParseSalary(raw.Text)

	out := Extracted{
		URL:              raw.URL,
		Company:          raw.Company,
		Title:            raw.Title,
		Location:         raw.Location,
		WorkMode:         n.WorkMode(raw.Text, loc),
		EmploymentType:   n.EmploymentType(raw.Text),
		Skills:           n.SkillsLine(raw.Text),
		Responsibilities: []string{},
		Qualifications:   []string{},
		Benefits:         []string{},
		ExperienceLevel:  n.InferLevel(deref(raw.Title)),
		Country:          place.Country,
		CityState:        place.CityState,
		SalaryMin:        pay.Min,
		SalaryMax:        pay.Max,
		SalaryUnit:       pay.Unit,
		SalaryCurrency:   pay.Currency,
	}
	if out.Skills == nil {
		out.Skills = n.Skills(raw.Text)
	}
	if out.Skills == nil {
		out.Skills = []string{}
	}

	doc, err := extract.ParseString(raw.HTML)
	if err != nil {
		return out, nil
	}
	res := extract.Extract(doc, PostingTable)
	if l := res.Record["responsibilities"].List(); l != nil {
		out.Responsibilities = l
	}
	if l := res.Record["qualifications"].List(); l != nil {
		out.Qualifications = l
	}
	if l := res.Record["benefits"].List(); l != nil {
		out.Benefits = l
	}
	return out, res.Ambiguities
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
