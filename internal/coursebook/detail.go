// Package coursebook scrapes class sections from CourseBook through a real,
// operator-authenticated browser and parses their expanded detail panels.
package coursebook

import (
	"regexp"
	"strings"

	"harvest/internal/extract"
	"harvest/internal/normalize"
)

const (
	thCells       = "th"
	classInfoCell = "table.courseinfo__classsubtable td"
	linkSel       = "a[href]"
)

func th(field, label string, aliases ...string) extract.FieldLocator {
	return extract.FieldLocator{Field: field, Label: label, Aliases: aliases, Shape: extract.ShapeKeyedTable, Candidates: thCells}
}

func thLink(field, label string, attr string) extract.FieldLocator {
	l := th(field, label)
	l.Value = extract.ValueSpec{Selector: linkSel, Attr: attr}
	return l
}

func classInfo(field, label string) extract.FieldLocator {
	return extract.FieldLocator{Field: field, Label: label, Shape: extract.ShapeKeyedTable, Candidates: classInfoCell}
}

func strongLabel(field, label string) extract.FieldLocator {
	return extract.FieldLocator{Field: field, Label: label, Shape: extract.ShapeKeyedTable, Candidates: "strong"}
}

var (
	instructorLabels = []string{"Instructor(s)", "Instructor", "Instructors"}
	taLabels         = []string{"TA/RA(s)", "TA/RA", "TA/RAs"}
	scheduleLabels   = []string{"Class Location and Times", "Schedule"}
)

func people(field string, labels []string) extract.FieldLocator {
	l := th(field, labels[0], labels[1:]...)
	l.Dest = extract.DestRecords
	l.Items = "div[id^='inst-'] div"
	l.Fields = []extract.FieldLocator{
		{Field: "text", Shape: extract.ShapeKeyedTable},
		{Field: "email", Shape: extract.ShapeKeyedTable, Value: extract.ValueSpec{Selector: "a[href^='mailto:']", Attr: "href"}},
	}
	return l
}

// DetailTable locates every field of an expanded CourseBook detail panel.
var DetailTable = extract.LocatorTable{
	Scope: "table.courseinfo__overviewtable",
	Fields: []extract.FieldLocator{
		{Field: "course_title", Shape: extract.ShapeKeyedTable, Value: extract.ValueSpec{Selector: ".courseinfo__overviewtable__coursetitle"}},

		classInfo("class_section", "Class Section"),
		classInfo("instruction_mode", "Instruction Mode"),
		classInfo("class_level", "Class Level"),
		classInfo("activity_type", "Activity Type"),
		classInfo("credit_hours", "Semester Credit Hours"),
		classInfo("class_course_number", "Class/Course Number"),
		classInfo("grading", "Grading"),
		classInfo("add_consent", "Add Consent"),
		classInfo("how_often_course_scheduled", "How Often"),
		classInfo("session_type", "Session Type"),
		classInfo("orion_datetime", "Orion Date/Time"),

		th("status", "Status"),
		{Field: "description_html", Label: "Description", Shape: extract.ShapeKeyedTable, Candidates: thCells, Value: extract.ValueSpec{HTML: true}},

		people("instructors", instructorLabels),
		th("instructors_text", instructorLabels[0], instructorLabels[1:]...),
		people("tas", taLabels),
		th("tas_text", taLabels[0], taLabels[1:]...),

		{
			Field: "term_meta", Label: scheduleLabels[0], Aliases: scheduleLabels[1:],
			Shape: extract.ShapeKeyedTable, Candidates: thCells, Dest: extract.DestRecord,
			Fields: []extract.FieldLocator{
				strongLabel("term", "Term"),
				strongLabel("session_type", "Type"),
				strongLabel("starts", "Starts"),
				strongLabel("ends", "Ends"),
			},
		},
		{
			Field: "meetings", Label: scheduleLabels[0], Aliases: scheduleLabels[1:],
			Shape: extract.ShapeKeyedTable, Candidates: thCells, Dest: extract.DestRecords,
			Items: ".courseinfo__meeting-item--multiple, .courseinfo__datestimes",
			Fields: []extract.FieldLocator{
				{Field: "text", Shape: extract.ShapeKeyedTable},
				{Field: "room", Shape: extract.ShapeKeyedTable, Value: extract.ValueSpec{Selector: linkSel}},
				{Field: "room_href", Shape: extract.ShapeKeyedTable, Value: extract.ValueSpec{Selector: linkSel, Attr: "href"}},
			},
		},

		th("exam", "Exams"),
		thLink("exam_location", "Exams", "href"),
		thLink("college_link", "College", ""),
		th("college_text", "College"),
		thLink("college_href", "College", "href"),
		thLink("syllabus_url", "Syllabus", "href"),
		thLink("evaluation_href", "Evaluation", "href"),
	},
}

// registerTable finds the Orion registration link anywhere in the panel.
var registerTable = extract.LocatorTable{Fields: []extract.FieldLocator{
	{
		Field: "orion_register_href", Label: "Register for this class on Orion",
		Shape: extract.ShapeKeyedTable, Candidates: linkSel,
		Value: extract.ValueSpec{Self: true, Attr: "href"},
	},
}}

// syllabusTable reads the lazily loaded syllabus tab.
var syllabusTable = extract.LocatorTable{Fields: []extract.FieldLocator{
	thLink("syllabus_url", "Syllabus", "href"),
}}

var detailPlan = []normalize.Rule{
	{Kind: normalize.RuleCompound, Field: "class_course_number"},
	{Kind: normalize.RuleStatus, Field: "status"},
}

// Person is an instructor or teaching assistant.
type Person struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Role  *string `json:"role"`
}

// Meeting is one meeting block of the schedule.
type Meeting struct {
	Text     *string `json:"text"`
	Room     *string `json:"room"`
	RoomHref *string `json:"room_href"`
}

// TermMeta holds the labelled values of the schedule cell.
type TermMeta struct {
	Term        *string `json:"term"`
	SessionType *string `json:"session_type"`
	Starts      *string `json:"starts"`
	Ends        *string `json:"ends"`
}

// Detail is the parsed detail panel. Fields that were not found are null;
// list fields are empty, never null.
type Detail struct {
	CourseTitle             *string   `json:"course_title"`
	ClassSection            *string   `json:"class_section"`
	InstructionMode         *string   `json:"instruction_mode"`
	ClassLevel              *string   `json:"class_level"`
	ActivityType            *string   `json:"activity_type"`
	CreditHours             *string   `json:"credit_hours"`
	Grading                 *string   `json:"grading"`
	AddConsent              *string   `json:"add_consent"`
	HowOftenCourseScheduled *string   `json:"how_often_course_scheduled"`
	ClassNumber             *string   `json:"class_number"`
	CourseNumber            *string   `json:"course_number"`
	SessionType             *string   `json:"session_type"`
	OrionDatetime           *string   `json:"orion_datetime"`
	EnrollmentStatus        *string   `json:"enrollment_status"`
	AvailableSeats          *int      `json:"available_seats"`
	EnrolledTotal           *int      `json:"enrolled_total"`
	Waitlist                *int      `json:"waitlist"`
	DescriptionHTML         *string   `json:"description_html"`
	Instructors             []Person  `json:"instructors"`
	TAs                     []Person  `json:"tas"`
	Term                    *string   `json:"term"`
	TermMeta                TermMeta  `json:"term_meta"`
	Meetings                []Meeting `json:"meetings"`
	Exam                    *string   `json:"exam"`
	ExamLocation            *string   `json:"exam_location"`
	College                 *string   `json:"college"`
	CollegeHref             *string   `json:"college_href"`
	EvaluationHref          *string   `json:"evaluation_href"`
	SyllabusURL             *string   `json:"syllabus_url"`
	OrionRegisterHref       *string   `json:"orion_register_href"`
}

func emptyDetail() Detail {
	return Detail{Instructors: []Person{}, TAs: []Person{}, Meetings: []Meeting{}}
}

// ParseDetail parses the inner HTML of an expanded detail row. A panel
// without the overview table yields an empty Detail.
func ParseDetail(n *normalize.Normalizer, panelHTML string) (Detail, []extract.Ambiguity) {
	d := emptyDetail()
	if strings.TrimSpace(panelHTML) == "" {
		return d, nil
	}
	doc, err := extract.ParseString(panelHTML)
	if err != nil {
		return d, nil
	}

	res := extract.Extract(doc, DetailTable)
	amb := res.Ambiguities
	rec := n.Normalize(res.Record, detailPlan)

	d.CourseTitle = rec.Str("course_title")
	d.ClassSection = rec.Str("class_section")
	d.InstructionMode = rec.Str("instruction_mode")
	d.ClassLevel = rec.Str("class_level")
	d.ActivityType = rec.Str("activity_type")
	d.CreditHours = rec.Str("credit_hours")
	d.Grading = rec.Str("grading")
	d.AddConsent = rec.Str("add_consent")
	d.HowOftenCourseScheduled = rec.Str("how_often_course_scheduled")
	d.ClassNumber = rec.Str("class_number")
	d.CourseNumber = rec.Str("course_number")
	d.SessionType = rec.Str("session_type")
	d.OrionDatetime = rec.Str("orion_datetime")
	d.EnrollmentStatus = rec.Str("enrollment_status")
	d.AvailableSeats = intOf(rec["available_seats"])
	d.EnrolledTotal = intOf(rec["enrolled_total"])
	d.Waitlist = intOf(rec["waitlist"])
	d.DescriptionHTML = rec.Str("description_html")

	d.Instructors = parsePeople(rec["instructors"].Records(), rec.Str("instructors_text"))
	d.TAs = parsePeople(rec["tas"].Records(), rec.Str("tas_text"))

	if tm := rec["term_meta"].Record(); tm != nil {
		d.TermMeta = TermMeta{
			Term:        tm.Str("term"),
			SessionType: tm.Str("session_type"),
			Starts:      tm.Str("starts"),
			Ends:        tm.Str("ends"),
		}
		d.Term = d.TermMeta.Term
		if d.SessionType == nil {
			d.SessionType = d.TermMeta.SessionType
		}
	}
	for _, m := range rec["meetings"].Records() {
		d.Meetings = append(d.Meetings, Meeting{Text: m.Str("text"), Room: m.Str("room"), RoomHref: m.Str("room_href")})
	}

	d.Exam = rec.Str("exam")
	d.ExamLocation = rec.Str("exam_location")
	d.College = rec.Str("college_link")
	if d.College == nil {
		d.College = rec.Str("college_text")
	}
	d.CollegeHref = rec.Str("college_href")
	d.SyllabusURL = rec.Str("syllabus_url")
	d.EvaluationHref = rec.Str("evaluation_href")

	reg := extract.Extract(doc, registerTable)
	d.OrionRegisterHref = reg.Record.Str("orion_register_href")
	amb = append(amb, reg.Ambiguities...)

	return d, amb
}

// SyllabusURL reads the syllabus link from a panel whose syllabus tab was
// opened. It returns nil when there is none.
func SyllabusURL(panelHTML string) *string {
	if strings.TrimSpace(panelHTML) == "" {
		return nil
	}
	doc, err := extract.ParseString(panelHTML)
	if err != nil {
		return nil
	}
	return extract.Extract(doc, syllabusTable).Record.Str("syllabus_url")
}

var personSep = regexp.MustCompile(`・|\|`)

func parsePeople(items []extract.Record, fallback *string) []Person {
	out := []Person{}
	for _, it := range items {
		var p Person
		if txt := it.Str("text"); txt != nil {
			var parts []string
			for _, s := range personSep.Split(*txt, -1) {
				if s = strings.TrimSpace(s); s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				p.Name = &parts[0]
			}
			for _, s := range parts[min(1, len(parts)):] {
				low := strings.ToLower(s)
				if strings.Contains(low, "instructor") || strings.Contains(low, "assistant") {
					role := s
					p.Role = &role
					break
				}
			}
		}
		if e := it.Str("email"); e != nil {
			email := strings.TrimPrefix(*e, "mailto:")
			p.Email = &email
		}
		out = append(out, p)
	}
	if len(out) == 0 && fallback != nil {
		out = append(out, Person{Name: fallback})
	}
	return out
}

func intOf(v extract.Value) *int {
	n, ok := v.Int()
	if !ok {
		return nil
	}
	i := int(n)
	return &i
}
