package normalize

import (
	"harvest/internal/extract"
)

// RuleKind names a field transformation.
type RuleKind int

const (
	// RuleCompound splits Field on "/" into Into[0] and Into[1].
	RuleCompound RuleKind = iota
	// RuleStatus parses Field into status, available, enrolled, waitlist.
	RuleStatus
	// RuleLevel infers a seniority label from Field.
	RuleLevel
	// RuleSalary parses Field into min, max, unit, currency.
	RuleSalary
	// RuleLocation reads Field (location) and Text (body) into country, city_state.
	RuleLocation
)

// Rule applies one transformation. Into names the output fields; empty uses
// the defaults of the kind.
type Rule struct {
	Kind  RuleKind
	Field string
	Text  string
	Into  []string
}

var defaultInto = map[RuleKind][]string{
	RuleCompound: {"class_number", "course_number"},
	RuleStatus:   {"enrollment_status", "available_seats", "enrolled_total", "waitlist"},
	RuleLevel:    {"level"},
	RuleSalary:   {"salary_min", "salary_max", "salary_unit", "salary_currency"},
	RuleLocation: {"country", "city_state"},
}

// Normalize applies plan to a copy of rec. The input is never modified and
// the same input always produces the same output.
func (n *Normalizer) Normalize(rec extract.Record, plan []Rule) extract.Record {
	out := rec.Clone()
	for _, r := range plan {
		into := r.Into
		if len(into) == 0 {
			into = defaultInto[r.Kind]
		}
		src := textOf(out, r.Field)

		switch r.Kind {
		case RuleCompound:
			if src == nil {
				set(out, into, 0, extract.Absent)
				set(out, into, 1, extract.Absent)
				continue
			}
			first, second := SplitCompound(*src)
			set(out, into, 0, strVal(&first))
			set(out, into, 1, strVal(second))

		case RuleStatus:
			if src == nil {
				for i := range into {
					set(out, into, i, extract.Absent)
				}
				continue
			}
			st := n.ParseStatus(*src)
			set(out, into, 0, strVal(&st.Status))
			set(out, into, 1, intVal(st.Available))
			set(out, into, 2, intVal(st.Enrolled))
			set(out, into, 3, intVal(st.Waitlist))

		case RuleLevel:
			title := ""
			if src != nil {
				title = *src
			}
			set(out, into, 0, extract.StringValue(n.InferLevel(title)))

		case RuleSalary:
			text := ""
			if src != nil {
				text = *src
			}
			s := n.ParseSalary(text)
			set(out, into, 0, intVal(s.Min))
			set(out, into, 1, intVal(s.Max))
			set(out, into, 2, strVal(s.Unit))
			set(out, into, 3, strVal(s.Currency))

		case RuleLocation:
			loc, text := "", ""
			if src != nil {
				loc = *src
			}
			if t := textOf(out, r.Text); t != nil {
				text = *t
			}
			l := n.InferLocation(loc, text)
			set(out, into, 0, strVal(l.Country))
			set(out, into, 1, strVal(l.CityState))
		}
	}
	return out
}

func textOf(rec extract.Record, field string) *string {
	if field == "" {
		return nil
	}
	return rec.Str(field)
}

func set(rec extract.Record, into []string, i int, v extract.Value) {
	if i < len(into) && into[i] != "" {
		rec[into[i]] = v
	}
}

func strVal(s *string) extract.Value {
	if s == nil || *s == "" {
		return extract.Absent
	}
	return extract.StringValue(*s)
}

func intVal(p *int) extract.Value {
	if p == nil {
		return extract.Absent
	}
	return extract.IntValue(int64(*p))
}
