package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Shape tells the extractor how a field's value sits relative to its label.
//
// Each shape maps to a fixed chain of resolution rules (see Extract):
//   - ShapeKeyedTable: label cell with the value in the adjacent cell or the
//     inline text run after the label.
//   - ShapeMultiLineBlock: label (usually a heading or th) followed by a block
//     of lines.
//   - ShapeFreeTextPattern: label-anchored regular expression over the
//     flattened text of the scope.
//   - ShapePositionalFallback: no label; inline text following an anchor.
type Shape int

const (
	ShapeKeyedTable Shape = iota
	ShapeMultiLineBlock
	ShapeFreeTextPattern
	ShapePositionalFallback
)

var shapeNames = map[Shape]string{
	ShapeKeyedTable:         "keyed-table",
	ShapeMultiLineBlock:     "multi-line-block",
	ShapeFreeTextPattern:    "free-text-pattern",
	ShapePositionalFallback: "positional-fallback",
}

func (s Shape) String() string {
	if n, ok := shapeNames[s]; ok {
		return n
	}
	return fmt.Sprintf("shape(%d)", int(s))
}

func (s Shape) MarshalText() ([]byte, error) {
	n, ok := shapeNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown shape %d", int(s))
	}
	return []byte(n), nil
}

func (s *Shape) UnmarshalText(b []byte) error {
	want := strings.ToLower(strings.TrimSpace(string(b)))
	for k, n := range shapeNames {
		if n == want {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown shape %q", string(b))
}

// Dest is the typed destination of an extracted field.
type Dest int

const (
	DestString Dest = iota
	DestInt
	DestTag
	DestList
	DestRecord
	DestRecords
)

var destNames = map[Dest]string{
	DestString:  "string",
	DestInt:     "int",
	DestTag:     "tag",
	DestList:    "list",
	DestRecord:  "record",
	DestRecords: "records",
}

func (d Dest) String() string {
	if n, ok := destNames[d]; ok {
		return n
	}
	return fmt.Sprintf("dest(%d)", int(d))
}

func (d Dest) MarshalText() ([]byte, error) {
	n, ok := destNames[d]
	if !ok {
		return nil, fmt.Errorf("unknown dest %d", int(d))
	}
	return []byte(n), nil
}

func (d *Dest) UnmarshalText(b []byte) error {
	want := strings.ToLower(strings.TrimSpace(string(b)))
	if want == "" {
		*d = DestString
		return nil
	}
	for k, n := range destNames {
		if n == want {
			*d = k
			return nil
		}
	}
	return fmt.Errorf("unknown dest %q", string(b))
}

// ValueSpec says how to read a value out of the element a rule resolved to.
type ValueSpec struct {
	// Selector narrows the value element to its first matching descendant.
	Selector string `json:"selector,omitempty"`
	// Attr reads an attribute instead of text.
	Attr string `json:"attr,omitempty"`
	// HTML reads the outer HTML of the value element.
	HTML bool `json:"html,omitempty"`
	// Self reads from the label element itself rather than its neighbour.
	Self bool `json:"self,omitempty"`
}

// FieldLocator is one extraction rule: where a field lives and what it becomes.
type FieldLocator struct {
	Field   string   `json:"field"`
	Label   string   `json:"label,omitempty"`
	Aliases []string `json:"aliases,omitempty"`
	Shape   Shape    `json:"shape"`
	Dest    Dest     `json:"dest,omitempty"`

	// Candidates restricts which elements may carry the label.
	// Empty means DefaultCandidates.
	Candidates string `json:"candidates,omitempty"`

	// Anchor selects the element a positional fallback walks from.
	// Empty means the scope element itself.
	Anchor string `json:"anchor,omitempty"`

	// Pattern overrides the label-anchored default of the free-text rule.
	Pattern string `json:"pattern,omitempty"`

	// Stop lists labels that terminate a multi-line block.
	Stop []string `json:"stop,omitempty"`

	// Items selects list items (DestList) or sub-record scopes (DestRecords)
	// inside the value element.
	Items string `json:"items,omitempty"`

	Value ValueSpec `json:"value,omitempty"`

	// Fields is applied inside the value element for DestRecord/DestRecords.
	Fields []FieldLocator `json:"fields,omitempty"`
}

func (l FieldLocator) labels() []string {
	out := make([]string, 0, 1+len(l.Aliases))
	if strings.TrimSpace(l.Label) != "" {
		out = append(out, l.Label)
	}
	for _, a := range l.Aliases {
		if strings.TrimSpace(a) != "" {
			out = append(out, a)
		}
	}
	return out
}

// LocatorTable is an ordered list of locators for one document kind.
type LocatorTable struct {
	// Scope limits extraction to the first element it matches.
	Scope  string         `json:"scope,omitempty"`
	Fields []FieldLocator `json:"fields"`
}

// Kind enumerates what a Value holds.
type Kind int

const (
	KindAbsent Kind = iota
	KindString
	KindInt
	KindList
	KindRecord
	KindRecords
)

// Value is one extracted value. The zero Value is the absent marker.
type Value struct {
	kind Kind
	str  string
	num  int64
	list []string
	rec  Record
	recs []Record
}

// Absent is the explicit "not found" marker.
var Absent = Value{}

func StringValue(s string) Value { return Value{kind: KindString, str: s} }

func IntValue(n int64) Value { return Value{kind: KindInt, num: n} }

func ListValue(l []string) Value { return Value{kind: KindList, list: l} }

func RecordValue(r Record) Value { return Value{kind: KindRecord, rec: r} }

func RecordsValue(rs []Record) Value { return Value{kind: KindRecords, recs: rs} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

func (v Value) List() []string { return v.list }

func (v Value) Record() Record { return v.rec }

func (v Value) Records() []Record { return v.recs }

func (v Value) Int() (int64, bool) { return v.num, v.kind == KindInt }

func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Text renders scalar values as a string. Non-scalars and absent give "".
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return fmt.Sprintf("%d", v.num)
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindInt:
		return json.Marshal(v.num)
	case KindList:
		return json.Marshal(v.list)
	case KindRecord:
		return json.Marshal(v.rec)
	case KindRecords:
		return json.Marshal(v.recs)
	default:
		return []byte("null"), nil
	}
}

// Record maps field names to values. Every field of the table that produced it
// is present, absent ones carry Absent.
type Record map[string]Value

// Str returns the field as *string, nil when absent or not a scalar.
func (r Record) Str(field string) *string {
	v, ok := r[field]
	if !ok {
		return nil
	}
	switch v.kind {
	case KindString, KindInt:
		s := v.Text()
		return &s
	}
	return nil
}

// Clone returns a shallow copy that can be modified without touching r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Rule identifies which resolution rule produced a value.
type Rule int

const (
	RuleNone Rule = iota
	RuleExact
	RuleSubstring
	RulePattern
	RulePositional
)

func (r Rule) String() string {
	switch r {
	case RuleExact:
		return "exact"
	case RuleSubstring:
		return "substring"
	case RulePattern:
		return "pattern"
	case RulePositional:
		return "positional"
	default:
		return "none"
	}
}

// Ambiguity records a label that matched more than one element. The first
// match in document order was used.
type Ambiguity struct {
	Field   string
	Label   string
	Rule    Rule
	Matches int
}

// Result is the outcome of applying a table to one scope.
type Result struct {
	Record      Record
	Ambiguities []Ambiguity
}
