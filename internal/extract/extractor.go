package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DefaultCandidates are the elements that may carry a label when a locator
// does not restrict them.
const DefaultCandidates = "th, td, dt, strong, b, em, label, h1, h2, h3, h4, h5, h6, span, p, li, a, button"

var (
	reFirstInt = regexp.MustCompile(`-?\d[\d,]*`)
	reBullets  = regexp.MustCompile(`\s*[•\-\x{2022}\*]\s+`)
)

// found is what a rule located before it is turned into a typed Value.
// Exactly one of sel, text or lines is meaningful.
type found struct {
	sel   *goquery.Selection
	text  string
	lines []string
}

// Extract applies table to the whole document.
//
// Extraction is a pure function of (document, table): no I/O, no logging.
// Missing labels never fail; they produce Absent. Labels matched by more
// than one element resolve to the first one in document order and are
// reported in Result.Ambiguities so callers can log them.
func Extract(doc *goquery.Document, table LocatorTable) Result {
	return ExtractSelection(doc.Selection, table)
}

// ExtractSelection applies table relative to root.
func ExtractSelection(root *goquery.Selection, table LocatorTable) Result {
	scope := root
	if strings.TrimSpace(table.Scope) != "" {
		if root.Is(table.Scope) {
			scope = root.First()
		} else {
			scope = root.Find(table.Scope).First()
		}
	}

	res := Result{}
	res.Record = applyTable(scope, table.Fields, "", &res.Ambiguities)
	return res
}

// ExtractRecords runs table once per element matched by recordSelector.
// The returned slice preserves DOM order.
func ExtractRecords(doc *goquery.Document, recordSelector string, table LocatorTable) []Result {
	var out []Result
	doc.Find(recordSelector).Each(func(_ int, rec *goquery.Selection) {
		out = append(out, ExtractSelection(rec, table))
	})
	return out
}

func applyTable(scope *goquery.Selection, fields []FieldLocator, prefix string, amb *[]Ambiguity) Record {
	rec := make(Record, len(fields))
	for _, loc := range fields {
		if scope == nil || scope.Length() == 0 {
			rec[loc.Field] = Absent
			continue
		}
		rec[loc.Field] = resolve(scope, loc, prefix, amb)
	}
	return rec
}

// chain returns the resolution rules for a shape, in precedence order.
func chain(s Shape) []Rule {
	switch s {
	case ShapeKeyedTable, ShapeMultiLineBlock:
		return []Rule{RuleExact, RuleSubstring, RulePattern}
	case ShapeFreeTextPattern:
		return []Rule{RulePattern}
	case ShapePositionalFallback:
		return []Rule{RulePositional}
	default:
		return nil
	}
}

func resolve(scope *goquery.Selection, loc FieldLocator, prefix string, amb *[]Ambiguity) Value {
	name := prefix + loc.Field

	// A label-less keyed or block locator reads its scope directly.
	if len(loc.labels()) == 0 && (loc.Shape == ShapeKeyedTable || loc.Shape == ShapeMultiLineBlock) {
		return materialize(found{sel: scope}, loc, name, amb)
	}

	for _, rule := range chain(loc.Shape) {
		var f found
		var ok bool
		switch rule {
		case RuleExact, RuleSubstring:
			label, n := findLabel(scope, loc, rule == RuleSubstring)
			if label == nil {
				continue
			}
			f, ok = readLabelled(label, loc, rule == RuleSubstring)
			if ok && n > 1 {
				*amb = append(*amb, Ambiguity{Field: name, Label: loc.Label, Rule: rule, Matches: n})
			}
		case RulePattern:
			f, ok = readPattern(scope, loc)
		case RulePositional:
			f, ok = readPositional(scope, loc)
		}
		if !ok {
			continue
		}
		if v := materialize(f, loc, name, amb); !v.IsAbsent() {
			return v
		}
	}
	return Absent
}

// findLabel returns the first candidate whose text matches one of the
// locator's labels, plus the number of distinct matches.
//
// Exact matching keeps the outermost element of a nested match (a th wrapping
// a strong with the same text is one match). Substring matching keeps the
// innermost, since every ancestor of a match also contains the label.
func findLabel(scope *goquery.Selection, loc FieldLocator, substring bool) (*goquery.Selection, int) {
	labels := loc.labels()
	folded := make([]string, 0, len(labels))
	for _, l := range labels {
		if f := FoldLabel(l); f != "" {
			folded = append(folded, f)
		}
	}
	if len(folded) == 0 {
		return nil, 0
	}

	cands := loc.Candidates
	if strings.TrimSpace(cands) == "" {
		cands = DefaultCandidates
	}

	var matches []*html.Node
	scope.Find(cands).Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		txt := FoldLabel(nodeText(n))
		if txt == "" {
			return
		}
		for _, l := range folded {
			if txt == l || (substring && strings.Contains(txt, l)) {
				matches = append(matches, n)
				return
			}
		}
	})
	if len(matches) == 0 {
		return nil, 0
	}

	var kept []*html.Node
	if substring {
		for i, m := range matches {
			inner := false
			for _, other := range matches[i+1:] {
				if isAncestor(m, other) {
					inner = true
					break
				}
			}
			if !inner {
				kept = append(kept, m)
			}
		}
	} else {
		for _, m := range matches {
			nested := false
			for _, k := range kept {
				if isAncestor(k, m) {
					nested = true
					break
				}
			}
			if !nested {
				kept = append(kept, m)
			}
		}
	}
	return scope.FindNodes(kept[0]), len(kept)
}

// readLabelled reads the value that belongs to label according to the shape.
// A substring match like "Location: Dallas" yields its own text after the
// label before any neighbour is read.
func readLabelled(label *goquery.Selection, loc FieldLocator, substring bool) (found, bool) {
	if loc.Value.Self {
		return found{sel: label}, true
	}

	n := label.Get(0)
	if substring && loc.Shape == ShapeKeyedTable && !needsElement(loc) {
		if txt := ownTextAfter(n, loc.labels()); txt != "" {
			return found{text: txt}, true
		}
	}
	switch n.Data {
	case "th", "td":
		next := label.NextAllFiltered("td, th").First()
		if next.Length() == 0 {
			return found{}, false
		}
		return found{sel: next}, true
	case "dt":
		next := label.NextAllFiltered("dd").First()
		if next.Length() == 0 {
			return found{}, false
		}
		return found{sel: next}, true
	}

	if loc.Shape == ShapeMultiLineBlock {
		lines := blockAfter(n, loc)
		return found{lines: lines}, len(lines) > 0
	}

	if needsElement(loc) {
		next := label.Next()
		if next.Length() == 0 {
			return found{}, false
		}
		return found{sel: next}, true
	}

	txt := inlineAfter(n, labelBoundary)
	if txt == "" && n.Parent != nil && !blockTags[n.Parent.Data] {
		txt = inlineAfter(n.Parent, labelBoundary)
	}
	return found{text: txt}, txt != ""
}

func needsElement(loc FieldLocator) bool {
	return loc.Value.Selector != "" || loc.Value.Attr != "" || loc.Value.HTML ||
		loc.Items != "" || loc.Dest == DestRecord || loc.Dest == DestRecords
}

// blockAfter collects the lines that follow a heading-like label until the
// next heading that looks like another section.
func blockAfter(n *html.Node, loc FieldLocator) []string {
	stops := make(map[string]bool, len(loc.Stop))
	for _, s := range loc.Stop {
		stops[FoldLabel(s)] = true
	}

	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	for c := n.NextSibling; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			add(Collapse(c.Data))
			continue
		case html.ElementNode:
		default:
			continue
		}
		if skipTags[c.Data] {
			continue
		}
		txt := nodeText(c)
		if c.Data == n.Data || (isHeading(c) && (stops[FoldLabel(txt)] || looksLikeHeader(txt))) {
			break
		}
		for _, ln := range itemLines(c) {
			add(ln)
		}
	}
	return out
}

// itemLines prefers list items; other blocks contribute their lines.
func itemLines(n *html.Node) []string {
	sel := goquery.NewDocumentFromNode(n).Selection
	var items []string
	if n.Data == "li" {
		items = append(items, nodeText(n))
	}
	sel.Find("li").Each(func(_ int, li *goquery.Selection) {
		if t := nodeText(li.Get(0)); t != "" {
			items = append(items, t)
		}
	})
	if len(items) > 0 {
		return items
	}
	var lines []string
	for _, ln := range nodeLines(n) {
		if len(ln) <= 300 {
			lines = append(lines, ln)
		}
	}
	return lines
}

var reHeaderWord = regexp.MustCompile(`^[A-Z][A-Za-z'&/+-]*$`)

// looksLikeHeader reports text that reads like a section title: short, no
// trailing punctuation, and mostly capitalised words.
func looksLikeHeader(text string) bool {
	t := Collapse(text)
	if t == "" || len(t) > 120 {
		return false
	}
	if strings.ContainsAny(t[len(t)-1:], ".:;") {
		return false
	}
	words := strings.Fields(t)
	caps := 0
	for _, w := range words {
		if reHeaderWord.MatchString(w) || (strings.ToUpper(w) == w && strings.ToLower(w) != w) {
			caps++
		}
	}
	need := len(words) / 2
	if need < 2 {
		need = 2
	}
	return caps >= need
}

// readPattern runs the locator's pattern (or a label-anchored default) over
// the flattened scope text.
func readPattern(scope *goquery.Selection, loc FieldLocator) (found, bool) {
	lines := nodeLines(scope.Get(0))
	text := strings.Join(lines, "\n")

	if strings.TrimSpace(loc.Pattern) == "" && loc.Shape == ShapeMultiLineBlock {
		block := textBlock(lines, loc)
		return found{lines: block}, len(block) > 0
	}

	re, err := compilePattern(loc)
	if err != nil || re == nil {
		return found{}, false
	}

	switch loc.Dest {
	case DestRecord, DestRecords:
		// Named groups become sub-fields; handled in materializePattern.
		if !re.MatchString(text) {
			return found{}, false
		}
		return found{text: text}, true
	case DestList:
		var items []string
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if v := Collapse(pickGroup(re, m)); v != "" {
				items = append(items, v)
			}
		}
		return found{lines: items}, len(items) > 0
	}

	m := re.FindStringSubmatch(text)
	if m == nil {
		return found{}, false
	}
	v := Collapse(pickGroup(re, m))
	return found{text: v}, v != ""
}

func compilePattern(loc FieldLocator) (*regexp.Regexp, error) {
	if p := strings.TrimSpace(loc.Pattern); p != "" {
		return regexp.Compile(p)
	}
	labels := loc.labels()
	if len(labels) == 0 {
		return nil, nil
	}
	alts := make([]string, 0, len(labels))
	for _, l := range labels {
		alts = append(alts, regexp.QuoteMeta(strings.TrimSpace(l)))
	}
	return regexp.Compile(`(?i)(?:` + strings.Join(alts, "|") + `)\s*[:\-–]\s*([^\n]+)`)
}

// pickGroup returns the "value" group when present, else group 1, else the
// whole match.
func pickGroup(re *regexp.Regexp, m []string) string {
	if i := re.SubexpIndex("value"); i > 0 && i < len(m) {
		return m[i]
	}
	if len(m) > 1 {
		return m[1]
	}
	return m[0]
}

// textBlock finds a line that is just a label and captures the lines after
// it until one that names a stop label. Bullet runs are split into items.
func textBlock(lines []string, loc FieldLocator) []string {
	labels := loc.labels()
	if len(labels) == 0 {
		return nil
	}
	alts := make([]string, 0, len(labels))
	for _, l := range labels {
		alts = append(alts, regexp.QuoteMeta(strings.TrimSpace(l)))
	}
	header := regexp.MustCompile(`(?i)^(?:` + strings.Join(alts, "|") + `)[\s:]*$`)

	stops := make([]string, 0, len(loc.Stop))
	for _, s := range loc.Stop {
		if f := strings.ToLower(Collapse(s)); f != "" {
			stops = append(stops, f)
		}
	}

	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	capturing := false
	for _, ln := range lines {
		if !capturing {
			if header.MatchString(ln) {
				capturing = true
			}
			continue
		}
		if header.MatchString(ln) {
			continue
		}
		low := strings.ToLower(ln)
		stop := false
		for _, s := range stops {
			if strings.Contains(low, s) {
				stop = true
				break
			}
		}
		if stop {
			break
		}
		parts := reBullets.Split(ln, -1)
		if len(parts) > 1 {
			for _, p := range parts {
				add(strings.Trim(p, " -•\t"))
			}
			continue
		}
		if len(ln) >= 3 && len(ln) <= 300 {
			add(ln)
		}
	}
	return out
}

func readPositional(scope *goquery.Selection, loc FieldLocator) (found, bool) {
	anchor := scope
	if strings.TrimSpace(loc.Anchor) != "" {
		anchor = scope.Find(loc.Anchor).First()
	}
	if anchor.Length() == 0 {
		return found{}, false
	}
	txt := inlineAfter(anchor.Get(0), inlineBoundary)
	return found{text: txt}, txt != ""
}

// materialize converts what a rule found into the locator's destination type.
// An empty result comes back Absent so the caller moves on to the next rule.
func materialize(f found, loc FieldLocator, name string, amb *[]Ambiguity) Value {
	switch loc.Dest {
	case DestRecord:
		if f.sel == nil {
			if f.text != "" && loc.Pattern != "" {
				return patternRecord(f.text, loc)
			}
			return Absent
		}
		rec := applyTable(f.sel, loc.Fields, name+".", amb)
		if allAbsent(rec) {
			return Absent
		}
		return RecordValue(rec)

	case DestRecords:
		if f.sel == nil {
			return Absent
		}
		var recs []Record
		items := f.sel
		if loc.Items != "" {
			items = f.sel.Find(loc.Items)
		}
		items.Each(func(_ int, it *goquery.Selection) {
			rec := applyTable(it, loc.Fields, name+".", amb)
			if !allAbsent(rec) {
				recs = append(recs, rec)
			}
		})
		if len(recs) == 0 {
			return Absent
		}
		return RecordsValue(recs)

	case DestList:
		var items []string
		switch {
		case f.sel != nil && loc.Items != "":
			f.sel.Find(loc.Items).Each(func(_ int, it *goquery.Selection) {
				if v := readScalar(it, loc.Value); v != "" {
					items = append(items, v)
				}
			})
		case f.sel != nil:
			items = nodeLines(f.sel.Get(0))
		case len(f.lines) > 0:
			items = f.lines
		case f.text != "":
			items = []string{f.text}
		}
		if len(items) == 0 {
			return Absent
		}
		return ListValue(items)
	}

	var s string
	switch {
	case f.sel != nil:
		s = readScalar(f.sel, loc.Value)
	case len(f.lines) > 0:
		s = strings.Join(f.lines, "\n")
	default:
		s = f.text
	}
	return scalarValue(s, loc.Dest)
}

func patternRecord(text string, loc FieldLocator) Value {
	re, err := compilePattern(loc)
	if err != nil || re == nil {
		return Absent
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return Absent
	}
	rec := Record{}
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		if v := Collapse(m[i]); v != "" {
			rec[name] = StringValue(v)
		} else {
			rec[name] = Absent
		}
	}
	if allAbsent(rec) {
		return Absent
	}
	return RecordValue(rec)
}

// readScalar reads text, an attribute or HTML from sel per spec.
func readScalar(sel *goquery.Selection, spec ValueSpec) string {
	target := sel
	if spec.Selector != "" {
		target = sel.Find(spec.Selector).First()
		if target.Length() == 0 {
			return ""
		}
	}
	switch {
	case spec.Attr != "":
		v, _ := target.Attr(spec.Attr)
		return strings.TrimSpace(v)
	case spec.HTML:
		out, err := goquery.OuterHtml(target)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(out)
	default:
		return nodeText(target.Get(0))
	}
}

func scalarValue(s string, d Dest) Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return Absent
	}
	switch d {
	case DestInt:
		m := reFirstInt.FindString(s)
		if m == "" {
			return Absent
		}
		n, err := strconv.ParseInt(strings.ReplaceAll(m, ",", ""), 10, 64)
		if err != nil {
			return Absent
		}
		return IntValue(n)
	case DestTag:
		return StringValue(strings.ToLower(Collapse(s)))
	default:
		return StringValue(s)
	}
}

func allAbsent(r Record) bool {
	for _, v := range r {
		if !v.IsAbsent() {
			return false
		}
	}
	return true
}
