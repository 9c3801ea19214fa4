package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Salary is the aggregated pay information found in a posting.
// Any field may be nil.
type Salary struct {
	Min      *int    `json:"salary_min"`
	Max      *int    `json:"salary_max"`
	Unit     *string `json:"salary_unit"`
	Currency *string `json:"salary_currency"`
}

// ParseSalary scans text for pay ranges, falling back to the first single
// value with a unit. Matches in experience or percentage context are dropped
// unless money context is also nearby.
func (n *Normalizer) ParseSalary(text string) Salary {
	if text == "" {
		return Salary{}
	}

	rt := newRuneText(text)
	var (
		lows, highs []int
		units       = map[string]bool{}
		curGroups   []string
	)

	addUnit := func(unit string, money bool) {
		switch {
		case unit != "":
			units[unit] = true
		case money:
			units["year"] = true
		}
	}

	re := n.cfg.SalaryRange
	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		lo, loOK := salaryNumber(group(text, m, re, "lo"))
		hi, hiOK := salaryNumber(group(text, m, re, "hi"))
		unit := salaryUnit(group(text, m, re, "unit"))
		if !loOK && !hiOK {
			continue
		}
		start, end := rt.span(m[0], m[1])
		if n.badContext(rt, start, end) {
			continue
		}
		money := n.moneyContext(rt, start, end)
		top := max(lo, hi)
		switch unit {
		case "year":
			if top < 1000 && !money {
				continue
			}
		case "hour":
			if ((loOK && (lo < 8 || lo > 5000)) || (hiOK && (hi < 8 || hi > 5000))) && !money {
				continue
			}
		default:
			if !money && top < 1000 {
				continue
			}
		}
		if loOK {
			lows = append(lows, lo)
		}
		if hiOK {
			highs = append(highs, hi)
		}
		addUnit(unit, money)
		curGroups = append(curGroups, group(text, m, re, "cur1"), group(text, m, re, "cur2"))
	}

	if len(lows) == 0 && len(highs) == 0 {
		re = n.cfg.SalarySingle
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			val, ok := salaryNumber(group(text, m, re, "val"))
			unit := salaryUnit(group(text, m, re, "unit"))
			if !ok {
				continue
			}
			start, end := rt.span(m[0], m[1])
			if n.badContext(rt, start, end) {
				continue
			}
			money := n.moneyContext(rt, start, end)
			switch unit {
			case "year":
				if val < 1000 && !money {
					continue
				}
			case "hour":
				if (val < 8 || val > 5000) && !money {
					continue
				}
			default:
				if !money && val < 1000 {
					continue
				}
			}
			lows = append(lows, val)
			highs = append(highs, val)
			addUnit(unit, money)
			curGroups = append(curGroups, group(text, m, re, "cur"))
			break
		}
	}

	out := Salary{Currency: n.pickCurrency(text, curGroups)}
	if len(lows) == 0 && len(highs) == 0 {
		return out
	}
	if len(lows) > 0 {
		v := minOf(lows)
		out.Min = &v
	}
	switch {
	case len(highs) > 0:
		v := maxOf(highs)
		out.Max = &v
	case len(lows) > 0:
		v := maxOf(lows)
		out.Max = &v
	}
	switch {
	case units["year"]:
		u := "year"
		out.Unit = &u
	case units["hour"]:
		u := "hour"
		out.Unit = &u
	}
	return out
}

func group(text string, m []int, re *regexp.Regexp, name string) string {
	i := re.SubexpIndex(name)
	if i < 0 || 2*i+1 >= len(m) || m[2*i] < 0 {
		return ""
	}
	return text[m[2*i]:m[2*i+1]]
}

// salaryNumber parses "120,000", "120k" or "120 K". Values above MaxInt32
// are rejected as implausible.
func salaryNumber(s string) (int, bool) {
	s = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	if s == "" {
		return 0, false
	}
	mult := 1.0
	if strings.HasSuffix(s, "k") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "k"))
		mult = 1000
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	v := f * mult
	if math.IsNaN(v) || v < 0 || v > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}

func salaryUnit(u string) string {
	u = strings.ToLower(u)
	switch {
	case u == "":
		return ""
	case u == "hour" || u == "hr":
		return "hour"
	case strings.HasPrefix(u, "year"), strings.HasPrefix(u, "yr"), u == "annual", u == "annum":
		return "year"
	}
	return ""
}

func (n *Normalizer) pickCurrency(text string, groups []string) *string {
	usd := "USD"
	if m := n.cfg.CurrencyWord.FindStringSubmatch(text); m != nil {
		tok := strings.ToUpper(m[1])
		if tok == "US$" || tok == "USD" {
			return &usd
		}
		return &tok
	}
	if strings.Contains(text, "$") {
		return &usd
	}
	for _, g := range groups {
		switch strings.ToUpper(g) {
		case "$", "US$", "USD":
			return &usd
		}
	}
	return nil
}

func (n *Normalizer) moneyContext(rt runeText, start, end int) bool {
	ctx := strings.ToLower(rt.window(start, end, n.cfg.MoneyWindow))
	if strings.Contains(ctx, "$") || strings.Contains(ctx, "usd") {
		return true
	}
	for _, kw := range n.cfg.MoneyKeywords {
		if strings.Contains(ctx, kw) {
			return true
		}
	}
	return false
}

func (n *Normalizer) badContext(rt runeText, start, end int) bool {
	ctx := strings.ToLower(rt.window(start, end, n.cfg.BadWindow))
	for _, kw := range n.cfg.BadKeywords {
		if strings.Contains(ctx, kw) {
			return !n.moneyContext(rt, start, end)
		}
	}
	if strings.Contains(ctx, "%") {
		return !n.moneyContext(rt, start, end)
	}
	return false
}

// runeText converts regexp byte offsets to character offsets so context
// windows count characters rather than bytes.
type runeText struct {
	s     string
	runes []rune
}

func newRuneText(s string) runeText {
	return runeText{s: s, runes: []rune(s)}
}

func (t runeText) span(startByte, endByte int) (int, int) {
	start := utf8.RuneCountInString(t.s[:startByte])
	return start, start + utf8.RuneCountInString(t.s[startByte:endByte])
}

func (t runeText) window(start, end, pad int) string {
	lo := max(0, start-pad)
	hi := min(len(t.runes), end+pad)
	return string(t.runes[lo:hi])
}

func minOf(v []int) int {
	m := v[0]
	for _, x := range v[1:] {
		m = min(m, x)
	}
	return m
}

func maxOf(v []int) int {
	m := v[0]
	for _, x := range v[1:] {
		m = max(m, x)
	}
	return m
}
