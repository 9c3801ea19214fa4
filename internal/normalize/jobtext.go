package normalize

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// WorkMode reports Remote, Hybrid or On-site. The last only applies when the
// posting has a location; otherwise the result is nil.
func (n *Normalizer) WorkMode(text, location string) *string {
	low := strings.ToLower(text)
	var mode string
	switch {
	case strings.Contains(low, " remote"):
		mode = "Remote"
	case strings.Contains(low, "hybrid"):
		mode = "Hybrid"
	case location != "":
		mode = "On-site"
	default:
		return nil
	}
	return &mode
}

// EmploymentType finds the first employment phrase and title-cases it,
// e.g. "full-time" becomes "Full-Time".
func (n *Normalizer) EmploymentType(text string) *string {
	m := n.cfg.EmploymentType.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return nil
	}
	t := cases.Title(language.English).String(m[1])
	return &t
}

// SkillsLine returns the text of an explicit "Skills:" line, if any.
func (n *Normalizer) SkillsLine(text string) []string {
	m := n.cfg.SkillsLine.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	if s := strings.TrimSpace(m[1]); s != "" {
		return []string{s}
	}
	return nil
}

// Skills lists the known skills mentioned in text, sorted and unique.
func (n *Normalizer) Skills(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range n.cfg.Skills {
		if !seen[p.Label] && p.Re.MatchString(text) {
			seen[p.Label] = true
			out = append(out, p.Label)
		}
	}
	sort.Strings(out)
	return out
}
