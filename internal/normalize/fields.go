package normalize

import (
	"strconv"
	"strings"
)

// SplitCompound splits "A / B" on the first "/". Without a separator the
// whole trimmed input is first and second is nil.
func SplitCompound(s string) (string, *string) {
	first, second, ok := strings.Cut(s, "/")
	if !ok {
		return strings.TrimSpace(s), nil
	}
	sec := strings.TrimSpace(second)
	return strings.TrimSpace(first), &sec
}

// Status is a parsed enrollment status line.
type Status struct {
	Status    string `json:"status"`
	Available *int   `json:"available_seats"`
	Enrolled  *int   `json:"enrolled_total"`
	Waitlist  *int   `json:"waitlist"`
	Raw       string `json:"raw"`
}

// ParseStatus parses the run-on CourseBook status string. When the line does
// not match, Status carries the raw text and the counts stay nil.
func (n *Normalizer) ParseStatus(s string) Status {
	raw := strings.TrimSpace(s)
	out := Status{Status: raw, Raw: raw}

	re := n.cfg.Status
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return out
	}
	out.Status = m[re.SubexpIndex("status")]
	out.Available = atoiPtr(m[re.SubexpIndex("available")])
	out.Enrolled = atoiPtr(m[re.SubexpIndex("enrolled")])
	out.Waitlist = atoiPtr(m[re.SubexpIndex("waitlist")])
	return out
}

func atoiPtr(s string) *int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}

// InferLevel classifies a job title. Empty titles are "unknown", titles that
// match no rule are "mid".
func (n *Normalizer) InferLevel(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return "unknown"
	}
	for _, r := range n.cfg.Levels {
		if r.Re.MatchString(t) {
			return r.Label
		}
	}
	return "mid"
}
