package normalize

import "strings"

// Location is the inferred country and "City, ST" of a posting.
type Location struct {
	Country   *string `json:"country"`
	CityState *string `json:"city_state"`
}

const unitedStates = "United States"

// InferLocation looks at the location field first and then the head of the
// posting text. The first source that says anything decides.
func (n *Normalizer) InferLocation(location, text string) Location {
	var srcs []string
	if location != "" {
		srcs = append(srcs, location)
	}
	if text != "" {
		lines := strings.Split(text, "\n")
		if len(lines) > n.cfg.HeadLines {
			lines = lines[:n.cfg.HeadLines]
		}
		srcs = append(srcs, strings.Join(lines, "\n"))
	}

	for _, s := range srcs {
		low := strings.ToLower(s)
		if n.cfg.USKeywords.MatchString(low) {
			if n.cfg.RemoteUS.MatchString(low) {
				return us("Remote - US")
			}
			return us("")
		}
		if cs, ok := n.cityState(s); ok {
			return us(cs)
		}
		if strings.Contains(s, ";") {
			for _, p := range strings.Split(s, ";") {
				if p = strings.TrimSpace(p); p == "" {
					continue
				}
				if cs, ok := n.cityState(p); ok {
					return us(cs)
				}
			}
		}
		if strings.Contains(low, "united states") {
			return us("")
		}
	}
	return Location{}
}

func (n *Normalizer) cityState(s string) (string, bool) {
	m := n.cfg.CityState.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]) + ", " + m[2], true
}

func us(cityState string) Location {
	c := unitedStates
	loc := Location{Country: &c}
	if cityState != "" {
		loc.CityState = &cityState
	}
	return loc
}
