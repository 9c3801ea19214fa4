// Package normalize turns raw extracted strings into typed, canonical fields.
//
// All compiled data lives in Config, built once by DefaultConfig and passed
// explicitly to New. The package keeps no mutable state.
package normalize

import (
	"regexp"
	"sort"
	"strings"
)

// LabeledPattern pairs a label with the pattern that selects it.
type LabeledPattern struct {
	Label string
	Re    *regexp.Regexp
}

// Config is read-only after construction and safe to share.
type Config struct {
	Levels []LabeledPattern

	USStates       map[string]bool
	CityState      *regexp.Regexp
	USKeywords     *regexp.Regexp
	RemoteUS       *regexp.Regexp
	SalaryRange    *regexp.Regexp
	SalarySingle   *regexp.Regexp
	CurrencyWord   *regexp.Regexp
	MoneyKeywords  []string
	BadKeywords    []string
	MoneyWindow    int
	BadWindow      int
	HeadLines      int
	Status         *regexp.Regexp
	EmploymentType *regexp.Regexp
	SkillsLine     *regexp.Regexp
	Skills         []LabeledPattern
}

var usStates = []string{
	"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "FL", "GA", "HI", "ID", "IL", "IN", "IA", "KS", "KY", "LA", "ME", "MD",
	"MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH", "NJ", "NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC",
	"SD", "TN", "TX", "UT", "VT", "VA", "WA", "WV", "WI", "WY",
}

var commonSkills = []string{
	"Python", "R", "SQL", "Java", "JavaScript", "TypeScript", "C++", "Scala", "Go",
	"TensorFlow", "PyTorch", "Scikit-learn", "Pandas", "NumPy", "Keras",
	"AWS", "Azure", "GCP", "Docker", "Kubernetes", "Terraform",
	"Machine Learning", "Deep Learning", "NLP", "Computer Vision", "LLM",
	"Data Analysis", "Statistics", "A/B Testing", "ETL", "Big Data", "Spark",
	"Tableau", "Power BI", "Looker", "Git", "REST API", "FastAPI", "Flask", "Django",
}

const unitAlt = `\byears?\b|yr|year|annual|annum|hour|hr`

// DefaultConfig compiles the built-in heuristics.
func DefaultConfig() *Config {
	states := make(map[string]bool, len(usStates))
	for _, s := range usStates {
		states[s] = true
	}
	sorted := append([]string(nil), usStates...)
	sort.Strings(sorted)

	return &Config{
		Levels: []LabeledPattern{
			{"intern", regexp.MustCompile(`(?i)\b(intern|co-?op|apprentice(ship)?)\b`)},
			{"entry", regexp.MustCompile(`(?i)\b(junior|jr\.?|new grad|newgrad|graduate)\b`)},
			{"manager", regexp.MustCompile(`(?i)\b(manager|managing|lead|head of|director|vp|vice president)\b`)},
			{"staff", regexp.MustCompile(`(?i)\b(staff|principal|distinguished|fellow)\b`)},
			{"senior", regexp.MustCompile(`(?i)\b(senior|sr\.?)\b`)},
		},
		USStates:   states,
		CityState:  regexp.MustCompile(`([A-Za-z .'&/-]+),\s*(` + strings.Join(sorted, "|") + `)\b`),
		USKeywords: regexp.MustCompile(`(?i)\b(united states|u\.s\.a|usa|u\.s\.|remote\s*[-–]?\s*us|remote\s+usa)\b`),
		RemoteUS:   regexp.MustCompile(`(?i)(remote\s*[-–]?\s*us[a]?)`),
		SalaryRange: regexp.MustCompile(`(?i)(?P<cur1>\$|US\$|USD)?\s*` +
			`(?P<lo>\d[\d,]*\s*[kK]?)` +
			`\s*(?:-|–|—|\bto\b)\s*` +
			`(?P<cur2>\$|US\$|USD)?\s*` +
			`(?P<hi>\d[\d,]*\s*[kK]?)` +
			`(?:\s*(?:per|/)?\s*(?P<unit>` + unitAlt + `))?`),
		SalarySingle: regexp.MustCompile(`(?i)(?P<cur>\$|US\$|USD)?\s*` +
			`(?P<val>\d[\d,]*\s*[kK]?)` +
			`(?:\s*(?:per|/)?\s*(?P<unit>` + unitAlt + `))`),
		CurrencyWord:  regexp.MustCompile(`(?i)\b(USD|US\$|CAD|EUR|GBP|AUD)\b`),
		MoneyKeywords: []string{"salary", "compensation", "base pay", "base salary", "pay range", "annual"},
		BadKeywords:   []string{"experience", "experiences", "yrs", "years"},
		MoneyWindow:   40,
		BadWindow:     30,
		HeadLines:     30,
		Status: regexp.MustCompile(`(?i)Enrollment Status:\s*(?P<status>\w+)` +
			`\s*Available Seats:\s*(?P<available>\d+)` +
			`\s*Enrolled Total:\s*(?P<enrolled>\d+)` +
			`\s*Waitlist:\s*(?P<waitlist>\d+)`),
		EmploymentType: regexp.MustCompile(`(full[- ]?time|part[- ]?time|contract|internship)`),
		SkillsLine:     regexp.MustCompile(`(?i)skills?[:\-]\s*([A-Za-z0-9,\./ +#\-]{8,300})`),
		Skills:         skillPatterns(commonSkills),
	}
}

// Normalizer applies the heuristics in a Config.
type Normalizer struct {
	cfg *Config
}

// New returns a Normalizer over cfg. A nil cfg means DefaultConfig.
func New(cfg *Config) *Normalizer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Normalizer{cfg: cfg}
}

// skillPatterns matches each skill as a whole token so short names like "R"
// or "Go" do not fire inside other words.
func skillPatterns(skills []string) []LabeledPattern {
	out := make([]LabeledPattern, 0, len(skills))
	for _, s := range skills {
		re := regexp.MustCompile(`(?i)(?:^|[^a-z0-9+#])` + regexp.QuoteMeta(s) + `(?:$|[^a-z0-9+#])`)
		out = append(out, LabeledPattern{Label: s, Re: re})
	}
	return out
}
