// Package agent answers questions about courses from the merged course
// documents, using a small lexical index for retrieval and Gemini to write
// the answer.
package agent

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"unicode"

	"harvest/internal/trends"
)

// DefaultTopK is used when Retrieve is asked for zero or fewer passages.
const DefaultTopK = 5

// Passage is one retrieved document.
type Passage struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
	Source string  `json:"source"`
}

// KB is an in-memory index over knowledge-base documents. It is read-only
// after construction and safe for concurrent use.
type KB struct {
	docs  []trends.Doc
	terms []map[string]int
	df    map[string]int
}

// NewKB indexes docs.
func NewKB(docs []trends.Doc) *KB {
	kb := &KB{docs: docs, terms: make([]map[string]int, len(docs)), df: map[string]int{}}
	for i, d := range docs {
		tf := map[string]int{}
		for _, tok := range tokens(d.Text + " " + strings.Join(d.Tags, " ")) {
			tf[tok]++
		}
		kb.terms[i] = tf
		for tok := range tf {
			kb.df[tok]++
		}
	}
	return kb
}

// LoadKB reads merged documents (JSON array or JSONL) from r.
func LoadKB(r io.Reader) (*KB, error) {
	docs, err := trends.ReadDocs(r)
	if err != nil {
		return nil, err
	}
	return NewKB(docs), nil
}

// LoadKBFile is LoadKB on a file.
func LoadKBFile(path string) (*KB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open knowledge base: %w", err)
	}
	defer f.Close()
	return LoadKB(f)
}

// Len is the number of indexed documents.
func (kb *KB) Len() int { return len(kb.docs) }

// Retrieve returns up to topK documents sharing terms with query, best
// first. Scores are the idf-weighted share of query terms a document
// contains, in [0, 1]. Ties keep document order.
func (kb *KB) Retrieve(query string, topK int) []Passage {
	if topK <= 0 {
		topK = DefaultTopK
	}
	q := unique(tokens(query))
	if len(q) == 0 || len(kb.docs) == 0 {
		return nil
	}

	weights := make(map[string]float64, len(q))
	var total float64
	for _, tok := range q {
		w := kb.idf(tok)
		weights[tok] = w
		total += w
	}

	type hit struct {
		i     int
		score float64
	}
	var hits []hit
	for i, tf := range kb.terms {
		var s float64
		for _, tok := range q {
			if tf[tok] > 0 {
				s += weights[tok]
			}
		}
		if s > 0 {
			hits = append(hits, hit{i, s / total})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]Passage, 0, len(hits))
	for _, h := range hits {
		d := kb.docs[h.i]
		src := d.Meta.URL
		if src == "" {
			src = d.ID
		}
		out = append(out, Passage{ID: d.ID, Text: d.Text, Score: h.score, Source: src})
	}
	return out
}

func (kb *KB) idf(tok string) float64 {
	n := float64(len(kb.docs))
	return math.Log(1 + (n+1)/(float64(kb.df[tok])+1))
}

// FormatPassages renders passages the way the model sees them.
func FormatPassages(ps []Passage) string {
	if len(ps) == 0 {
		return "No results."
	}
	rows := make([]string, 0, len(ps))
	for _, p := range ps {
		rows = append(rows, fmt.Sprintf("- %s\n  Source: %s  (score: %.2f)", p.Text, p.Source, p.Score))
	}
	return strings.Join(rows, "\n")
}

var stopTerms = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "for": true, "in": true, "is": true,
	"of": true, "on": true, "or": true, "the": true, "to": true, "what": true, "which": true,
	"with": true, "i": true, "should": true, "take": true, "about": true, "course": true, "courses": true,
}

// tokens lower-cases s and splits it on anything that is not a letter or
// digit, dropping stop words.
func tokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopTerms[f] {
			out = append(out, f)
		}
	}
	return out
}

func unique(toks []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range toks {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
