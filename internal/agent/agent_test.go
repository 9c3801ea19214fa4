package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvest/internal/trends"
)

func testDocs() []trends.Doc {
	return []trends.Doc{
		{ID: "courses:CS_6313", Text: "CS 6313 — Statistical Methods for Data Science. Regression and sampling.",
			Tags: []string{"CS 6313", "Statistical"}, Meta: trends.Meta{URL: "https://c/cs6313"}},
		{ID: "courses:CS_6350", Text: "CS 6350 — Big Data Management and Analytics. Spark and Hadoop.",
			Tags: []string{"CS 6350"}, Meta: trends.Meta{URL: "https://c/cs6350"}},
		{ID: "courses:MIS_6382", Text: "MIS 6382 — Object Oriented Programming in Python.",
			Tags: []string{"MIS 6382", "Python"}},
	}
}

func TestRetrieve(t *testing.T) {
	t.Parallel()

	kb := NewKB(testDocs())
	assert.Equal(t, 3, kb.Len())

	got := kb.Retrieve("Which course covers Spark for big data?", 0)
	require.NotEmpty(t, got)
	assert.Equal(t, "courses:CS_6350", got[0].ID)
	assert.Equal(t, "https://c/cs6350", got[0].Source)
	assert.Greater(t, got[0].Score, 0.0)
	assert.Less(t, got[0].Score, 1.0, "covers is in no document")

	got = kb.Retrieve("spark hadoop", 5)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)

	// data appears in two documents; the one with more query terms ranks first
	got = kb.Retrieve("statistical data", 5)
	require.Len(t, got, 2)
	assert.Equal(t, "courses:CS_6313", got[0].ID)
	assert.Greater(t, got[0].Score, got[1].Score)

	got = kb.Retrieve("python", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "courses:MIS_6382", got[0].Source, "falls back to the id without a url")

	assert.Empty(t, kb.Retrieve("underwater basket weaving", 5))
	assert.Empty(t, kb.Retrieve("the of and", 5))
}

func TestLoadKB(t *testing.T) {
	t.Parallel()

	kb, err := LoadKB(strings.NewReader(`{"id":"courses:A","text":"Alpha algebra"}` + "\n" + `{"id":"courses:B","text":"Beta biology"}`))
	require.NoError(t, err)
	assert.Equal(t, 2, kb.Len())
	assert.Equal(t, "courses:B", kb.Retrieve("biology", 3)[0].ID)

	_, err = LoadKB(strings.NewReader("{not json"))
	assert.Error(t, err)
}

func TestFormatPassages(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "No results.", FormatPassages(nil))
	assert.Equal(t,
		"- A text\n  Source: https://a  (score: 0.50)\n- B text\n  Source: courses:B  (score: 1.00)",
		FormatPassages([]Passage{
			{Text: "A text", Source: "https://a", Score: 0.5},
			{Text: "B text", Source: "courses:B", Score: 1},
		}))
}

type fakeModel struct {
	system, prompt string
	reply          string
	err            error
}

func (f *fakeModel) Generate(_ context.Context, system, prompt string) (string, error) {
	f.system, f.prompt = system, prompt
	return f.reply, f.err
}

func TestAgent_Ask(t *testing.T) {
	t.Parallel()

	m := &fakeModel{reply: "  Take CS 6350.\n"}
	a := &Agent{KB: NewKB(testDocs()), Model: m, TopK: 2}

	ans, err := a.Ask(context.Background(), "spark")
	require.NoError(t, err)
	assert.Equal(t, "Take CS 6350.", ans.Text)
	require.Len(t, ans.Passages, 1)
	assert.Equal(t, SystemInstruction, m.system)
	assert.Contains(t, m.prompt, "Question:\nspark")
	assert.Contains(t, m.prompt, "Source: https://c/cs6350")

	_, err = a.Ask(context.Background(), "   ")
	assert.Error(t, err)

	m.err = errors.New("quota")
	_, err = a.Ask(context.Background(), "nothing matches this")
	assert.ErrorContains(t, err, "quota")
	assert.Contains(t, m.prompt, "No results.")
}

func TestNewGemini_NoKey(t *testing.T) {
	t.Parallel()

	_, err := NewGemini(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
