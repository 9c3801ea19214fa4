package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// SystemInstruction steers the model toward the retrieved passages.
const SystemInstruction = `You are a helpful assistant for UTD students.

Rules:
1) For any question about UTD courses, course descriptions, prerequisites, skills taught,
   scheduling or sections, or "which course should I take", answer from the passages provided
   with the question and include the brief source URLs you used.
2) Do not invent courses, numbers or sources that are not in the passages.
3) If the passages say "No results.", say so briefly and ask one focused follow-up question.`

// ErrNoAPIKey is returned by NewGemini without a key.
var ErrNoAPIKey = errors.New("gemini API key is required")

// Model generates a reply for a prompt under a system instruction.
type Model interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Gemini is a Model backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini connects to the Gemini API.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Generate(ctx context.Context, system, prompt string) (string, error) {
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return resp.Text(), nil
}

// Answer is the model reply plus the passages it was given.
type Answer struct {
	Text     string    `json:"response"`
	Passages []Passage `json:"passages"`
}

// Agent retrieves passages for a question and asks the model.
type Agent struct {
	KB    *KB
	Model Model
	TopK  int
	Log   logrus.FieldLogger
}

// Ask answers question. An empty question is rejected before any call.
func (a *Agent) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, errors.New("empty question")
	}

	passages := a.KB.Retrieve(question, a.TopK)
	if a.Log != nil {
		a.Log.WithFields(logrus.Fields{"query": question, "passages": len(passages)}).Debug("retrieved")
	}

	prompt := fmt.Sprintf("Question:\n%s\n\nPassages from the course knowledge base:\n%s", question, FormatPassages(passages))
	text, err := a.Model.Generate(ctx, SystemInstruction, prompt)
	if err != nil {
		return Answer{Passages: passages}, err
	}
	return Answer{Text: strings.TrimSpace(text), Passages: passages}, nil
}
