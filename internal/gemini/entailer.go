// Package gemini classifies entailment with a Google Gemini model, for
// deployments whose sidecar carries no NLI model.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/cognicore/flow/pkg/flow/internalerr"
	"github.com/cognicore/flow/pkg/flow/model"
)

// Generator produces a JSON document for a prompt.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// Entailer implements model.Entailer on top of a Generator.
type Entailer struct {
	gen    Generator
	closer func() error
}

// New creates an Entailer backed by the named Gemini model.
func New(ctx context.Context, apiKey, modelName string) (*Entailer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: Gemini API key is required", internalerr.ErrInvalidConfig)
	}
	if modelName == "" {
		return nil, fmt.Errorf("%w: Gemini model name is required", internalerr.ErrInvalidConfig)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Entailer{gen: &geminiGenerator{client: client, model: modelName}, closer: client.Close}, nil
}

// NewWithGenerator wraps an arbitrary generator.
func NewWithGenerator(gen Generator) *Entailer {
	return &Entailer{gen: gen}
}

// Close releases the Gemini client.
func (e *Entailer) Close() error {
	if e.closer != nil {
		return e.closer()
	}
	return nil
}

type verdict struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classify implements model.Entailer.
func (e *Entailer) Classify(ctx context.Context, premise, hypothesis string) (model.NLILabel, float64, error) {
	raw, err := e.gen.GenerateJSON(ctx, buildPrompt(premise, hypothesis))
	if err != nil {
		return "", 0, fmt.Errorf("%w: gemini: %v", internalerr.ErrModelService, err)
	}
	var v verdict
	if err := json.Unmarshal([]byte(cleanJSONBlock(raw)), &v); err != nil {
		return "", 0, fmt.Errorf("%w: gemini: malformed verdict: %v", internalerr.ErrModelService, err)
	}
	label := model.NLILabel(strings.ToLower(strings.TrimSpace(v.Label)))
	if !label.Valid() {
		return "", 0, fmt.Errorf("%w: gemini: unknown label %q", internalerr.ErrModelService, v.Label)
	}
	return label, min(max(v.Confidence, 0), 1), nil
}

func buildPrompt(premise, hypothesis string) string {
	var b strings.Builder
	b.WriteString("You are a natural language inference classifier.\n")
	b.WriteString("Decide whether the hypothesis follows from the premise.\n\n")
	fmt.Fprintf(&b, "Premise: %s\n", premise)
	fmt.Fprintf(&b, "Hypothesis: %s\n\n", hypothesis)
	b.WriteString(`Respond with JSON only: {"label": "entailment" | "neutral" | "contradiction", "confidence": <number between 0 and 1>}`)
	return b.String()
}

type geminiGenerator struct {
	client *genai.Client
	model  string
}

func (g *geminiGenerator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	m := g.client.GenerativeModel(g.model)
	m.SetTemperature(0)
	m.ResponseMIMEType = "application/json"

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return extractTextFromResponse(resp)
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return strings.Join(parts, ""), nil
}

// cleanJSONBlock removes markdown code block wrappers from JSON
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
