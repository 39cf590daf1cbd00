package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/flow/pkg/flow/internalerr"
	"github.com/cognicore/flow/pkg/flow/model"
)

type stubGenerator struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubGenerator) GenerateJSON(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		wantErr  bool
		wantLbl  model.NLILabel
		wantConf float64
	}{
		{"plain", `{"label":"entailment","confidence":0.93}`, false, model.Entailment, 0.93},
		{"code block", "```json\n{\"label\":\"Contradiction\",\"confidence\":0.8}\n```", false, model.Contradiction, 0.8},
		{"confidence clamped", `{"label":"neutral","confidence":1.7}`, false, model.Neutral, 1},
		{"unknown label", `{"label":"maybe","confidence":0.5}`, true, "", 0},
		{"not json", `I think it entails.`, true, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &stubGenerator{reply: tt.reply}
			e := NewWithGenerator(gen)

			label, conf, err := e.Classify(context.Background(), "The utilize of data.", "The use of data.")
			if tt.wantErr {
				assert.ErrorIs(t, err, internalerr.ErrModelService)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLbl, label)
			assert.InDelta(t, tt.wantConf, conf, 1e-12)

			require.Len(t, gen.prompts, 1)
			assert.Contains(t, gen.prompts[0], "Premise: The utilize of data.")
			assert.Contains(t, gen.prompts[0], "Hypothesis: The use of data.")
		})
	}
}

func TestClassify_GeneratorError(t *testing.T) {
	e := NewWithGenerator(&stubGenerator{err: errors.New("quota exceeded")})
	_, _, err := e.Classify(context.Background(), "a", "b")
	assert.ErrorIs(t, err, internalerr.ErrModelService)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.NoError(t, e.Close())
}

func TestNew_RequiresKeyAndModel(t *testing.T) {
	_, err := New(context.Background(), "", "gemini-1.5-flash")
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
	_, err = New(context.Background(), "key", "")
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
}

func TestExtractTextFromResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"label":`), genai.Text(`"neutral"}`)}},
		}},
	}
	text, err := extractTextFromResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"label":"neutral"}`, text)

	_, err = extractTextFromResponse(&genai.GenerateContentResponse{})
	assert.Error(t, err)
	_, err = extractTextFromResponse(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}})
	assert.Error(t, err)
}
