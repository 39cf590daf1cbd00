package refine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/flow/pkg/flow/config"
	"github.com/cognicore/flow/pkg/flow/internalerr"
	"github.com/cognicore/flow/pkg/flow/keeplist"
	"github.com/cognicore/flow/pkg/flow/model"
	"github.com/cognicore/flow/pkg/flow/model/modeltest"
)

const (
	clunky     = "The utilize of technology is important."
	clunkyFix  = "The use of technology is important."
	natural    = "This is a very clear and simple sentence."
	twoClunky  = "We leverage tools to utilize data."
	properNoun = "Paris is lovely."
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.MinEntropy = 4.0
	cfg.MaxOriginalRank = 50
	cfg.MinPLLGain = 1.5
	cfg.MinSBERTCosine = 0.95
	return cfg
}

func services(fx *modeltest.Fixture) Services {
	return Services{LM: fx.LM, Tagger: fx.Tagger, Embedder: fx.Embedder, Entailer: fx.Entailer}
}

func newPipeline(t *testing.T, fx *modeltest.Fixture, cfg config.Config) *Pipeline {
	t.Helper()
	p, err := New(cfg, services(fx))
	require.NoError(t, err)
	return p
}

func TestRefineSentence_ReplacesClunkyWord(t *testing.T) {
	fx := modeltest.English()
	p := newPipeline(t, fx, testConfig())

	res, err := p.RefineSentence(context.Background(), clunky)
	require.NoError(t, err)

	assert.Equal(t, clunky, res.Original)
	assert.Equal(t, clunkyFix, res.Refined)
	assert.Len(t, res.Scores, 7, "every aligned word is scored")
	require.Len(t, res.Edits, 1)

	e := res.Edits[0]
	assert.Equal(t, 1, e.WordIdx)
	assert.Equal(t, "utilize", e.Original)
	assert.Equal(t, "use", e.Replacement)
	assert.GreaterOrEqual(t, e.Gain, 1.5)
	assert.InDelta(t, 1.0, e.Similarity, 1e-9)
	assert.True(t, e.Score.IsClunky)
	assert.Contains(t, e.Reason, "low rank (#")
	assert.Contains(t, e.Reason, "improves fluency (+")
	assert.Contains(t, e.Reason, "preserves meaning (1.000 sim)")
	assert.NotContains(t, e.Reason, "high uncertainty")

	require.NotEmpty(t, e.Alternatives)
	assert.LessOrEqual(t, len(e.Alternatives), 3)
	assert.Equal(t, "use", e.Alternatives[0].Text)
	for i := 1; i < len(e.Alternatives); i++ {
		assert.GreaterOrEqual(t, e.Alternatives[i-1].Gain, e.Alternatives[i].Gain)
	}

	before := strings.Fields(res.Original)
	after := strings.Fields(res.Refined)
	require.Len(t, after, len(before))
	diffs := 0
	for i := range before {
		if before[i] != after[i] {
			diffs++
		}
	}
	assert.Equal(t, 1, diffs, "only the clunky word changes")
}

func TestRefineSentence_NaturalSentenceUntouched(t *testing.T) {
	fx := modeltest.English()
	p := newPipeline(t, fx, testConfig())

	res, err := p.RefineSentence(context.Background(), natural)
	require.NoError(t, err)
	assert.Equal(t, natural, res.Refined)
	assert.Empty(t, res.Edits)
	for _, ws := range res.Scores {
		assert.False(t, ws.IsClunky, ws.Word)
	}
}

func TestRefineSentence_EditBudget(t *testing.T) {
	tests := []struct {
		budget int
		want   string
	}{
		{0, twoClunky},
		{1, "We use tools to utilize data."},
		{2, "We use tools to use data."},
		{5, "We use tools to use data."},
	}
	for _, tt := range tests {
		fx := modeltest.English()
		cfg := testConfig()
		cfg.MaxEditsPerSentence = tt.budget
		p := newPipeline(t, fx, cfg)

		res, err := p.RefineSentence(context.Background(), twoClunky)
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.Refined, "budget %d", tt.budget)
		assert.LessOrEqual(t, len(res.Edits), tt.budget)
	}
}

func TestRefineSentence_ReAlignsAfterEdit(t *testing.T) {
	fx := modeltest.English()
	p := newPipeline(t, fx, testConfig())

	res, err := p.RefineSentence(context.Background(), twoClunky)
	require.NoError(t, err)
	require.Len(t, res.Edits, 2)
	assert.Equal(t, "leverage", res.Edits[0].Original)
	assert.Equal(t, "utilize", res.Edits[1].Original)
	assert.Equal(t, 4, res.Edits[1].WordIdx)
}

func TestRefineSentence_Idempotent(t *testing.T) {
	fx := modeltest.English()
	p := newPipeline(t, fx, testConfig())
	ctx := context.Background()

	for _, s := range []string{clunky, twoClunky, natural} {
		first, err := p.RefineSentence(ctx, s)
		require.NoError(t, err)
		second, err := p.RefineSentence(ctx, first.Refined)
		require.NoError(t, err)
		assert.Empty(t, second.Edits, "refining %q again", first.Refined)
		assert.Equal(t, first.Refined, second.Refined)
	}
}

func TestRefineSentence_ProperNounNeverEdited(t *testing.T) {
	fx := modeltest.English()
	cfg := testConfig()
	cfg.MinEntropy = 0 // flag everything
	p := newPipeline(t, fx, cfg)

	res, err := p.RefineSentence(context.Background(), properNoun)
	require.NoError(t, err)
	assert.Equal(t, properNoun, res.Refined)
	assert.Empty(t, res.Edits)

	res, err = p.RefineSentence(context.Background(), clunky)
	require.NoError(t, err)
	for _, e := range res.Edits {
		assert.NotEqual(t, "Paris", e.Original)
		for _, alt := range e.Alternatives {
			assert.NotContains(t, []string{"Paris", "London"}, alt.Text)
		}
	}
}

func TestRefineSentence_ThresholdsAreInclusive(t *testing.T) {
	fx := modeltest.English()
	ctx := context.Background()

	probe, err := newPipeline(t, fx, testConfig()).RefineSentence(ctx, clunky)
	require.NoError(t, err)
	require.Len(t, probe.Edits, 1)
	gain, sim := probe.Edits[0].Gain, probe.Edits[0].Similarity

	cfg := testConfig()
	cfg.MinPLLGain = gain
	cfg.MinSBERTCosine = sim
	res, err := newPipeline(t, fx, cfg).RefineSentence(ctx, clunky)
	require.NoError(t, err)
	require.Len(t, res.Edits, 1, "gain and similarity exactly at the thresholds are accepted")
	assert.Equal(t, "use", res.Edits[0].Replacement)

	cfg.MinPLLGain = gain + 1e-6
	res, err = newPipeline(t, fx, cfg).RefineSentence(ctx, clunky)
	require.NoError(t, err)
	assert.Empty(t, res.Edits)
	assert.Equal(t, clunky, res.Refined)
}

func TestSelectBest(t *testing.T) {
	evals := []evaluation{
		{text: "low", gain: 1, similarity: 1},
		{text: "first", gain: 3, similarity: 0.99},
		{text: "second", gain: 3, similarity: 1},
		{text: "dissimilar", gain: 9, similarity: 0.5},
		{text: "contradicts", gain: 8, similarity: 1, vetoed: true},
	}

	best, ok := selectBest(evals, 2, 0.95)
	require.True(t, ok)
	assert.Equal(t, "first", evals[best].text, "ties keep the first seen")

	_, ok = selectBest(evals, 10, 0.95)
	assert.False(t, ok)

	_, ok = selectBest(nil, 0, 0)
	assert.False(t, ok)
}

func TestTopAlternatives(t *testing.T) {
	evals := []evaluation{
		{text: "a", gain: 1},
		{text: "b", gain: 4},
		{text: "c", gain: 2},
		{text: "d", gain: 3},
	}
	alts := topAlternatives(evals, 3)
	require.Len(t, alts, 3)
	assert.Equal(t, []string{"b", "d", "c"}, []string{alts[0].Text, alts[1].Text, alts[2].Text})
}

func TestRefineSentence_Decider(t *testing.T) {
	ctx := context.Background()
	run := func(d Decider) Result {
		fx := modeltest.English()
		res, err := newPipeline(t, fx, testConfig()).RefineSentence(ctx, clunky, WithDecider(d))
		require.NoError(t, err)
		return res
	}
	fixed := func(dec Decision) Decider {
		return DeciderFunc(func(context.Context, Edit) (Decision, error) { return dec, nil })
	}

	var proposed Edit
	res := run(DeciderFunc(func(_ context.Context, e Edit) (Decision, error) {
		proposed = e
		return Decision{Action: Accept}, nil
	}))
	assert.Equal(t, "use", proposed.Replacement)
	assert.Equal(t, clunkyFix, res.Refined)

	res = run(fixed(Decision{Action: Reject}))
	assert.Equal(t, clunky, res.Refined)
	assert.Empty(t, res.Edits)

	res = run(fixed(Decision{Action: ChooseAlternative, Index: 1}))
	require.Len(t, res.Edits, 1)
	assert.Equal(t, "technology", res.Edits[0].Replacement)
	assert.Equal(t, "The technology of technology is important.", res.Refined)
	assert.Less(t, res.Edits[0].Similarity, 0.95, "chosen alternative carries its own numbers")

	res = run(fixed(Decision{Action: ChooseAlternative, Index: 7}))
	assert.Empty(t, res.Edits, "unknown alternative skips the word")

	res = run(DeciderFunc(func(context.Context, Edit) (Decision, error) {
		return Decision{}, errors.New("user went away")
	}))
	assert.Empty(t, res.Edits)
}

func TestRefineSentence_CancelledDecisionSkipsOnlyThatWord(t *testing.T) {
	fx := modeltest.English()
	p := newPipeline(t, fx, testConfig())

	calls := 0
	d := DeciderFunc(func(context.Context, Edit) (Decision, error) {
		calls++
		if calls == 1 {
			return Decision{}, context.Canceled
		}
		return Decision{Action: Accept}, nil
	})

	res, err := p.RefineSentence(context.Background(), twoClunky, WithDecider(d))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, res.Edits, 1)
	assert.Equal(t, "utilize", res.Edits[0].Original)
	assert.Equal(t, "We leverage tools to use data.", res.Refined)
}

func TestRefineSentence_KeepList(t *testing.T) {
	fx := modeltest.English()
	svc := services(fx)
	svc.Keep = keeplist.New([]string{"Utilize"})
	p, err := New(testConfig(), svc)
	require.NoError(t, err)

	res, err := p.RefineSentence(context.Background(), clunky)
	require.NoError(t, err)
	assert.Empty(t, res.Edits)

	cfg := testConfig()
	cfg.KeepWords = []string{"leverage"}
	p = newPipeline(t, modeltest.English(), cfg)
	res, err = p.RefineSentence(context.Background(), twoClunky)
	require.NoError(t, err)
	assert.Equal(t, "We leverage tools to use data.", res.Refined)
}

func TestRefineSentence_EntailmentGuard(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.UseNLICheck = true

	fx := modeltest.English()
	fx.Entailer.Script(clunky, clunkyFix, model.Contradiction)
	res, err := newPipeline(t, fx, cfg).RefineSentence(ctx, clunky)
	require.NoError(t, err)
	assert.Empty(t, res.Edits, "contradiction vetoes the only similar candidate")

	fx = modeltest.English()
	res, err = newPipeline(t, fx, cfg).RefineSentence(ctx, clunky)
	require.NoError(t, err)
	require.Len(t, res.Edits, 1)
	assert.Equal(t, model.Entailment, res.Edits[0].NLILabel)

	fx = modeltest.English()
	_, err = newPipeline(t, fx, testConfig()).RefineSentence(ctx, clunky)
	require.NoError(t, err)
	assert.Zero(t, fx.Entailer.Calls(), "entailer unused when the check is off")
}

func TestNew_Errors(t *testing.T) {
	fx := modeltest.English()

	cfg := testConfig()
	cfg.MinSBERTCosine = 1.2
	_, err := New(cfg, services(fx))
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)

	cfg = testConfig()
	cfg.UseNLICheck = true
	svc := services(fx)
	svc.Entailer = nil
	_, err = New(cfg, svc)
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)

	_, err = New(testConfig(), Services{LM: fx.LM})
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
}

func TestRefineSentence_ModelFailure(t *testing.T) {
	fx := modeltest.English()
	p := newPipeline(t, fx, testConfig())
	fx.LM.InferErr = errors.New("model crashed")

	_, err := p.RefineSentence(context.Background(), clunky)
	require.Error(t, err)
	assert.ErrorIs(t, err, internalerr.ErrModelService)
}

func TestRefineSentence_StandardMethod(t *testing.T) {
	fx := modeltest.English()
	cfg := testConfig()
	cfg.PLLMethod = "standard"
	p := newPipeline(t, fx, cfg)

	res, err := p.RefineSentence(context.Background(), clunky)
	require.NoError(t, err)
	assert.Equal(t, clunkyFix, res.Refined)
}
