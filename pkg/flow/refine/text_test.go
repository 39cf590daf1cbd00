package refine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/flow/pkg/flow/model/modeltest"
)

func TestRefineText_JoinsSentences(t *testing.T) {
	p := newPipeline(t, modeltest.English(), testConfig())

	res, err := p.RefineText(context.Background(), natural+"  "+clunky)
	require.NoError(t, err)
	require.Len(t, res.Sentences, 2)
	assert.Equal(t, natural+" "+clunkyFix, res.Refined)
	require.Len(t, res.Edits(), 1)
	assert.Equal(t, "use", res.Edits()[0].Replacement)
}

func TestRefineText_Cancelled(t *testing.T) {
	p := newPipeline(t, modeltest.English(), testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.RefineText(ctx, clunky)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRefineBatch_KeepsOrder(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 2
	p := newPipeline(t, modeltest.English(), cfg)

	texts := []string{clunky, natural, twoClunky, natural + " " + clunky}
	results, err := p.RefineBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, results, len(texts))

	assert.Equal(t, clunkyFix, results[0].Refined)
	assert.Equal(t, natural, results[1].Refined)
	assert.Equal(t, "We use tools to use data.", results[2].Refined)
	assert.Equal(t, natural+" "+clunkyFix, results[3].Refined)
	for i, r := range results {
		assert.Equal(t, texts[i], r.Original)
	}
}

func TestHighlight_ReportsPositionsAndSuggestions(t *testing.T) {
	p := newPipeline(t, modeltest.English(), testConfig())
	text := natural + " " + clunky

	report, err := p.Highlight(context.Background(), text, p.HighlightDefaults())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sentences)
	require.Len(t, report.Words, 1)

	h := report.Words[0]
	assert.Equal(t, "utilize", h.Word)
	assert.Equal(t, strings.Index(text, "utilize"), h.Start)
	assert.Equal(t, "utilize", text[h.Start:h.End])
	assert.Equal(t, []string{"low rank (rank≥50)"}, h.Reasons)

	require.NotEmpty(t, h.Suggestions)
	assert.LessOrEqual(t, len(h.Suggestions), 3)
	assert.Equal(t, "use", h.Suggestions[0].Text)
	assert.True(t, h.Suggestions[0].PassesThresholds)
	for _, s := range h.Suggestions {
		assert.GreaterOrEqual(t, s.Gain, minSuggestionGain)
	}
}

func TestHighlight_SkipsKeepWords(t *testing.T) {
	cfg := testConfig()
	cfg.KeepWords = []string{"utilize"}
	p := newPipeline(t, modeltest.English(), cfg)

	report, err := p.Highlight(context.Background(), clunky, p.HighlightDefaults())
	require.NoError(t, err)
	assert.Empty(t, report.Words)
}

func TestFlagReasons(t *testing.T) {
	opts := HighlightOptions{MinEntropy: 4, MaxRank: 50}
	p := newPipeline(t, modeltest.English(), testConfig())
	res, err := p.RefineSentence(context.Background(), clunky)
	require.NoError(t, err)

	ws := res.Scores[1]
	ws.Entropy = 4
	assert.Equal(t, []string{"high uncertainty (H≥4)", "low rank (rank≥50)"}, flagReasons(ws, opts))
	ws.Entropy, ws.Rank = 0.5, 3
	assert.Empty(t, flagReasons(ws, opts))
}

func TestExplore_RanksByQuality(t *testing.T) {
	p := newPipeline(t, modeltest.English(), testConfig())

	mods, err := p.Explore(context.Background(), clunky, 3)
	require.NoError(t, err)
	require.NotEmpty(t, mods)
	assert.LessOrEqual(t, len(mods), 3)

	top := mods[0]
	assert.Equal(t, "utilize", top.Original)
	assert.Equal(t, "use", top.Replacement)
	assert.Equal(t, clunkyFix, top.Text)
	assert.True(t, top.PassesThresholds)
	assert.InDelta(t, Quality(top.Entropy, top.Gain, top.Similarity, top.LogProb), top.Quality, 1e-12)
	for i := 1; i < len(mods); i++ {
		assert.GreaterOrEqual(t, mods[i-1].Quality, mods[i].Quality)
		assert.NotContains(t, []string{"Paris", "London"}, mods[i].Replacement)
	}
}

func TestQuality(t *testing.T) {
	assert.InDelta(t, 0.3*2+2*3+10*0.9+0.1*-4, Quality(2, 3, 0.9, -4), 1e-12)
}

func TestExplore_EmbedsSentenceOncePerWord(t *testing.T) {
	fx := modeltest.English()
	p := newPipeline(t, fx, testConfig())
	before := fx.Embedder.Calls()

	mods, err := p.Explore(context.Background(), clunky, 0)
	require.NoError(t, err)
	require.NotEmpty(t, mods)

	explored := make(map[string]bool)
	for _, m := range mods {
		explored[m.Original] = true
	}
	assert.Equal(t, len(mods)+len(explored), fx.Embedder.Calls()-before)
}

func TestHighlight_EmbedsOnlyGainingSuggestions(t *testing.T) {
	fx := modeltest.English()
	p := newPipeline(t, fx, testConfig())
	before := fx.Embedder.Calls()

	report, err := p.Highlight(context.Background(), clunky, p.HighlightDefaults())
	require.NoError(t, err)
	require.NotEmpty(t, report.Words)

	want := 0
	for _, h := range report.Words {
		want += 1 + len(h.Suggestions)
	}
	assert.Equal(t, want, fx.Embedder.Calls()-before)
}

func TestHighlight_CharacterOffsets(t *testing.T) {
	p := newPipeline(t, modeltest.English(), testConfig())
	text := "“Paris” is lovely. " + clunky

	report, err := p.Highlight(context.Background(), text, p.HighlightDefaults())
	require.NoError(t, err)

	var found bool
	for _, h := range report.Words {
		if h.Word != "utilize" {
			continue
		}
		found = true
		start := strings.Index(text, "utilize")
		assert.Equal(t, start, h.Start)
		assert.Equal(t, "utilize", text[h.Start:h.End])
		runes := []rune(text)
		assert.Equal(t, start-4, h.CharStart, "two curly quotes are three bytes each")
		assert.Equal(t, "utilize", string(runes[h.CharStart:h.CharEnd]))
	}
	assert.True(t, found, "utilize is flagged")
}
