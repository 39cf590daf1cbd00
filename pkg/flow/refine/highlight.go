package refine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cognicore/flow/pkg/flow/align"
	"github.com/cognicore/flow/pkg/flow/candidates"
	"github.com/cognicore/flow/pkg/flow/score"
)

// minSuggestionGain drops highlight suggestions that barely move fluency.
const minSuggestionGain = 0.5

// HighlightOptions tune flagging for a highlight pass.
type HighlightOptions struct {
	MinEntropy     float64
	MaxRank        int
	TopSuggestions int
}

// HighlightDefaults returns options using the pipeline thresholds and three
// suggestions per word.
func (p *Pipeline) HighlightDefaults() HighlightOptions {
	return HighlightOptions{
		MinEntropy:     p.cfg.MinEntropy,
		MaxRank:        p.cfg.MaxOriginalRank,
		TopSuggestions: 3,
	}
}

// Suggestion is a replacement offered for a highlighted word.
type Suggestion struct {
	Text             string  `json:"text"`
	Gain             float64 `json:"gain"`
	Similarity       float64 `json:"similarity"`
	LogProb          float64 `json:"log_prob"`
	Rank             int     `json:"rank"`
	PassesThresholds bool    `json:"passes_thresholds"`
}

// Highlight marks a word of the input that likely needs editing. Start and
// End are byte offsets into the full input text; CharStart and CharEnd are
// the same range counted in Unicode code points, for clients that index
// strings by character.
type Highlight struct {
	Word        string       `json:"word"`
	Start       int          `json:"start"`
	End         int          `json:"end"`
	CharStart   int          `json:"char_start"`
	CharEnd     int          `json:"char_end"`
	Entropy     float64      `json:"entropy"`
	Rank        int          `json:"rank"`
	LogProb     float64      `json:"log_prob"`
	Reasons     []string     `json:"reasons"`
	Suggestions []Suggestion `json:"suggestions"`
}

// HighlightReport is the outcome of Highlight.
type HighlightReport struct {
	Text      string      `json:"text"`
	Words     []Highlight `json:"words"`
	Sentences int         `json:"sentences"`
}

// Highlight flags words without editing anything. Only flagged words with
// at least one suggestion are reported.
func (p *Pipeline) Highlight(ctx context.Context, text string, opts HighlightOptions) (HighlightReport, error) {
	if opts.TopSuggestions <= 0 {
		opts.TopSuggestions = 3
	}
	sentences, err := p.constraints.SplitSentences(ctx, text)
	if err != nil {
		return HighlightReport{}, err
	}
	report := HighlightReport{Text: text, Sentences: len(sentences)}

	cursor := 0
	for _, sentence := range sentences {
		if err := ctx.Err(); err != nil {
			return HighlightReport{}, err
		}
		start := cursor
		if i := strings.Index(text[cursor:], sentence); i >= 0 {
			start = cursor + i
		}
		words, err := p.highlightSentence(ctx, sentence, start, opts)
		if err != nil {
			return HighlightReport{}, err
		}
		for i := range words {
			h := &words[i]
			h.CharStart = utf8.RuneCountInString(text[:h.Start])
			h.CharEnd = h.CharStart + utf8.RuneCountInString(text[h.Start:h.End])
		}
		report.Words = append(report.Words, words...)
		cursor = min(start+len(sentence), len(text))
	}
	return report, nil
}

func (p *Pipeline) highlightSentence(ctx context.Context, sentence string, offset int, opts HighlightOptions) ([]Highlight, error) {
	words, err := p.constraints.ExtractWords(ctx, sentence)
	if err != nil {
		return nil, err
	}
	scores, err := p.scorer.ScoreSentence(ctx, sentence, words, opts.MinEntropy, opts.MaxRank)
	if err != nil {
		return nil, err
	}

	var enc []int
	var alignments []align.WordAlignment
	var out []Highlight
	for _, ws := range scores {
		if !ws.IsClunky || isPunctuation(ws.Word) || p.keep.Contains(ws.Word) {
			continue
		}
		if enc == nil {
			e, err := p.aligner.Encode(ctx, sentence)
			if err != nil {
				return nil, err
			}
			enc, alignments = e.IDs, align.AlignEncoding(sentence, words, e)
		}
		al, ok := align.Find(alignments, ws.WordIdx)
		if !ok {
			continue
		}

		suggestions, err := p.suggest(ctx, sentence, enc, al, ws.Word, opts.TopSuggestions)
		if err != nil {
			return nil, err
		}
		if len(suggestions) == 0 {
			continue
		}
		out = append(out, Highlight{
			Word:        ws.Word,
			Start:       offset + al.CharStart,
			End:         offset + al.CharEnd,
			Entropy:     ws.Entropy,
			Rank:        ws.Rank,
			LogProb:     ws.LogProb,
			Reasons:     flagReasons(ws, opts),
			Suggestions: suggestions,
		})
	}
	return out, nil
}

// suggest evaluates candidates in model order and keeps the first n whose
// gain reaches minSuggestionGain.
func (p *Pipeline) suggest(ctx context.Context, sentence string, ids []int, al align.WordAlignment, word string, n int) ([]Suggestion, error) {
	cands, err := p.shortlist(ctx, sentence, ids, al, word)
	if err != nil || len(cands) == 0 {
		return nil, err
	}
	if len(cands) > maxEvaluated {
		cands = cands[:maxEvaluated]
	}
	origPLL, err := p.scorer.WindowedPLL(ctx, ids, al.TokenStart, p.cfg.PLLWindowSize)
	if err != nil {
		return nil, err
	}

	var kept []candidates.Candidate
	var evs []evaluation
	for _, c := range cands {
		ev, err := p.fluency(ctx, ids, al, c, origPLL)
		if err != nil {
			return nil, err
		}
		if ev.gain < minSuggestionGain {
			continue
		}
		kept = append(kept, c)
		evs = append(evs, ev)
		if len(kept) == n {
			break
		}
	}
	sims, err := p.semantic.BatchSimilarity(ctx, sentence, newTexts(evs))
	if err != nil {
		return nil, err
	}

	out := make([]Suggestion, 0, len(kept))
	for i, c := range kept {
		out = append(out, Suggestion{
			Text:             c.Text,
			Gain:             evs[i].gain,
			Similarity:       sims[i],
			LogProb:          c.LogProb,
			Rank:             c.Rank,
			PassesThresholds: evs[i].gain >= p.cfg.MinPLLGain && sims[i] >= p.cfg.MinSBERTCosine,
		})
	}
	return out, nil
}

func newTexts(evs []evaluation) []string {
	texts := make([]string, len(evs))
	for i, ev := range evs {
		texts[i] = ev.newText
	}
	return texts
}

func flagReasons(ws score.WordScore, opts HighlightOptions) []string {
	var reasons []string
	if ws.Entropy >= opts.MinEntropy {
		reasons = append(reasons, fmt.Sprintf("high uncertainty (H≥%g)", opts.MinEntropy))
	}
	if ws.Rank >= opts.MaxRank {
		reasons = append(reasons, fmt.Sprintf("low rank (rank≥%d)", opts.MaxRank))
	}
	return reasons
}

// Modification is one candidate substitution found by Explore.
type Modification struct {
	Sentence         int     `json:"sentence"`
	Original         string  `json:"original"`
	Replacement      string  `json:"replacement"`
	Text             string  `json:"text"`
	Entropy          float64 `json:"entropy"`
	Rank             int     `json:"rank"`
	Gain             float64 `json:"gain"`
	Similarity       float64 `json:"similarity"`
	LogProb          float64 `json:"log_prob"`
	Quality          float64 `json:"quality"`
	PassesThresholds bool    `json:"passes_thresholds"`
}

// Quality weighs a modification: uncertain originals, fluency gain,
// preserved meaning and candidate probability.
func Quality(entropy, gain, similarity, logProb float64) float64 {
	return 0.3*entropy + 2.0*gain + 10.0*similarity + 0.1*logProb
}

// Explore scores every word of every sentence, evaluates all compatible
// candidates and returns the topN modifications per sentence by Quality,
// regardless of thresholds.
func (p *Pipeline) Explore(ctx context.Context, text string, topN int) ([]Modification, error) {
	sentences, err := p.constraints.SplitSentences(ctx, text)
	if err != nil {
		return nil, err
	}

	var out []Modification
	for i, sentence := range sentences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mods, err := p.exploreSentence(ctx, i, sentence)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(mods, func(a, b int) bool { return mods[a].Quality > mods[b].Quality })
		if topN > 0 && len(mods) > topN {
			mods = mods[:topN]
		}
		out = append(out, mods...)
	}
	return out, nil
}

func (p *Pipeline) exploreSentence(ctx context.Context, idx int, sentence string) ([]Modification, error) {
	words, err := p.constraints.ExtractWords(ctx, sentence)
	if err != nil {
		return nil, err
	}
	scores, err := p.scorer.ScoreSentence(ctx, sentence, words, 0, math.MaxInt)
	if err != nil {
		return nil, err
	}
	enc, err := p.aligner.Encode(ctx, sentence)
	if err != nil {
		return nil, err
	}
	alignments := align.AlignEncoding(sentence, words, enc)

	var mods []Modification
	for _, ws := range scores {
		if isPunctuation(ws.Word) || p.keep.Contains(ws.Word) {
			continue
		}
		al, ok := align.Find(alignments, ws.WordIdx)
		if !ok {
			continue
		}
		cands, err := p.shortlist(ctx, sentence, enc.IDs, al, ws.Word)
		if err != nil {
			return nil, err
		}
		if len(cands) > maxEvaluated {
			cands = cands[:maxEvaluated]
		}
		if len(cands) == 0 {
			continue
		}
		origPLL, err := p.scorer.WindowedPLL(ctx, enc.IDs, al.TokenStart, p.cfg.PLLWindowSize)
		if err != nil {
			return nil, err
		}
		evs := make([]evaluation, len(cands))
		for i, c := range cands {
			if evs[i], err = p.fluency(ctx, enc.IDs, al, c, origPLL); err != nil {
				return nil, err
			}
		}
		sims, err := p.semantic.BatchSimilarity(ctx, sentence, newTexts(evs))
		if err != nil {
			return nil, err
		}
		for i, c := range cands {
			ev, sim := evs[i], sims[i]
			mods = append(mods, Modification{
				Sentence:         idx,
				Original:         ws.Word,
				Replacement:      c.Text,
				Text:             ev.newText,
				Entropy:          ws.Entropy,
				Rank:             ws.Rank,
				Gain:             ev.gain,
				Similarity:       sim,
				LogProb:          c.LogProb,
				Quality:          Quality(ws.Entropy, ev.gain, sim, c.LogProb),
				PassesThresholds: ev.gain >= p.cfg.MinPLLGain && sim >= p.cfg.MinSBERTCosine,
			})
		}
	}
	return mods, nil
}

// isPunctuation reports whether word has no letters or digits.
func isPunctuation(word string) bool {
	for _, r := range word {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return false
		}
	}
	return true
}
