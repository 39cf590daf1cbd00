// Package refine runs the refinement pipeline: flag uncertain words,
// propose replacements, and apply the best one per word under an edit
// budget.
package refine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/cognicore/flow/pkg/flow/align"
	"github.com/cognicore/flow/pkg/flow/candidates"
	"github.com/cognicore/flow/pkg/flow/config"
	"github.com/cognicore/flow/pkg/flow/internalerr"
	"github.com/cognicore/flow/pkg/flow/keeplist"
	"github.com/cognicore/flow/pkg/flow/linguistic"
	"github.com/cognicore/flow/pkg/flow/model"
	"github.com/cognicore/flow/pkg/flow/score"
	"github.com/cognicore/flow/pkg/flow/semantic"
)

// maxEvaluated caps how many filtered candidates are scored per word.
const maxEvaluated = 10

// maxAlternatives caps Edit.Alternatives.
const maxAlternatives = 3

// Alternative is an evaluated candidate kept for audit.
type Alternative struct {
	Text       string  `json:"text"`
	Gain       float64 `json:"gain"`
	Similarity float64 `json:"similarity"`
}

// Edit is an accepted substitution.
type Edit struct {
	WordIdx      int             `json:"word_idx"`
	Original     string          `json:"original"`
	Replacement  string          `json:"replacement"`
	Score        score.WordScore `json:"score"`
	Gain         float64         `json:"gain"`
	Similarity   float64         `json:"similarity"`
	NLILabel     model.NLILabel  `json:"nli_label,omitempty"`
	Reason       string          `json:"reason"`
	Alternatives []Alternative   `json:"alternatives"`
}

// Result is the outcome for one sentence. Scores covers every aligned word,
// flagged or not.
type Result struct {
	Original string            `json:"original"`
	Refined  string            `json:"refined"`
	Edits    []Edit            `json:"edits"`
	Scores   []score.WordScore `json:"scores"`
}

// KeepList protects words from being edited.
type KeepList interface {
	Contains(word string) bool
}

// Services are the external collaborators of the pipeline. Entailer is
// only required when the configuration enables NLI checks; Keep and Logger
// are optional.
type Services struct {
	LM       model.MaskedLM
	Tagger   model.Tagger
	Embedder model.Embedder
	Entailer model.Entailer
	Keep     KeepList
	Logger   *slog.Logger
}

// Pipeline refines sentences. It holds no per-call state and is safe for
// concurrent use when its services are.
type Pipeline struct {
	cfg         config.Config
	aligner     *align.Aligner
	scorer      *score.Scorer
	generator   *candidates.Generator
	constraints *linguistic.Constraints
	semantic    *semantic.Checker
	keep        KeepList
	log         *slog.Logger
}

// New validates cfg and wires the pipeline.
func New(cfg config.Config, svc Services) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if svc.LM == nil || svc.Tagger == nil || svc.Embedder == nil {
		return nil, fmt.Errorf("%w: language model, tagger and embedder are required", internalerr.ErrInvalidInput)
	}
	var entailer model.Entailer
	if cfg.UseNLICheck {
		if svc.Entailer == nil {
			return nil, fmt.Errorf("%w: use_nli_check requires an entailment service", internalerr.ErrInvalidConfig)
		}
		entailer = svc.Entailer
	}
	keep := svc.Keep
	if keep == nil {
		keep = keeplist.New(cfg.KeepWords)
	}
	logger := svc.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	aligner := align.New(svc.LM)
	return &Pipeline{
		cfg:         cfg,
		aligner:     aligner,
		scorer:      score.NewScorer(svc.LM, aligner, score.PLLMethod(cfg.PLLMethod)),
		generator:   candidates.NewGenerator(svc.LM, cfg.TopKCandidates, cfg.FragmentPrefix),
		constraints: linguistic.New(svc.Tagger),
		semantic:    semantic.New(svc.Embedder, entailer),
		keep:        keep,
		log:         logger,
	}, nil
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() config.Config { return p.cfg }

// RefineSentence flags clunky words and replaces them left to right until
// the edit budget is spent. Flags are decided once, up front; each word's
// edit is computed against the sentence as already edited.
func (p *Pipeline) RefineSentence(ctx context.Context, sentence string, opts ...Option) (Result, error) {
	o := collect(opts)

	words, err := p.constraints.ExtractWords(ctx, sentence)
	if err != nil {
		return Result{}, err
	}
	scores, err := p.scorer.ScoreSentence(ctx, sentence, words, p.cfg.MinEntropy, p.cfg.MaxOriginalRank)
	if err != nil {
		return Result{}, err
	}

	res := Result{Original: sentence, Refined: sentence, Scores: scores}
	text := sentence
	current := append([]string(nil), words...)

	for _, ws := range scores {
		if !ws.IsClunky {
			continue
		}
		if len(res.Edits) >= p.cfg.MaxEditsPerSentence {
			p.log.DebugContext(ctx, "edit budget spent", "sentence", sentence, "edits", len(res.Edits))
			break
		}
		if p.keep.Contains(ws.Word) {
			p.log.DebugContext(ctx, "protected word", "word", ws.Word)
			continue
		}

		edit, al, ok, err := p.propose(ctx, text, current, ws)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			continue
		}
		if o.decider != nil {
			if edit, ok = p.decide(ctx, o.decider, edit); !ok {
				continue
			}
		}

		text, current = apply(text, current, al, edit.Replacement)
		res.Edits = append(res.Edits, edit)
		p.log.DebugContext(ctx, "edit applied",
			"word", edit.Original, "replacement", edit.Replacement,
			"gain", edit.Gain, "similarity", edit.Similarity)
	}

	res.Refined = text
	return res, nil
}

// propose re-aligns the word against the current text and returns the best
// passing edit, if any.
func (p *Pipeline) propose(ctx context.Context, text string, words []string, ws score.WordScore) (Edit, align.WordAlignment, bool, error) {
	enc, err := p.aligner.Encode(ctx, text)
	if err != nil {
		return Edit{}, align.WordAlignment{}, false, err
	}
	al, ok := align.Find(align.AlignEncoding(text, words, enc), ws.WordIdx)
	if !ok {
		p.log.DebugContext(ctx, "word not aligned", "word", ws.Word)
		return Edit{}, align.WordAlignment{}, false, nil
	}

	cands, err := p.shortlist(ctx, text, enc.IDs, al, ws.Word)
	if err != nil || len(cands) == 0 {
		return Edit{}, al, false, err
	}

	evals, err := p.evaluate(ctx, text, enc.IDs, al, cands)
	if err != nil {
		return Edit{}, al, false, err
	}
	best, ok := selectBest(evals, p.cfg.MinPLLGain, p.cfg.MinSBERTCosine)
	if !ok {
		p.log.DebugContext(ctx, "no candidate passed", "word", ws.Word, "evaluated", len(evals))
		return Edit{}, al, false, nil
	}

	ev := evals[best]
	return Edit{
		WordIdx:      ws.WordIdx,
		Original:     ws.Word,
		Replacement:  ev.text,
		Score:        ws,
		Gain:         ev.gain,
		Similarity:   ev.similarity,
		NLILabel:     ev.nli,
		Reason:       p.reason(ws, ev.gain, ev.similarity),
		Alternatives: topAlternatives(evals, maxAlternatives),
	}, al, true, nil
}

// shortlist generates, recases, deduplicates and linguistically filters
// replacements for the word at al.
func (p *Pipeline) shortlist(ctx context.Context, text string, ids []int, al align.WordAlignment, word string) ([]candidates.Candidate, error) {
	raw, err := p.generator.Generate(ctx, ids, al, word)
	if err != nil || len(raw) == 0 {
		return nil, err
	}

	seen := make(map[string]bool, len(raw))
	cased := make([]candidates.Candidate, 0, len(raw))
	texts := make([]string, 0, len(raw))
	for _, c := range raw {
		c.Text = candidates.PreserveCase(c.Text, word)
		if seen[c.Text] {
			continue
		}
		seen[c.Text] = true
		cased = append(cased, c)
		texts = append(texts, c.Text)
	}

	kept, err := p.constraints.FilterCandidates(ctx, word, texts, text, true)
	if err != nil {
		return nil, err
	}
	ok := make(map[string]bool, len(kept))
	for _, t := range kept {
		ok[t] = true
	}
	out := cased[:0]
	for _, c := range cased {
		if ok[c.Text] {
			out = append(out, c)
		}
	}
	return out, nil
}

type evaluation struct {
	text       string
	logProb    float64
	rank       int
	newText    string
	gain       float64
	similarity float64
	nli        model.NLILabel
	vetoed     bool // rejected by the entailment check
}

// passes applies the inclusive acceptance thresholds.
func (e evaluation) passes(minGain, minSim float64) bool {
	return e.gain >= minGain && e.similarity >= minSim && !e.vetoed
}

// evaluate scores up to maxEvaluated candidates for fluency gain and
// meaning preservation. Entailment only runs for candidates whose gain
// passes.
func (p *Pipeline) evaluate(ctx context.Context, text string, ids []int, al align.WordAlignment, cands []candidates.Candidate) ([]evaluation, error) {
	if len(cands) > maxEvaluated {
		cands = cands[:maxEvaluated]
	}
	origPLL, err := p.scorer.WindowedPLL(ctx, ids, al.TokenStart, p.cfg.PLLWindowSize)
	if err != nil {
		return nil, err
	}

	out := make([]evaluation, 0, len(cands))
	for _, c := range cands {
		ev, err := p.fluency(ctx, ids, al, c, origPLL)
		if err != nil {
			return nil, err
		}
		if ev.gain >= p.cfg.MinPLLGain {
			ok, d, err := p.semantic.IsPreserved(ctx, text, ev.newText, p.cfg.MinSBERTCosine, false)
			if err != nil {
				return nil, err
			}
			ev.similarity, ev.nli = d.Similarity, d.NLILabel
			ev.vetoed = !ok && d.Similarity >= p.cfg.MinSBERTCosine
		} else {
			if ev.similarity, err = p.semantic.Similarity(ctx, text, ev.newText); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

// fluency reconstructs the sentence with c and measures the windowed PLL
// change around the edit site.
func (p *Pipeline) fluency(ctx context.Context, ids []int, al align.WordAlignment, c candidates.Candidate, origPLL float64) (evaluation, error) {
	newText, newIDs, err := p.aligner.Reconstruct(ctx, ids, c.Text, al)
	if err != nil {
		return evaluation{}, err
	}
	newPLL, err := p.scorer.WindowedPLL(ctx, newIDs, al.TokenStart, p.cfg.PLLWindowSize)
	if err != nil {
		return evaluation{}, err
	}
	return evaluation{
		text:    c.Text,
		logProb: c.LogProb,
		rank:    c.Rank,
		newText: newText,
		gain:    newPLL - origPLL,
	}, nil
}

// selectBest returns the passing evaluation with the highest gain. Ties go
// to the first seen.
func selectBest(evals []evaluation, minGain, minSim float64) (int, bool) {
	best := -1
	bestGain := math.Inf(-1)
	for i, ev := range evals {
		if !ev.passes(minGain, minSim) {
			continue
		}
		if ev.gain > bestGain {
			best, bestGain = i, ev.gain
		}
	}
	return best, best >= 0
}

func topAlternatives(evals []evaluation, n int) []Alternative {
	alts := make([]Alternative, len(evals))
	for i, ev := range evals {
		alts[i] = Alternative{Text: ev.text, Gain: ev.gain, Similarity: ev.similarity}
	}
	sort.SliceStable(alts, func(i, j int) bool { return alts[i].Gain > alts[j].Gain })
	if len(alts) > n {
		alts = alts[:n]
	}
	return alts
}

func (p *Pipeline) reason(ws score.WordScore, gain, sim float64) string {
	var parts []string
	if ws.Entropy >= p.cfg.MinEntropy {
		parts = append(parts, fmt.Sprintf("high uncertainty (H=%.1f bits)", ws.Entropy))
	}
	if ws.Rank >= p.cfg.MaxOriginalRank {
		parts = append(parts, fmt.Sprintf("low rank (#%d)", ws.Rank))
	}
	parts = append(parts,
		fmt.Sprintf("improves fluency (+%.2f PLL)", gain),
		fmt.Sprintf("preserves meaning (%.3f sim)", sim))
	return strings.Join(parts, "; ")
}

// decide consults d. Any failure to decide skips the word.
func (p *Pipeline) decide(ctx context.Context, d Decider, edit Edit) (Edit, bool) {
	dec, err := d.Decide(ctx, edit)
	if err != nil {
		p.log.DebugContext(ctx, "decision failed, skipping word", "word", edit.Original, "error", err)
		return Edit{}, false
	}
	switch dec.Action {
	case Accept:
		return edit, true
	case ChooseAlternative:
		if dec.Index < 0 || dec.Index >= len(edit.Alternatives) {
			return Edit{}, false
		}
		alt := edit.Alternatives[dec.Index]
		edit.Replacement = alt.Text
		edit.Gain = alt.Gain
		edit.Similarity = alt.Similarity
		edit.Reason = p.reason(edit.Score, alt.Gain, alt.Similarity)
		return edit, true
	default:
		return Edit{}, false
	}
}

// apply replaces the characters of al and the word at al.WordIdx, returning
// new values.
func apply(text string, words []string, al align.WordAlignment, replacement string) (string, []string) {
	newText := text[:al.CharStart] + replacement + text[al.CharEnd:]
	newWords := append([]string(nil), words...)
	newWords[al.WordIdx] = replacement
	return newText, newWords
}
