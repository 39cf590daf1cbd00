// Package score measures how expected each word of a sentence is under a
// masked language model, and how fluent a window of tokens is.
package score

import (
	"context"
	"fmt"
	"math"

	"github.com/cognicore/flow/pkg/flow/align"
	"github.com/cognicore/flow/pkg/flow/internalerr"
	"github.com/cognicore/flow/pkg/flow/model"
)

// PLLMethod selects the masking schedule for multi-piece words.
type PLLMethod string

const (
	// WordL2R masks piece i and every piece to its right within the word.
	WordL2R PLLMethod = "word-l2r"
	// Standard masks piece i alone.
	Standard PLLMethod = "standard"
)

// WordScore is the raw uncertainty of one word. IsClunky is a policy
// decision taken by ScoreSentence, never by Score.
type WordScore struct {
	WordIdx  int     `json:"word_idx"`
	Word     string  `json:"word"`
	Entropy  float64 `json:"entropy"`  // bits
	LogProb  float64 `json:"log_prob"` // natural log-probability of the original token(s)
	Rank     int     `json:"rank"`     // 1 = model's top pick
	Pieces   int     `json:"pieces"`
	IsClunky bool    `json:"is_clunky"`
}

// Scorer computes word uncertainty and windowed pseudo-log-likelihood.
type Scorer struct {
	lm      model.MaskedLM
	aligner *align.Aligner
	method  PLLMethod
}

// NewScorer creates a scorer. An empty method means WordL2R.
func NewScorer(lm model.MaskedLM, aligner *align.Aligner, method PLLMethod) *Scorer {
	if method == "" {
		method = WordL2R
	}
	return &Scorer{lm: lm, aligner: aligner, method: method}
}

// Score measures the word at al within ids. When withDist is set, the
// probability distribution of the first piece is returned as well.
func (s *Scorer) Score(ctx context.Context, ids []int, al align.WordAlignment, withDist bool) (WordScore, []float64, error) {
	if al.Pieces() == 1 {
		return s.scoreSingle(ctx, ids, al, withDist)
	}
	return s.scoreMulti(ctx, ids, al, withDist)
}

func (s *Scorer) scoreSingle(ctx context.Context, ids []int, al align.WordAlignment, withDist bool) (WordScore, []float64, error) {
	logits, err := s.infer(ctx, s.aligner.MaskSpan(ids, al), al.TokenStart)
	if err != nil {
		return WordScore{}, nil, err
	}
	logp := LogSoftmax(logits)
	orig := al.TokenIDs[0]
	if orig < 0 || orig >= len(logp) {
		return WordScore{}, nil, fmt.Errorf("%w: token %d outside vocabulary of %d", internalerr.ErrModelService, orig, len(logp))
	}

	ws := WordScore{
		WordIdx: al.WordIdx,
		Word:    al.Word,
		Entropy: Entropy(logp),
		LogProb: logp[orig],
		Rank:    Rank(logp, orig),
		Pieces:  1,
	}
	var dist []float64
	if withDist {
		dist = Probs(logp)
	}
	return ws, dist, nil
}

// scoreMulti sums per-piece log-probabilities so that later pieces of the
// word never inform earlier ones (under WordL2R). Rank is bucketed from
// the total log-probability since ranking whole piece sequences is
// intractable.
func (s *Scorer) scoreMulti(ctx context.Context, ids []int, al align.WordAlignment, withDist bool) (WordScore, []float64, error) {
	n := al.Pieces()
	var total, entropySum float64
	var dist []float64

	for i := 0; i < n; i++ {
		var masked []int
		if s.method == Standard {
			masked = s.aligner.MaskPosition(ids, al, i)
		} else {
			masked = s.aligner.MaskFrom(ids, al, i)
		}
		logits, err := s.infer(ctx, masked, al.TokenStart+i)
		if err != nil {
			return WordScore{}, nil, err
		}
		logp := LogSoftmax(logits)
		if id := al.TokenIDs[i]; id < 0 || id >= len(logp) {
			return WordScore{}, nil, fmt.Errorf("%w: token %d outside vocabulary of %d", internalerr.ErrModelService, id, len(logp))
		}
		entropySum += Entropy(logp)
		total += logp[al.TokenIDs[i]]
		if withDist && i == 0 {
			dist = Probs(logp)
		}
	}

	return WordScore{
		WordIdx: al.WordIdx,
		Word:    al.Word,
		Entropy: entropySum / float64(n),
		LogProb: total,
		Rank:    RankBucket(total),
		Pieces:  n,
	}, dist, nil
}

// RankBucket approximates the rank of a multi-piece word from its total
// log-probability.
func RankBucket(total float64) int {
	switch {
	case total >= -2.0:
		return 1
	case total >= -5.0:
		return 10
	case total >= -10.0:
		return 50
	default:
		return 100
	}
}

// ScoreSentence aligns words against text, scores every aligned word and
// flags it clunky when entropy >= minEntropy or rank >= maxRank. Words that
// cannot be aligned are absent from the result.
func (s *Scorer) ScoreSentence(ctx context.Context, text string, words []string, minEntropy float64, maxRank int) ([]WordScore, error) {
	enc, err := s.aligner.Encode(ctx, text)
	if err != nil {
		return nil, err
	}
	alignments := align.AlignEncoding(text, words, enc)

	scores := make([]WordScore, 0, len(alignments))
	for _, al := range alignments {
		ws, _, err := s.Score(ctx, enc.IDs, al, false)
		if err != nil {
			return nil, err
		}
		ws.IsClunky = ws.Entropy >= minEntropy || ws.Rank >= maxRank
		scores = append(scores, ws)
	}
	return scores, nil
}

// WindowedPLL sums the log-probability of each original token in
// [max(1, center-radius), min(len-1, center+radius+1)), masking one position
// at a time. The sentinels at 0 and len-1 are never masked.
func (s *Scorer) WindowedPLL(ctx context.Context, ids []int, center, radius int) (float64, error) {
	start := max(1, center-radius)
	end := min(len(ids)-1, center+radius+1)

	var total float64
	for pos := start; pos < end; pos++ {
		masked := append([]int(nil), ids...)
		masked[pos] = s.lm.MaskID()
		logits, err := s.infer(ctx, masked, pos)
		if err != nil {
			return 0, err
		}
		if ids[pos] < 0 || ids[pos] >= len(logits) {
			return 0, fmt.Errorf("%w: token %d outside vocabulary of %d", internalerr.ErrModelService, ids[pos], len(logits))
		}
		total += LogSoftmax(logits)[ids[pos]]
	}
	return total, nil
}

func (s *Scorer) infer(ctx context.Context, ids []int, pos int) ([]float64, error) {
	out, err := s.lm.Infer(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: infer: %w", internalerr.ErrModelService, err)
	}
	if pos < 0 || pos >= len(out) {
		return nil, fmt.Errorf("%w: infer returned %d positions, need %d", internalerr.ErrModelService, len(out), pos+1)
	}
	return out[pos], nil
}

// LogSoftmax converts logits to natural log-probabilities.
func LogSoftmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	peak := math.Inf(-1)
	for _, l := range logits {
		if l > peak {
			peak = l
		}
	}
	var sum float64
	for _, l := range logits {
		sum += math.Exp(l - peak)
	}
	norm := peak + math.Log(sum)
	out := make([]float64, len(logits))
	for i, l := range logits {
		out[i] = l - norm
	}
	return out
}

// Probs exponentiates log-probabilities.
func Probs(logp []float64) []float64 {
	out := make([]float64, len(logp))
	for i, lp := range logp {
		out[i] = math.Exp(lp)
	}
	return out
}

// Entropy returns the entropy in bits of a distribution given as natural
// log-probabilities.
func Entropy(logp []float64) float64 {
	var h float64
	for _, lp := range logp {
		if math.IsInf(lp, -1) {
			continue
		}
		h -= math.Exp(lp) * lp
	}
	return h / math.Ln2
}

// Rank is 1 plus the number of entries strictly more probable than id.
func Rank(logp []float64, id int) int {
	if id < 0 || id >= len(logp) {
		return len(logp) + 1
	}
	target := logp[id]
	rank := 1
	for _, lp := range logp {
		if lp > target {
			rank++
		}
	}
	return rank
}
