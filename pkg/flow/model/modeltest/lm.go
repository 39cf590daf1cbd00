// Package modeltest provides deterministic in-memory model services for
// tests and offline demos. None of them is a real language model: the masked
// LM scores a token by a prior plus bonuses for its left and right
// neighbours, which is enough to reproduce confident and uncertain positions
// on small fixtures.
package modeltest

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/cognicore/flow/pkg/flow/model"
)

// Reserved ids.
const (
	BOS  = 0
	EOS  = 1
	Mask = 2
	Unk  = 3
)

// ContinuationPrefix marks word pieces that attach to the previous token.
const ContinuationPrefix = "##"

const specialLogit = -100.0

// LM is a bigram-style masked language model over a growing vocabulary.
//
// The logit of vocabulary entry v at position p is
//
//	Prior[v] + Pair[left][v] + Pair[v][right]
//
// where left and right are the lowercased neighbours of p. Masked
// neighbours contribute nothing. Sentinels are "<s>" and "</s>".
type LM struct {
	mu     sync.Mutex
	vocab  []string
	index  map[string]int
	pieces map[string][]string
	prior  map[string]float64
	pairs  map[[2]string]float64
	calls  [][]int

	// InferErr, when set, is returned by every Infer call.
	InferErr error
}

// NewLM creates an LM whose vocabulary starts with the given words.
func NewLM(words ...string) *LM {
	lm := &LM{
		index:  make(map[string]int),
		pieces: make(map[string][]string),
		prior:  make(map[string]float64),
		pairs:  make(map[[2]string]float64),
	}
	for _, w := range []string{"<s>", "</s>", "<mask>", "<unk>"} {
		lm.add(w)
	}
	for _, w := range words {
		lm.add(w)
	}
	return lm
}

// SetPrior sets the base logit of a (lowercased) token.
func (lm *LM) SetPrior(token string, logit float64) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.prior[strings.ToLower(token)] = logit
}

// SetPair adds a bonus when right directly follows left.
func (lm *LM) SetPair(left, right string, bonus float64) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.pairs[[2]string{strings.ToLower(left), strings.ToLower(right)}] = bonus
}

// SetPieces splits word into the given pieces when tokenizing. Every piece
// after the first must carry ContinuationPrefix.
func (lm *LM) SetPieces(word string, pieces ...string) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.pieces[word] = pieces
	for _, p := range pieces {
		lm.addLocked(p)
	}
}

// ID returns the id of token, adding it to the vocabulary if needed.
func (lm *LM) ID(token string) int {
	return lm.add(token)
}

// Token returns the vocabulary entry for id.
func (lm *LM) Token(id int) string {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if id < 0 || id >= len(lm.vocab) {
		return "<unk>"
	}
	return lm.vocab[id]
}

// VocabSize returns the current vocabulary size.
func (lm *LM) VocabSize() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.vocab)
}

// Calls returns copies of the id sequences passed to Infer, in order.
func (lm *LM) Calls() [][]int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	out := make([][]int, len(lm.calls))
	for i, c := range lm.calls {
		out[i] = append([]int(nil), c...)
	}
	return out
}

// ResetCalls forgets recorded Infer calls.
func (lm *LM) ResetCalls() {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.calls = nil
}

// MaskID implements model.MaskedLM.
func (lm *LM) MaskID() int { return Mask }

// Tokenize implements model.MaskedLM.
func (lm *LM) Tokenize(_ context.Context, text string) (model.Encoding, error) {
	enc := model.Encoding{
		IDs:     []int{BOS},
		Offsets: []model.Span{{}},
	}
	for _, w := range splitWords(text) {
		ids, spans := lm.encodeAt(w.text, w.start)
		enc.IDs = append(enc.IDs, ids...)
		enc.Offsets = append(enc.Offsets, spans...)
	}
	enc.IDs = append(enc.IDs, EOS)
	enc.Offsets = append(enc.Offsets, model.Span{})
	return enc, nil
}

// EncodeWord implements model.MaskedLM.
func (lm *LM) EncodeWord(_ context.Context, word string) ([]int, error) {
	var ids []int
	for _, w := range splitWords(word) {
		pieceIDs, _ := lm.encodeAt(w.text, w.start)
		ids = append(ids, pieceIDs...)
	}
	return ids, nil
}

// Decode implements model.MaskedLM. A leading continuation piece keeps its
// prefix, so a fragment decoded alone stays recognizable.
func (lm *LM) Decode(_ context.Context, ids []int) (string, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var b strings.Builder
	for _, id := range ids {
		if id == BOS || id == EOS {
			continue
		}
		tok := "<unk>"
		if id >= 0 && id < len(lm.vocab) {
			tok = lm.vocab[id]
		}
		switch {
		case strings.HasPrefix(tok, ContinuationPrefix) && b.Len() > 0:
			b.WriteString(strings.TrimPrefix(tok, ContinuationPrefix))
		case isPunct(tok) || b.Len() == 0:
			b.WriteString(tok)
		default:
			b.WriteByte(' ')
			b.WriteString(tok)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// Infer implements model.MaskedLM.
func (lm *LM) Infer(_ context.Context, ids []int) ([][]float64, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.calls = append(lm.calls, append([]int(nil), ids...))
	if lm.InferErr != nil {
		return nil, lm.InferErr
	}

	out := make([][]float64, len(ids))
	for p := range ids {
		left, hasLeft := lm.contextKey(ids, p-1)
		right, hasRight := lm.contextKey(ids, p+1)
		row := make([]float64, len(lm.vocab))
		for v, tok := range lm.vocab {
			if v <= Unk {
				row[v] = specialLogit
				continue
			}
			key := strings.ToLower(tok)
			logit := lm.prior[key]
			if hasLeft {
				logit += lm.pairs[[2]string{left, key}]
			}
			if hasRight {
				logit += lm.pairs[[2]string{key, right}]
			}
			row[v] = logit
		}
		out[p] = row
	}
	return out, nil
}

func (lm *LM) contextKey(ids []int, p int) (string, bool) {
	if p < 0 || p >= len(ids) {
		return "", false
	}
	switch ids[p] {
	case Mask:
		return "", false
	case BOS:
		return "<s>", true
	case EOS:
		return "</s>", true
	}
	if ids[p] < 0 || ids[p] >= len(lm.vocab) {
		return "", false
	}
	return strings.ToLower(lm.vocab[ids[p]]), true
}

func (lm *LM) encodeAt(word string, start int) ([]int, []model.Span) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	pieces, ok := lm.pieces[word]
	if !ok {
		pieces = []string{word}
	}
	ids := make([]int, 0, len(pieces))
	spans := make([]model.Span, 0, len(pieces))
	pos := start
	for _, p := range pieces {
		n := len(strings.TrimPrefix(p, ContinuationPrefix))
		ids = append(ids, lm.addLocked(p))
		spans = append(spans, model.Span{Start: pos, End: pos + n})
		pos += n
	}
	return ids, spans
}

func (lm *LM) add(token string) int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.addLocked(token)
}

func (lm *LM) addLocked(token string) int {
	if id, ok := lm.index[token]; ok {
		return id
	}
	id := len(lm.vocab)
	lm.vocab = append(lm.vocab, token)
	lm.index[token] = id
	return id
}

type wordSpan struct {
	text  string
	start int
}

// splitWords splits text into word runs (letters, digits, hyphen,
// apostrophe) and single punctuation characters, with byte offsets.
func splitWords(text string) []wordSpan {
	var out []wordSpan
	start := -1
	for i, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, wordSpan{text: text[start:i], start: start})
			start = -1
		}
		if !unicode.IsSpace(r) {
			out = append(out, wordSpan{text: string(r), start: i})
		}
	}
	if start >= 0 {
		out = append(out, wordSpan{text: text[start:], start: start})
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' || r == '\''
}

func isPunct(tok string) bool {
	for _, r := range tok {
		if isWordRune(r) {
			return false
		}
	}
	return tok != ""
}
