// Package align maps words to the subword tokens of a masked language model
// and back.
package align

import (
	"context"
	"fmt"
	"strings"

	"github.com/cognicore/flow/pkg/flow/internalerr"
	"github.com/cognicore/flow/pkg/flow/model"
)

// WordAlignment places one word in a sentence, both as characters and as
// a contiguous token span.
type WordAlignment struct {
	WordIdx    int    // index in the word list given to Align
	Word       string // word text
	CharStart  int    // inclusive
	CharEnd    int    // exclusive
	TokenStart int    // inclusive
	TokenEnd   int    // exclusive
	TokenIDs   []int  // ids in [TokenStart, TokenEnd)
}

// Pieces returns the number of subword tokens of the word.
func (a WordAlignment) Pieces() int { return a.TokenEnd - a.TokenStart }

// Aligner aligns words against the tokenization of a MaskedLM.
type Aligner struct {
	lm model.MaskedLM
}

// New creates an aligner backed by lm.
func New(lm model.MaskedLM) *Aligner {
	return &Aligner{lm: lm}
}

// Encode tokenizes text with sentinels.
func (a *Aligner) Encode(ctx context.Context, text string) (model.Encoding, error) {
	enc, err := a.lm.Tokenize(ctx, text)
	if err != nil {
		return model.Encoding{}, fmt.Errorf("%w: tokenize: %w", internalerr.ErrModelService, err)
	}
	return enc, nil
}

// Align locates each word in text and maps it to its token span.
//
// Words are searched left to right, each search starting where the previous
// match ended. A word that is not found, or whose characters fall in no
// token, is skipped. The search does not recover the true occurrence when an
// identical substring appears earlier than expected.
func (a *Aligner) Align(ctx context.Context, text string, words []string) ([]WordAlignment, error) {
	enc, err := a.Encode(ctx, text)
	if err != nil {
		return nil, err
	}
	return AlignEncoding(text, words, enc), nil
}

// AlignEncoding is Align over an existing encoding of text.
func AlignEncoding(text string, words []string, enc model.Encoding) []WordAlignment {
	charToToken := make(map[int]int, len(text))
	for tok, span := range enc.Offsets {
		for c := span.Start; c < span.End; c++ {
			charToToken[c] = tok
		}
	}

	var out []WordAlignment
	cursor := 0
	for idx, word := range words {
		if word == "" || cursor > len(text) {
			continue
		}
		rel := strings.Index(text[cursor:], word)
		if rel < 0 {
			continue
		}
		start := cursor + rel
		end := start + len(word)
		cursor = end

		first, last := -1, -1
		for c := start; c < end; c++ {
			tok, ok := charToToken[c]
			if !ok {
				continue
			}
			if first < 0 || tok < first {
				first = tok
			}
			if tok > last {
				last = tok
			}
		}
		if first < 0 {
			continue
		}

		out = append(out, WordAlignment{
			WordIdx:    idx,
			Word:       word,
			CharStart:  start,
			CharEnd:    end,
			TokenStart: first,
			TokenEnd:   last + 1,
			TokenIDs:   append([]int(nil), enc.IDs[first:last+1]...),
		})
	}
	return out
}

// Find returns the alignment of the word with the given index.
func Find(alignments []WordAlignment, wordIdx int) (WordAlignment, bool) {
	for _, al := range alignments {
		if al.WordIdx == wordIdx {
			return al, true
		}
	}
	return WordAlignment{}, false
}

// MaskSpan returns a copy of ids with the whole span of al masked.
func (a *Aligner) MaskSpan(ids []int, al WordAlignment) []int {
	masked := append([]int(nil), ids...)
	for i := al.TokenStart; i < al.TokenEnd && i < len(masked); i++ {
		masked[i] = a.lm.MaskID()
	}
	return masked
}

// MaskPosition returns a copy of ids with only TokenStart+pos masked.
// Positions outside the span leave the copy unmasked.
func (a *Aligner) MaskPosition(ids []int, al WordAlignment, pos int) []int {
	masked := append([]int(nil), ids...)
	i := al.TokenStart + pos
	if pos >= 0 && i < al.TokenEnd && i < len(masked) {
		masked[i] = a.lm.MaskID()
	}
	return masked
}

// MaskFrom returns a copy of ids with pieces pos..end of the span masked.
func (a *Aligner) MaskFrom(ids []int, al WordAlignment, pos int) []int {
	masked := append([]int(nil), ids...)
	if pos < 0 {
		pos = 0
	}
	for i := al.TokenStart + pos; i < al.TokenEnd && i < len(masked); i++ {
		masked[i] = a.lm.MaskID()
	}
	return masked
}

// Reconstruct replaces the span of al with the standalone encoding of
// replacement and decodes the result. Callers must continue from the
// returned ids: both text length and token count may change.
func (a *Aligner) Reconstruct(ctx context.Context, ids []int, replacement string, al WordAlignment) (string, []int, error) {
	repl, err := a.lm.EncodeWord(ctx, replacement)
	if err != nil {
		return "", nil, fmt.Errorf("%w: encode %q: %w", internalerr.ErrModelService, replacement, err)
	}

	newIDs := make([]int, 0, len(ids)-al.Pieces()+len(repl))
	newIDs = append(newIDs, ids[:al.TokenStart]...)
	newIDs = append(newIDs, repl...)
	newIDs = append(newIDs, ids[al.TokenEnd:]...)

	text, err := a.lm.Decode(ctx, newIDs)
	if err != nil {
		return "", nil, fmt.Errorf("%w: decode: %w", internalerr.ErrModelService, err)
	}
	return strings.TrimSpace(text), newIDs, nil
}
