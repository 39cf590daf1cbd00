// Package candidates proposes single-token replacements for a word from the
// fill-in-the-blank distribution of a masked language model.
package candidates

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cognicore/flow/pkg/flow/align"
	"github.com/cognicore/flow/pkg/flow/internalerr"
	"github.com/cognicore/flow/pkg/flow/model"
	"github.com/cognicore/flow/pkg/flow/score"
)

// DefaultFragmentPrefix marks WordPiece continuation tokens.
const DefaultFragmentPrefix = "##"

// Candidate is one proposed replacement token.
type Candidate struct {
	Text    string
	LogProb float64
	Rank    int // 1-indexed position in the masked-fill distribution
}

// Generator draws candidates from a MaskedLM.
type Generator struct {
	lm             model.MaskedLM
	topK           int
	fragmentPrefix string
}

// NewGenerator creates a generator returning at most topK candidates.
// An empty fragmentPrefix means DefaultFragmentPrefix.
func NewGenerator(lm model.MaskedLM, topK int, fragmentPrefix string) *Generator {
	if fragmentPrefix == "" {
		fragmentPrefix = DefaultFragmentPrefix
	}
	return &Generator{lm: lm, topK: topK, fragmentPrefix: fragmentPrefix}
}

// Generate masks the first token of al, takes the topK entries of the
// distribution at that position and returns those that survive basic
// filtering, most probable first. Multi-piece words are only ever replaced
// by single tokens.
func (g *Generator) Generate(ctx context.Context, ids []int, al align.WordAlignment, original string) ([]Candidate, error) {
	if al.TokenStart < 0 || al.TokenStart >= len(ids) {
		return nil, fmt.Errorf("%w: token %d outside sequence of %d", internalerr.ErrInvalidInput, al.TokenStart, len(ids))
	}
	masked := append([]int(nil), ids...)
	masked[al.TokenStart] = g.lm.MaskID()

	logits, err := g.lm.Infer(ctx, masked)
	if err != nil {
		return nil, fmt.Errorf("%w: infer: %w", internalerr.ErrModelService, err)
	}
	if al.TokenStart >= len(logits) {
		return nil, fmt.Errorf("%w: infer returned %d positions", internalerr.ErrModelService, len(logits))
	}
	logp := score.LogSoftmax(logits[al.TokenStart])

	var out []Candidate
	for i, id := range topIDs(logp, g.topK) {
		text, err := g.lm.Decode(ctx, []int{id})
		if err != nil {
			return nil, fmt.Errorf("%w: decode %d: %w", internalerr.ErrModelService, id, err)
		}
		text = strings.TrimSpace(text)
		if !g.valid(text, original) {
			continue
		}
		out = append(out, Candidate{Text: text, LogProb: logp[id], Rank: i + 1})
	}
	return out, nil
}

// topIDs returns the k most probable ids, ties broken by ascending id.
func topIDs(logp []float64, k int) []int {
	ids := make([]int, len(logp))
	for i := range ids {
		ids[i] = i
	}
	sort.SliceStable(ids, func(a, b int) bool {
		return logp[ids[a]] > logp[ids[b]]
	})
	if k < len(ids) {
		ids = ids[:k]
	}
	return ids
}

func (g *Generator) valid(candidate, original string) bool {
	if strings.EqualFold(candidate, original) {
		return false
	}
	if strings.HasPrefix(candidate, g.fragmentPrefix) {
		return false
	}
	stripped := strings.NewReplacer("-", "", "'", "").Replace(candidate)
	if stripped == "" {
		return false
	}
	for _, r := range stripped {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return utf8.RuneCountInString(candidate) >= 2
}

// PreserveCase adjusts candidate to the casing pattern of original:
// all caps, title case, first letter capitalized, or lowercase.
func PreserveCase(candidate, original string) string {
	if candidate == "" || original == "" {
		return candidate
	}
	first, size := utf8.DecodeRuneInString(original)
	rest := original[size:]

	switch {
	case isUpper(original):
		return strings.ToUpper(candidate)
	case unicode.IsUpper(first) && isLower(rest):
		return capitalize(strings.ToLower(candidate))
	case unicode.IsUpper(first):
		return capitalize(candidate)
	default:
		return strings.ToLower(candidate)
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// isUpper reports whether s has a cased letter and no lowercase ones.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

// isLower reports whether s has a cased letter and no uppercase ones.
func isLower(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsUpper(r) {
			return false
		}
		if unicode.IsLower(r) {
			cased = true
		}
	}
	return cased
}
