// Package linguistic checks that a replacement fits the grammatical slot of
// the word it replaces.
package linguistic

import (
	"context"
	"fmt"
	"strings"

	"github.com/cognicore/flow/pkg/flow/internalerr"
	"github.com/cognicore/flow/pkg/flow/model"
)

// agreementFeatures must match when both words carry them.
var agreementFeatures = []string{"Number", "Tense", "Person", "Mood", "VerbForm"}

// interchangeable lists POS groups whose members may replace each other.
var interchangeable = []map[string]bool{
	{"NOUN": true, "PROPN": true},
	{"ADJ": true, "ADV": true},
}

// Constraints wraps a part-of-speech tagger.
type Constraints struct {
	tagger model.Tagger
}

// New creates constraints backed by tagger.
func New(tagger model.Tagger) *Constraints {
	return &Constraints{tagger: tagger}
}

// Analyze tags text, punctuation excluded.
func (c *Constraints) Analyze(ctx context.Context, text string) ([]model.WordInfo, error) {
	infos, err := c.tagger.Analyze(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: analyze: %w", internalerr.ErrModelService, err)
	}
	return infos, nil
}

// WordInfo tags word in isolation. A word the tagger returns nothing for
// gets POS "X" and no features.
func (c *Constraints) WordInfo(ctx context.Context, word string) (model.WordInfo, error) {
	infos, err := c.Analyze(ctx, word)
	if err != nil {
		return model.WordInfo{}, err
	}
	if len(infos) == 0 {
		return model.WordInfo{Text: word, POS: "X", Tag: "X", Morph: map[string]string{}}, nil
	}
	return infos[0], nil
}

// FilterCandidates keeps the candidates compatible with original. The
// original is looked up in the tagged sentence (first case-insensitive
// match) and tagged in isolation when absent; candidates are always tagged
// in isolation.
func (c *Constraints) FilterCandidates(ctx context.Context, original string, candidates []string, sentence string, strict bool) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	orig, err := c.contextInfo(ctx, original, sentence)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, cand := range candidates {
		info, err := c.WordInfo(ctx, cand)
		if err != nil {
			return nil, err
		}
		if IsCompatible(orig, info, strict) {
			out = append(out, cand)
		}
	}
	return out, nil
}

func (c *Constraints) contextInfo(ctx context.Context, word, sentence string) (model.WordInfo, error) {
	infos, err := c.Analyze(ctx, sentence)
	if err != nil {
		return model.WordInfo{}, err
	}
	for _, info := range infos {
		if strings.EqualFold(info.Text, word) {
			return info, nil
		}
	}
	return c.WordInfo(ctx, word)
}

// IsCompatible reports whether cand may replace orig. Proper nouns and
// numerals are rejected on either side even though NOUN and PROPN share a
// group.
func IsCompatible(orig, cand model.WordInfo, strict bool) bool {
	if orig.IsProper || orig.IsNumeric || cand.IsProper || cand.IsNumeric {
		return false
	}
	if !POSCompatible(orig.POS, cand.POS) {
		return false
	}
	if strict {
		return MorphCompatible(orig.Morph, cand.Morph)
	}
	return true
}

// POSCompatible reports whether two coarse tags are equal or interchangeable.
func POSCompatible(a, b string) bool {
	if a == b {
		return true
	}
	for _, group := range interchangeable {
		if group[a] && group[b] {
			return true
		}
	}
	return false
}

// MorphCompatible reports whether every agreement feature present on both
// sides has the same value. A feature missing on one side never conflicts.
func MorphCompatible(a, b map[string]string) bool {
	for _, f := range agreementFeatures {
		va, vb := a[f], b[f]
		if va != "" && vb != "" && va != vb {
			return false
		}
	}
	return true
}

// ExtractWords splits text into the words the tagger sees.
func (c *Constraints) ExtractWords(ctx context.Context, text string) ([]string, error) {
	words, err := c.tagger.ExtractWords(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: extract words: %w", internalerr.ErrModelService, err)
	}
	return words, nil
}

// SplitSentences splits text into sentences.
func (c *Constraints) SplitSentences(ctx context.Context, text string) ([]string, error) {
	sents, err := c.tagger.SplitSentences(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: split sentences: %w", internalerr.ErrModelService, err)
	}
	return sents, nil
}
