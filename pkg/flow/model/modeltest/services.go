package modeltest

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/cognicore/flow/pkg/flow/model"
)

// Tagger is a lexicon-driven part-of-speech tagger.
// Unknown all-digit words are numerals; other unknown words get POS "X".
type Tagger struct {
	lexicon map[string]model.WordInfo
}

// NewTagger creates a tagger with an empty lexicon.
func NewTagger() *Tagger {
	return &Tagger{lexicon: make(map[string]model.WordInfo)}
}

// Add registers the analysis of a word (case-insensitive).
func (t *Tagger) Add(word, pos string, morph map[string]string) {
	t.lexicon[strings.ToLower(word)] = model.WordInfo{
		POS:      pos,
		Tag:      pos,
		Morph:    morph,
		IsProper: pos == "PROPN",
	}
}

// Analyze implements model.Tagger.
func (t *Tagger) Analyze(_ context.Context, text string) ([]model.WordInfo, error) {
	var out []model.WordInfo
	for _, w := range splitWords(text) {
		if isPunct(w.text) {
			continue
		}
		out = append(out, t.lookup(w.text))
	}
	return out, nil
}

func (t *Tagger) lookup(word string) model.WordInfo {
	if info, ok := t.lexicon[strings.ToLower(word)]; ok {
		info.Text = word
		morph := make(map[string]string, len(info.Morph))
		for k, v := range info.Morph {
			morph[k] = v
		}
		info.Morph = morph
		return info
	}
	if isDigits(word) {
		return model.WordInfo{Text: word, POS: "NUM", Tag: "CD", Morph: map[string]string{}, IsNumeric: true}
	}
	return model.WordInfo{Text: word, POS: "X", Tag: "XX", Morph: map[string]string{}}
}

// ExtractWords implements model.Tagger.
func (t *Tagger) ExtractWords(_ context.Context, text string) ([]string, error) {
	spans := splitWords(text)
	out := make([]string, len(spans))
	for i, w := range spans {
		out[i] = w.text
	}
	return out, nil
}

// SplitSentences implements model.Tagger. A sentence ends at '.', '!' or
// '?' followed by whitespace or the end of text.
func (t *Tagger) SplitSentences(_ context.Context, text string) ([]string, error) {
	var out []string
	runes := []rune(text)
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// BagOfWords embeds a text as lowercase word counts, one dimension per
// distinct word. Synonyms are folded onto their canonical word first.
type BagOfWords struct {
	mu       sync.Mutex
	dims     map[string]int
	synonyms map[string]string
	calls    int
}

// NewBagOfWords creates an embedder with no synonyms.
func NewBagOfWords() *BagOfWords {
	return &BagOfWords{
		dims:     make(map[string]int),
		synonyms: make(map[string]string),
	}
}

// AddSynonym folds word onto canonical.
func (e *BagOfWords) AddSynonym(word, canonical string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.synonyms[strings.ToLower(word)] = strings.ToLower(canonical)
}

// Calls returns how many times Embed ran.
func (e *BagOfWords) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Embed implements model.Embedder.
func (e *BagOfWords) Embed(_ context.Context, text string) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++

	counts := make(map[int]float64)
	for _, w := range splitWords(text) {
		key := strings.ToLower(w.text)
		if canon, ok := e.synonyms[key]; ok {
			key = canon
		}
		d, ok := e.dims[key]
		if !ok {
			d = len(e.dims)
			e.dims[key] = d
		}
		counts[d]++
	}
	vec := make([]float64, len(e.dims))
	for d, c := range counts {
		vec[d] = c
	}
	return vec, nil
}

// Entailer returns scripted verdicts keyed by (premise, hypothesis).
type Entailer struct {
	mu      sync.Mutex
	verdict map[[2]string]model.NLILabel
	calls   int

	// Default is returned for unscripted pairs.
	Default model.NLILabel
}

// NewEntailer creates an entailer that answers entailment by default.
func NewEntailer() *Entailer {
	return &Entailer{
		verdict: make(map[[2]string]model.NLILabel),
		Default: model.Entailment,
	}
}

// Script fixes the verdict for one pair.
func (e *Entailer) Script(premise, hypothesis string, label model.NLILabel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.verdict[[2]string{premise, hypothesis}] = label
}

// Calls returns how many times Classify ran.
func (e *Entailer) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Classify implements model.Entailer.
func (e *Entailer) Classify(_ context.Context, premise, hypothesis string) (model.NLILabel, float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if l, ok := e.verdict[[2]string{premise, hypothesis}]; ok {
		return l, 0.9, nil
	}
	return e.Default, 0.9, nil
}
