// Package model defines the contracts of the external model services the
// refinement pipeline depends on. Implementations live elsewhere: an HTTP
// sidecar client in internal/modelhttp, a Gemini entailer in internal/gemini,
// and deterministic in-memory services in model/modeltest.
//
// Implementations must be safe for concurrent use once constructed.
package model

import "context"

// Span is a half-open byte range [Start, End) in a text, so that
// text[Start:End] is the token's source. Special tokens carry an empty span.
type Span struct {
	Start int
	End   int
}

// Empty reports whether the span covers no characters.
func (s Span) Empty() bool { return s.End <= s.Start }

// Encoding is a tokenized text: one id and one byte span per token,
// including the boundary sentinels at position 0 and len-1.
type Encoding struct {
	IDs     []int
	Offsets []Span
}

// MaskedLM is the tokenizer plus masked-language-model service.
type MaskedLM interface {
	// Tokenize encodes text with boundary sentinels and byte offsets.
	Tokenize(ctx context.Context, text string) (Encoding, error)

	// EncodeWord encodes a standalone word (as it would appear after a
	// space) without sentinels.
	EncodeWord(ctx context.Context, word string) ([]int, error)

	// Decode turns ids back into text, dropping sentinel tokens.
	Decode(ctx context.Context, ids []int) (string, error)

	// Infer returns vocabulary-sized logits for every position of ids.
	Infer(ctx context.Context, ids []int) ([][]float64, error)

	// MaskID is the id of the mask sentinel.
	MaskID() int
}

// WordInfo is the part-of-speech and morphology of one analyzed token.
type WordInfo struct {
	Text      string
	POS       string            // coarse tag: NOUN, VERB, ADJ, ...
	Tag       string            // fine-grained tag
	Morph     map[string]string // e.g. Number=Sing, Tense=Past
	IsProper  bool
	IsNumeric bool
}

// Tagger is the part-of-speech / morphology service.
type Tagger interface {
	// Analyze returns one WordInfo per non-punctuation token of text.
	Analyze(ctx context.Context, text string) ([]WordInfo, error)

	// ExtractWords returns the ordered non-space tokens of text,
	// punctuation included.
	ExtractWords(ctx context.Context, text string) ([]string, error)

	// SplitSentences returns the ordered sentences of text.
	SplitSentences(ctx context.Context, text string) ([]string, error)
}

// Embedder maps a text to a sentence embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// NLILabel is an entailment verdict.
type NLILabel string

const (
	Entailment    NLILabel = "entailment"
	Neutral       NLILabel = "neutral"
	Contradiction NLILabel = "contradiction"
)

// Valid reports whether l is one of the three known labels.
func (l NLILabel) Valid() bool {
	switch l {
	case Entailment, Neutral, Contradiction:
		return true
	}
	return false
}

// Entailer classifies the relation between a premise and a hypothesis.
type Entailer interface {
	Classify(ctx context.Context, premise, hypothesis string) (NLILabel, float64, error)
}
