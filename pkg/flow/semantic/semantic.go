// Package semantic guards meaning: embedding similarity between two
// sentences, with an optional entailment check.
package semantic

import (
	"context"
	"fmt"
	"math"

	"github.com/cognicore/flow/pkg/flow/internalerr"
	"github.com/cognicore/flow/pkg/flow/model"
)

// Details explains an IsPreserved verdict. NLILabel is empty when the
// entailment check did not run.
type Details struct {
	Similarity    float64
	NLILabel      model.NLILabel
	NLIConfidence float64
}

// Checker compares sentences with an Embedder and, when set, an Entailer.
type Checker struct {
	embedder model.Embedder
	entailer model.Entailer
}

// New creates a checker. A nil entailer disables entailment checks.
func New(embedder model.Embedder, entailer model.Entailer) *Checker {
	return &Checker{embedder: embedder, entailer: entailer}
}

// UsesNLI reports whether an entailer is configured.
func (c *Checker) UsesNLI() bool { return c.entailer != nil }

// Similarity returns the cosine similarity of the embeddings of a and b,
// clamped to [0, 1].
func (c *Checker) Similarity(ctx context.Context, a, b string) (float64, error) {
	va, err := c.embed(ctx, a)
	if err != nil {
		return 0, err
	}
	vb, err := c.embed(ctx, b)
	if err != nil {
		return 0, err
	}
	return clamp01(Cosine(va, vb)), nil
}

// BatchSimilarity compares original against every candidate, embedding the
// original once.
func (c *Checker) BatchSimilarity(ctx context.Context, original string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	base, err := c.embed(ctx, original)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(candidates))
	for i, cand := range candidates {
		v, err := c.embed(ctx, cand)
		if err != nil {
			return nil, err
		}
		out[i] = clamp01(Cosine(base, v))
	}
	return out, nil
}

// Entailment classifies the relation between premise and hypothesis.
// Without an entailer it answers neutral with zero confidence.
func (c *Checker) Entailment(ctx context.Context, premise, hypothesis string) (model.NLILabel, float64, error) {
	if c.entailer == nil {
		return model.Neutral, 0, nil
	}
	label, conf, err := c.entailer.Classify(ctx, premise, hypothesis)
	if err != nil {
		return "", 0, fmt.Errorf("%w: classify: %w", internalerr.ErrModelService, err)
	}
	if !label.Valid() {
		return "", 0, fmt.Errorf("%w: unknown entailment label %q", internalerr.ErrModelService, label)
	}
	return label, conf, nil
}

// IsPreserved reports whether modified keeps the meaning of original.
// Similarity below minSimilarity fails without consulting the entailer; a
// contradiction fails unless allowContradiction is set.
func (c *Checker) IsPreserved(ctx context.Context, original, modified string, minSimilarity float64, allowContradiction bool) (bool, Details, error) {
	sim, err := c.Similarity(ctx, original, modified)
	if err != nil {
		return false, Details{}, err
	}
	d := Details{Similarity: sim}
	if sim < minSimilarity {
		return false, d, nil
	}
	if c.entailer == nil {
		return true, d, nil
	}

	label, conf, err := c.Entailment(ctx, original, modified)
	if err != nil {
		return false, d, err
	}
	d.NLILabel, d.NLIConfidence = label, conf
	if label == model.Contradiction && !allowContradiction {
		return false, d, nil
	}
	return true, d, nil
}

func (c *Checker) embed(ctx context.Context, text string) ([]float64, error) {
	v, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed: %w", internalerr.ErrModelService, err)
	}
	return v, nil
}

// Cosine returns the cosine similarity of a and b. The shorter vector is
// treated as zero-padded; a zero vector has similarity 0 to everything.
func Cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i, x := range a {
		na += x * x
		if i < len(b) {
			dot += x * b[i]
		}
	}
	for _, y := range b {
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
